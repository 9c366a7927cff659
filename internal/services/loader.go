package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"abt-dashboard/internal/models"
	"abt-dashboard/internal/observability"
)

const (
	batchSize  = 10000
	maxWorkers = 10
	utf8BOM    = "\uFEFF"
)

const (
	colInvoiceNo   = "InvoiceNo"
	colStockCode   = "StockCode"
	colDescription = "Description"
	colQuantity    = "Quantity"
	colInvoiceDate = "InvoiceDate"
	colUnitPrice   = "UnitPrice"
	colCustomerID  = "CustomerID"
	colCountry     = "Country"
)

// StockCode is the only column allowed to be absent or blank.
var requiredColumns = []string{
	colInvoiceNo, colDescription, colQuantity, colInvoiceDate,
	colUnitPrice, colCustomerID, colCountry,
}

// Layouts seen in retail extracts, tried in order.
var timestampLayouts = []string{
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006-01-02",
}

type LoadOptions struct {
	// Encoding of the source file: ISO-8859-1, windows-1252 or utf-8.
	Encoding string
	// Strict fails the whole load on the first malformed row instead of
	// dropping it.
	Strict bool
}

// LoadFile reads and normalizes the extract at path.
func LoadFile(ctx context.Context, path string, opts LoadOptions, logger *slog.Logger) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceError{Path: path, Err: err}
	}
	defer f.Close()

	table, err := Load(ctx, f, opts, logger)
	if err != nil {
		var serr *SourceError
		if errors.As(err, &serr) && serr.Path == "" {
			serr.Path = path
		}
		return nil, err
	}
	table.stats.Source = path
	return table, nil
}

// Load parses records from r, drops incomplete rows and derives line total,
// month bucket and profit estimate for every kept row.
func Load(ctx context.Context, r io.Reader, opts LoadOptions, logger *slog.Logger) (*Table, error) {
	ctx, span := observability.StartSpan(ctx, "dataset.load")
	defer span.End(logger)

	start := time.Now()

	decoded, err := decodeSource(r, opts.Encoding)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	header, raw, stats, err := readRecords(decoded, opts.Strict)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	rows, err := normalize(ctx, header, raw, opts.Strict, &stats)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	stats.RowsKept = len(rows)
	stats.LoadedAt = time.Now()
	stats.Duration = time.Since(start)
	span.SetTag("rows", strconv.Itoa(len(rows)))

	logger.Info("dataset loaded",
		"rows_read", stats.RowsRead,
		"rows_kept", stats.RowsKept,
		"rows_dropped", stats.RowsDropped,
		"rows_malformed", stats.RowsMalformed,
		"duration", stats.Duration,
	)

	return newTable(rows, stats), nil
}

func decodeSource(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	case "utf-8", "utf8":
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
	default:
		return nil, fmt.Errorf("unsupported source encoding %q", encoding)
	}
}

type rawRecord struct {
	line   int
	fields []string
}

// columnIndex maps column names to their position in the header; -1 marks
// an absent optional column.
type columnIndex map[string]int

func (c columnIndex) get(fields []string, name string) string {
	i, ok := c[name]
	if !ok || i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func readRecords(r io.Reader, strict bool) (columnIndex, []rawRecord, LoadStats, error) {
	var stats LoadStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, stats, &RecordError{Err: errors.New("empty source")}
	}
	if err != nil {
		return nil, nil, stats, readError(err)
	}

	cols, err := indexHeader(header)
	if err != nil {
		return nil, nil, stats, err
	}

	var records []rawRecord
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, nil, stats, readError(err)
			}
			stats.RowsRead++
			if strict {
				return nil, nil, stats, &RecordError{Line: perr.Line, Err: perr.Err}
			}
			stats.RowsMalformed++
			continue
		}
		stats.RowsRead++
		line, _ := reader.FieldPos(0)
		if len(fields) != len(header) {
			if strict {
				return nil, nil, stats, &RecordError{
					Line: line,
					Err:  fmt.Errorf("got %d fields, want %d", len(fields), len(header)),
				}
			}
			stats.RowsMalformed++
			continue
		}
		records = append(records, rawRecord{line: line, fields: fields})
	}

	return cols, records, stats, nil
}

// readError separates CSV syntax errors, which are the record's fault, from
// failures of the underlying reader.
func readError(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &RecordError{Err: perr.Err}
	}
	return &SourceError{Err: err}
}

func indexHeader(header []string) (columnIndex, error) {
	cols := columnIndex{colStockCode: -1}
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))
		cols[name] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &RecordError{Err: fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))}
	}
	return cols, nil
}

type chunkResult struct {
	rows      []models.Transaction
	dropped   int
	malformed int
}

// normalize converts raw records in parallel chunks. Chunk results are
// stitched back in source order.
func normalize(ctx context.Context, cols columnIndex, raw []rawRecord, strict bool, stats *LoadStats) ([]models.Transaction, error) {
	chunks := (len(raw) + batchSize - 1) / batchSize
	results := make([]chunkResult, chunks)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for c := 0; c < chunks; c++ {
		lo := c * batchSize
		hi := min(lo+batchSize, len(raw))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := normalizeChunk(cols, raw[lo:hi], strict)
			if err != nil {
				return err
			}
			results[c] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, res := range results {
		total += len(res.rows)
	}
	rows := make([]models.Transaction, 0, total)
	for _, res := range results {
		rows = append(rows, res.rows...)
		stats.RowsDropped += res.dropped
		stats.RowsMalformed += res.malformed
	}
	return rows, nil
}

func normalizeChunk(cols columnIndex, raw []rawRecord, strict bool) (chunkResult, error) {
	res := chunkResult{rows: make([]models.Transaction, 0, len(raw))}
	for _, rec := range raw {
		tx, complete, err := normalizeRecord(cols, rec)
		switch {
		case err != nil && strict:
			return res, err
		case err != nil:
			res.malformed++
		case !complete:
			res.dropped++
		default:
			res.rows = append(res.rows, tx)
		}
	}
	return res, nil
}

// normalizeRecord returns complete=false for rows with a blank required
// field or a non-finite price. Such rows are dropped, not imputed.
func normalizeRecord(cols columnIndex, rec rawRecord) (models.Transaction, bool, error) {
	tx := models.Transaction{
		InvoiceNo:   cols.get(rec.fields, colInvoiceNo),
		StockCode:   cols.get(rec.fields, colStockCode),
		Description: cols.get(rec.fields, colDescription),
		CustomerID:  cols.get(rec.fields, colCustomerID),
		Country:     cols.get(rec.fields, colCountry),
	}
	quantity := cols.get(rec.fields, colQuantity)
	price := cols.get(rec.fields, colUnitPrice)
	date := cols.get(rec.fields, colInvoiceDate)

	for _, v := range []string{tx.InvoiceNo, tx.Description, tx.CustomerID, tx.Country, quantity, price, date} {
		if v == "" {
			return models.Transaction{}, false, nil
		}
	}

	q, err := strconv.Atoi(quantity)
	if err != nil {
		return models.Transaction{}, false, &RecordError{Line: rec.line, Field: colQuantity, Err: err}
	}
	p, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return models.Transaction{}, false, &RecordError{Line: rec.line, Field: colUnitPrice, Err: err}
	}
	// ParseFloat accepts "NaN" and "Inf"; treat them as missing prices.
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return models.Transaction{}, false, nil
	}
	tx.Quantity = q
	tx.UnitPrice = p
	tx.LineTotal = float64(q) * p

	ts, err := parseTimestamp(date)
	if err != nil {
		return models.Transaction{}, false, &RecordError{Line: rec.line, Field: colInvoiceDate, Err: err}
	}
	tx.InvoiceDate = ts
	tx.Month = models.MonthBucket(ts)
	tx.ProfitEstimate = tx.LineTotal * models.ProfitRate

	return tx, true, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
