package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"
)

const csvHeader = "InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n"

// latin1CSV holds a raw 0xE9 byte, which is "é" in ISO-8859-1.
const latin1CSV = csvHeader +
	"536365,85123A,CAF\xE9 MUG,6,12/1/2010 8:26,2.50,17850,United Kingdom\n" +
	"536366,22633,HAND WARMER,6,12/1/2010 8:28,1.85,,United Kingdom\n" +
	"536367,84879,ASSORTED BIRD,abc,12/1/2010 8:34,1.69,13047,United Kingdom\n" +
	"C536379,D,Discount,-1,12/1/2010 9:41,27.50,14527,France\n" +
	"536368,22960,JAM MAKING SET,6,12/1/2010 8:34\n"

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "online_retail.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Lenient(t *testing.T) {
	table, err := Load(context.Background(), strings.NewReader(latin1CSV), LoadOptions{Encoding: "ISO-8859-1"}, testLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}

	first := table.Row(0)
	if first.Description != "CAFé MUG" {
		t.Errorf("Description = %q, want decoded latin-1", first.Description)
	}
	if first.StockCode != "85123A" || first.Quantity != 6 || first.UnitPrice != 2.5 {
		t.Errorf("row = %+v", first)
	}
	if first.LineTotal != 15 || first.ProfitEstimate != 3.75 || first.Month != "2010-12" {
		t.Errorf("derived = %v/%v/%q", first.LineTotal, first.ProfitEstimate, first.Month)
	}
	wantDate := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	if !first.InvoiceDate.Equal(wantDate) {
		t.Errorf("InvoiceDate = %v, want %v", first.InvoiceDate, wantDate)
	}

	credit := table.Row(1)
	if credit.Quantity != -1 || credit.LineTotal != -27.5 {
		t.Errorf("negative quantity should be kept, got %+v", credit)
	}

	st := table.Stats()
	if st.RowsRead != 5 || st.RowsKept != 2 || st.RowsDropped != 1 || st.RowsMalformed != 2 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestLoad_Strict(t *testing.T) {
	_, err := Load(context.Background(), strings.NewReader(latin1CSV), LoadOptions{Strict: true}, testLogger())
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("Load() error = %v, want ErrMalformedRecord", err)
	}

	var recErr *RecordError
	if !errors.As(err, &recErr) || recErr.Line == 0 {
		t.Errorf("error should locate the bad line, got %v", err)
	}
}

func TestLoad_StrictBadField(t *testing.T) {
	content := csvHeader + "536367,84879,ASSORTED BIRD,abc,12/1/2010 8:34,1.69,13047,United Kingdom\n"

	_, err := Load(context.Background(), strings.NewReader(content), LoadOptions{Strict: true}, testLogger())

	var recErr *RecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("Load() error = %v, want *RecordError", err)
	}
	if recErr.Field != "Quantity" || recErr.Line != 2 {
		t.Errorf("RecordError = line %d field %q, want line 2 field Quantity", recErr.Line, recErr.Field)
	}
}

func TestLoad_HeaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty", "", "empty source"},
		{"missing column", "InvoiceNo,Description,Quantity,InvoiceDate,UnitPrice,Country\n", "CustomerID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), strings.NewReader(tt.content), LoadOptions{}, testLogger())
			if !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("Load() error = %v, want ErrMalformedRecord", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_NonFinitePriceDropped(t *testing.T) {
	content := csvHeader +
		"A1,S1,MUG,2,1/5/2011 8:00,10,17850,United Kingdom\n" +
		"A2,S2,LAMP,1,1/6/2011 8:00,NaN,17850,United Kingdom\n" +
		"A3,S3,VASE,1,1/7/2011 8:00,+Inf,13047,France\n"

	table, err := Load(context.Background(), strings.NewReader(content), LoadOptions{Strict: true}, testLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if table.Len() != 1 || table.Row(0).InvoiceNo != "A1" {
		t.Fatalf("rows = %d, want only A1", table.Len())
	}
	if st := table.Stats(); st.RowsDropped != 2 || st.RowsMalformed != 0 {
		t.Errorf("Stats() = %+v, want 2 dropped", st)
	}

	view := Aggregate(table, allSelection(table), DefaultAggregateOptions())
	if view.Summary.TotalRevenue != 20 {
		t.Errorf("TotalRevenue = %v, want 20", view.Summary.TotalRevenue)
	}
	if _, err := json.Marshal(view); err != nil {
		t.Errorf("view should encode, got %v", err)
	}
}

func TestLoad_ReaderFailure(t *testing.T) {
	ioErr := errors.New("input/output error")
	tests := []struct {
		name string
		r    io.Reader
	}{
		{"before header", iotest.ErrReader(ioErr)},
		{"mid read", io.MultiReader(
			strings.NewReader(csvHeader+"A1,S1,MUG,2,1/5/2011 8:00,10,17850,France\n"),
			iotest.ErrReader(ioErr),
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), tt.r, LoadOptions{}, testLogger())
			if !errors.Is(err, ErrSourceUnavailable) {
				t.Fatalf("Load() error = %v, want ErrSourceUnavailable", err)
			}
			if errors.Is(err, ErrMalformedRecord) {
				t.Errorf("reader failure reported as malformed record: %v", err)
			}
			if !errors.Is(err, ioErr) {
				t.Errorf("Load() error = %v, want it to wrap the read error", err)
			}
		})
	}
}

func TestLoad_OptionalStockCode(t *testing.T) {
	content := "InvoiceNo,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n" +
		"536365,MUG,2,2011-01-04 10:00:00,3,17850,France\n"

	table, err := Load(context.Background(), strings.NewReader(content), LoadOptions{}, testLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if table.Len() != 1 || table.Row(0).StockCode != "" || table.Row(0).Month != "2011-01" {
		t.Errorf("rows = %d, first = %+v", table.Len(), table.Row(0))
	}
}

func TestLoad_UTF8WithBOM(t *testing.T) {
	content := "\xEF\xBB\xBF" + csvHeader + "536365,85123A,CAFÉ MUG,1,12/1/2010 8:26,4,17850,France\n"

	table, err := Load(context.Background(), strings.NewReader(content), LoadOptions{Encoding: "utf-8"}, testLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := table.Row(0).Description; got != "CAFÉ MUG" {
		t.Errorf("Description = %q", got)
	}
}

func TestLoad_UnsupportedEncoding(t *testing.T) {
	_, err := Load(context.Background(), strings.NewReader(csvHeader), LoadOptions{Encoding: "ebcdic"}, testLogger())
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("Load() error = %v, want unsupported encoding", err)
	}
}

func TestLoad_PreservesOrderAcrossChunks(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(csvHeader)
	rows := batchSize*2 + 17
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&sb, "%d,S,ITEM,1,1/4/2011 10:00,1,C%d,France\n", i, i%50)
	}

	table, err := Load(context.Background(), strings.NewReader(sb.String()), LoadOptions{}, testLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if table.Len() != rows {
		t.Fatalf("Len() = %d, want %d", table.Len(), rows)
	}
	for _, i := range []int{0, batchSize - 1, batchSize, rows - 1} {
		if got := table.Row(i).InvoiceNo; got != fmt.Sprint(i) {
			t.Errorf("Row(%d).InvoiceNo = %s", i, got)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := writeCSV(t, latin1CSV)

	table, err := LoadFile(context.Background(), path, LoadOptions{}, testLogger())
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if table.Stats().Source != path {
		t.Errorf("Stats().Source = %q, want %q", table.Stats().Source, path)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), LoadOptions{}, testLogger())

	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("LoadFile() error = %v, want ErrSourceUnavailable", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("LoadFile() error = %v, want it to wrap fs.ErrNotExist", err)
	}
}
