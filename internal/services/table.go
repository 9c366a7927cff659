package services

import (
	"slices"
	"time"

	"abt-dashboard/internal/models"
)

// LoadStats describes how a Table was built.
type LoadStats struct {
	Source        string        `json:"source"`
	RowsRead      int           `json:"rows_read"`
	RowsKept      int           `json:"rows_kept"`
	RowsDropped   int           `json:"rows_dropped"`
	RowsMalformed int           `json:"rows_malformed"`
	LoadedAt      time.Time     `json:"loaded_at"`
	Duration      time.Duration `json:"duration"`
}

// Table is the normalized dataset. It is never mutated after construction,
// so any number of goroutines may read it without locking.
type Table struct {
	rows    []models.Transaction
	options models.Options
	stats   LoadStats
}

// NewTable builds a Table from complete records, computing the derived
// columns of each. The input slice is copied.
func NewTable(records []models.Transaction) *Table {
	rows := make([]models.Transaction, len(records))
	for i, tx := range records {
		tx.Derive()
		rows[i] = tx
	}
	return newTable(rows, LoadStats{
		Source:   "memory",
		RowsRead: len(rows),
		RowsKept: len(rows),
		LoadedAt: time.Now(),
	})
}

func newTable(rows []models.Transaction, stats LoadStats) *Table {
	return &Table{
		rows:    rows,
		options: collectOptions(rows),
		stats:   stats,
	}
}

func (t *Table) Len() int { return len(t.rows) }

// Row returns a copy of the i-th row.
func (t *Table) Row(i int) models.Transaction { return t.rows[i] }

func (t *Table) Stats() LoadStats { return t.stats }

func (t *Table) Options() models.Options {
	return models.Options{
		Countries: slices.Clone(t.options.Countries),
		Months:    slices.Clone(t.options.Months),
		Products:  slices.Clone(t.options.Products),
	}
}

// DefaultSelection picks country and the earliest months distinct month
// buckets present in the table.
func (t *Table) DefaultSelection(country string, months int) models.Selection {
	ms := t.options.Months
	if months < len(ms) {
		ms = ms[:months]
	}
	return models.Selection{
		Countries: []string{country},
		Months:    slices.Clone(ms),
		Products:  []string{},
	}
}

func collectOptions(rows []models.Transaction) models.Options {
	countries := make(map[string]struct{})
	months := make(map[string]struct{})
	products := make(map[string]struct{})
	for i := range rows {
		countries[rows[i].Country] = struct{}{}
		months[rows[i].Month] = struct{}{}
		products[rows[i].Description] = struct{}{}
	}
	return models.Options{
		Countries: sortedKeys(countries),
		Months:    sortedKeys(months),
		Products:  sortedKeys(products),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
