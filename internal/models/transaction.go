package models

import "time"

// ProfitRate is the fixed share of revenue reported as profit. It is an
// estimate, not a measured value.
const ProfitRate = 0.25

// MonthLayout formats month buckets so lexical and chronological order agree.
const MonthLayout = "2006-01"

type Transaction struct {
	InvoiceNo   string    `json:"invoice_no"`
	StockCode   string    `json:"stock_code,omitempty"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	InvoiceDate time.Time `json:"invoice_date"`
	UnitPrice   float64   `json:"unit_price"`
	CustomerID  string    `json:"customer_id"`
	Country     string    `json:"country"`

	// Derived once at load time.
	LineTotal      float64 `json:"line_total"`
	ProfitEstimate float64 `json:"profit_estimate"`
	Month          string  `json:"month"`
}

// Derive fills the derived columns from the raw fields.
func (t *Transaction) Derive() {
	t.LineTotal = float64(t.Quantity) * t.UnitPrice
	t.Month = MonthBucket(t.InvoiceDate)
	t.ProfitEstimate = t.LineTotal * ProfitRate
}

// MonthBucket truncates ts to its calendar month.
func MonthBucket(ts time.Time) string {
	return ts.Format(MonthLayout)
}

type ProductQuantity struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type ProductRevenue struct {
	Description string  `json:"description"`
	Revenue     float64 `json:"revenue"`
	Share       float64 `json:"share"`
}

type CountryRevenue struct {
	Country string  `json:"country"`
	Revenue float64 `json:"revenue"`
}

type CountryProfit struct {
	Country string  `json:"country"`
	Profit  float64 `json:"profit"`
}

type CountryAOV struct {
	Country           string  `json:"country"`
	AverageOrderValue float64 `json:"average_order_value"`
	Orders            int     `json:"orders"`
}

type CustomerRevenue struct {
	CustomerID string  `json:"customer_id"`
	Revenue    float64 `json:"revenue"`
}

type MonthlyData struct {
	Month   string  `json:"month"`
	Revenue float64 `json:"revenue"`
}
