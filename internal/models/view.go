package models

import (
	"errors"
	"slices"
)

// Selection is the user's current filter. Countries and Months must be
// non-empty for any row to pass; an empty Products set means all products.
type Selection struct {
	Countries []string `json:"countries"`
	Months    []string `json:"months"`
	Products  []string `json:"products,omitempty"`
}

// Clone returns a deep copy so callers never share backing arrays across
// sessions.
func (s Selection) Clone() Selection {
	return Selection{
		Countries: slices.Clone(s.Countries),
		Months:    slices.Clone(s.Months),
		Products:  slices.Clone(s.Products),
	}
}

// IsZero reports whether no dimension has been chosen at all.
func (s Selection) IsZero() bool {
	return s.Countries == nil && s.Months == nil && s.Products == nil
}

// Summary holds the KPI card values. AverageOrderValue is nil when the
// selection contains no orders.
type Summary struct {
	TotalRevenue      float64  `json:"total_revenue"`
	TotalProfit       float64  `json:"total_profit"`
	OrderCount        int      `json:"order_count"`
	CustomerCount     int      `json:"customer_count"`
	RowCount          int      `json:"row_count"`
	AverageOrderValue *float64 `json:"average_order_value"`
	HasData           bool     `json:"has_data"`
}

// View is every aggregate derived from one selection. It is never stored
// beyond the request that produced it.
type View struct {
	Selection      Selection         `json:"selection"`
	Summary        Summary           `json:"summary"`
	Preview        []Transaction     `json:"preview"`
	TopProducts    []ProductQuantity `json:"top_products"`
	ProductRevenue []ProductRevenue  `json:"product_revenue"`
	CountryRevenue []CountryRevenue  `json:"country_revenue"`
	CountryProfit  []CountryProfit   `json:"country_profit"`
	CountryAOV     []CountryAOV      `json:"country_aov"`
	TopCustomers   []CustomerRevenue `json:"top_customers"`
	MonthlySales   []MonthlyData     `json:"monthly_sales"`
	AOVInsight     []CountryAOV      `json:"aov_insight"`
}

// Options lists the distinct values a selection can be built from, each
// sorted ascending.
type Options struct {
	Countries []string `json:"countries"`
	Months    []string `json:"months"`
	Products  []string `json:"products"`
}

// ErrDivisionUndefined reports an average over zero orders.
var ErrDivisionUndefined = errors.New("average order value undefined: selection has no orders")

// AOV returns the average order value or ErrDivisionUndefined when the
// selection produced no orders.
func (s Summary) AOV() (float64, error) {
	if s.AverageOrderValue == nil {
		return 0, ErrDivisionUndefined
	}
	return *s.AverageOrderValue, nil
}
