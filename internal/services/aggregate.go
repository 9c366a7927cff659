package services

import (
	"cmp"
	"slices"
	"strings"

	"abt-dashboard/internal/models"
)

const (
	DefaultTopN         = 10
	DefaultCustomerTopN = 5
	DefaultPreviewRows  = 10
)

type AggregateOptions struct {
	TopN         int
	CustomerTopN int
	PreviewRows  int
}

func DefaultAggregateOptions() AggregateOptions {
	return AggregateOptions{
		TopN:         DefaultTopN,
		CustomerTopN: DefaultCustomerTopN,
		PreviewRows:  DefaultPreviewRows,
	}
}

// Aggregate computes every view for sel. It is a pure function of its
// arguments. Rankings are ordered by measure descending, ties broken by
// ascending key.
func Aggregate(t *Table, sel models.Selection, opts AggregateOptions) *models.View {
	rows := filterSelection(t, sel)
	summary := summarize(rows)

	return &models.View{
		Selection:      sel.Clone(),
		Summary:        summary,
		Preview:        preview(rows, opts.PreviewRows),
		TopProducts:    topProductsByQuantity(rows, opts.TopN),
		ProductRevenue: topProductsByRevenue(rows, summary.TotalRevenue, opts.TopN),
		CountryRevenue: topCountriesByRevenue(rows, opts.TopN),
		CountryProfit:  topCountriesByProfit(rows, opts.TopN),
		CountryAOV:     topCountriesByAOV(rows, opts.TopN),
		TopCustomers:   topCustomersByRevenue(rows, opts.CustomerTopN),
		MonthlySales:   monthlySales(rows),
		AOVInsight:     aovInsight(t, sel, opts.TopN),
	}
}

// filterSelection returns the rows whose country and month are selected and, when a
// product set is given, whose description is selected. Empty country or
// month sets match nothing.
func filterSelection(t *Table, sel models.Selection) []*models.Transaction {
	return filter(t, toSet(sel.Countries), toSet(sel.Months), toSet(sel.Products), false)
}

func filter(t *Table, countries, months, products map[string]struct{}, anyCountry bool) []*models.Transaction {
	out := make([]*models.Transaction, 0)
	if (!anyCountry && len(countries) == 0) || len(months) == 0 {
		return out
	}
	for i := range t.rows {
		tx := &t.rows[i]
		if !anyCountry && !contains(countries, tx.Country) {
			continue
		}
		if !contains(months, tx.Month) {
			continue
		}
		if len(products) > 0 && !contains(products, tx.Description) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func summarize(rows []*models.Transaction) models.Summary {
	var s models.Summary
	orders := make(map[string]struct{})
	customers := make(map[string]struct{})
	for _, tx := range rows {
		s.TotalRevenue += tx.LineTotal
		s.TotalProfit += tx.ProfitEstimate
		orders[tx.InvoiceNo] = struct{}{}
		customers[tx.CustomerID] = struct{}{}
	}
	s.RowCount = len(rows)
	s.OrderCount = len(orders)
	s.CustomerCount = len(customers)

	if aov, err := AverageOrderValue(s.TotalRevenue, s.OrderCount); err == nil {
		s.AverageOrderValue = &aov
		s.HasData = true
	}
	return s
}

// AverageOrderValue divides revenue by the order count, failing with
// models.ErrDivisionUndefined when there are no orders.
func AverageOrderValue(revenue float64, orders int) (float64, error) {
	if orders == 0 {
		return 0, models.ErrDivisionUndefined
	}
	return revenue / float64(orders), nil
}

func topProductsByQuantity(rows []*models.Transaction, n int) []models.ProductQuantity {
	sums := make(map[string]int)
	for _, tx := range rows {
		sums[tx.Description] += tx.Quantity
	}
	out := make([]models.ProductQuantity, 0, len(sums))
	for desc, q := range sums {
		out = append(out, models.ProductQuantity{Description: desc, Quantity: q})
	}
	return rankTop(out, n,
		func(p models.ProductQuantity) string { return p.Description },
		func(p models.ProductQuantity) float64 { return float64(p.Quantity) })
}

// topProductsByRevenue ranks products by revenue and reports each one's
// share of total. Share is 0 when total is not positive.
func topProductsByRevenue(rows []*models.Transaction, total float64, n int) []models.ProductRevenue {
	sums := sumBy(rows, func(tx *models.Transaction) string { return tx.Description }, lineTotal)
	out := make([]models.ProductRevenue, 0, len(sums))
	for desc, rev := range sums {
		pr := models.ProductRevenue{Description: desc, Revenue: rev}
		if total > 0 {
			pr.Share = rev / total
		}
		out = append(out, pr)
	}
	return rankTop(out, n,
		func(p models.ProductRevenue) string { return p.Description },
		func(p models.ProductRevenue) float64 { return p.Revenue })
}

func topCountriesByRevenue(rows []*models.Transaction, n int) []models.CountryRevenue {
	sums := sumBy(rows, country, lineTotal)
	out := make([]models.CountryRevenue, 0, len(sums))
	for c, rev := range sums {
		out = append(out, models.CountryRevenue{Country: c, Revenue: rev})
	}
	return rankTop(out, n,
		func(c models.CountryRevenue) string { return c.Country },
		func(c models.CountryRevenue) float64 { return c.Revenue })
}

func topCountriesByProfit(rows []*models.Transaction, n int) []models.CountryProfit {
	sums := sumBy(rows, country, func(tx *models.Transaction) float64 { return tx.ProfitEstimate })
	out := make([]models.CountryProfit, 0, len(sums))
	for c, p := range sums {
		out = append(out, models.CountryProfit{Country: c, Profit: p})
	}
	return rankTop(out, n,
		func(c models.CountryProfit) string { return c.Country },
		func(c models.CountryProfit) float64 { return c.Profit })
}

// topCountriesByAOV ranks the countries of the filtered rows by average
// order value.
func topCountriesByAOV(rows []*models.Transaction, n int) []models.CountryAOV {
	return rankTop(countryAOV(rows), n, aovKey, aovMeasure)
}

func topCustomersByRevenue(rows []*models.Transaction, n int) []models.CustomerRevenue {
	sums := sumBy(rows, func(tx *models.Transaction) string { return tx.CustomerID }, lineTotal)
	out := make([]models.CustomerRevenue, 0, len(sums))
	for id, rev := range sums {
		out = append(out, models.CustomerRevenue{CustomerID: id, Revenue: rev})
	}
	return rankTop(out, n,
		func(c models.CustomerRevenue) string { return c.CustomerID },
		func(c models.CustomerRevenue) float64 { return c.Revenue })
}

// monthlySales sums revenue per month bucket in chronological order.
func monthlySales(rows []*models.Transaction) []models.MonthlyData {
	sums := sumBy(rows, func(tx *models.Transaction) string { return tx.Month }, lineTotal)
	out := make([]models.MonthlyData, 0, len(sums))
	for m, rev := range sums {
		out = append(out, models.MonthlyData{Month: m, Revenue: rev})
	}
	slices.SortFunc(out, func(a, b models.MonthlyData) int {
		return strings.Compare(a.Month, b.Month)
	})
	return out
}

// aovInsight ranks countries by average order value over every country,
// ignoring the selected countries but honouring the month and product
// filters. Countries with a non-positive value are left out.
func aovInsight(t *Table, sel models.Selection, n int) []models.CountryAOV {
	rows := filter(t, nil, toSet(sel.Months), toSet(sel.Products), true)
	all := countryAOV(rows)
	positive := all[:0]
	for _, c := range all {
		if c.AverageOrderValue > 0 {
			positive = append(positive, c)
		}
	}
	return rankTop(positive, n, aovKey, aovMeasure)
}

type aovAccumulator struct {
	revenue  float64
	invoices map[string]struct{}
}

func countryAOV(rows []*models.Transaction) []models.CountryAOV {
	acc := make(map[string]*aovAccumulator)
	for _, tx := range rows {
		a := acc[tx.Country]
		if a == nil {
			a = &aovAccumulator{invoices: make(map[string]struct{})}
			acc[tx.Country] = a
		}
		a.revenue += tx.LineTotal
		a.invoices[tx.InvoiceNo] = struct{}{}
	}
	out := make([]models.CountryAOV, 0, len(acc))
	for c, a := range acc {
		aov, err := AverageOrderValue(a.revenue, len(a.invoices))
		if err != nil {
			continue
		}
		out = append(out, models.CountryAOV{Country: c, AverageOrderValue: aov, Orders: len(a.invoices)})
	}
	return out
}

func aovKey(c models.CountryAOV) string      { return c.Country }
func aovMeasure(c models.CountryAOV) float64 { return c.AverageOrderValue }

// rankTop sorts items by measure descending, then key ascending, and keeps
// the first n.
func rankTop[T any](items []T, n int, key func(T) string, measure func(T) float64) []T {
	slices.SortFunc(items, func(a, b T) int {
		if c := cmp.Compare(measure(b), measure(a)); c != 0 {
			return c
		}
		return strings.Compare(key(a), key(b))
	})
	if n < 0 {
		n = 0
	}
	if len(items) > n {
		items = items[:n]
	}
	return items
}

func sumBy(rows []*models.Transaction, key func(*models.Transaction) string, measure func(*models.Transaction) float64) map[string]float64 {
	sums := make(map[string]float64)
	for _, tx := range rows {
		sums[key(tx)] += measure(tx)
	}
	return sums
}

func preview(rows []*models.Transaction, n int) []models.Transaction {
	n = max(0, min(n, len(rows)))
	out := make([]models.Transaction, n)
	for i := 0; i < n; i++ {
		out[i] = *rows[i]
	}
	return out
}

func country(tx *models.Transaction) string    { return tx.Country }
func lineTotal(tx *models.Transaction) float64 { return tx.LineTotal }

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func contains(set map[string]struct{}, v string) bool {
	_, ok := set[v]
	return ok
}
