package templates

import (
	"slices"

	"abt-dashboard/internal/models"
)

// ForDisplay returns a ranking in ascending order for bottom-up horizontal
// bar charts, which then show the largest bar on top. The input keeps its
// descending order.
func ForDisplay[T any](ranking []T) []T {
	out := slices.Clone(ranking)
	slices.Reverse(out)
	if out == nil {
		out = []T{}
	}
	return out
}

type bar struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ChartSignals is the datastar signal payload the page's charts read.
// Bar rankings are flipped for display; the monthly trend stays
// chronological.
func ChartSignals(v *models.View) map[string]any {
	return map[string]any{
		"topProducts":    bars(ForDisplay(v.TopProducts), func(p models.ProductQuantity) bar { return bar{p.Description, float64(p.Quantity)} }),
		"productRevenue": bars(ForDisplay(v.ProductRevenue), func(p models.ProductRevenue) bar { return bar{p.Description, p.Revenue} }),
		"countryRevenue": bars(ForDisplay(v.CountryRevenue), func(c models.CountryRevenue) bar { return bar{c.Country, c.Revenue} }),
		"countryProfit":  bars(ForDisplay(v.CountryProfit), func(c models.CountryProfit) bar { return bar{c.Country, c.Profit} }),
		"countryAov":     bars(ForDisplay(v.CountryAOV), func(c models.CountryAOV) bar { return bar{c.Country, c.AverageOrderValue} }),
		"topCustomers":   bars(ForDisplay(v.TopCustomers), func(c models.CustomerRevenue) bar { return bar{c.CustomerID, c.Revenue} }),
		"aovInsight":     bars(ForDisplay(v.AOVInsight), func(c models.CountryAOV) bar { return bar{c.Country, c.AverageOrderValue} }),
		"monthlySales":   bars(v.MonthlySales, func(m models.MonthlyData) bar { return bar{m.Month, m.Revenue} }),
	}
}

func bars[T any](items []T, f func(T) bar) []bar {
	out := make([]bar, len(items))
	for i, it := range items {
		out[i] = f(it)
	}
	return out
}
