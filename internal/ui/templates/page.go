package templates

import (
	"encoding/json"
	"fmt"
	"strings"

	"abt-dashboard/internal/models"
)

type chartPanel struct {
	title  string
	signal string
	kind   string
}

var chartPanels = []chartPanel{
	{"Top 10 products by quantity sold", "topProducts", "bar"},
	{"Top 10 products by revenue", "productRevenue", "bar"},
	{"Revenue by country (top 10)", "countryRevenue", "bar"},
	{"Estimated profit by country (top 10)", "countryProfit", "bar"},
	{"Average order value by country (top 10)", "countryAov", "bar"},
	{"Top 5 customers by revenue", "topCustomers", "bar"},
	{"Monthly revenue trend", "monthlySales", "line"},
	{"Insight: AOV per country, all countries", "aovInsight", "bar"},
}

// chartEffect redraws every chart whenever one of its signals changes.
func chartEffect() string {
	parts := make([]string, len(chartPanels))
	for i, c := range chartPanels {
		parts[i] = c.signal + ": $" + c.signal
	}
	return "window.renderCharts && window.renderCharts({" + strings.Join(parts, ", ") + "})"
}

func pageSignals(view *models.View) (string, error) {
	signals := ChartSignals(view)
	signals["countries"] = nonNil(view.Selection.Countries)
	signals["months"] = nonNil(view.Selection.Months)
	signals["products"] = nonNil(view.Selection.Products)
	b, err := json.Marshal(signals)
	if err != nil {
		return "", fmt.Errorf("marshal page signals: %w", err)
	}
	return string(b), nil
}

var previewColumns = []string{"Invoice", "Description", "Quantity", "Date", "Unit price", "Customer", "Country", "Total"}

func averageOrderValue(s models.Summary) string {
	aov, err := s.AOV()
	if err != nil {
		return "No data for current selection"
	}
	return Money(aov)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

const pageStyle = `
body{display:flex;font-family:system-ui,sans-serif;margin:0;color:#1f2933}
.sidebar{width:260px;padding:1rem;background:#f5f7fa;height:100vh;overflow-y:auto}
main{flex:1;padding:1rem 2rem}
.cards{display:grid;grid-template-columns:repeat(5,1fr);gap:1rem}
.card{background:#fff;border:1px solid #d9e2ec;border-radius:8px;padding:1rem}
.card .label{display:block;font-size:.8rem;color:#627d98}
.modern-table{border-collapse:collapse;width:100%}
.modern-table td,.modern-table th{border-bottom:1px solid #e4e7eb;padding:.3rem .5rem;text-align:left}
fieldset{max-height:220px;overflow-y:auto;margin-bottom:1rem}
`

const chartBootstrap = `
window.__charts = {};
window.renderCharts = function(s) {
  document.querySelectorAll('canvas[data-kind]').forEach(function(el) {
    var key = el.id.replace('chart-', '');
    var rows = s[key] || [];
    var data = {labels: rows.map(function(r){return r.label}), datasets: [{data: rows.map(function(r){return r.value})}]};
    if (window.__charts[key]) { window.__charts[key].data = data; window.__charts[key].update(); return; }
    var horizontal = el.dataset.kind === 'bar';
    window.__charts[key] = new Chart(el, {type: el.dataset.kind, data: data,
      options: {indexAxis: horizontal ? 'y' : 'x', scales: horizontal ? {y: {reverse: true}} : {}, plugins: {legend: {display: false}}}});
  });
};
`
