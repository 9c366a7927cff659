package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"abt-dashboard/internal/models"
	"abt-dashboard/internal/observability"
	"abt-dashboard/internal/services"
	"abt-dashboard/internal/session"
)

var (
	jan = time.Date(2011, 1, 10, 9, 30, 0, 0, time.UTC)
	feb = time.Date(2011, 2, 3, 14, 0, 0, 0, time.UTC)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testTable: United Kingdom 65 over A1 and A3, France 100 over A2.
func testTable() *services.Table {
	return services.NewTable([]models.Transaction{
		{InvoiceNo: "A1", Description: "MUG", Quantity: 2, UnitPrice: 5, CustomerID: "C1", Country: "United Kingdom", InvoiceDate: jan},
		{InvoiceNo: "A1", Description: "PLATE", Quantity: 3, UnitPrice: 5, CustomerID: "C1", Country: "United Kingdom", InvoiceDate: jan},
		{InvoiceNo: "A2", Description: "MUG", Quantity: 1, UnitPrice: 100, CustomerID: "C2", Country: "France", InvoiceDate: jan},
		{InvoiceNo: "A3", Description: "LAMP", Quantity: 4, UnitPrice: 10, CustomerID: "C3", Country: "United Kingdom", InvoiceDate: feb},
	})
}

func createTestAnalytics() *services.Analytics {
	return services.NewAnalytics(services.StaticSource{Table: testTable()}, services.DefaultAggregateOptions(),
		services.Defaults{Country: "United Kingdom", Months: 2}, testLogger())
}

type failingSource struct{}

func (failingSource) Load(context.Context) (*services.Table, error) {
	return nil, &services.SourceError{Path: "online_retail.csv", Err: errors.New("permission denied")}
}

func newRequest(target, sessionID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return req.WithContext(observability.WithSessionID(req.Context(), sessionID))
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, data any) {
	t.Helper()
	var body struct {
		Data    json.RawMessage `json:"data"`
		Success bool            `json:"success"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success {
		t.Fatalf("success = false")
	}
	if err := json.Unmarshal(body.Data, data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

type summaryPayload struct {
	Selection models.Selection `json:"selection"`
	Summary   models.Summary   `json:"summary"`
}

func getSummary(t *testing.T, h *APIHandlers, target, sessionID string) summaryPayload {
	t.Helper()
	w := httptest.NewRecorder()
	h.HandleSummary(w, newRequest(target, sessionID))
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s status = %d: %s", target, w.Code, w.Body.String())
	}
	var got summaryPayload
	decodeData(t, w, &got)
	return got
}

func TestAPIHandlers_SummaryDefault(t *testing.T) {
	h := NewAPIHandlers(createTestAnalytics(), session.NewStore(time.Minute), testLogger())

	got := getSummary(t, h, "/api/summary", "s1")

	if got.Summary.TotalRevenue != 65 || got.Summary.OrderCount != 2 {
		t.Errorf("Summary = %+v, want default selection totals", got.Summary)
	}
	if got.Summary.AverageOrderValue == nil || *got.Summary.AverageOrderValue != 32.5 {
		t.Errorf("AverageOrderValue = %v, want 32.5", got.Summary.AverageOrderValue)
	}
}

func TestAPIHandlers_SelectionPerSession(t *testing.T) {
	store := session.NewStore(time.Minute)
	h := NewAPIHandlers(createTestAnalytics(), store, testLogger())

	got := getSummary(t, h, "/api/summary?country=France&month=2011-01", "alice")
	if got.Summary.TotalRevenue != 100 {
		t.Fatalf("France summary = %+v", got.Summary)
	}

	again := getSummary(t, h, "/api/summary", "alice")
	if again.Summary.TotalRevenue != 100 || again.Selection.Countries[0] != "France" {
		t.Errorf("session selection not remembered: %+v", again)
	}

	other := getSummary(t, h, "/api/summary", "bob")
	if other.Summary.TotalRevenue != 65 {
		t.Errorf("another session saw alice's selection: %+v", other.Summary)
	}

	// Only the month changes; the country stays France.
	february := getSummary(t, h, "/api/summary?month=2011-02", "alice")
	if february.Summary.HasData || february.Selection.Countries[0] != "France" {
		t.Errorf("partial update = %+v", february)
	}
}

func TestAPIHandlers_EmptyCountrySet(t *testing.T) {
	h := NewAPIHandlers(createTestAnalytics(), session.NewStore(time.Minute), testLogger())

	got := getSummary(t, h, "/api/summary?country=", "s1")

	if got.Summary.HasData || got.Summary.AverageOrderValue != nil || got.Summary.TotalRevenue != 0 {
		t.Errorf("Summary = %+v, want no data", got.Summary)
	}
	if len(got.Selection.Countries) != 0 {
		t.Errorf("Countries = %q, want empty", got.Selection.Countries)
	}
}

func TestAPIHandlers_Rankings(t *testing.T) {
	h := NewAPIHandlers(createTestAnalytics(), session.NewStore(time.Minute), testLogger())
	target := "/api/country-revenue?country=France&country=United+Kingdom&month=2011-01&month=2011-02"

	w := httptest.NewRecorder()
	h.HandleCountryRevenue(w, newRequest(target, "s1"))
	var countries []models.CountryRevenue
	decodeData(t, w, &countries)
	if len(countries) != 2 || countries[0].Country != "France" || countries[1].Country != "United Kingdom" {
		t.Errorf("CountryRevenue = %+v, want France then United Kingdom", countries)
	}

	w = httptest.NewRecorder()
	h.HandleTopProducts(w, newRequest("/api/top-products?n=1", "s1"))
	var products []models.ProductQuantity
	decodeData(t, w, &products)
	if len(products) != 1 || products[0].Description != "LAMP" {
		t.Errorf("TopProducts = %+v, want [LAMP]", products)
	}

	w = httptest.NewRecorder()
	h.HandleMonthlySales(w, newRequest("/api/monthly-sales", "s1"))
	var months []models.MonthlyData
	decodeData(t, w, &months)
	if len(months) != 2 || months[0].Month != "2011-01" || months[1].Month != "2011-02" {
		t.Errorf("MonthlySales = %+v", months)
	}
}

func TestAPIHandlers_AOVInsight(t *testing.T) {
	h := NewAPIHandlers(createTestAnalytics(), session.NewStore(time.Minute), testLogger())

	w := httptest.NewRecorder()
	h.HandleAOVInsight(w, newRequest("/api/aov-insight?country=United+Kingdom&month=2011-01", "s1"))
	var insight []models.CountryAOV
	decodeData(t, w, &insight)

	if len(insight) != 2 || insight[0].Country != "France" || insight[0].AverageOrderValue != 100 {
		t.Errorf("AOVInsight = %+v, want France first across all countries", insight)
	}
}

func TestAPIHandlers_BadTopN(t *testing.T) {
	h := NewAPIHandlers(createTestAnalytics(), session.NewStore(time.Minute), testLogger())

	for _, n := range []string{"abc", "0", "101"} {
		w := httptest.NewRecorder()
		h.HandleTopProducts(w, newRequest("/api/top-products?n="+n, "s1"))
		if w.Code != http.StatusBadRequest {
			t.Errorf("n=%s status = %d, want 400", n, w.Code)
		}
	}
}

func TestAPIHandlers_ETag(t *testing.T) {
	h := NewAPIHandlers(createTestAnalytics(), session.NewStore(time.Minute), testLogger())

	w := httptest.NewRecorder()
	h.HandleView(w, newRequest("/api/view", "s1"))
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("status = %d, etag = %q", w.Code, etag)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "private, no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}

	req := newRequest("/api/view", "s1")
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	h.HandleView(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", w.Code)
	}
}

func TestAPIHandlers_SourceUnavailable(t *testing.T) {
	analytics := services.NewAnalytics(failingSource{}, services.DefaultAggregateOptions(), services.Defaults{}, testLogger())
	h := NewAPIHandlers(analytics, session.NewStore(time.Minute), testLogger())

	w := httptest.NewRecorder()
	h.HandleSummary(w, newRequest("/api/summary", "s1"))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), "SOURCE_UNAVAILABLE") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestAPIHandlers_EncodeFailure(t *testing.T) {
	table := services.NewTable([]models.Transaction{
		{InvoiceNo: "A1", Description: "MUG", Quantity: 1, UnitPrice: math.NaN(), CustomerID: "C1", Country: "France", InvoiceDate: jan},
	})
	analytics := services.NewAnalytics(services.StaticSource{Table: table}, services.DefaultAggregateOptions(),
		services.Defaults{Country: "France", Months: 1}, testLogger())
	h := NewAPIHandlers(analytics, session.NewStore(time.Minute), testLogger())

	w := httptest.NewRecorder()
	h.HandleSummary(w, newRequest("/api/summary", "s1"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("body = %q, want an error payload", w.Body.String())
	}
	if w.Header().Get("ETag") != "" {
		t.Error("failed response should not carry an ETag")
	}
}

func TestAPIHandlers_OptionsAndStats(t *testing.T) {
	store := session.NewStore(time.Minute)
	h := NewAPIHandlers(createTestAnalytics(), store, testLogger())
	getSummary(t, h, "/api/summary?country=France", "s1")

	w := httptest.NewRecorder()
	h.HandleOptions(w, newRequest("/api/options", "s1"))
	var opts models.Options
	decodeData(t, w, &opts)
	if len(opts.Countries) != 2 || opts.Countries[0] != "France" || len(opts.Months) != 2 {
		t.Errorf("Options = %+v", opts)
	}

	w = httptest.NewRecorder()
	h.HandleStats(w, newRequest("/admin/stats", "s1"))
	var stats map[string]any
	decodeData(t, w, &stats)
	if stats["sessions"] != float64(1) || stats["rows_kept"] != float64(4) {
		t.Errorf("Stats = %v", stats)
	}
}

func TestSSEHandlers_Filter(t *testing.T) {
	store := session.NewStore(time.Minute)
	h := NewSSEHandlers(createTestAnalytics(), store, testLogger())

	signals := url.QueryEscape(`{"countries":["France"],"months":["2011-01"],"products":[]}`)
	w := httptest.NewRecorder()
	h.HandleFilter(w, newRequest("/sse/filter?datastar="+signals, "s1"))

	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("expected content-type to contain 'text/event-stream', got %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}

	body := w.Body.String()
	for _, want := range []string{"datastar-patch-elements", "kpi-cards", "$100.00", `id="preview"`, `id="insight"`, "datastar-patch-signals", "countryRevenue"} {
		if !strings.Contains(body, want) {
			t.Errorf("SSE body missing %q", want)
		}
	}

	sel, ok := store.Get("s1")
	if !ok || len(sel.Countries) != 1 || sel.Countries[0] != "France" {
		t.Errorf("stored selection = %+v, %v", sel, ok)
	}
}

func TestSSEHandlers_FilterKeepsAbsentSignals(t *testing.T) {
	store := session.NewStore(time.Minute)
	store.Put("s1", models.Selection{Countries: []string{"France"}, Months: []string{"2011-01"}})
	h := NewSSEHandlers(createTestAnalytics(), store, testLogger())

	signals := url.QueryEscape(`{"months":["2011-02"]}`)
	w := httptest.NewRecorder()
	h.HandleFilter(w, newRequest("/sse/filter?datastar="+signals, "s1"))

	sel, _ := store.Get("s1")
	if sel.Countries[0] != "France" || sel.Months[0] != "2011-02" {
		t.Errorf("stored selection = %+v", sel)
	}
	if !strings.Contains(w.Body.String(), "No data for current selection") {
		t.Error("France has no February orders; KPI cards should say so")
	}
}

func TestSSEHandlers_FilterInvalidSignals(t *testing.T) {
	h := NewSSEHandlers(createTestAnalytics(), session.NewStore(time.Minute), testLogger())

	w := httptest.NewRecorder()
	h.HandleFilter(w, newRequest("/sse/filter?datastar="+url.QueryEscape("{not json"), "s1"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSSEHandlers_RefreshAll(t *testing.T) {
	h := NewSSEHandlers(createTestAnalytics(), session.NewStore(time.Minute), testLogger())

	w := httptest.NewRecorder()
	h.HandleRefreshAll(w, newRequest("/sse/refresh-all", "s1"))

	body := w.Body.String()
	if !strings.Contains(body, "$65.00") || !strings.Contains(body, "datastar-patch-signals") {
		t.Errorf("refresh body = %s", body)
	}
}

func TestPageHandlers_Dashboard(t *testing.T) {
	h := NewPageHandlers(createTestAnalytics(), session.NewStore(time.Minute), testLogger())

	w := httptest.NewRecorder()
	h.HandleDashboard(w, newRequest("/", "s1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"Online Retail Business Dashboard", "$65.00", `value="France"`, "Strategic insight"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestPageHandlers_SourceUnavailable(t *testing.T) {
	analytics := services.NewAnalytics(failingSource{}, services.DefaultAggregateOptions(), services.Defaults{}, testLogger())
	h := NewPageHandlers(analytics, session.NewStore(time.Minute), testLogger())

	w := httptest.NewRecorder()
	h.HandleDashboard(w, newRequest("/", "s1"))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
