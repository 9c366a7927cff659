package server

import (
	"log/slog"
	"net/http"

	"abt-dashboard/internal/handlers"
	"abt-dashboard/internal/services"
	"abt-dashboard/internal/session"
)

type Server struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	apiHandlers  *handlers.APIHandlers
	sseHandlers  *handlers.SSEHandlers
	pageHandlers *handlers.PageHandlers
}

func NewServer(analytics *services.Analytics, sessions *session.Store, logger *slog.Logger) *Server {
	s := &Server{
		mux:          http.NewServeMux(),
		logger:       logger,
		apiHandlers:  handlers.NewAPIHandlers(analytics, sessions, logger),
		sseHandlers:  handlers.NewSSEHandlers(analytics, sessions, logger),
		pageHandlers: handlers.NewPageHandlers(analytics, sessions, logger),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.pageHandlers.HandleDashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// Aggregate views
	s.mux.HandleFunc("GET /api/view", s.apiHandlers.HandleView)
	s.mux.HandleFunc("GET /api/options", s.apiHandlers.HandleOptions)
	s.mux.HandleFunc("GET /api/summary", s.apiHandlers.HandleSummary)
	s.mux.HandleFunc("GET /api/preview", s.apiHandlers.HandlePreview)
	s.mux.HandleFunc("GET /api/top-products", s.apiHandlers.HandleTopProducts)
	s.mux.HandleFunc("GET /api/product-revenue", s.apiHandlers.HandleProductRevenue)
	s.mux.HandleFunc("GET /api/country-revenue", s.apiHandlers.HandleCountryRevenue)
	s.mux.HandleFunc("GET /api/country-profit", s.apiHandlers.HandleCountryProfit)
	s.mux.HandleFunc("GET /api/country-aov", s.apiHandlers.HandleCountryAOV)
	s.mux.HandleFunc("GET /api/top-customers", s.apiHandlers.HandleTopCustomers)
	s.mux.HandleFunc("GET /api/monthly-sales", s.apiHandlers.HandleMonthlySales)
	s.mux.HandleFunc("GET /api/aov-insight", s.apiHandlers.HandleAOVInsight)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/filter", s.sseHandlers.HandleFilter)
	s.mux.HandleFunc("GET /sse/refresh-all", s.sseHandlers.HandleRefreshAll)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
