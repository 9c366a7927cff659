package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"abt-dashboard/internal/errors"
	"abt-dashboard/internal/models"
	"abt-dashboard/internal/observability"
	"abt-dashboard/internal/services"
	"abt-dashboard/internal/session"
)

var privateCache = map[string]string{
	"Cache-Control": "private, no-cache",
}

type APIHandlers struct {
	analytics *services.Analytics
	selector  selector
	logger    *slog.Logger
}

func NewAPIHandlers(analytics *services.Analytics, sessions *session.Store, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		selector:  selector{analytics: analytics, sessions: sessions},
		logger:    logger,
	}
}

// serveView resolves the request's selection, aggregates it and writes
// the part of the view that pick returns.
func (h *APIHandlers) serveView(w http.ResponseWriter, r *http.Request, pick func(*models.View) any) {
	requestID := observability.GetRequestID(r.Context())

	n, err := topN(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	sel, err := h.selector.fromQuery(r)
	if err != nil {
		errors.WriteError(w, h.logger, toAppError(err), requestID)
		return
	}

	view, err := h.analytics.View(r.Context(), sel, n)
	if err != nil {
		errors.WriteError(w, h.logger, toAppError(err), requestID)
		return
	}

	if err := errors.WriteSuccessCached(w, r, pick(view), privateCache); err != nil {
		h.writeFailed(w, err, requestID)
	}
}

// writeFailed reports a failed WriteSuccessCached. Encode errors leave w
// untouched and get an error body; anything else happened mid-write.
func (h *APIHandlers) writeFailed(w http.ResponseWriter, err error, requestID string) {
	if appErr, ok := err.(*errors.AppError); ok {
		errors.WriteError(w, h.logger, appErr, requestID)
		return
	}
	h.logger.Error("write response", "error", err, "request_id", requestID)
}

func (h *APIHandlers) HandleView(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, func(v *models.View) any { return v })
}

func (h *APIHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, func(v *models.View) any {
		return map[string]any{"selection": v.Selection, "summary": v.Summary}
	})
}

func (h *APIHandlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, func(v *models.View) any { return v.Preview })
}

func (h *APIHandlers) HandleTopProducts(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, func(v *models.View) any { return v.TopProducts })
}

func (h *APIHandlers) HandleProductRevenue(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, func(v *models.View) any { return v.ProductRevenue })
}

func (h *APIHandlers) HandleCountryRevenue(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, func(v *models.View) any { return v.CountryRevenue })
}

func (h *APIHandlers) HandleCountryProfit(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, func(v *models.View) any { return v.CountryProfit })
}

func (h *APIHandlers) HandleCountryAOV(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, func(v *models.View) any { return v.CountryAOV })
}

func (h *APIHandlers) HandleTopCustomers(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, func(v *models.View) any { return v.TopCustomers })
}

func (h *APIHandlers) HandleMonthlySales(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, func(v *models.View) any { return v.MonthlySales })
}

func (h *APIHandlers) HandleAOVInsight(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, func(v *models.View) any { return v.AOVInsight })
}

func (h *APIHandlers) HandleOptions(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	opts, err := h.analytics.Options(r.Context())
	if err != nil {
		errors.WriteError(w, h.logger, toAppError(err), requestID)
		return
	}
	if err := errors.WriteSuccessCached(w, r, opts, privateCache); err != nil {
		h.writeFailed(w, err, requestID)
	}
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analytics.Stats(r.Context())
	if err != nil {
		errors.WriteError(w, h.logger, toAppError(err), observability.GetRequestID(r.Context()))
		return
	}
	stats["sessions"] = h.selector.sessions.Len()

	errors.WriteSuccess(w, stats)
}
