package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"abt-dashboard/internal/errors"
	"abt-dashboard/internal/observability"
	"abt-dashboard/internal/services"
	"abt-dashboard/internal/session"
	"abt-dashboard/internal/ui/templates"
)

const renderTimeout = 10 * time.Second

type PageHandlers struct {
	analytics *services.Analytics
	selector  selector
	logger    *slog.Logger
}

func NewPageHandlers(analytics *services.Analytics, sessions *session.Store, logger *slog.Logger) *PageHandlers {
	return &PageHandlers{
		analytics: analytics,
		selector:  selector{analytics: analytics, sessions: sessions},
		logger:    logger,
	}
}

func (h *PageHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()
	requestID := observability.GetRequestID(ctx)

	sel, err := h.selector.fromQuery(r)
	if err != nil {
		errors.WriteError(w, h.logger, toAppError(err), requestID)
		return
	}
	view, err := h.analytics.View(ctx, sel, 0)
	if err != nil {
		errors.WriteError(w, h.logger, toAppError(err), requestID)
		return
	}
	opts, err := h.analytics.Options(ctx)
	if err != nil {
		errors.WriteError(w, h.logger, toAppError(err), requestID)
		return
	}

	html, err := templates.Render(ctx, templates.Dashboard(view, opts))
	if err != nil {
		h.logger.Error("render dashboard", "error", err, "request_id", requestID)
		errors.WriteError(w, h.logger, errors.Internal("render failed"), requestID)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "private, no-cache")
	w.Write([]byte(html))
}
