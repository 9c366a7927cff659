package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"abt-dashboard/internal/errors"
	"abt-dashboard/internal/models"
	"abt-dashboard/internal/observability"
	"abt-dashboard/internal/services"
	"abt-dashboard/internal/session"
	"abt-dashboard/internal/ui/templates"
)

// filterSignals mirrors the sidebar's signals. Absent signals decode to
// nil and leave the stored selection unchanged for that dimension.
type filterSignals struct {
	Countries *[]string `json:"countries"`
	Months    *[]string `json:"months"`
	Products  *[]string `json:"products"`
}

type SSEHandlers struct {
	analytics *services.Analytics
	selector  selector
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, sessions *session.Store, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		selector:  selector{analytics: analytics, sessions: sessions},
		logger:    logger,
	}
}

// HandleFilter applies the filter signals sent by the page, remembers them
// for the session and patches every panel.
func (h *SSEHandlers) HandleFilter(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	var signals filterSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		errors.WriteError(w, h.logger, errors.BadRequestWrap(err, "invalid filter signals"), requestID)
		return
	}

	base, err := h.selector.base(r)
	if err != nil {
		errors.WriteError(w, h.logger, toAppError(err), requestID)
		return
	}
	sel := h.selector.merge(r, base, deref(signals.Countries), deref(signals.Months), deref(signals.Products))

	h.patchView(w, r, sel)
}

// HandleRefreshAll patches every panel for the session's current selection.
func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	sel, err := h.selector.base(r)
	if err != nil {
		errors.WriteError(w, h.logger, toAppError(err), observability.GetRequestID(r.Context()))
		return
	}
	h.patchView(w, r, sel)
}

func (h *SSEHandlers) patchView(w http.ResponseWriter, r *http.Request, sel models.Selection) {
	ctx := r.Context()
	requestID := observability.GetRequestID(ctx)

	view, err := h.analytics.View(ctx, sel, 0)
	if err != nil {
		errors.WriteError(w, h.logger, toAppError(err), requestID)
		return
	}

	fragments := make([]string, 0, 3)
	for _, component := range []struct {
		name string
		fn   func() (string, error)
	}{
		{"kpi cards", func() (string, error) { return templates.Render(ctx, templates.KPICards(view.Summary)) }},
		{"preview", func() (string, error) { return templates.Render(ctx, templates.PreviewTable(view.Preview)) }},
		{"insight", func() (string, error) { return templates.Render(ctx, templates.Insight(view)) }},
	} {
		html, err := component.fn()
		if err != nil {
			h.logger.Error("render fragment", "fragment", component.name, "error", err, "request_id", requestID)
			errors.WriteError(w, h.logger, errors.Internal("render failed"), requestID)
			return
		}
		fragments = append(fragments, html)
	}

	signals, err := json.Marshal(templates.ChartSignals(view))
	if err != nil {
		h.logger.Error("marshal chart signals", "error", err, "request_id", requestID)
		errors.WriteError(w, h.logger, errors.Internal("render failed"), requestID)
		return
	}

	sse := datastar.NewSSE(w, r)
	for _, html := range fragments {
		if err := sse.PatchElements(html); err != nil {
			h.logger.Warn("patch elements", "error", err, "request_id", requestID)
			return
		}
	}
	if err := sse.PatchSignals(signals); err != nil {
		h.logger.Warn("patch signals", "error", err, "request_id", requestID)
		return
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func deref(s *[]string) []string {
	if s == nil {
		return nil
	}
	if *s == nil {
		return []string{}
	}
	return *s
}
