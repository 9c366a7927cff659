package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"abt-dashboard/internal/models"
	"abt-dashboard/internal/observability"
)

// Defaults decides the selection shown before a session has chosen one.
type Defaults struct {
	Country string
	Months  int
}

type Analytics struct {
	source   TableSource
	opts     AggregateOptions
	defaults Defaults
	logger   *slog.Logger
}

func NewAnalytics(source TableSource, opts AggregateOptions, defaults Defaults, logger *slog.Logger) *Analytics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analytics{
		source:   source,
		opts:     opts,
		defaults: defaults,
		logger:   logger,
	}
}

func (a *Analytics) Table(ctx context.Context) (*Table, error) {
	t, err := a.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load table: %w", err)
	}
	return t, nil
}

// View aggregates the current table for sel. A zero selection is replaced
// by the default one. topN overrides the configured ranking length when
// positive.
func (a *Analytics) View(ctx context.Context, sel models.Selection, topN int) (*models.View, error) {
	ctx, span := observability.StartSpan(ctx, "analytics.view")
	defer span.End(a.logger)

	t, err := a.Table(ctx)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if sel.IsZero() {
		sel = a.defaultSelection(t)
	}

	opts := a.opts
	if topN > 0 {
		opts.TopN = topN
		opts.CustomerTopN = topN
	}

	view := Aggregate(t, sel, opts)
	span.SetTag("rows", strconv.Itoa(view.Summary.RowCount))

	if _, err := view.Summary.AOV(); err != nil {
		a.logger.DebugContext(ctx, "selection has no orders",
			"countries", len(sel.Countries),
			"months", len(sel.Months),
			"products", len(sel.Products),
		)
	}
	return view, nil
}

func (a *Analytics) DefaultSelection(ctx context.Context) (models.Selection, error) {
	t, err := a.Table(ctx)
	if err != nil {
		return models.Selection{}, err
	}
	return a.defaultSelection(t), nil
}

func (a *Analytics) defaultSelection(t *Table) models.Selection {
	return t.DefaultSelection(a.defaults.Country, a.defaults.Months)
}

func (a *Analytics) Options(ctx context.Context) (models.Options, error) {
	t, err := a.Table(ctx)
	if err != nil {
		return models.Options{}, err
	}
	return t.Options(), nil
}

// Stats reports the shape of the loaded dataset for monitoring.
func (a *Analytics) Stats(ctx context.Context) (map[string]any, error) {
	t, err := a.Table(ctx)
	if err != nil {
		return nil, err
	}
	st := t.Stats()
	opts := t.Options()

	stats := map[string]any{
		"source":         st.Source,
		"rows_read":      st.RowsRead,
		"rows_kept":      st.RowsKept,
		"rows_dropped":   st.RowsDropped,
		"rows_malformed": st.RowsMalformed,
		"loaded_at":      st.LoadedAt,
		"load_duration":  st.Duration.String(),
		"countries":      len(opts.Countries),
		"months":         len(opts.Months),
		"products":       len(opts.Products),
	}
	if c, ok := a.source.(*TableCache); ok {
		stats["cache"] = c.Stats()
	}
	return stats, nil
}
