package handlers

import (
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"abt-dashboard/internal/errors"
	"abt-dashboard/internal/models"
	"abt-dashboard/internal/observability"
	"abt-dashboard/internal/services"
	"abt-dashboard/internal/session"
)

const maxTopN = 100

// selector works out which selection a request is asking about: explicit
// values first, then the session's stored selection, then the default.
type selector struct {
	analytics *services.Analytics
	sessions  *session.Store
}

// base is the session's stored selection or, failing that, the default.
func (s selector) base(r *http.Request) (models.Selection, error) {
	if sel, ok := s.sessions.Get(observability.GetSessionID(r.Context())); ok {
		return sel, nil
	}
	return s.analytics.DefaultSelection(r.Context())
}

// merge overlays the dimensions the caller supplied onto base and stores
// the result in the session. A nil dimension keeps base's value.
func (s selector) merge(r *http.Request, base models.Selection, countries, months, products []string) models.Selection {
	sel := base.Clone()
	if countries != nil {
		sel.Countries = countries
	}
	if months != nil {
		sel.Months = months
	}
	if products != nil {
		sel.Products = products
	}
	s.sessions.Put(observability.GetSessionID(r.Context()), sel)
	return sel
}

// fromQuery reads repeated country, month and product parameters. A
// parameter given once with an empty value selects nothing for that
// dimension.
func (s selector) fromQuery(r *http.Request) (models.Selection, error) {
	base, err := s.base(r)
	if err != nil {
		return models.Selection{}, err
	}
	q := r.URL.Query()
	if !q.Has("country") && !q.Has("month") && !q.Has("product") {
		return base, nil
	}
	return s.merge(r, base, queryValues(q, "country"), queryValues(q, "month"), queryValues(q, "product")), nil
}

func queryValues(q url.Values, key string) []string {
	if !q.Has(key) {
		return nil
	}
	out := make([]string, 0, len(q[key]))
	for _, v := range q[key] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// topN parses the optional n parameter; 0 means the configured size.
func topN(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("n")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxTopN {
		return 0, errors.BadRequestWrap(err, "n must be an integer between 1 and 100")
	}
	return n, nil
}

// toAppError maps dataset failures onto the HTTP error taxonomy.
func toAppError(err error) error {
	switch {
	case stderrors.Is(err, services.ErrSourceUnavailable):
		return errors.SourceUnavailable(err)
	case stderrors.Is(err, services.ErrMalformedRecord):
		return errors.MalformedRecord(err)
	default:
		return err
	}
}
