package templates

import (
	"context"
	"strings"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"
)

// Money formats v as dollars with thousands separators and two decimals.
func Money(v float64) string {
	if v < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -v)
	}
	return "$" + humanize.FormatFloat("#,###.##", v)
}

func Count(n int) string {
	return humanize.Comma(int64(n))
}

func Percent(share float64) string {
	return humanize.FormatFloat("#,###.#", share*100) + "%"
}

// Render writes c into a string, for SSE element patches.
func Render(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}
