package http

import (
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"creditledger/internal/core"
)

// sanitizeInput drops control characters other than tab and newlines
// and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// isHTMX reports whether the request was issued by htmx rather than a
// full page navigation.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// templateFuncs are available to every template.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"pesos": core.FormatPesos,
		"percent": func(d decimal.Decimal) string {
			return d.StringFixed(2) + "%"
		},
		"date": func(v any) string {
			switch t := v.(type) {
			case core.Date:
				return t.Format("Jan 2, 2006")
			case time.Time:
				if t.IsZero() {
					return ""
				}
				return t.Format("Jan 2, 2006")
			default:
				return ""
			}
		},
		"isoDate": func(t time.Time) string {
			return t.Format("2006-01-02")
		},
		"selected": func(a, b core.StatusFilter) template.HTMLAttr {
			if a == b {
				return "selected"
			}
			return ""
		},
	}
}
