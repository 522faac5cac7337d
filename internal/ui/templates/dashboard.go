// Package templates renders the dashboard shell. The panels start empty and
// are filled by the /sse endpoints.
package templates

//go:generate templ generate

import "net/url"

type Panel struct {
	ID    string
	Title string
	SSE   string
}

var panels = []Panel{
	{ID: "kpi-content", Title: "Key Metrics", SSE: "/sse/kpis"},
	{ID: "customers-content", Title: "Top Customers", SSE: "/sse/top-customers"},
	{ID: "category-content", Title: "Revenue by Category", SSE: "/sse/categories"},
	{ID: "period-content", Title: "Revenue over Time", SSE: "/sse/periods"},
}

// sseGet builds the datastar action for path. An empty source means the
// current report.
func sseGet(path, source string) string {
	if source == "" {
		return "@get('" + path + "')"
	}
	return "@get('" + path + "?source=" + url.QueryEscape(source) + "')"
}
