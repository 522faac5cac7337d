package handlers

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/starfederation/datastar-go/datastar"

	"retail-dashboard/internal/models"
	"retail-dashboard/internal/services"
)

const maxTableRows = 50

var fragmentFuncs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"value": func(m models.Metric, d decimal.Decimal) string {
		if m == models.MetricRevenue {
			return d.StringFixed(2)
		}
		return d.String()
	},
}

var kpiTemplate = template.Must(template.New("kpis").Funcs(fragmentFuncs).Parse(`
<div id="kpi-content" class="kpi-grid">
<div class="kpi-card"><span class="kpi-label">Total Revenue</span><span class="kpi-value">${{money .TotalRevenue}}</span></div>
<div class="kpi-card"><span class="kpi-label">Orders</span><span class="kpi-value">{{.OrderCount}}</span></div>
<div class="kpi-card"><span class="kpi-label">Avg Order Value</span><span class="kpi-value">${{money .AverageOrderValue}}</span></div>
<div class="kpi-card"><span class="kpi-label">Units Sold</span><span class="kpi-value">{{.TotalQuantity}}</span></div>
<div class="kpi-card"><span class="kpi-label">Rows Rejected</span><span class="kpi-value">{{.RejectedRows}} / {{.TotalRows}}</span></div>
</div>`))

var rankingTemplate = template.Must(template.New("ranking").Funcs(fragmentFuncs).Parse(`
<div id="{{.ID}}">
<table class="modern-table">
<thead><tr><th>#</th><th>{{.Label}}</th><th>{{.Metric}}</th></tr></thead>
<tbody>
{{range .Entries}}<tr>
<td>{{.Rank}}</td>
<td>{{.Key}}</td>
<td><strong>{{value $.Metric .Value}}</strong></td>
</tr>{{end}}
</tbody>
</table>
</div>`))

var bucketTemplate = template.Must(template.New("buckets").Funcs(fragmentFuncs).Parse(`
<div id="category-content">
<table class="modern-table">
<thead><tr><th>Category</th><th>Revenue</th><th>Units</th><th>Rows</th></tr></thead>
<tbody>
{{range $b := .}}<tr>
<td><span class="category-badge">{{$b.Key}}</span></td>
<td><strong>${{money $b.Revenue}}</strong></td>
<td>{{$b.Quantity}}</td>
<td>{{$b.Count}}</td>
</tr>{{end}}
</tbody>
</table>
</div>`))

var unavailableTemplate = template.Must(template.New("unavailable").Parse(
	`<div id="{{.ID}}" class="empty-state">{{.Message}}</div>`))

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

type kpiData struct {
	models.KPIs
	TotalRows int
}

type rankingData struct {
	ID      string
	Label   string
	Metric  models.Metric
	Entries []models.RankedEntry
}

func renderKPIs(report *models.Report) (string, error) {
	var buf strings.Builder
	err := kpiTemplate.Execute(&buf, kpiData{KPIs: report.KPIs(), TotalRows: report.TotalRows})
	return buf.String(), err
}

func renderRanking(id, label string, view RankingView) (string, error) {
	var buf strings.Builder
	err := rankingTemplate.Execute(&buf, rankingData{ID: id, Label: label, Metric: view.Metric, Entries: view.Entries})
	return buf.String(), err
}

func renderCategories(buckets []models.AggregateBucket) (string, error) {
	var buf strings.Builder
	err := bucketTemplate.Execute(&buf, buckets[:min(len(buckets), maxTableRows)])
	return buf.String(), err
}

func renderUnavailable(id, message string) string {
	var buf strings.Builder
	unavailableTemplate.Execute(&buf, map[string]string{"ID": id, "Message": message})
	return buf.String()
}

// current returns the report for the request, patching a placeholder into
// targetID when none is loaded.
func (h *SSEHandlers) current(sse *datastar.ServerSentEventGenerator, r *http.Request, targetID string) (*models.Report, bool) {
	report, err := h.analytics.Report(r.URL.Query().Get("source"))
	if err != nil {
		h.logger.Warn("sse request without report", "path", r.URL.Path, "error", err)
		sse.PatchElements(renderUnavailable(targetID, "No report loaded"))
		return nil, false
	}
	return report, true
}

func (h *SSEHandlers) patchSignals(sse *datastar.ServerSentEventGenerator, signals map[string]any) {
	data, err := json.Marshal(signals)
	if err != nil {
		h.logger.Error("marshal signals", "error", err)
		return
	}
	sse.PatchSignals(data)
}

func (h *SSEHandlers) HandleKPIs(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	report, ok := h.current(sse, r, "kpi-content")
	if !ok {
		return
	}

	html, err := renderKPIs(report)
	if err != nil {
		h.logger.Error("render kpis", "error", err)
		return
	}
	sse.PatchElements(html)
	h.patchSignals(sse, map[string]any{"kpis": report.KPIs()})
}

func (h *SSEHandlers) HandleTopCustomers(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	report, ok := h.current(sse, r, "customers-content")
	if !ok {
		return
	}

	view, err := rankingFor(report, models.DimensionCustomer, r)
	if err != nil {
		h.logger.Warn("rank customers", "error", err)
		sse.PatchElements(renderUnavailable("customers-content", err.Error()))
		return
	}
	html, err := renderRanking("customers-content", "Customer", view)
	if err != nil {
		h.logger.Error("render top customers", "error", err)
		return
	}
	sse.PatchElements(html)
	h.patchSignals(sse, map[string]any{"customersData": view.Entries})
}

func (h *SSEHandlers) HandleCategories(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	report, ok := h.current(sse, r, "category-content")
	if !ok {
		return
	}

	html, err := renderCategories(report.ByCategory)
	if err != nil {
		h.logger.Error("render categories", "error", err)
		return
	}
	sse.PatchElements(html)
	h.patchSignals(sse, map[string]any{"categoryData": report.TopCategories})
}

func (h *SSEHandlers) HandlePeriods(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	report, ok := h.current(sse, r, "period-content")
	if !ok {
		return
	}

	h.patchSignals(sse, map[string]any{
		"periodData":  report.ByPeriod,
		"granularity": report.Granularity,
	})
	sse.PatchElements(`<div id="period-content">Revenue by ` + string(report.Granularity) + `</div>`)
}

func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	report, ok := h.current(sse, r, "kpi-content")
	if !ok {
		return
	}

	kpis, err := renderKPIs(report)
	if err != nil {
		h.logger.Error("render kpis", "error", err)
		return
	}
	customers, err := renderRanking("customers-content", "Customer", RankingView{
		Metric: report.RankMetric, N: report.TopN, Entries: report.TopCustomers,
	})
	if err != nil {
		h.logger.Error("render top customers", "error", err)
		return
	}
	categories, err := renderCategories(report.ByCategory)
	if err != nil {
		h.logger.Error("render categories", "error", err)
		return
	}

	sse.PatchElements(kpis)
	sse.PatchElements(customers)
	sse.PatchElements(categories)
	h.patchSignals(sse, map[string]any{
		"kpis":          report.KPIs(),
		"customersData": report.TopCustomers,
		"categoryData":  report.TopCategories,
		"periodData":    report.ByPeriod,
		"granularity":   report.Granularity,
	})
}
