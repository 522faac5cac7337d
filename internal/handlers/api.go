package handlers

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"retail-dashboard/internal/errors"
	"retail-dashboard/internal/models"
	"retail-dashboard/internal/observability"
	"retail-dashboard/internal/pipeline"
	"retail-dashboard/internal/services"
)

var reportCacheHeaders = map[string]string{
	"Cache-Control": "public, max-age=300",
}

type APIHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

// RankingView is a ranking computed from a report's stored buckets.
type RankingView struct {
	Metric  models.Metric        `json:"metric"`
	N       int                  `json:"n"`
	Entries []models.RankedEntry `json:"entries"`
}

// BucketsView is one dimension's aggregate buckets in ascending key order.
type BucketsView struct {
	Dimension   models.Dimension         `json:"dimension"`
	Granularity models.Granularity       `json:"granularity,omitempty"`
	Buckets     []models.AggregateBucket `json:"buckets"`
}

type SourcesView struct {
	Current string   `json:"current"`
	Sources []string `json:"sources"`
}

func (h *APIHandlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, report, reportCacheHeaders)
}

func (h *APIHandlers) HandleKPIs(w http.ResponseWriter, r *http.Request) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, report.KPIs(), reportCacheHeaders)
}

func (h *APIHandlers) HandleCategories(w http.ResponseWriter, r *http.Request) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, report.ByCategory, reportCacheHeaders)
}

func (h *APIHandlers) HandleCustomers(w http.ResponseWriter, r *http.Request) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, report.ByCustomer, reportCacheHeaders)
}

func (h *APIHandlers) HandlePeriods(w http.ResponseWriter, r *http.Request) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, map[string]any{
		"granularity": report.Granularity,
		"buckets":     report.ByPeriod,
	}, reportCacheHeaders)
}

// HandleBuckets serves /api/buckets?dimension=category|customer|period.
func (h *APIHandlers) HandleBuckets(w http.ResponseWriter, r *http.Request) {
	dim, err := models.ParseDimension(r.URL.Query().Get("dimension"))
	if err != nil {
		errors.WriteError(w, h.logger, errors.BadRequest(err.Error()), observability.GetRequestID(r.Context()))
		return
	}
	report, ok := h.report(w, r)
	if !ok {
		return
	}

	view := BucketsView{Dimension: dim}
	switch dim {
	case models.DimensionCategory:
		view.Buckets = report.ByCategory
	case models.DimensionCustomer:
		view.Buckets = report.ByCustomer
	case models.DimensionPeriod:
		view.Granularity = report.Granularity
		view.Buckets = report.ByPeriod
	}
	errors.WriteSuccessWithHeaders(w, view, reportCacheHeaders)
}

func (h *APIHandlers) HandleTopCustomers(w http.ResponseWriter, r *http.Request) {
	h.handleRanking(w, r, models.DimensionCustomer)
}

func (h *APIHandlers) HandleTopCategories(w http.ResponseWriter, r *http.Request) {
	h.handleRanking(w, r, models.DimensionCategory)
}

func (h *APIHandlers) handleRanking(w http.ResponseWriter, r *http.Request, dim models.Dimension) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}
	view, err := rankingFor(report, dim, r)
	if err != nil {
		errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
		return
	}
	errors.WriteSuccessWithHeaders(w, view, reportCacheHeaders)
}

func (h *APIHandlers) HandleRejections(w http.ResponseWriter, r *http.Request) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, models.RejectionReport{
		Count:     report.RejectedRows,
		Reasons:   report.RejectionReasons,
		Truncated: report.RejectionsTruncated,
		ByReason:  report.RejectionsByReason,
	}, reportCacheHeaders)
}

func (h *APIHandlers) HandleSources(w http.ResponseWriter, r *http.Request) {
	view := SourcesView{Sources: h.analytics.Sources()}
	if report, err := h.analytics.Report(""); err == nil {
		view.Current = report.Source
	}
	errors.WriteSuccess(w, view)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if _, err := h.analytics.Report(""); err != nil {
		status = "degraded"
	}

	errors.WriteSuccess(w, map[string]string{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
	})
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccessWithHeaders(w, h.analytics.Stats(), map[string]string{
		"Cache-Control": "no-store",
	})
}

// HandleReload re-runs the pipeline for the configured files. The previous
// reports stay in place when the run fails.
func (h *APIHandlers) HandleReload(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())
	if err := h.analytics.Reload(r.Context()); err != nil {
		errors.WriteError(w, h.logger, reportError(err), requestID)
		return
	}
	errors.WriteSuccess(w, h.analytics.Stats())
}

// report resolves the report named by the source query parameter, writing
// the error response itself when there is none.
func (h *APIHandlers) report(w http.ResponseWriter, r *http.Request) (*models.Report, bool) {
	source := r.URL.Query().Get("source")
	report, err := h.analytics.Report(source)
	if err != nil {
		if source != "" {
			err = errors.NotFound(err.Error())
		}
		errors.WriteError(w, h.logger, reportError(err), observability.GetRequestID(r.Context()))
		return nil, false
	}
	return report, true
}

func reportError(err error) error {
	if stderrors.Is(err, services.ErrNoReport) {
		return errors.ServiceUnavailable(err.Error())
	}
	return err
}

// rankingFor re-ranks the report's stored buckets when the request asks for a
// different n or metric. The report itself is never modified.
func rankingFor(report *models.Report, dim models.Dimension, r *http.Request) (RankingView, error) {
	n := report.TopN
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return RankingView{}, errors.Validation("n must be an integer")
		}
		n = parsed
	}
	metric := report.RankMetric
	if raw := r.URL.Query().Get("metric"); raw != "" {
		metric = models.Metric(raw)
	}

	stored, buckets := report.TopCustomers, report.ByCustomer
	if dim == models.DimensionCategory {
		stored, buckets = report.TopCategories, report.ByCategory
	}
	if n == report.TopN && metric == report.RankMetric {
		return RankingView{Metric: metric, N: n, Entries: stored}, nil
	}

	entries, err := pipeline.Rank(models.IndexBuckets(buckets), metric, n)
	if err != nil {
		return RankingView{}, err
	}
	return RankingView{Metric: metric, N: n, Entries: entries}, nil
}
