package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"retail-dashboard/internal/pipeline"
	"retail-dashboard/internal/services"
)

const testOrdersCSV = `order_date,category,customer_id,quantity,unit_price,order_id
2024-01-05,Electronics,alice,1,999.99,o1
2024-02-10,Electronics,bob,2,29.99,o2
2024-02-11,Books,alice,3,10.00,o3
2024-02-12,Books,carol,x,10.00,o4
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTestAnalytics() *services.Analytics {
	opts := pipeline.DefaultOptions()
	opts.Source = "orders.csv"
	report, err := pipeline.RunCSV(context.Background(), strings.NewReader(testOrdersCSV), opts)
	if err != nil {
		panic(err)
	}
	a := services.NewAnalytics(pipeline.DefaultOptions(), testLogger())
	a.SetReport(report)
	return a
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	return response
}

func get(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestNewAPIHandlers(t *testing.T) {
	analytics := createTestAnalytics()
	handlers := NewAPIHandlers(analytics, testLogger())

	if handlers == nil {
		t.Fatal("NewAPIHandlers() returned nil")
	}
	if handlers.analytics != analytics {
		t.Error("NewAPIHandlers() should set analytics field")
	}
}

func TestAPIHandlers_ReportEndpoints(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	endpoints := []struct {
		name    string
		handler http.HandlerFunc
		path    string
	}{
		{"report", handlers.HandleReport, "/api/report"},
		{"kpis", handlers.HandleKPIs, "/api/kpis"},
		{"categories", handlers.HandleCategories, "/api/categories"},
		{"customers", handlers.HandleCustomers, "/api/customers"},
		{"periods", handlers.HandlePeriods, "/api/periods"},
		{"top-customers", handlers.HandleTopCustomers, "/api/top-customers"},
		{"top-categories", handlers.HandleTopCategories, "/api/top-categories"},
		{"rejections", handlers.HandleRejections, "/api/rejections"},
		{"buckets", handlers.HandleBuckets, "/api/buckets?dimension=category"},
	}

	for _, endpoint := range endpoints {
		t.Run(endpoint.name, func(t *testing.T) {
			w := get(endpoint.handler, endpoint.path)

			if w.Code != http.StatusOK {
				t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected content-type 'application/json', got %q", ct)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=300" {
				t.Errorf("expected cache-control 'public, max-age=300', got %q", cc)
			}

			response := decodeResponse(t, w)
			if success, ok := response["success"].(bool); !ok || !success {
				t.Error("expected success=true in response")
			}
			if response["data"] == nil {
				t.Error("expected data field in response")
			}
		})
	}
}

func TestAPIHandlers_HandleKPIs(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	data := decodeResponse(t, get(handlers.HandleKPIs, "/api/kpis"))["data"].(map[string]any)

	want := map[string]any{
		"total_revenue":       "1089.97",
		"total_quantity":      float64(6),
		"order_count":         float64(3),
		"average_order_value": "363.32",
		"accepted_rows":       float64(3),
		"rejected_rows":       float64(1),
	}
	for key, value := range want {
		if data[key] != value {
			t.Errorf("%s: expected %v, got %v", key, value, data[key])
		}
	}
}

func TestAPIHandlers_HandleTopCustomers(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	data := decodeResponse(t, get(handlers.HandleTopCustomers, "/api/top-customers"))["data"].(map[string]any)
	if data["metric"] != "revenue" || data["n"] != float64(10) {
		t.Errorf("expected default ranking revenue/10, got %v/%v", data["metric"], data["n"])
	}

	entries := data["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(entries))
	}
	first := entries[0].(map[string]any)
	if first["key"] != "alice" || first["revenue"] != "1029.99" || first["rank"] != float64(1) {
		t.Errorf("unexpected first entry: %v", first)
	}
}

func TestAPIHandlers_ReRank(t *testing.T) {
	analytics := createTestAnalytics()
	handlers := NewAPIHandlers(analytics, testLogger())

	w := get(handlers.HandleTopCustomers, "/api/top-customers?n=1&metric=quantity")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	data := decodeResponse(t, w)["data"].(map[string]any)
	entries := data["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entry := entries[0].(map[string]any); entry["key"] != "alice" || entry["quantity"] != "4" {
		t.Errorf("unexpected entry: %v", entry)
	}

	w = get(handlers.HandleTopCategories, "/api/top-categories?metric=count")
	entries = decodeResponse(t, w)["data"].(map[string]any)["entries"].([]any)
	if entry := entries[0].(map[string]any); entry["key"] != "Electronics" || entry["count"] != "2" {
		t.Errorf("unexpected entry: %v", entry)
	}

	report, _ := analytics.Report("")
	if len(report.TopCustomers) != 2 || report.TopCustomers[0].Metric != "revenue" {
		t.Error("re-ranking must not modify the stored report")
	}
}

func TestAPIHandlers_InvalidRankRequest(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	for _, query := range []string{"n=0", "n=-3", "n=abc", "metric=margin"} {
		t.Run(query, func(t *testing.T) {
			w := get(handlers.HandleTopCustomers, "/api/top-customers?"+query)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
			response := decodeResponse(t, w)
			if success, _ := response["success"].(bool); success {
				t.Error("expected success=false")
			}
			if code := response["error"].(map[string]any)["code"]; code != "VALIDATION_ERROR" {
				t.Errorf("expected VALIDATION_ERROR, got %v", code)
			}
		})
	}
}

func TestAPIHandlers_HandleRejections(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	data := decodeResponse(t, get(handlers.HandleRejections, "/api/rejections"))["data"].(map[string]any)
	if data["count"] != float64(1) {
		t.Errorf("expected 1 rejection, got %v", data["count"])
	}
	reasons := data["reasons"].([]any)
	if len(reasons) != 1 {
		t.Fatalf("expected 1 reason, got %d", len(reasons))
	}
	reason := reasons[0].(map[string]any)
	if reason["row_index"] != float64(3) || reason["reason_code"] != "invalid_quantity" {
		t.Errorf("unexpected rejection: %v", reason)
	}
}

func TestAPIHandlers_HandlePeriods(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	data := decodeResponse(t, get(handlers.HandlePeriods, "/api/periods"))["data"].(map[string]any)
	if data["granularity"] != "month" {
		t.Errorf("expected month granularity, got %v", data["granularity"])
	}
	buckets := data["buckets"].([]any)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(buckets))
	}
	if key := buckets[0].(map[string]any)["key"]; key != "2024-01" {
		t.Errorf("expected first period 2024-01, got %v", key)
	}
}

func TestAPIHandlers_HandleBuckets(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	tests := []struct {
		query       string
		granularity any
		keys        []string
	}{
		{"dimension=category", nil, []string{"Books", "Electronics"}},
		{"dimension=Customer", nil, []string{"alice", "bob"}},
		{"dimension=period", "month", []string{"2024-01", "2024-02"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := get(handlers.HandleBuckets, "/api/buckets?"+tt.query)
			if w.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
			}
			data := decodeResponse(t, w)["data"].(map[string]any)
			if data["granularity"] != tt.granularity {
				t.Errorf("expected granularity %v, got %v", tt.granularity, data["granularity"])
			}
			buckets := data["buckets"].([]any)
			if len(buckets) != len(tt.keys) {
				t.Fatalf("expected %d buckets, got %d", len(tt.keys), len(buckets))
			}
			for i, key := range tt.keys {
				if got := buckets[i].(map[string]any)["key"]; got != key {
					t.Errorf("bucket %d: expected key %q, got %v", i, key, got)
				}
			}
		})
	}
}

func TestAPIHandlers_HandleBucketsBadDimension(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	for _, query := range []string{"", "dimension=region"} {
		t.Run(query, func(t *testing.T) {
			w := get(handlers.HandleBuckets, "/api/buckets?"+query)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
			if code := decodeResponse(t, w)["error"].(map[string]any)["code"]; code != "BAD_REQUEST" {
				t.Errorf("expected BAD_REQUEST, got %v", code)
			}
		})
	}
}

func TestAPIHandlers_NoReport(t *testing.T) {
	handlers := NewAPIHandlers(services.NewAnalytics(pipeline.DefaultOptions(), testLogger()), testLogger())

	w := get(handlers.HandleKPIs, "/api/kpis")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if code := decodeResponse(t, w)["error"].(map[string]any)["code"]; code != "SERVICE_UNAVAILABLE" {
		t.Errorf("expected SERVICE_UNAVAILABLE, got %v", code)
	}

	w = get(handlers.HandleHealth, "/health")
	if status := decodeResponse(t, w)["data"].(map[string]any)["status"]; status != "degraded" {
		t.Errorf("expected degraded health, got %v", status)
	}

	w = httptest.NewRecorder()
	handlers.HandleReload(w, httptest.NewRequest(http.MethodPost, "/admin/reload", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected reload without files to return %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestAPIHandlers_UnknownSource(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	if w := get(handlers.HandleReport, "/api/report?source=orders.csv"); w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w := get(handlers.HandleReport, "/api/report?source=missing.csv"); w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	w := get(handlers.HandleHealth, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "" {
		t.Errorf("health endpoint should not set cache-control, got %q", cc)
	}

	data := decodeResponse(t, w)["data"].(map[string]any)
	if status := data["status"]; status != "healthy" {
		t.Errorf("expected status 'healthy', got %v", status)
	}
	if _, err := time.Parse(time.RFC3339, data["timestamp"].(string)); err != nil {
		t.Errorf("invalid timestamp format: %v", err)
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	w := get(handlers.HandleStats, "/admin/stats")
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected cache-control 'no-store', got %q", cc)
	}
	data := decodeResponse(t, w)["data"].(map[string]any)
	if data["source"] != "orders.csv" || data["rejected_rows"] != float64(1) {
		t.Errorf("unexpected stats: %v", data)
	}
}

func TestAPIHandlers_HandleSources(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(), testLogger())

	data := decodeResponse(t, get(handlers.HandleSources, "/api/sources"))["data"].(map[string]any)
	if data["current"] != "orders.csv" {
		t.Errorf("expected current source orders.csv, got %v", data["current"])
	}
}
