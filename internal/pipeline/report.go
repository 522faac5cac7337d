package pipeline

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"retail-dashboard/internal/models"
)

// Totals are the dataset-wide figures behind the KPI cards.
type Totals struct {
	Revenue           decimal.Decimal
	Quantity          int64
	Orders            int64
	AverageOrderValue decimal.Decimal
}

func Summarize(ds models.Dataset) Totals {
	t := Totals{
		Revenue:  ds.Revenue(),
		Quantity: ds.Quantity(),
		Orders:   ds.Orders(),
	}
	if t.Orders > 0 {
		t.AverageOrderValue = t.Revenue.DivRound(decimal.NewFromInt(t.Orders), 2)
	}
	return t
}

// Parts are the stage outputs of one run.
type Parts struct {
	RunID       string
	Source      string
	GeneratedAt time.Time
	Granularity models.Granularity
	RankMetric  models.Metric
	TopN        int
	TotalRows   int

	Totals        Totals
	ByCategory    models.Buckets
	ByCustomer    models.Buckets
	ByPeriod      models.Buckets
	TopCustomers  []models.RankedEntry
	TopCategories []models.RankedEntry
	Rejections    models.RejectionReport
}

// Assemble copies the stage outputs into a fresh Report. It computes nothing
// and cannot fail.
func Assemble(p Parts) *models.Report {
	reasons := slices.Clone(p.Rejections.Reasons)
	if reasons == nil {
		reasons = []models.Rejection{}
	}
	return &models.Report{
		RunID:       p.RunID,
		Source:      p.Source,
		GeneratedAt: p.GeneratedAt,
		Granularity: p.Granularity,
		RankMetric:  p.RankMetric,
		TopN:        p.TopN,

		TotalRevenue:      p.Totals.Revenue,
		TotalQuantity:     p.Totals.Quantity,
		OrderCount:        p.Totals.Orders,
		AverageOrderValue: p.Totals.AverageOrderValue,

		ByCategory:    p.ByCategory.Sorted(),
		ByCustomer:    p.ByCustomer.Sorted(),
		ByPeriod:      p.ByPeriod.Sorted(),
		TopCustomers:  cloneEntries(p.TopCustomers),
		TopCategories: cloneEntries(p.TopCategories),

		TotalRows:           p.TotalRows,
		AcceptedRows:        p.TotalRows - p.Rejections.Count,
		RejectedRows:        p.Rejections.Count,
		RejectionReasons:    reasons,
		RejectionsTruncated: p.Rejections.Truncated,
		RejectionsByReason:  maps.Clone(p.Rejections.ByReason),
	}
}

func cloneEntries(entries []models.RankedEntry) []models.RankedEntry {
	if entries == nil {
		return []models.RankedEntry{}
	}
	return slices.Clone(entries)
}
