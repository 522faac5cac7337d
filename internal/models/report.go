package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Rejection struct {
	RowIndex int        `json:"row_index"`
	Reason   ReasonCode `json:"reason_code"`
}

// RejectionReport records every rejected row as a count and keeps at most the
// configured number of individual reasons.
type RejectionReport struct {
	Count     int                `json:"count"`
	Reasons   []Rejection        `json:"reasons"`
	Truncated bool               `json:"truncated"`
	ByReason  map[ReasonCode]int `json:"by_reason"`
}

// Report is the snapshot of one pipeline run. Its slices are owned by the
// report and are not shared with any pipeline stage; treat it as read-only.
type Report struct {
	RunID       string      `json:"run_id"`
	Source      string      `json:"source,omitempty"`
	GeneratedAt time.Time   `json:"generated_at"`
	Granularity Granularity `json:"granularity"`
	RankMetric  Metric      `json:"rank_metric"`
	TopN        int         `json:"top_n"`

	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalQuantity     int64           `json:"total_quantity"`
	OrderCount        int64           `json:"order_count"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`

	ByCategory    []AggregateBucket `json:"by_category"`
	ByCustomer    []AggregateBucket `json:"by_customer"`
	ByPeriod      []AggregateBucket `json:"by_period"`
	TopCustomers  []RankedEntry     `json:"top_customers"`
	TopCategories []RankedEntry     `json:"top_categories"`

	TotalRows           int                `json:"total_rows"`
	AcceptedRows        int                `json:"accepted_rows"`
	RejectedRows        int                `json:"rejected_rows"`
	RejectionReasons    []Rejection        `json:"rejection_reasons"`
	RejectionsTruncated bool               `json:"rejections_truncated"`
	RejectionsByReason  map[ReasonCode]int `json:"rejections_by_reason,omitempty"`
}

// KPIs is the headline slice of a Report shown in the dashboard cards.
type KPIs struct {
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	TotalQuantity     int64           `json:"total_quantity"`
	OrderCount        int64           `json:"order_count"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	AcceptedRows      int             `json:"accepted_rows"`
	RejectedRows      int             `json:"rejected_rows"`
}

func (r *Report) KPIs() KPIs {
	return KPIs{
		TotalRevenue:      r.TotalRevenue,
		TotalQuantity:     r.TotalQuantity,
		OrderCount:        r.OrderCount,
		AverageOrderValue: r.AverageOrderValue,
		AcceptedRows:      r.AcceptedRows,
		RejectedRows:      r.RejectedRows,
	}
}
