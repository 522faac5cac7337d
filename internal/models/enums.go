package models

import (
	"fmt"
	"strings"
	"time"
)

type Dimension string

const (
	DimensionCategory Dimension = "category"
	DimensionCustomer Dimension = "customer"
	DimensionPeriod   Dimension = "period"
)

func ParseDimension(s string) (Dimension, error) {
	switch d := Dimension(strings.ToLower(strings.TrimSpace(s))); d {
	case DimensionCategory, DimensionCustomer, DimensionPeriod:
		return d, nil
	}
	return "", fmt.Errorf("unknown dimension %q", s)
}

type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return g, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// Bucket returns the period key for t. Keys sort lexically in time order:
// 2024-03-09 (day), 2024-W10 (ISO week), 2024-03 (month).
func (g Granularity) Bucket(t time.Time) (string, error) {
	t = t.UTC()
	switch g {
	case GranularityDay:
		return t.Format("2006-01-02"), nil
	case GranularityWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), nil
	case GranularityMonth:
		return t.Format("2006-01"), nil
	}
	return "", fmt.Errorf("unknown granularity %q", string(g))
}

type Metric string

const (
	MetricRevenue  Metric = "revenue"
	MetricQuantity Metric = "quantity"
	MetricCount    Metric = "count"
)

func (m Metric) Valid() bool {
	switch m {
	case MetricRevenue, MetricQuantity, MetricCount:
		return true
	}
	return false
}

// ReasonCode names why the validator rejected a row.
type ReasonCode string

const (
	ReasonInvalidQuantity     ReasonCode = "invalid_quantity"
	ReasonNonPositiveQuantity ReasonCode = "non_positive_quantity"
	ReasonInvalidPrice        ReasonCode = "invalid_price"
	ReasonNegativePrice       ReasonCode = "negative_price"
	ReasonInvalidDate         ReasonCode = "invalid_date"
	ReasonMissingCategory     ReasonCode = "missing_category"
	ReasonMissingCustomer     ReasonCode = "missing_customer"
)
