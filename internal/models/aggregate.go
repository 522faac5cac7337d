package models

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

type AggregateBucket struct {
	Key      string          `json:"key"`
	Count    int64           `json:"count"`
	Quantity int64           `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

func (b AggregateBucket) Add(rec TransactionRecord) AggregateBucket {
	b.Count++
	b.Quantity += rec.Quantity
	b.Revenue = b.Revenue.Add(rec.LineTotal)
	return b
}

func (b AggregateBucket) Merge(other AggregateBucket) AggregateBucket {
	b.Count += other.Count
	b.Quantity += other.Quantity
	b.Revenue = b.Revenue.Add(other.Revenue)
	return b
}

// Value returns the bucket's figure for m; unknown metrics yield zero.
func (b AggregateBucket) Value(m Metric) decimal.Decimal {
	switch m {
	case MetricRevenue:
		return b.Revenue
	case MetricQuantity:
		return decimal.NewFromInt(b.Quantity)
	case MetricCount:
		return decimal.NewFromInt(b.Count)
	}
	return decimal.Zero
}

// AverageRevenue is revenue per row rounded to cents.
func (b AggregateBucket) AverageRevenue() decimal.Decimal {
	if b.Count == 0 {
		return decimal.Zero
	}
	return b.Revenue.DivRound(decimal.NewFromInt(b.Count), 2)
}

// Buckets maps a dimension key to its accumulator.
type Buckets map[string]AggregateBucket

// Sorted returns the buckets ordered by ascending key.
func (bs Buckets) Sorted() []AggregateBucket {
	out := make([]AggregateBucket, 0, len(bs))
	for _, b := range bs {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b AggregateBucket) int {
		return strings.Compare(a.Key, b.Key)
	})
	return out
}

func (bs Buckets) Revenue() decimal.Decimal {
	total := decimal.Zero
	for _, b := range bs {
		total = total.Add(b.Revenue)
	}
	return total
}

func (bs Buckets) Equal(other Buckets) bool {
	if len(bs) != len(other) {
		return false
	}
	for k, a := range bs {
		b, ok := other[k]
		if !ok || a.Count != b.Count || a.Quantity != b.Quantity || !a.Revenue.Equal(b.Revenue) {
			return false
		}
	}
	return true
}

func IndexBuckets(list []AggregateBucket) Buckets {
	bs := make(Buckets, len(list))
	for _, b := range list {
		bs[b.Key] = b
	}
	return bs
}

// RankedEntry is one row of a top-N view. It marshals as
// {"rank":1,"key":"X","revenue":"20"} with the metric name as the value field.
type RankedEntry struct {
	Rank   int
	Key    string
	Metric Metric
	Value  decimal.Decimal
}

func (e RankedEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"rank":           e.Rank,
		"key":            e.Key,
		string(e.Metric): e.Value,
	})
}

func (e *RankedEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["rank"]; ok {
		if err := json.Unmarshal(v, &e.Rank); err != nil {
			return err
		}
	}
	if v, ok := raw["key"]; ok {
		if err := json.Unmarshal(v, &e.Key); err != nil {
			return err
		}
	}
	for _, m := range []Metric{MetricRevenue, MetricQuantity, MetricCount} {
		if v, ok := raw[string(m)]; ok {
			e.Metric = m
			return json.Unmarshal(v, &e.Value)
		}
	}
	return nil
}
