package pipeline

import (
	"slices"
	"strings"

	"retail-dashboard/internal/models"
)

const DefaultTopN = 10

// Rank orders buckets by metric descending, breaking ties by ascending key,
// and returns the first min(n, len(buckets)) entries with ranks 1..k.
func Rank(buckets models.Buckets, metric models.Metric, n int) ([]models.RankedEntry, error) {
	if n <= 0 || !metric.Valid() {
		return nil, &InvalidRankRequestError{N: n, Metric: metric}
	}

	ordered := make([]models.AggregateBucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	slices.SortFunc(ordered, func(a, b models.AggregateBucket) int {
		if c := b.Value(metric).Cmp(a.Value(metric)); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})

	k := min(n, len(ordered))
	entries := make([]models.RankedEntry, k)
	for i := range k {
		entries[i] = models.RankedEntry{
			Rank:   i + 1,
			Key:    ordered[i].Key,
			Metric: metric,
			Value:  ordered[i].Value(metric),
		}
	}
	return entries, nil
}
