package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"retail-dashboard/internal/models"
)

var ErrInvalidGroupSpec = errors.New("invalid group spec")

// GroupSpec selects the grouping dimension. Granularity applies only to
// DimensionPeriod.
type GroupSpec struct {
	Dimension   models.Dimension
	Granularity models.Granularity
}

func (g GroupSpec) validate() error {
	switch g.Dimension {
	case models.DimensionCategory, models.DimensionCustomer:
		return nil
	case models.DimensionPeriod:
		if _, err := models.ParseGranularity(string(g.Granularity)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidGroupSpec, err)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown dimension %q", ErrInvalidGroupSpec, string(g.Dimension))
}

// BucketKey returns the key rec contributes to under spec.
func BucketKey(rec models.TransactionRecord, spec GroupSpec) (string, error) {
	switch spec.Dimension {
	case models.DimensionCategory:
		return rec.Category, nil
	case models.DimensionCustomer:
		return rec.Customer, nil
	case models.DimensionPeriod:
		return spec.Granularity.Bucket(rec.Timestamp)
	}
	return "", fmt.Errorf("%w: unknown dimension %q", ErrInvalidGroupSpec, string(spec.Dimension))
}

// Aggregate folds the dataset into one bucket per distinct key. Sums are
// exact decimals, so the result does not depend on row order.
func Aggregate(ds models.Dataset, spec GroupSpec) (models.Buckets, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return aggregateRows(context.Background(), ds, spec)
}

// AggregateParallel splits the dataset into contiguous partitions, folds each
// in its own goroutine and merges the partials. The merged buckets equal the
// sequential result exactly.
func AggregateParallel(ctx context.Context, ds models.Dataset, spec GroupSpec, workers int) (models.Buckets, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if workers <= 1 || len(ds) < 2*workers {
		return aggregateRows(ctx, ds, spec)
	}

	chunk := (len(ds) + workers - 1) / workers
	partials := make([]models.Buckets, (len(ds)+chunk-1)/chunk)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for slot := range partials {
		start := slot * chunk
		part := ds[start:min(start+chunk, len(ds))]
		g.Go(func() error {
			local, err := aggregateRows(gctx, part, spec)
			if err != nil {
				return err
			}
			partials[slot] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(models.Buckets)
	for _, local := range partials {
		mergeBuckets(merged, local)
	}
	return merged, nil
}

func aggregateRows(ctx context.Context, ds models.Dataset, spec GroupSpec) (models.Buckets, error) {
	buckets := make(models.Buckets)
	for i, rec := range ds {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		key, err := BucketKey(rec, spec)
		if err != nil {
			return nil, err
		}
		b := buckets[key]
		b.Key = key
		buckets[key] = b.Add(rec)
	}
	return buckets, nil
}

func mergeBuckets(dst, src models.Buckets) {
	for key, b := range src {
		existing, ok := dst[key]
		if !ok {
			dst[key] = b
			continue
		}
		dst[key] = existing.Merge(b)
	}
}
