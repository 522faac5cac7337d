// Package pipeline turns raw retail transaction rows into a Report:
// load -> validate -> aggregate -> rank -> assemble. A run holds no state
// after it returns, so independent runs can execute concurrently.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"retail-dashboard/internal/models"
)

type Options struct {
	Mapping       ColumnMapping
	Delimiter     rune
	DateFormat    string
	MaxRejections int
	TopN          int
	RankMetric    models.Metric
	Granularity   models.Granularity
	// Workers > 1 aggregates partitions concurrently; results are identical.
	Workers int
	// Source labels the report, usually the input file name.
	Source string
	Logger *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Mapping:       DefaultColumnMapping(),
		Delimiter:     ',',
		DateFormat:    DefaultDateFormat,
		MaxRejections: DefaultMaxRejections,
		TopN:          DefaultTopN,
		RankMetric:    models.MetricRevenue,
		Granularity:   models.GranularityMonth,
		Workers:       1,
	}
}

// withDefaults fills zero values only. A negative TopN or an unknown metric
// is left as is so that ranking reports it.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Mapping == (ColumnMapping{}) {
		o.Mapping = def.Mapping
	}
	if o.Delimiter == 0 {
		o.Delimiter = def.Delimiter
	}
	if o.DateFormat == "" {
		o.DateFormat = def.DateFormat
	}
	if o.MaxRejections == 0 {
		o.MaxRejections = def.MaxRejections
	}
	if o.TopN == 0 {
		o.TopN = def.TopN
	}
	if o.RankMetric == "" {
		o.RankMetric = def.RankMetric
	}
	if o.Granularity == "" {
		o.Granularity = def.Granularity
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Fingerprint identifies the options that affect report contents.
func (o Options) Fingerprint() string {
	o = o.withDefaults()
	data, _ := json.Marshal(struct {
		Mapping       ColumnMapping
		Delimiter     rune
		DateFormat    string
		MaxRejections int
		TopN          int
		RankMetric    models.Metric
		Granularity   models.Granularity
	}{o.Mapping, o.Delimiter, o.DateFormat, o.MaxRejections, o.TopN, o.RankMetric, o.Granularity})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// RunCSV reads a delimited source and runs the pipeline over it.
func RunCSV(ctx context.Context, r io.Reader, opts Options) (*models.Report, error) {
	opts = opts.withDefaults()
	table, err := ReadCSV(ctx, r, opts.Delimiter)
	if err != nil {
		return nil, err
	}
	return Run(ctx, table, opts)
}

// Run maps, validates, aggregates, ranks and assembles one table. Stage errors
// are returned unchanged.
func Run(ctx context.Context, table Table, opts Options) (*models.Report, error) {
	opts = opts.withDefaults()
	raw, err := Load(table, opts.Mapping)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("rows loaded", "source", opts.Source, "rows", len(raw))
	return Process(ctx, raw, opts)
}

// Process runs every stage after loading.
func Process(ctx context.Context, raw models.RawDataset, opts Options) (*models.Report, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With("source", opts.Source)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds, rejections := Validate(raw, ValidateOptions{
		DateFormat:    opts.DateFormat,
		MaxRejections: opts.MaxRejections,
	})
	logger.Debug("rows validated",
		"accepted", len(ds),
		"rejected", rejections.Count,
		"by_reason", rejections.ByReason,
	)
	if len(ds) == 0 {
		return nil, &EmptyDatasetError{TotalRows: len(raw), Rejections: rejections}
	}

	specs := []GroupSpec{
		{Dimension: models.DimensionCategory},
		{Dimension: models.DimensionCustomer},
		{Dimension: models.DimensionPeriod, Granularity: opts.Granularity},
	}
	grouped := make([]models.Buckets, len(specs))
	for i, spec := range specs {
		buckets, err := AggregateParallel(ctx, ds, spec, opts.Workers)
		if err != nil {
			return nil, err
		}
		grouped[i] = buckets
	}
	byCategory, byCustomer, byPeriod := grouped[0], grouped[1], grouped[2]
	logger.Debug("rows aggregated",
		"categories", len(byCategory),
		"customers", len(byCustomer),
		"periods", len(byPeriod),
		"workers", opts.Workers,
	)

	topCustomers, err := Rank(byCustomer, opts.RankMetric, opts.TopN)
	if err != nil {
		return nil, err
	}
	topCategories, err := Rank(byCategory, opts.RankMetric, opts.TopN)
	if err != nil {
		return nil, err
	}

	report := Assemble(Parts{
		RunID:         uuid.NewString(),
		Source:        opts.Source,
		GeneratedAt:   time.Now().UTC(),
		Granularity:   opts.Granularity,
		RankMetric:    opts.RankMetric,
		TopN:          opts.TopN,
		TotalRows:     len(raw),
		Totals:        Summarize(ds),
		ByCategory:    byCategory,
		ByCustomer:    byCustomer,
		ByPeriod:      byPeriod,
		TopCustomers:  topCustomers,
		TopCategories: topCategories,
		Rejections:    rejections,
	})
	logger.Debug("report assembled", "run_id", report.RunID, "total_revenue", report.TotalRevenue.StringFixed(2))
	return report, nil
}
