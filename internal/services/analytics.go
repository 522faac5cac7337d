package services

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"retail-dashboard/internal/models"
	"retail-dashboard/internal/observability"
	"retail-dashboard/internal/pipeline"
)

const (
	cacheVersion = "v2"
	maxFileRuns  = 4
)

var (
	ErrNoReport        = errors.New("no report loaded")
	ErrDuplicateSource = errors.New("duplicate source name")
)

// snapshot is what the gob cache stores for one source file.
type snapshot struct {
	Report       *models.Report
	Fingerprint  string
	LastModified time.Time
}

// Analytics owns the reports the presentation layer reads. Reports are
// immutable; loading a file swaps the reference under the lock.
type Analytics struct {
	mu      sync.RWMutex
	current *models.Report
	reports map[string]*models.Report
	paths   []string

	opts     pipeline.Options
	cacheDir string
	logger   *slog.Logger

	runs       atomic.Int64
	cacheHits  atomic.Int64
	lastLoadMs atomic.Int64
}

func NewAnalytics(opts pipeline.Options, logger *slog.Logger) *Analytics {
	if logger == nil {
		logger = slog.Default()
	}
	opts.Logger = logger
	return &Analytics{
		reports: make(map[string]*models.Report),
		opts:    opts,
		logger:  logger,
	}
}

// EnableCache turns on the on-disk snapshot cache under dir.
func (a *Analytics) EnableCache(dir string) {
	a.cacheDir = dir
}

// Options returns the pipeline options reports are built with.
func (a *Analytics) Options() pipeline.Options {
	return a.opts
}

// SetReport installs r as the current report and indexes it by source.
func (a *Analytics) SetReport(r *models.Report) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = r
	a.reports[r.Source] = r
}

// Report returns the current report, or the one for source when it is set.
func (a *Analytics) Report(source string) (*models.Report, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if source == "" {
		if a.current == nil {
			return nil, ErrNoReport
		}
		return a.current, nil
	}
	r, ok := a.reports[source]
	if !ok {
		return nil, fmt.Errorf("%w for source %q", ErrNoReport, source)
	}
	return r, nil
}

// Sources lists the loaded sources in load order.
func (a *Analytics) Sources() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.paths))
	for _, p := range a.paths {
		out = append(out, sourceName(p))
	}
	return out
}

// LoadFromCSV runs the pipeline for one file and makes its report current.
func (a *Analytics) LoadFromCSV(ctx context.Context, filename string) error {
	return a.LoadFiles(ctx, []string{filename})
}

// LoadFiles runs one independent pipeline per file concurrently. The first
// file's report becomes current. Nothing is installed if any run fails.
func (a *Analytics) LoadFiles(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no source files given")
	}
	if err := checkSourceNames(paths); err != nil {
		return err
	}
	start := time.Now()

	reports := make([]*models.Report, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFileRuns)
	for i, path := range paths {
		g.Go(func() error {
			r, err := a.loadFile(gctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	a.mu.Lock()
	a.current = reports[0]
	a.paths = append([]string(nil), paths...)
	clear(a.reports)
	for _, r := range reports {
		a.reports[r.Source] = r
	}
	a.mu.Unlock()

	elapsed := time.Since(start)
	a.lastLoadMs.Store(elapsed.Milliseconds())
	a.logger.Info("reports loaded",
		"files", len(paths),
		"current", reports[0].Source,
		"duration", elapsed,
	)
	return nil
}

// Reload re-runs the pipeline for the files last loaded.
func (a *Analytics) Reload(ctx context.Context) error {
	a.mu.RLock()
	paths := append([]string(nil), a.paths...)
	a.mu.RUnlock()
	if len(paths) == 0 {
		return ErrNoReport
	}
	return a.LoadFiles(ctx, paths)
}

func (a *Analytics) loadFile(ctx context.Context, path string) (*models.Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	fingerprint := a.opts.Fingerprint()

	if a.cacheDir != "" {
		if snap, err := a.readSnapshot(path); err == nil &&
			snap.Fingerprint == fingerprint &&
			info.ModTime().Before(snap.LastModified) {
			a.cacheHits.Add(1)
			a.logger.Info("loaded from cache", "source", path, "run_id", snap.Report.RunID)
			return snap.Report, nil
		}
	}

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "pipeline.run")
	span.SetTag("source", sourceName(path))
	defer span.Finish(a.logger)

	r, err := RunFile(ctx, path, a.opts)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	span.SetTag("run_id", r.RunID)
	a.runs.Add(1)
	a.logger.Info("pipeline run complete",
		"source", r.Source,
		"run_id", r.RunID,
		"accepted", r.AcceptedRows,
		"rejected", r.RejectedRows,
		"duration", time.Since(start),
	)

	if a.cacheDir != "" {
		if err := a.writeSnapshot(path, snapshot{Report: r, Fingerprint: fingerprint, LastModified: time.Now()}); err != nil {
			a.logger.Warn("failed to save cache", "source", path, "error", err)
		}
	}
	return r, nil
}

// RunFile runs the pipeline over a CSV file, labelling the report with the
// file's base name.
func RunFile(ctx context.Context, path string, opts pipeline.Options) (*models.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &pipeline.LoadError{Cause: err}
	}
	defer f.Close()

	opts.Source = sourceName(path)
	return pipeline.RunCSV(ctx, f, opts)
}

// RunFiles runs RunFile for every path concurrently. Results keep the order
// of paths; runs share nothing.
func RunFiles(ctx context.Context, paths []string, opts pipeline.Options) ([]*models.Report, error) {
	reports := make([]*models.Report, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFileRuns)
	for i, path := range paths {
		g.Go(func() error {
			r, err := RunFile(gctx, path, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func sourceName(path string) string {
	return filepath.Base(path)
}

// checkSourceNames rejects path lists where two files would be served under
// the same source name.
func checkSourceNames(paths []string) error {
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		name := sourceName(p)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("%w: %s and %s are both %q", ErrDuplicateSource, prev, p, name)
		}
		seen[name] = p
	}
	return nil
}

func (a *Analytics) cacheFilename(path string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(filepath.Clean(path))
	return filepath.Join(a.cacheDir, fmt.Sprintf("%s_%s.gob", name, cacheVersion))
}

func (a *Analytics) writeSnapshot(path string, snap snapshot) error {
	if err := os.MkdirAll(a.cacheDir, 0o755); err != nil {
		return err
	}
	file, err := os.Create(a.cacheFilename(path))
	if err != nil {
		return err
	}
	defer file.Close()
	return gob.NewEncoder(file).Encode(snap)
}

func (a *Analytics) readSnapshot(path string) (*snapshot, error) {
	file, err := os.Open(a.cacheFilename(path))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var snap snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return nil, err
	}
	if snap.Report == nil {
		return nil, fmt.Errorf("cache %s holds no report", a.cacheFilename(path))
	}
	restoreEmpty(snap.Report)
	return &snap, nil
}

// gob decodes empty slices as nil; reports always serialize them as [].
func restoreEmpty(r *models.Report) {
	if r.ByCategory == nil {
		r.ByCategory = []models.AggregateBucket{}
	}
	if r.ByCustomer == nil {
		r.ByCustomer = []models.AggregateBucket{}
	}
	if r.ByPeriod == nil {
		r.ByPeriod = []models.AggregateBucket{}
	}
	if r.TopCustomers == nil {
		r.TopCustomers = []models.RankedEntry{}
	}
	if r.TopCategories == nil {
		r.TopCategories = []models.RankedEntry{}
	}
	if r.RejectionReasons == nil {
		r.RejectionReasons = []models.Rejection{}
	}
}

// Stats summarizes the current report for monitoring.
func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := map[string]any{
		"sources":       len(a.reports),
		"pipeline_runs": a.runs.Load(),
		"cache_hits":    a.cacheHits.Load(),
		"last_load_ms":  a.lastLoadMs.Load(),
	}
	if r := a.current; r != nil {
		stats["run_id"] = r.RunID
		stats["source"] = r.Source
		stats["generated_at"] = r.GeneratedAt
		stats["total_rows"] = r.TotalRows
		stats["accepted_rows"] = r.AcceptedRows
		stats["rejected_rows"] = r.RejectedRows
		stats["categories"] = len(r.ByCategory)
		stats["customers"] = len(r.ByCustomer)
		stats["periods"] = len(r.ByPeriod)
	}
	return stats
}
