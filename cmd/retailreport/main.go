// Command retailreport runs the analytics pipeline over one or more CSV files
// and prints the resulting reports as JSON.
//
//	retailreport -top 5 -metric quantity -granularity week orders.csv
//
// Each file is an independent run. A single file prints one report object;
// several print an array in argument order.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"retail-dashboard/internal/config"
	"retail-dashboard/internal/observability"
	"retail-dashboard/internal/pipeline"
	"retail-dashboard/internal/services"
)

const (
	exitOK    = 0
	exitRun   = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	def := config.DefaultPipelineConfig()
	fs := flag.NewFlagSet("retailreport", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := def
	fs.IntVar(&cfg.TopN, "top", def.TopN, "number of entries in the top customer and category rankings")
	fs.StringVar(&cfg.RankMetric, "metric", def.RankMetric, "ranking metric: revenue, quantity or count")
	fs.StringVar(&cfg.Granularity, "granularity", def.Granularity, "time bucket: day, week or month")
	fs.StringVar(&cfg.DateFormat, "date-format", def.DateFormat, "Go time layout of the date column")
	fs.StringVar(&cfg.Delimiter, "delimiter", def.Delimiter, "field delimiter")
	fs.IntVar(&cfg.MaxRejections, "max-rejections", def.MaxRejections, "individual rejections kept per report")
	fs.IntVar(&cfg.Workers, "workers", def.Workers, "aggregation partitions per run")
	fs.StringVar(&cfg.MappingFile, "mapping", "", "YAML column mapping file")
	logLevel := fs.String("log-level", "warn", "log level: debug, info, warn or error")
	compact := fs.Bool("compact", false, "print JSON without indentation")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: retailreport [flags] file.csv...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	if cfg.MappingFile != "" {
		cols, err := config.LoadColumns(cfg.MappingFile, cfg.Columns)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return exitUsage
		}
		cfg.Columns = cols
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitUsage
	}

	opts := cfg.Options()
	opts.Logger = observability.NewLoggerTo(stderr, config.LoggerConfig{Level: *logLevel, Format: "text"})

	reports, err := services.RunFiles(ctx, fs.Args(), opts)
	if err != nil {
		printRunError(stderr, err)
		return exitRun
	}

	var out any = reports
	if len(reports) == 1 {
		out = reports[0]
	}
	enc := json.NewEncoder(stdout)
	if !*compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(stderr, "error: write report:", err)
		return exitRun
	}
	return exitOK
}

func printRunError(w io.Writer, err error) {
	fmt.Fprintln(w, "error:", err)

	var emptyErr *pipeline.EmptyDatasetError
	if !errors.As(err, &emptyErr) {
		return
	}
	fmt.Fprintf(w, "  %d rows read, none accepted\n", emptyErr.TotalRows)
	for _, reason := range slices.Sorted(maps.Keys(emptyErr.Rejections.ByReason)) {
		fmt.Fprintf(w, "  %-24s %d\n", reason, emptyErr.Rejections.ByReason[reason])
	}
	for _, rej := range emptyErr.Rejections.Reasons {
		fmt.Fprintf(w, "  row %d: %s\n", rej.RowIndex, rej.Reason)
	}
	if emptyErr.Rejections.Truncated {
		fmt.Fprintf(w, "  ... %d more\n", emptyErr.Rejections.Count-len(emptyErr.Rejections.Reasons))
	}
}
