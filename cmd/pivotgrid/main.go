package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/pivotgrid/internal/config"
	"github.com/paveg/pivotgrid/internal/filter"
	"github.com/paveg/pivotgrid/internal/grid"
	"github.com/paveg/pivotgrid/internal/monitoring"
	"github.com/paveg/pivotgrid/internal/pivot"
	"github.com/paveg/pivotgrid/internal/server"
	"github.com/paveg/pivotgrid/internal/source"
	"github.com/paveg/pivotgrid/internal/version"
	"github.com/paveg/pivotgrid/internal/viewer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 10 * time.Second

var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprintf(w, "Pivot Grid Viewer (version %s)\n\n", version.Version)
	fmt.Fprintf(w, "Usage: pivotgrid [options] <command> [command options]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  serve\t\tServe the grid over HTTP\n")
	fmt.Fprintf(w, "  export\tRun one interaction and write the result\n")
	fmt.Fprintf(w, "  seed\t\tLoad a CSV or Parquet file into a data mart table\n\n")
	fmt.Fprintf(w, "Options:\n")
	fmt.Fprintf(w, "  -config PATH\n\t\tYAML or JSON configuration file\n")
	fmt.Fprintf(w, "  -v, -version\n\t\tPrint version information and exit\n")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pivotgrid", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	versionFlag := fs.Bool("v", false, "Print version and exit")
	fs.BoolVar(versionFlag, "version", false, "Print version and exit")
	configPath := fs.String("config", "", "Configuration file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *versionFlag {
		fmt.Fprint(stdout, version.Info().String())
		return 0
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "pivotgrid: %v\n", err)
		return 1
	}
	logger := cfg.NewLogger(stderr)

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "serve":
		err = runServe(ctx, cfg, logger, rest)
	case "export":
		err = runExport(ctx, cfg, logger, rest, stdout)
	case "seed":
		err = runSeed(ctx, cfg, logger, rest, stdout)
	default:
		fmt.Fprintf(stderr, "pivotgrid: unknown command %q\n\n", command)
		fs.Usage()
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		logger.Error("command failed", "command", command, "error", err)
		return 1
	}
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errors.Join(errUsage, err)
	}
	return nil
}

func openSession(ctx context.Context, cfg config.Config, logger *slog.Logger, mc *monitoring.MetricsCollector) (*viewer.Session, func(), error) {
	src, err := source.Open(ctx, cfg.DatabasePath, source.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	session := viewer.New(src,
		viewer.WithSettings(viewer.SettingsFromConfig(cfg)),
		viewer.WithMetrics(mc),
		viewer.WithLogger(logger),
		viewer.WithAllocator(memory.NewGoAllocator()),
	)
	closer := func() {
		if err := src.Close(); err != nil {
			logger.Warn("closing source", "error", err)
		}
	}
	return session, closer, nil
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.ListenAddr, "Listen address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := monitoring.NewPrometheus(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	mc := monitoring.NewMetricsCollector(cfg.MetricsEnabled, monitoring.WithPrometheus(prom))

	session, closeSource, err := openSession(ctx, cfg, logger, mc)
	if err != nil {
		return err
	}
	defer closeSource()

	srv := server.New(session,
		server.WithMetrics(mc),
		server.WithGatherer(reg),
		server.WithLogger(logger),
		server.WithGridOptions(grid.DefaultOptions(cfg.PageSize)),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(*addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type exportFlags struct {
	query   string
	output  string
	format  string
	rows    string
	columns string
	values  string
	agg     string
	include string
	minimum float64
	maximum float64
	noRange bool
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// interaction starts from the default selection of the controls and
// applies whatever flags were set.
func (f *exportFlags) interaction(fs *flag.FlagSet, cfg config.Config, c *viewer.Controls) (viewer.Interaction, error) {
	in := c.Default
	in.Query = f.query

	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if set["rows"] {
		in.Pivot.Rows = splitList(f.rows)
	}
	if set["columns"] {
		in.Pivot.Columns = splitList(f.columns)
	}
	if set["values"] {
		in.Pivot.Values = f.values
	}
	if set["agg"] {
		agg, err := pivot.ParseAgg(f.agg)
		if err != nil {
			return viewer.Interaction{}, err
		}
		in.Pivot.Agg = agg
	}
	if set["include"] && cfg.CategoricalColumn != "" {
		in.Filter.Memberships = map[string][]string{cfg.CategoricalColumn: splitList(f.include)}
	}
	if f.noRange {
		in.Filter.Ranges = nil
	} else if (set["min"] || set["max"]) && cfg.RangeColumn != "" {
		r := in.Filter.Ranges[cfg.RangeColumn]
		if set["min"] {
			r.Min = f.minimum
		}
		if set["max"] {
			r.Max = f.maximum
		}
		in.Filter.Ranges = map[string]filter.Range{cfg.RangeColumn: r}
	}
	return in, nil
}

func runExport(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string, stdout io.Writer) error {
	var f exportFlags
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.StringVar(&f.query, "query", "", "Name of a configured query to run instead of the default")
	fs.StringVar(&f.output, "o", "", "Output file (default: stdout)")
	fs.StringVar(&f.format, "format", "csv", "Output format: csv, parquet or json")
	fs.StringVar(&f.rows, "rows", "", "Comma separated pivot row columns")
	fs.StringVar(&f.columns, "columns", "", "Comma separated pivot column columns")
	fs.StringVar(&f.values, "values", "", "Pivot value column")
	fs.StringVar(&f.agg, "agg", "", "Aggregation: sum, mean, count, max or min")
	fs.StringVar(&f.include, "include", "", "Comma separated values kept in the categorical column")
	fs.Float64Var(&f.minimum, "min", 0, "Lower bound of the range column")
	fs.Float64Var(&f.maximum, "max", 0, "Upper bound of the range column")
	fs.BoolVar(&f.noRange, "no-range", false, "Do not filter the range column")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	format, err := grid.ParseFormat(f.format)
	if err != nil {
		return err
	}

	session, closeSource, err := openSession(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer closeSource()

	controls, err := session.Controls(ctx, f.query)
	if err != nil {
		return err
	}
	in, err := f.interaction(fs, cfg, controls)
	if err != nil {
		return err
	}

	out := stdout
	if f.output != "" {
		file, err := os.Create(f.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		out = file
	}

	artifact, rows, err := session.Export(ctx, out, in, format)
	if err != nil {
		return err
	}
	logger.Info("exported", "rows", rows, "format", format, "artifact", artifact.FileName, "output", f.output)
	return nil
}

func runSeed(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	table := fs.String("table", "ecommerce_sales", "Destination table")
	var path string
	fs.StringVar(&path, "file", "", "CSV or .parquet file to load")
	fs.StringVar(&path, "csv", "", "Alias of -file")
	replace := fs.Bool("replace", false, "Drop the table first if it exists")
	batch := fs.Int("batch", 0, "Rows per INSERT statement")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintln(fs.Output(), "seed: -file is required")
		return errUsage
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer file.Close()

	db, err := source.OpenWritable(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []source.LoaderOption{source.WithBatchSize(*batch)}
	if *replace {
		opts = append(opts, source.WithReplace())
	}
	loader := source.NewLoader(db, opts...)
	load := loader.LoadCSV
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		load = loader.LoadParquet
	}
	n, err := load(ctx, *table, file, memory.NewGoAllocator())
	if err != nil {
		return err
	}

	logger.Info("seeded", "table", *table, "rows", n, "database", cfg.DatabasePath)
	fmt.Fprintf(stdout, "loaded %d rows into %s\n", n, *table)
	return nil
}
