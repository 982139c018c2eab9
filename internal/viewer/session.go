// Package viewer runs one interaction of the pivot grid: fetch rows from the
// source (memoized by query text), filter them and pivot the survivors.
package viewer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/pivotgrid/internal/config"
	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/errors"
	"github.com/paveg/pivotgrid/internal/filter"
	"github.com/paveg/pivotgrid/internal/grid"
	"github.com/paveg/pivotgrid/internal/monitoring"
	"github.com/paveg/pivotgrid/internal/pivot"
	"github.com/paveg/pivotgrid/internal/series"
	"github.com/paveg/pivotgrid/internal/source"
)

// Interaction is the state of the controls for one run.
type Interaction struct {
	// Query selects a configured query by name (or exact text) in place of
	// the session's default query.
	Query  string      `json:"query,omitempty" yaml:"query,omitempty"`
	Filter filter.Spec `json:"filter" yaml:"filter"`
	Pivot  pivot.Spec  `json:"pivot" yaml:"pivot"`
}

// Result is the outcome of a run. Data is owned by the result.
type Result struct {
	Data         *dataframe.DataFrame
	Pivoted      bool
	FilteredRows int
	// RowKeys names the leading key columns of a pivoted result.
	RowKeys []string
}

// Release frees the result data.
func (r *Result) Release() {
	if r != nil && r.Data != nil {
		r.Data.Release()
	}
}

// Settings are the defaults a session presents before any interaction.
type Settings struct {
	Query string
	// Queries are the named queries an interaction may select.
	Queries             map[string]string
	CategoricalColumn   string
	CategoricalDefaults []string
	RangeColumn         string
	DefaultPivot        pivot.Spec
	ExportFileName      string
}

// SettingsFromConfig extracts session settings from cfg.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		Query:               cfg.Query,
		Queries:             maps.Clone(cfg.Queries),
		CategoricalColumn:   cfg.CategoricalColumn,
		CategoricalDefaults: append([]string(nil), cfg.CategoricalDefaults...),
		RangeColumn:         cfg.RangeColumn,
		DefaultPivot:        cfg.DefaultPivot(),
		ExportFileName:      cfg.ExportFileName,
	}
}

// Session serializes interactions against one cached source.
type Session struct {
	mu       sync.Mutex
	cache    *source.Cache
	metrics  *monitoring.MetricsCollector
	logger   *slog.Logger
	mem      memory.Allocator
	settings Settings
}

// Option configures a Session.
type Option func(*Session)

// WithMetrics records stage timings on mc.
func WithMetrics(mc *monitoring.MetricsCollector) Option {
	return func(s *Session) {
		s.metrics = mc
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithAllocator sets the allocator for filtered and pivoted frames.
func WithAllocator(mem memory.Allocator) Option {
	return func(s *Session) {
		s.mem = mem
	}
}

// WithSettings sets the default query and control selection.
func WithSettings(settings Settings) Option {
	return func(s *Session) {
		s.settings = settings
	}
}

// New creates a session over src. Fetches are memoized per query text for
// the life of the session.
func New(src source.Source, opts ...Option) *Session {
	s := &Session{
		logger:   slog.Default(),
		mem:      memory.NewGoAllocator(),
		settings: SettingsFromConfig(config.NewConfig()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = source.NewCache(src, source.WithObserver(s.metrics.RecordCacheLookup))
	return s
}

// Cache exposes the session's query cache.
func (s *Session) Cache() *source.Cache {
	return s.cache
}

// Settings returns the session defaults.
func (s *Session) Settings() Settings {
	return s.settings
}

// ResetCache drops every memoized query result.
func (s *Session) ResetCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Reset()
	s.logger.Info("source cache reset")
}

// resolveQuery maps the query an interaction names to the text to fetch.
// Only the default query and the configured named queries reach the source.
func (s *Session) resolveQuery(op, q string) (string, error) {
	if q == "" || q == s.settings.Query {
		return s.settings.Query, nil
	}
	if text, ok := s.settings.Queries[q]; ok {
		return text, nil
	}
	return "", errors.NewInvalidInputError(op, fmt.Sprintf("query %q is not configured", q))
}

// Queries lists the names of the configured queries in sorted order.
func (s *Session) Queries() []string {
	return slices.Sorted(maps.Keys(s.settings.Queries))
}

// Run executes one interaction. A source failure halts the run before
// filtering. The caller releases the result.
func (s *Session) Run(ctx context.Context, in Interaction) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx, in)
}

func (s *Session) run(ctx context.Context, in Interaction) (*Result, error) {
	query, err := s.resolveQuery("viewer.Run", in.Query)
	if err != nil {
		s.logger.Debug("query rejected", "query", in.Query)
		return nil, err
	}

	// The cached frame is shared and never released here.
	data, err := s.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	var filtered *dataframe.DataFrame
	err = s.metrics.RecordOperation(monitoring.StageFilter, func() (int, error) {
		var ferr error
		filtered, ferr = filter.Apply(data, in.Filter, s.mem)
		if ferr != nil {
			return 0, ferr
		}
		return filtered.Len(), nil
	})
	if err != nil {
		s.logger.Debug("filter rejected", "filter", in.Filter.String(), "error", err)
		return nil, err
	}
	s.logger.Debug("rows filtered", "filter", in.Filter.String(), "in", data.Len(), "out", filtered.Len())

	req := pivot.Resolve(in.Pivot)
	full, ok := req.(pivot.FullPivot)
	if !ok {
		s.logger.Debug("pivot skipped", "request", req)
		return &Result{Data: filtered, FilteredRows: filtered.Len()}, nil
	}
	defer filtered.Release()

	var table *dataframe.DataFrame
	err = s.metrics.RecordOperation(monitoring.StagePivot, func() (int, error) {
		var perr error
		table, perr = pivot.Run(filtered, full, s.mem)
		if perr != nil {
			return 0, perr
		}
		return table.Len(), nil
	})
	if err != nil {
		s.logger.Debug("pivot rejected", "request", full, "error", err)
		return nil, err
	}
	s.logger.Debug("rows pivoted", "request", full, "rows", table.Len(), "columns", table.Width())

	return &Result{
		Data:         table,
		Pivoted:      true,
		FilteredRows: filtered.Len(),
		RowKeys:      append([]string(nil), full.Spec.Rows...),
	}, nil
}

func (s *Session) fetch(ctx context.Context, query string) (*dataframe.DataFrame, error) {
	var data *dataframe.DataFrame
	err := s.metrics.RecordOperation(monitoring.StageFetch, func() (int, error) {
		var ferr error
		data, ferr = s.cache.Fetch(ctx, query)
		if ferr != nil {
			return 0, ferr
		}
		return data.Len(), nil
	})
	if err != nil {
		s.logger.Warn("fetch failed", "query", query, "error", err)
		return nil, err
	}
	return data, nil
}

// Export runs in and writes the result to w in format.
func (s *Session) Export(ctx context.Context, w io.Writer, in Interaction, format grid.Format) (grid.Artifact, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.run(ctx, in)
	if err != nil {
		return grid.Artifact{}, 0, err
	}
	defer res.Release()

	err = s.metrics.RecordOperation(monitoring.StageExport, func() (int, error) {
		return res.Data.Len(), grid.Export(w, res.Data, format, s.mem)
	})
	if err != nil {
		return grid.Artifact{}, 0, err
	}
	name := s.settings.ExportFileName
	if name == "" {
		name = config.DefaultExportFileName
	}
	return grid.ArtifactFor(format, name), res.Data.Len(), nil
}

// Controls lists what the UI offers before the first run.
type Controls struct {
	Queries        []string        `json:"queries"`
	Columns        []string        `json:"columns"`
	NumericColumns []string        `json:"numeric_columns"`
	Categorical    *filter.Choices `json:"categorical,omitempty"`
	Range          *filter.Bounds  `json:"range,omitempty"`
	Aggregations   []string        `json:"aggregations"`
	Default        Interaction     `json:"default"`
}

// Controls fetches the named query (or the default query) and derives the control
// option lists along with the initial selection.
func (s *Session) Controls(ctx context.Context, query string) (*Controls, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, err := s.resolveQuery("viewer.Controls", query)
	if err != nil {
		return nil, err
	}
	data, err := s.fetch(ctx, text)
	if err != nil {
		return nil, err
	}

	c := &Controls{
		Queries:        s.Queries(),
		Columns:        data.Columns(),
		NumericColumns: make([]string, 0),
		Default: Interaction{
			Query: query,
			Pivot: s.settings.DefaultPivot,
		},
	}
	for _, agg := range pivot.Aggs() {
		c.Aggregations = append(c.Aggregations, agg.String())
	}
	for _, name := range c.Columns {
		if dt, _ := data.DataTypeOf(name); series.IsNumeric(dt) {
			c.NumericColumns = append(c.NumericColumns, name)
		}
	}

	if name := s.settings.CategoricalColumn; name != "" {
		choices, err := filter.DistinctValues(data, name)
		if err != nil {
			return nil, err
		}
		c.Categorical = &choices
		c.Default.Filter.Memberships = map[string][]string{
			name: filter.DefaultMembership(choices, s.settings.CategoricalDefaults),
		}
	}

	if name := s.settings.RangeColumn; name != "" {
		bounds, err := filter.ColumnBounds(data, name)
		if err != nil {
			return nil, err
		}
		c.Range = &bounds
		if !bounds.Empty {
			c.Default.Filter.Ranges = map[string]filter.Range{name: bounds.Default}
		}
	}

	return c, nil
}

// Default runs the initial selection of the controls for query.
func (s *Session) Default(ctx context.Context, query string) (*Result, error) {
	c, err := s.Controls(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, c.Default)
}
