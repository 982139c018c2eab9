// Package source retrieves rows for the viewer from a relational data mart.
//
// A Source runs one query and returns its rows as a DataFrame. SQLSource
// talks to SQLite through database/sql; Cache memoizes any Source by the
// exact query text.
package source

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/errors"
	"github.com/paveg/pivotgrid/internal/series"
)

const (
	opOpen  = "source.Open"
	opFetch = "source.Fetch"

	driverName = "sqlite"
)

// Source produces the full dataset for a query.
type Source interface {
	Fetch(ctx context.Context, query string) (*dataframe.DataFrame, error)
}

// SQLSource runs queries against a SQLite database file.
type SQLSource struct {
	db     *sql.DB
	path   string
	mem    memory.Allocator
	logger *slog.Logger
}

// Option configures an SQLSource.
type Option func(*SQLSource)

// WithAllocator sets the allocator used for fetched columns.
func WithAllocator(mem memory.Allocator) Option {
	return func(s *SQLSource) {
		s.mem = mem
	}
}

// WithLogger sets the logger used for query diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SQLSource) {
		s.logger = logger
	}
}

// ReadOnlyDSN is the DSN used to query an existing data mart file.
func ReadOnlyDSN(path string) string {
	return "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)"
}

// Open connects to the SQLite file at path in read-only mode. A missing or
// unreadable file yields a SourceUnavailable error.
func Open(ctx context.Context, path string, opts ...Option) (*SQLSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.NewSourceUnavailableError(opOpen, fmt.Errorf("database path is required"))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.NewSourceUnavailableError(opOpen, err)
	}

	db, err := sql.Open(driverName, ReadOnlyDSN(path))
	if err != nil {
		return nil, errors.NewSourceUnavailableError(opOpen, fmt.Errorf("open sqlite db: %w", err))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.NewSourceUnavailableError(opOpen, fmt.Errorf("ping sqlite db: %w", err))
	}

	s := NewSQLSource(db, opts...)
	s.path = path
	return s, nil
}

// NewSQLSource wraps an open database handle.
func NewSQLSource(db *sql.DB, opts ...Option) *SQLSource {
	s := &SQLSource{
		db:     db,
		mem:    memory.NewGoAllocator(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the database handle.
func (s *SQLSource) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Fetch runs query and returns every row it produces.
func (s *SQLSource) Fetch(ctx context.Context, query string) (*dataframe.DataFrame, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.NewQueryError(opFetch, "query is empty", nil)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()

	df, err := s.scan(rows)
	if err != nil {
		return nil, classify(ctx, err)
	}

	s.logger.DebugContext(ctx, "query fetched",
		slog.Int("rows", df.Len()),
		slog.Int("columns", df.Width()),
		slog.Duration("elapsed", time.Since(start)))
	return df, nil
}

func (s *SQLSource) scan(rows *sql.Rows) (*dataframe.DataFrame, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	columns := make([]*columnBuffer, len(types))
	for i, ct := range types {
		columns[i] = &columnBuffer{name: ct.Name(), kind: kindFromDecl(ct.DatabaseTypeName())}
	}

	dest := make([]any, len(types))
	for i := range dest {
		dest[i] = new(any)
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, d := range dest {
			columns[i].values = append(columns[i].values, *(d.(*any)))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]dataframe.ISeries, 0, len(columns))
	for _, col := range columns {
		built, err := col.build(s.mem)
		if err != nil {
			for _, b := range out {
				b.Release()
			}
			return nil, errors.NewQueryError(opFetch, fmt.Sprintf("column %s", col.name), err)
		}
		out = append(out, built)
	}

	df, err := dataframe.NewValidated(out...)
	if err != nil {
		for _, b := range out {
			b.Release()
		}
		return nil, errors.NewQueryError(opFetch, "result columns are not usable", err)
	}
	return df, nil
}

// classify turns a driver error into a SourceUnavailable or Query error.
// Context errors are returned wrapped but unclassified.
func classify(ctx context.Context, err error) error {
	var dfErr *errors.DataFrameError
	if stderrors.As(err, &dfErr) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("fetch: %w", ctxErr)
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("fetch: %w", err)
	}
	if isUnavailable(err) {
		return errors.NewSourceUnavailableError(opFetch, err)
	}
	return errors.NewQueryError(opFetch, "query failed", err)
}

func isUnavailable(err error) bool {
	if stderrors.Is(err, sql.ErrConnDone) || stderrors.Is(err, driver.ErrBadConn) {
		return true
	}
	if strings.Contains(err.Error(), "database is closed") {
		return true
	}
	var sqliteErr *msqlite.Error
	if stderrors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_CANTOPEN,
			sqlite3lib.SQLITE_IOERR,
			sqlite3lib.SQLITE_BUSY,
			sqlite3lib.SQLITE_LOCKED,
			sqlite3lib.SQLITE_NOTADB,
			sqlite3lib.SQLITE_CORRUPT,
			sqlite3lib.SQLITE_PERM:
			return true
		}
	}
	return false
}

type columnKind int

const (
	kindUnknown columnKind = iota
	kindString
	kindInt
	kindFloat
	kindBool
	kindDate
)

// kindFromDecl maps a declared column type to a column kind using SQLite's
// affinity rules, with dates and booleans recognized by name. DATETIME and
// TIMESTAMP columns map to kindDate too; buildDates keeps them as text when a
// value carries a time of day.
func kindFromDecl(decl string) columnKind {
	decl = strings.ToUpper(decl)
	switch {
	case decl == "":
		return kindUnknown
	case strings.Contains(decl, "BOOL"):
		return kindBool
	case strings.Contains(decl, "DATE"), strings.Contains(decl, "TIME"):
		return kindDate
	case strings.Contains(decl, "INT"):
		return kindInt
	case strings.Contains(decl, "CHAR"), strings.Contains(decl, "CLOB"), strings.Contains(decl, "TEXT"):
		return kindString
	case strings.Contains(decl, "REAL"), strings.Contains(decl, "FLOA"), strings.Contains(decl, "DOUB"),
		strings.Contains(decl, "NUMERIC"), strings.Contains(decl, "DECIMAL"):
		return kindFloat
	default:
		return kindUnknown
	}
}

type columnBuffer struct {
	name   string
	kind   columnKind
	values []any
}

// build materializes the buffered values. When a value does not fit the
// declared kind the column falls back to the kind inferred from the values,
// and finally to text.
func (c *columnBuffer) build(mem memory.Allocator) (dataframe.ISeries, error) {
	kinds := []columnKind{c.kind, inferKind(c.values), kindString}
	for _, kind := range kinds {
		if kind == kindUnknown {
			continue
		}
		if s, ok := c.buildAs(kind, mem); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("cannot represent values of column %s", c.name)
}

func (c *columnBuffer) buildAs(kind columnKind, mem memory.Allocator) (dataframe.ISeries, bool) {
	switch kind {
	case kindInt:
		return convert(c.name, c.values, toInt64, mem)
	case kindFloat:
		return convert(c.name, c.values, toFloat64, mem)
	case kindBool:
		return convert(c.name, c.values, toBool, mem)
	case kindDate:
		return c.buildDates(mem)
	default:
		return convert(c.name, c.values, toText, mem)
	}
}

// buildDates builds a date column when every value falls on midnight. Any
// time of day turns the column into "2006-01-02 15:04:05" text so distinct
// instants on the same day stay distinct.
func (c *columnBuffer) buildDates(mem memory.Allocator) (dataframe.ISeries, bool) {
	dates := make([]time.Time, len(c.values))
	valid := make([]bool, len(c.values))
	midnight := true
	for i, v := range c.values {
		if v == nil {
			continue
		}
		t, ok := toDate(v)
		if !ok {
			return nil, false
		}
		dates[i], valid[i] = t, true
		midnight = midnight && !hasClock(t)
	}
	if midnight {
		s, err := series.NewNullable(c.name, dates, valid, mem)
		return s, err == nil
	}

	text := make([]string, len(dates))
	for i, t := range dates {
		if valid[i] {
			text[i] = t.Format(dateTimeLayout)
		}
	}
	s, err := series.NewNullable(c.name, text, valid, mem)
	return s, err == nil
}

func hasClock(t time.Time) bool {
	return t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0
}

func convert[T any](
	name string, raw []any, conv func(any) (T, bool), mem memory.Allocator,
) (dataframe.ISeries, bool) {
	values := make([]T, len(raw))
	valid := make([]bool, len(raw))
	for i, v := range raw {
		if v == nil {
			continue
		}
		converted, ok := conv(v)
		if !ok {
			return nil, false
		}
		values[i] = converted
		valid[i] = true
	}
	s, err := series.NewNullable(name, values, valid, mem)
	if err != nil {
		return nil, false
	}
	return s, true
}

// inferKind picks a kind from the scanned Go values of an undeclared column.
func inferKind(values []any) columnKind {
	kind := kindUnknown
	for _, v := range values {
		var k columnKind
		switch v.(type) {
		case nil:
			continue
		case int64:
			k = kindInt
		case float64:
			k = kindFloat
		case bool:
			k = kindBool
		case time.Time:
			k = kindDate
		default:
			return kindString
		}
		switch {
		case kind == kindUnknown:
			kind = k
		case kind == k:
		case (kind == kindInt && k == kindFloat) || (kind == kindFloat && k == kindInt):
			kind = kindFloat
		default:
			return kindString
		}
	}
	return kind
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int64:
		if x == 0 || x == 1 {
			return x == 1, true
		}
	case string:
		switch strings.ToLower(x) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

const dateTimeLayout = "2006-01-02 15:04:05.999999999"

var dateLayouts = []string{series.DateLayout, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

func toDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
	case []byte:
		return toDate(string(x))
	}
	return time.Time{}, false
}

func toText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case time.Time:
		if hasClock(x) {
			return x.Format(dateTimeLayout), true
		}
		return x.Format(series.DateLayout), true
	default:
		return fmt.Sprint(x), true
	}
}
