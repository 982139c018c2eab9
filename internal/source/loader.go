package source

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/errors"
	pgio "github.com/paveg/pivotgrid/internal/io"
)

const (
	opLoad = "source.Load"

	defaultLoadBatch = 500
	// maxBindVars stays below SQLite's default host parameter limit.
	maxBindVars = 32000
)

// Loader writes DataFrames into SQLite tables to seed a data mart.
type Loader struct {
	db        *sql.DB
	batchSize int
	replace   bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithBatchSize sets how many rows go into one INSERT statement.
func WithBatchSize(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithReplace drops an existing table of the same name before loading.
func WithReplace() LoaderOption {
	return func(l *Loader) {
		l.replace = true
	}
}

// NewLoader creates a loader writing through db.
func NewLoader(db *sql.DB, opts ...LoaderOption) *Loader {
	l := &Loader{db: db, batchSize: defaultLoadBatch}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OpenWritable opens (creating if needed) the SQLite file at path for loading.
func OpenWritable(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open(driverName, path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.NewSourceUnavailableError(opLoad, fmt.Errorf("open sqlite db: %w", err))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.NewSourceUnavailableError(opLoad, fmt.Errorf("ping sqlite db: %w", err))
	}
	return db, nil
}

// LoadCSV reads CSV from r with type inference and loads it into table.
// It returns the number of rows written.
func (l *Loader) LoadCSV(ctx context.Context, table string, r io.Reader, mem memory.Allocator) (int, error) {
	return l.LoadFrom(ctx, table, pgio.NewCSVReader(r, pgio.DefaultCSVOptions(), mem))
}

// LoadParquet reads a Parquet file from r and loads it into table.
func (l *Loader) LoadParquet(ctx context.Context, table string, r io.Reader, mem memory.Allocator) (int, error) {
	return l.LoadFrom(ctx, table, pgio.NewParquetReader(r, mem))
}

// LoadFrom reads one frame from reader and loads it into table. Read
// failures are invalid input.
func (l *Loader) LoadFrom(ctx context.Context, table string, reader pgio.DataReader) (int, error) {
	df, err := reader.Read()
	if err != nil {
		return 0, errors.NewInvalidInputError(opLoad, err.Error())
	}
	defer df.Release()

	if err := l.Load(ctx, table, df); err != nil {
		return 0, err
	}
	return df.Len(), nil
}

// Load creates table from the frame's schema and inserts every row in one
// transaction.
func (l *Loader) Load(ctx context.Context, table string, df *dataframe.DataFrame) error {
	if strings.TrimSpace(table) == "" {
		return errors.NewInvalidInputError(opLoad, "table name is required")
	}
	if df.Width() == 0 {
		return errors.NewInvalidInputError(opLoad, "frame has no columns")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(ctx, err)
	}
	defer func() { _ = tx.Rollback() }()

	if l.replace {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
			return classify(ctx, err)
		}
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(table, df)); err != nil {
		return classify(ctx, err)
	}

	columns := make([]dataframe.ISeries, 0, df.Width())
	quoted := make([]string, 0, df.Width())
	for _, name := range df.Columns() {
		col, _ := df.Column(name)
		columns = append(columns, col)
		quoted = append(quoted, quoteIdent(name))
	}

	insertPrefix := "INSERT INTO " + quoteIdent(table) + " (" + strings.Join(quoted, ", ") + ") VALUES "
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	batch := max(1, min(l.batchSize, maxBindVars/len(columns)))
	for start := 0; start < df.Len(); start += batch {
		end := min(start+batch, df.Len())

		placeholders := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*len(columns))
		for row := start; row < end; row++ {
			placeholders = append(placeholders, rowPlaceholder)
			for _, col := range columns {
				args = append(args, sqlValue(col, row))
			}
		}

		if _, err := tx.ExecContext(ctx, insertPrefix+strings.Join(placeholders, ", "), args...); err != nil {
			return classify(ctx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(ctx, err)
	}
	return nil
}

func createTableSQL(table string, df *dataframe.DataFrame) string {
	defs := make([]string, 0, df.Width())
	for _, name := range df.Columns() {
		dt, _ := df.DataTypeOf(name)
		defs = append(defs, quoteIdent(name)+" "+declType(dt))
	}
	return "CREATE TABLE " + quoteIdent(table) + " (" + strings.Join(defs, ", ") + ")"
}

// declType returns the declared type that kindFromDecl maps back to dt.
func declType(dt arrow.DataType) string {
	//nolint:exhaustive // Only handling supported types
	switch dt.ID() {
	case arrow.INT64, arrow.INT32:
		return "INTEGER"
	case arrow.FLOAT64, arrow.FLOAT32:
		return "REAL"
	case arrow.BOOL:
		return "BOOLEAN"
	case arrow.DATE32:
		return "DATE"
	default:
		return "TEXT"
	}
}

func sqlValue(col dataframe.ISeries, row int) any {
	if col.IsNull(row) {
		return nil
	}
	if dt := col.DataType(); dt.ID() == arrow.DATE32 {
		return col.GetAsString(row)
	}
	return pgio.CellValue(col, row)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
