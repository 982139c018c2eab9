// Package dataframe provides the in-memory Dataset the viewer pipeline operates on.
package dataframe

import (
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/pivotgrid/internal/errors"
	"github.com/paveg/pivotgrid/internal/series"
)

// DataFrame represents a table of data with typed columns
type DataFrame struct {
	columns map[string]ISeries
	order   []string // Maintains column order
}

// New creates a new DataFrame from a slice of ISeries.
// It performs no validation; use NewValidated for untrusted input.
func New(series ...ISeries) *DataFrame {
	columns := make(map[string]ISeries)
	order := make([]string, 0, len(series))

	for _, s := range series {
		name := s.Name()
		columns[name] = s
		order = append(order, name)
	}

	return &DataFrame{
		columns: columns,
		order:   order,
	}
}

// NewValidated creates a DataFrame and checks that column names are unique
// and every column has the same length.
func NewValidated(series ...ISeries) (*DataFrame, error) {
	seen := make(map[string]struct{}, len(series))
	for i, s := range series {
		if _, dup := seen[s.Name()]; dup {
			return nil, fmt.Errorf("column %q: %w", s.Name(), errors.ErrDuplicateColumn)
		}
		seen[s.Name()] = struct{}{}
		if i > 0 && s.Len() != series[0].Len() {
			return nil, fmt.Errorf("column %q has %d values, expected %d: %w",
				s.Name(), s.Len(), series[0].Len(), errors.ErrMismatchedLength)
		}
	}
	return New(series...), nil
}

// Columns returns the names of all columns in order
func (df *DataFrame) Columns() []string {
	if len(df.order) == 0 {
		return []string{}
	}
	return append([]string(nil), df.order...)
}

// Len returns the number of rows (assumes all columns have same length)
func (df *DataFrame) Len() int {
	if len(df.order) == 0 {
		return 0
	}
	if s, exists := df.columns[df.order[0]]; exists {
		return s.Len()
	}
	return 0
}

// Width returns the number of columns
func (df *DataFrame) Width() int {
	return len(df.order)
}

// Column returns the series for the given column name
func (df *DataFrame) Column(name string) (ISeries, bool) {
	s, exists := df.columns[name]
	return s, exists
}

// HasColumn checks if a column exists
func (df *DataFrame) HasColumn(name string) bool {
	_, exists := df.columns[name]
	return exists
}

// DataTypeOf returns the Arrow type of the named column.
func (df *DataFrame) DataTypeOf(name string) (arrow.DataType, bool) {
	s, exists := df.columns[name]
	if !exists {
		return nil, false
	}
	return s.DataType(), true
}

// Select returns a new DataFrame with only the specified columns.
// The result shares column storage with df.
func (df *DataFrame) Select(names ...string) *DataFrame {
	newColumns := make(map[string]ISeries)
	newOrder := make([]string, 0, len(names))

	for _, name := range names {
		if s, exists := df.columns[name]; exists {
			newColumns[name] = s
			newOrder = append(newOrder, name)
		}
	}

	return &DataFrame{
		columns: newColumns,
		order:   newOrder,
	}
}

// Take returns a new DataFrame holding the rows at indices, in that order.
// Column names, types and nulls are preserved; an empty index list yields
// a zero-row frame with the same schema.
func (df *DataFrame) Take(indices []int, mem memory.Allocator) (*DataFrame, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	taken := make([]ISeries, 0, len(df.order))
	for _, name := range df.order {
		s := df.columns[name]
		arr := s.Array()
		out, err := series.TakeArray(arr, indices, mem)
		arr.Release()
		if err != nil {
			for _, t := range taken {
				t.Release()
			}
			return nil, fmt.Errorf("taking rows from column %s: %w", name, err)
		}
		wrapped, err := WrapArray(name, out)
		if err != nil {
			out.Release()
			for _, t := range taken {
				t.Release()
			}
			return nil, err
		}
		taken = append(taken, wrapped)
	}

	return New(taken...), nil
}

// Schema returns the Arrow schema of the frame.
func (df *DataFrame) Schema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(df.order))
	for _, name := range df.order {
		s := df.columns[name]
		fields = append(fields, arrow.Field{Name: name, Type: s.DataType(), Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

// Equal reports whether both frames have the same columns, types, nulls and values.
func (df *DataFrame) Equal(other *DataFrame) bool {
	if other == nil || df.Width() != other.Width() || df.Len() != other.Len() {
		return false
	}
	for i, name := range df.order {
		if other.order[i] != name {
			return false
		}
		left, right := df.columns[name], other.columns[name]
		if !arrow.TypeEqual(left.DataType(), right.DataType()) {
			return false
		}
		for row := 0; row < left.Len(); row++ {
			if left.IsNull(row) != right.IsNull(row) || left.GetAsString(row) != right.GetAsString(row) {
				return false
			}
		}
	}
	return true
}

// String returns a string representation of the DataFrame
func (df *DataFrame) String() string {
	if len(df.columns) == 0 {
		return "DataFrame[empty]"
	}

	parts := []string{fmt.Sprintf("DataFrame[%dx%d]", df.Len(), df.Width())}

	for _, name := range df.order {
		s := df.columns[name]
		parts = append(parts, fmt.Sprintf("  %s: %s", name, s.DataType().String()))
	}

	return strings.Join(parts, "\n")
}

// Release releases all underlying Arrow memory
func (df *DataFrame) Release() {
	for _, s := range df.columns {
		s.Release()
	}
}

// WrapArray turns an Arrow array into a typed series. The series takes over
// the caller's reference to arr.
func WrapArray(name string, arr arrow.Array) (ISeries, error) {
	//nolint:exhaustive // Only handling supported types
	switch arr.DataType().ID() {
	case arrow.STRING:
		return series.FromArray[string](name, arr), nil
	case arrow.INT64:
		return series.FromArray[int64](name, arr), nil
	case arrow.INT32:
		return series.FromArray[int32](name, arr), nil
	case arrow.FLOAT64:
		return series.FromArray[float64](name, arr), nil
	case arrow.FLOAT32:
		return series.FromArray[float32](name, arr), nil
	case arrow.BOOL:
		return series.FromArray[bool](name, arr), nil
	case arrow.DATE32:
		return series.FromArray[time.Time](name, arr), nil
	default:
		return nil, errors.NewUnsupportedTypeError("wrap", arr.DataType().String())
	}
}
