// Package pivot reshapes a DataFrame into a dense pivot table.
//
// Rows are grouped by the tuple of row-key values and the tuple of
// column-key values. The output holds the row-key columns first, then one
// column per distinct column-key tuple observed anywhere in the input. Both
// output rows and output columns appear in first-seen order of the input
// scan; nothing is sorted. Combinations with no contributing value are
// filled with zero.
package pivot

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/errors"
	"github.com/paveg/pivotgrid/internal/series"
	"github.com/paveg/pivotgrid/internal/validation"
)

const opPivot = "Pivot"

// Spec names the grouping columns, the value column and the aggregation.
type Spec struct {
	Rows    []string `json:"rows" yaml:"rows"`
	Columns []string `json:"columns" yaml:"columns"`
	Values  string   `json:"values" yaml:"values"`
	Agg     Agg      `json:"agg" yaml:"agg"`
}

// Complete reports whether every part of the spec is set.
func (s Spec) Complete() bool {
	return len(s.Rows) > 0 && len(s.Columns) > 0 && s.Values != ""
}

// String renders the spec for logs.
func (s Spec) String() string {
	return fmt.Sprintf("Pivot[rows=%s columns=%s values=%s agg=%s]",
		strings.Join(s.Rows, ","), strings.Join(s.Columns, ","), s.Values, s.Agg)
}

// Request is what the pipeline asks of the pivot stage. It is either a
// FullPivot or a PassThrough, decided once by Resolve.
type Request interface {
	isRequest()
	String() string
}

// FullPivot reshapes the input according to Spec.
type FullPivot struct {
	Spec Spec
}

func (FullPivot) isRequest() {}

// String renders the request for logs.
func (f FullPivot) String() string { return f.Spec.String() }

// PassThrough returns the input unchanged.
type PassThrough struct{}

func (PassThrough) isRequest() {}

// String renders the request for logs.
func (PassThrough) String() string { return "Pivot[pass-through]" }

// Resolve turns user selections into a request: any missing part of the
// spec means no pivot was asked for.
func Resolve(spec Spec) Request {
	if !spec.Complete() {
		return PassThrough{}
	}
	return FullPivot{Spec: spec}
}

// Run executes req against df. For PassThrough the result is df itself;
// for FullPivot it is a new frame owned by the caller.
func Run(df *dataframe.DataFrame, req Request, mem memory.Allocator) (*dataframe.DataFrame, error) {
	switch r := req.(type) {
	case PassThrough:
		return df, nil
	case FullPivot:
		return Pivot(df, r.Spec, mem)
	default:
		return nil, errors.NewInvalidInputError(opPivot, fmt.Sprintf("unknown request %T", req))
	}
}

// Validate checks spec against df without touching rows.
func (s Spec) Validate(df validation.TypeProvider) error {
	validators := []validation.Validator{
		validation.NewColumnValidator(df, opPivot, s.Rows...),
		validation.NewColumnValidator(df, opPivot, s.Columns...),
		validation.NewColumnValidator(df, opPivot, s.Values),
		validation.NewUniqueValidator(opPivot, "rows", s.Rows),
		validation.NewUniqueValidator(opPivot, "columns", s.Columns),
		validation.NewDisjointValidator(opPivot, "rows", s.Rows, "columns", s.Columns),
	}
	if s.Agg.NeedsNumeric() {
		validators = append(validators, validation.NewNumericValidator(df, opPivot, s.Values,
			fmt.Sprintf("aggregation %s needs numbers", s.Agg)))
	}
	return validation.NewCompoundValidator(validators...).Validate()
}

type cellKey struct {
	row, col int
}

// accumulator folds the value column of one (row tuple, column tuple) group.
type accumulator struct {
	rows int
	n    int
	sum  float64
	isum int64
	min  float64
	max  float64
	imin int64
	imax int64
}

func (a *accumulator) add(arr arrow.Array, row int, integer bool) {
	a.rows++
	v, ok := series.NumericValue(arr, row)
	if !ok {
		return
	}
	if integer {
		iv := int64(v)
		if i64, isInt := arr.(interface{ Value(int) int64 }); isInt {
			iv = i64.Value(row)
		}
		a.isum += iv
		if a.n == 0 || iv < a.imin {
			a.imin = iv
		}
		if a.n == 0 || iv > a.imax {
			a.imax = iv
		}
	}
	a.sum += v
	if a.n == 0 || v < a.min {
		a.min = v
	}
	if a.n == 0 || v > a.max {
		a.max = v
	}
	a.n++
}

// Pivot reshapes df according to spec.
func Pivot(df *dataframe.DataFrame, spec Spec, mem memory.Allocator) (*dataframe.DataFrame, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	if err := spec.Validate(df); err != nil {
		return nil, err
	}

	rowArrs := columnArrays(df, spec.Rows)
	defer releaseAll(rowArrs)
	colArrs := columnArrays(df, spec.Columns)
	defer releaseAll(colArrs)
	valueCol, _ := df.Column(spec.Values)
	valueArr := valueCol.Array()
	defer valueArr.Release()

	integer := series.IsInteger(valueArr.DataType())
	rowIndex, colIndex := newTupleIndex(), newTupleIndex()
	var rowFirst, colFirst []int
	cells := make(map[cellKey]*accumulator)

	var sb strings.Builder
	for row := 0; row < df.Len(); row++ {
		ri, added := rowIndex.intern(encodeKey(&sb, rowArrs, row))
		if added {
			rowFirst = append(rowFirst, row)
		}
		ci, added := colIndex.intern(encodeKey(&sb, colArrs, row))
		if added {
			colFirst = append(colFirst, row)
		}

		key := cellKey{row: ri, col: ci}
		acc, ok := cells[key]
		if !ok {
			acc = &accumulator{}
			cells[key] = acc
		}
		acc.add(valueArr, row, integer)
	}

	keys, err := df.Select(spec.Rows...).Take(rowFirst, mem)
	if err != nil {
		return nil, errors.NewInternalError(opPivot, err)
	}

	out := make([]dataframe.ISeries, 0, len(spec.Rows)+colIndex.len())
	taken := make(map[string]struct{}, len(spec.Rows)+colIndex.len())
	for _, name := range spec.Rows {
		col, _ := keys.Column(name)
		out = append(out, col)
		taken[name] = struct{}{}
	}

	for ci, firstRow := range colFirst {
		name := uniqueName(taken, labelFor(colArrs, firstRow))
		cell, err := buildCells(name, spec.Agg, integer, rowIndex.len(), ci, cells, mem)
		if err != nil {
			for _, s := range out {
				s.Release()
			}
			return nil, errors.NewInternalError(opPivot, err)
		}
		out = append(out, cell)
	}

	return dataframe.New(out...), nil
}

// buildCells materializes output column ci, one value per row tuple.
func buildCells(
	name string, agg Agg, integer bool, rows, ci int, cells map[cellKey]*accumulator, mem memory.Allocator,
) (dataframe.ISeries, error) {
	switch {
	case agg == AggCount:
		values := make([]int64, rows)
		for ri := range values {
			if acc, ok := cells[cellKey{row: ri, col: ci}]; ok {
				values[ri] = int64(acc.rows)
			}
		}
		return series.NewSafe(name, values, mem)

	case agg == AggMean || !integer:
		values := make([]float64, rows)
		for ri := range values {
			acc, ok := cells[cellKey{row: ri, col: ci}]
			if !ok || acc.n == 0 {
				continue
			}
			switch agg {
			case AggSum:
				values[ri] = acc.sum
			case AggMean:
				values[ri] = acc.sum / float64(acc.n)
			case AggMax:
				values[ri] = acc.max
			case AggMin:
				values[ri] = acc.min
			}
		}
		return series.NewSafe(name, values, mem)

	default:
		values := make([]int64, rows)
		for ri := range values {
			acc, ok := cells[cellKey{row: ri, col: ci}]
			if !ok || acc.n == 0 {
				continue
			}
			switch agg {
			case AggSum:
				values[ri] = acc.isum
			case AggMax:
				values[ri] = acc.imax
			case AggMin:
				values[ri] = acc.imin
			}
		}
		return series.NewSafe(name, values, mem)
	}
}

func columnArrays(df *dataframe.DataFrame, names []string) []arrow.Array {
	arrs := make([]arrow.Array, len(names))
	for i, name := range names {
		col, _ := df.Column(name)
		arrs[i] = col.Array()
	}
	return arrs
}

func releaseAll(arrs []arrow.Array) {
	for _, arr := range arrs {
		arr.Release()
	}
}
