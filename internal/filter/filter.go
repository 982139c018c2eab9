// Package filter narrows a DataFrame by categorical membership and inclusive
// numeric range predicates.
//
// Predicates combine with AND across columns; the values listed for one
// membership column combine with OR. An empty membership list excludes every
// row. Null cells never satisfy a predicate. Retained rows keep their
// relative order, and a filter that matches nothing yields a zero-row frame
// with the original schema.
package filter

import (
	"fmt"
	"maps"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/errors"
	"github.com/paveg/pivotgrid/internal/parallel"
	"github.com/paveg/pivotgrid/internal/series"
	"github.com/paveg/pivotgrid/internal/validation"
)

const opFilter = "Filter"

// Range is an inclusive numeric interval.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies within [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Spec is the set of predicates for one pipeline run.
type Spec struct {
	// Memberships maps a column to its allowed values, compared against the
	// cell's canonical text form.
	Memberships map[string][]string `json:"memberships,omitempty" yaml:"memberships,omitempty"`
	// Ranges maps a numeric column to its inclusive bounds.
	Ranges map[string]Range `json:"ranges,omitempty" yaml:"ranges,omitempty"`
}

// IsEmpty reports whether the spec has no predicates.
func (s Spec) IsEmpty() bool {
	return len(s.Memberships) == 0 && len(s.Ranges) == 0
}

// Columns returns every referenced column, sorted.
func (s Spec) Columns() []string {
	seen := make(map[string]struct{}, len(s.Memberships)+len(s.Ranges))
	for name := range s.Memberships {
		seen[name] = struct{}{}
	}
	for name := range s.Ranges {
		seen[name] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Validate checks the spec against df without touching rows.
func (s Spec) Validate(df validation.TypeProvider) error {
	if err := validation.ValidateColumns(df, opFilter, s.Columns()...); err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(s.Ranges)) {
		r := s.Ranges[name]
		if r.Min > r.Max {
			return errors.NewInvalidRangeError(opFilter, name, r.Min, r.Max)
		}
		if err := validation.ValidateNumeric(df, opFilter, name, "range filters need numbers"); err != nil {
			return err
		}
	}
	return nil
}

type predicate interface {
	match(row int) bool
	release()
}

type membership struct {
	arr     arrow.Array
	allowed map[string]struct{}
}

func (m *membership) match(row int) bool {
	if m.arr.IsNull(row) {
		return false
	}
	_, ok := m.allowed[series.FormatValue(m.arr, row)]
	return ok
}

func (m *membership) release() { m.arr.Release() }

type numericRange struct {
	arr    arrow.Array
	bounds Range
}

func (n *numericRange) match(row int) bool {
	v, ok := series.NumericValue(n.arr, row)
	return ok && n.bounds.Contains(v)
}

func (n *numericRange) release() { n.arr.Release() }

// Apply returns the rows of df that satisfy every predicate in spec.
// The result is a new frame owned by the caller.
func Apply(df *dataframe.DataFrame, spec Spec, mem memory.Allocator) (*dataframe.DataFrame, error) {
	if err := spec.Validate(df); err != nil {
		return nil, err
	}

	preds := compile(df, spec)
	defer func() {
		for _, p := range preds {
			p.release()
		}
	}()

	out, err := df.Take(matchingRows(preds, df.Len()), mem)
	if err != nil {
		return nil, errors.NewInternalError(opFilter, err)
	}
	return out, nil
}

func compile(df *dataframe.DataFrame, spec Spec) []predicate {
	preds := make([]predicate, 0, len(spec.Memberships)+len(spec.Ranges))

	for _, name := range slices.Sorted(maps.Keys(spec.Memberships)) {
		col, _ := df.Column(name)
		allowed := make(map[string]struct{}, len(spec.Memberships[name]))
		for _, v := range spec.Memberships[name] {
			allowed[v] = struct{}{}
		}
		preds = append(preds, &membership{arr: col.Array(), allowed: allowed})
	}
	for _, name := range slices.Sorted(maps.Keys(spec.Ranges)) {
		col, _ := df.Column(name)
		preds = append(preds, &numericRange{arr: col.Array(), bounds: spec.Ranges[name]})
	}

	return preds
}

// matchingRows returns the rows satisfying preds in ascending order. Large
// frames are scanned in parallel spans.
func matchingRows(preds []predicate, n int) []int {
	if n < parallel.Threshold {
		return matchSpan(preds, parallel.Span{Start: 0, End: n})
	}

	wp := parallel.NewWorkerPool(0)
	defer wp.Close()

	parts := parallel.Spans(wp, n, func(s parallel.Span) []int {
		return matchSpan(preds, s)
	})
	return slices.Concat(parts...)
}

func matchSpan(preds []predicate, s parallel.Span) []int {
	indices := make([]int, 0, s.Len())
	for row := s.Start; row < s.End; row++ {
		if matchAll(preds, row) {
			indices = append(indices, row)
		}
	}
	return indices
}

func matchAll(preds []predicate, row int) bool {
	for _, p := range preds {
		if !p.match(row) {
			return false
		}
	}
	return true
}

// String renders the spec for logs.
func (s Spec) String() string {
	if s.IsEmpty() {
		return "Filter[none]"
	}
	out := "Filter["
	for i, name := range s.Columns() {
		if i > 0 {
			out += " AND "
		}
		if values, ok := s.Memberships[name]; ok {
			out += fmt.Sprintf("%s IN %v", name, values)
			if _, also := s.Ranges[name]; also {
				out += " AND "
			}
		}
		if r, ok := s.Ranges[name]; ok {
			out += fmt.Sprintf("%s BETWEEN %g AND %g", name, r.Min, r.Max)
		}
	}
	return out + "]"
}
