package filter

import (
	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/series"
	"github.com/paveg/pivotgrid/internal/validation"
)

// Choices lists the distinct values of a categorical column in first-seen order.
type Choices struct {
	Column string   `json:"column"`
	Values []string `json:"values"`
}

// Bounds describes the observed extent of a numeric column.
type Bounds struct {
	Column string  `json:"column"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	// Default is the window preselected in the range control: the last
	// unit of the observed extent.
	Default Range `json:"default"`
	// Empty is set when the column holds no non-null values.
	Empty bool `json:"empty"`
}

// DistinctValues returns the distinct non-null values of column in first-seen order.
func DistinctValues(df *dataframe.DataFrame, column string) (Choices, error) {
	if err := validation.ValidateColumns(df, opFilter, column); err != nil {
		return Choices{}, err
	}

	col, _ := df.Column(column)
	seen := make(map[string]struct{})
	values := make([]string, 0)
	for row := 0; row < col.Len(); row++ {
		if col.IsNull(row) {
			continue
		}
		v := col.GetAsString(row)
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return Choices{Column: column, Values: values}, nil
}

// ColumnBounds returns the min and max of a numeric column and the default
// window (max-1, max), clamped to the observed minimum.
func ColumnBounds(df *dataframe.DataFrame, column string) (Bounds, error) {
	if err := validation.ValidateNumeric(df, opFilter, column, "range controls need numbers"); err != nil {
		return Bounds{}, err
	}

	col, _ := df.Column(column)
	arr := col.Array()
	defer arr.Release()

	b := Bounds{Column: column, Empty: true}
	for row := 0; row < arr.Len(); row++ {
		v, ok := series.NumericValue(arr, row)
		if !ok {
			continue
		}
		if b.Empty || v < b.Min {
			b.Min = v
		}
		if b.Empty || v > b.Max {
			b.Max = v
		}
		b.Empty = false
	}
	if b.Empty {
		return b, nil
	}

	lo := b.Max - 1
	if lo < b.Min {
		lo = b.Min
	}
	b.Default = Range{Min: lo, Max: b.Max}
	return b, nil
}

// DefaultMembership keeps the preferred values that actually occur in choices,
// falling back to every choice when none of them do.
func DefaultMembership(choices Choices, preferred []string) []string {
	present := make(map[string]struct{}, len(choices.Values))
	for _, v := range choices.Values {
		present[v] = struct{}{}
	}
	out := make([]string, 0, len(preferred))
	for _, v := range preferred {
		if _, ok := present[v]; ok {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), choices.Values...)
	}
	return out
}
