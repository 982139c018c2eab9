package dataframe

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/paveg/pivotgrid/internal/series"
)

// ISeries is a column of any element type. Filter, pivot and the writers
// work through it and reach for the Arrow array when they need typed access.
type ISeries interface {
	Name() string
	Len() int
	DataType() arrow.DataType
	IsNull(index int) bool
	NullN() int
	// GetAsString is the canonical text used for membership tests, labels
	// and CSV cells.
	GetAsString(index int) string
	String() string
	// Array retains; release it when done.
	Array() arrow.Array
	Release()
}

var (
	_ ISeries = (*series.Series[string])(nil)
	_ ISeries = (*series.Series[int64])(nil)
	_ ISeries = (*series.Series[float64])(nil)
)
