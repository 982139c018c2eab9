package io

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/series"
)

// JSONWriter writes DataFrames as a JSON array of row objects
type JSONWriter struct {
	writer io.Writer
	indent bool
}

// NewJSONWriter creates a new JSON writer
func NewJSONWriter(writer io.Writer, indent bool) *JSONWriter {
	return &JSONWriter{writer: writer, indent: indent}
}

// CellValue returns the JSON-friendly value of row index in col: nil for
// nulls, dates as YYYY-MM-DD text, and Go scalars otherwise.
func CellValue(col dataframe.ISeries, index int) any {
	if index < 0 || index >= col.Len() || col.IsNull(index) {
		return nil
	}

	arr := col.Array()
	defer arr.Release()

	switch typed := arr.(type) {
	case *array.Int64:
		return typed.Value(index)
	case *array.Int32:
		return int64(typed.Value(index))
	case *array.Float64:
		return finite(typed.Value(index))
	case *array.Float32:
		return finite(float64(typed.Value(index)))
	case *array.Boolean:
		return typed.Value(index)
	case *array.String:
		return typed.Value(index)
	case *array.Date32:
		return typed.Value(index).ToTime().Format(series.DateLayout)
	default:
		return col.GetAsString(index)
	}
}

// finite maps NaN and infinities to nil since JSON cannot carry them.
func finite(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// Write writes the DataFrame as a JSON array of objects whose keys follow
// column order.
func (w *JSONWriter) Write(df *dataframe.DataFrame) error {
	buf := bufio.NewWriter(w.writer)

	names := df.Columns()
	keys := make([][]byte, len(names))
	columns := make([]dataframe.ISeries, len(names))
	for i, name := range names {
		key, err := json.Marshal(name)
		if err != nil {
			return fmt.Errorf("marshaling column name %s: %w", name, err)
		}
		keys[i] = key
		columns[i], _ = df.Column(name)
	}

	buf.WriteByte('[')
	for row := range df.Len() {
		if row > 0 {
			buf.WriteByte(',')
		}
		if w.indent {
			buf.WriteString("\n  ")
		}
		buf.WriteByte('{')
		for i, col := range columns {
			if i > 0 {
				buf.WriteByte(',')
			}
			value, err := json.Marshal(CellValue(col, row))
			if err != nil {
				return fmt.Errorf("marshaling row %d column %s: %w", row, names[i], err)
			}
			buf.Write(keys[i])
			buf.WriteByte(':')
			buf.Write(value)
		}
		buf.WriteByte('}')
	}
	if w.indent && df.Len() > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteByte(']')

	if err := buf.Flush(); err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	return nil
}
