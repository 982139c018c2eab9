// Package grid adapts a DataFrame for presentation as an interactive,
// paginated table and for download.
package grid

import (
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/errors"
	pgio "github.com/paveg/pivotgrid/internal/io"
	"github.com/paveg/pivotgrid/internal/series"
)

const opPaginate = "grid.Paginate"

// DefaultPageSize is used when Options.PageSize is unset.
const DefaultPageSize = 25

// Options controls grid behaviour on the client.
type Options struct {
	PageSize     int  `json:"page_size"`
	AutoPageSize bool `json:"auto_page_size"`
	Editable     bool `json:"editable"`
	Groupable    bool `json:"groupable"`
}

// OptionsBuilder assembles Options step by step.
type OptionsBuilder struct {
	opts Options
}

// NewOptionsBuilder starts from a fixed page size with editing and grouping off.
func NewOptionsBuilder() *OptionsBuilder {
	return &OptionsBuilder{opts: Options{PageSize: DefaultPageSize}}
}

// Pagination sets the page size; auto lets the client fit rows to its height.
func (b *OptionsBuilder) Pagination(auto bool, size int) *OptionsBuilder {
	b.opts.AutoPageSize = auto
	if size > 0 {
		b.opts.PageSize = size
	}
	return b
}

// DefaultColumn sets the behaviour every column starts with.
func (b *OptionsBuilder) DefaultColumn(editable, groupable bool) *OptionsBuilder {
	b.opts.Editable = editable
	b.opts.Groupable = groupable
	return b
}

// Build returns the assembled options.
func (b *OptionsBuilder) Build() Options {
	return b.opts
}

// DefaultOptions returns automatic pagination with editable, groupable columns.
func DefaultOptions(pageSize int) Options {
	return NewOptionsBuilder().Pagination(true, pageSize).DefaultColumn(true, true).Build()
}

// ColumnType tells the client how to render and compare cells.
type ColumnType string

// Column types.
const (
	TypeText   ColumnType = "text"
	TypeNumber ColumnType = "number"
	TypeDate   ColumnType = "date"
)

// ColumnDef describes one grid column.
type ColumnDef struct {
	Field     string     `json:"field"`
	Header    string     `json:"header"`
	Type      ColumnType `json:"type"`
	Align     string     `json:"align"`
	Editable  bool       `json:"editable"`
	Groupable bool       `json:"groupable"`
	Pinned    bool       `json:"pinned,omitempty"`
}

// Grid is the column model of a result.
type Grid struct {
	Columns  []ColumnDef `json:"columns"`
	Options  Options     `json:"options"`
	RowCount int         `json:"row_count"`
}

// Build derives column definitions from df in column order. Columns named
// in pinned (the pivot row keys) are marked so the client can freeze them.
func Build(df *dataframe.DataFrame, opts Options, pinned ...string) Grid {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	columns := make([]ColumnDef, 0, df.Width())
	for _, name := range df.Columns() {
		dt, _ := df.DataTypeOf(name)
		typ := columnType(dt)
		align := "left"
		if typ == TypeNumber {
			align = "right"
		}
		columns = append(columns, ColumnDef{
			Field:     name,
			Header:    name,
			Type:      typ,
			Align:     align,
			Editable:  opts.Editable,
			Groupable: opts.Groupable,
			Pinned:    slices.Contains(pinned, name),
		})
	}

	return Grid{Columns: columns, Options: opts, RowCount: df.Len()}
}

func columnType(dt arrow.DataType) ColumnType {
	switch {
	case series.IsNumeric(dt):
		return TypeNumber
	case dt != nil && dt.ID() == arrow.DATE32:
		return TypeDate
	default:
		return TypeText
	}
}

// Page is one window of rows.
type Page struct {
	Rows     [][]any `json:"rows"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Pages    int     `json:"pages"`
}

// Paginate returns page (1-based) of df with size rows per page. Rows hold
// cells in column order; nulls are nil and dates are YYYY-MM-DD text.
func Paginate(df *dataframe.DataFrame, page, size int) (Page, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := df.Len()
	pages := (total + size - 1) / size
	if page < 1 || page > max(pages, 1) {
		return Page{}, errors.NewInvalidInputError(opPaginate, "page out of range")
	}

	start := (page - 1) * size
	end := min(start+size, total)

	columns := make([]dataframe.ISeries, 0, df.Width())
	for _, name := range df.Columns() {
		col, _ := df.Column(name)
		columns = append(columns, col)
	}

	rows := make([][]any, 0, max(end-start, 0))
	for row := start; row < end; row++ {
		cells := make([]any, len(columns))
		for i, col := range columns {
			cells[i] = pgio.CellValue(col, row)
		}
		rows = append(rows, cells)
	}

	return Page{Rows: rows, Total: total, Page: page, PageSize: size, Pages: pages}, nil
}
