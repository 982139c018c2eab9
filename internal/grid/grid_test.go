package grid_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/errors"
	"github.com/paveg/pivotgrid/internal/grid"
	"github.com/paveg/pivotgrid/internal/series"
	"github.com/paveg/pivotgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsBuilder(t *testing.T) {
	opts := grid.NewOptionsBuilder().Build()
	assert.Equal(t, grid.Options{PageSize: grid.DefaultPageSize}, opts)

	opts = grid.NewOptionsBuilder().Pagination(true, 50).DefaultColumn(true, true).Build()
	assert.Equal(t, grid.Options{PageSize: 50, AutoPageSize: true, Editable: true, Groupable: true}, opts)

	opts = grid.NewOptionsBuilder().Pagination(false, 0).Build()
	assert.Equal(t, grid.DefaultPageSize, opts.PageSize)

	assert.Equal(t, opts.PageSize, grid.DefaultOptions(0).PageSize)
	assert.True(t, grid.DefaultOptions(10).Editable)
}

func TestBuild(t *testing.T) {
	mem := memory.NewGoAllocator()

	day := series.New("OrderDate", []time.Time{time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)}, mem)
	name := series.New("Ecommerce", []string{"LAZADA"}, mem)
	qty := series.New("QTY", []int64{3}, mem)
	promo := series.New("Promo", []bool{true}, mem)
	df := dataframe.New(name, day, qty, promo)
	defer df.Release()

	g := grid.Build(df, grid.DefaultOptions(10), "Ecommerce")

	require.Len(t, g.Columns, 4)
	assert.Equal(t, 1, g.RowCount)
	assert.Equal(t, 10, g.Options.PageSize)

	assert.Equal(t, grid.ColumnDef{
		Field: "Ecommerce", Header: "Ecommerce", Type: grid.TypeText, Align: "left",
		Editable: true, Groupable: true, Pinned: true,
	}, g.Columns[0])
	assert.Equal(t, grid.TypeDate, g.Columns[1].Type)
	assert.Equal(t, grid.TypeNumber, g.Columns[2].Type)
	assert.Equal(t, "right", g.Columns[2].Align)
	assert.False(t, g.Columns[2].Pinned)
	assert.Equal(t, grid.TypeText, g.Columns[3].Type)

	t.Run("zero page size falls back", func(t *testing.T) {
		g := grid.Build(df, grid.Options{})
		assert.Equal(t, grid.DefaultPageSize, g.Options.PageSize)
		assert.False(t, g.Columns[0].Editable)
	})
}

func TestPaginate(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := testutil.SalesDataFrame(mem, testutil.WithRowCount(7), testutil.WithNulls())
	defer df.Release()

	t.Run("first page", func(t *testing.T) {
		page, err := grid.Paginate(df, 1, 3)
		require.NoError(t, err)

		assert.Equal(t, 7, page.Total)
		assert.Equal(t, 3, page.Pages)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 3, page.PageSize)
		require.Len(t, page.Rows, 3)
		assert.Len(t, page.Rows[0], df.Width())
		assert.Equal(t, "LAZADA", page.Rows[0][0])
	})

	t.Run("last page is short", func(t *testing.T) {
		page, err := grid.Paginate(df, 3, 3)
		require.NoError(t, err)
		require.Len(t, page.Rows, 1)
	})

	t.Run("nulls are nil", func(t *testing.T) {
		page, err := grid.Paginate(df, 2, 3)
		require.NoError(t, err)

		names := df.Columns()
		for i, name := range names {
			if name == "QTY" {
				assert.Nil(t, page.Rows[1][i])
			}
		}
	})

	t.Run("out of range", func(t *testing.T) {
		for _, p := range []int{0, -1, 4} {
			_, err := grid.Paginate(df, p, 3)
			assert.ErrorIs(t, err, errors.ErrInvalidInput, "page %d", p)
		}
	})

	t.Run("empty frame has one empty page", func(t *testing.T) {
		empty := dataframe.New(series.New("x", []int64{}, mem))
		defer empty.Release()

		page, err := grid.Paginate(empty, 1, 0)
		require.NoError(t, err)
		assert.Empty(t, page.Rows)
		assert.Equal(t, 0, page.Pages)
		assert.Equal(t, grid.DefaultPageSize, page.PageSize)

		raw, err := json.Marshal(page)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"rows":[]`)
	})
}

func TestParseFormat(t *testing.T) {
	cases := map[string]grid.Format{
		"":        grid.FormatCSV,
		"csv":     grid.FormatCSV,
		" CSV ":   grid.FormatCSV,
		"parquet": grid.FormatParquet,
		"json":    grid.FormatJSON,
	}
	for in, want := range cases {
		got, err := grid.ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := grid.ParseFormat("xlsx")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestArtifactFor(t *testing.T) {
	assert.Equal(t, grid.Artifact{FileName: "pivot_table.csv", ContentType: "text/csv; charset=utf-8"},
		grid.ArtifactFor(grid.FormatCSV, "pivot_table.csv"))
	assert.Equal(t, "pivot_table.parquet", grid.ArtifactFor(grid.FormatParquet, "pivot_table.csv").FileName)
	assert.Equal(t, "report.json", grid.ArtifactFor(grid.FormatJSON, "report").FileName)
}

func TestExport(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := testutil.ScenarioDataFrame(mem)
	defer df.Release()

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, grid.Export(&buf, df, grid.FormatCSV, mem))
		assert.Equal(t, "platform,year,qty\nLAZADA,2022,10\nSHOPEE,2022,20\nLAZADA,2023,30\nSHOPEE,2023,40\n", buf.String())
	})

	t.Run("parquet", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, grid.Export(&buf, df, grid.FormatParquet, mem))
		assert.Equal(t, "PAR1", buf.String()[:4])
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, grid.Export(&buf, df, grid.FormatJSON, mem))
		assert.Contains(t, buf.String(), `"platform":"LAZADA"`)
	})

	t.Run("unknown format", func(t *testing.T) {
		err := grid.Export(&bytes.Buffer{}, df, grid.Format("xlsx"), mem)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
}
