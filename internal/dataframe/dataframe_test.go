package dataframe_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/errors"
	"github.com/paveg/pivotgrid/internal/series"
	"github.com/paveg/pivotgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataFrameBasics(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := testutil.ScenarioDataFrame(mem)
	defer df.Release()

	assert.Equal(t, 4, df.Len())
	assert.Equal(t, 3, df.Width())
	assert.Equal(t, []string{"platform", "year", "qty"}, df.Columns())
	assert.True(t, df.HasColumn("year"))
	assert.False(t, df.HasColumn("month"))

	col, ok := df.Column("qty")
	require.True(t, ok)
	assert.Equal(t, "qty", col.Name())

	assert.Contains(t, df.String(), "DataFrame[4x3]")
	assert.Equal(t, "DataFrame[empty]", dataframe.New().String())
}

func TestNewValidated(t *testing.T) {
	mem := memory.NewGoAllocator()

	t.Run("accepts rectangular frame", func(t *testing.T) {
		df, err := dataframe.NewValidated(
			series.New("a", []int64{1, 2}, mem),
			series.New("b", []string{"x", "y"}, mem),
		)
		require.NoError(t, err)
		defer df.Release()
		assert.Equal(t, 2, df.Len())
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		_, err := dataframe.NewValidated(
			series.New("a", []int64{1}, mem),
			series.New("a", []int64{2}, mem),
		)
		assert.ErrorIs(t, err, errors.ErrDuplicateColumn)
	})

	t.Run("rejects ragged columns", func(t *testing.T) {
		_, err := dataframe.NewValidated(
			series.New("a", []int64{1, 2}, mem),
			series.New("b", []int64{1}, mem),
		)
		assert.ErrorIs(t, err, errors.ErrMismatchedLength)
	})
}

func TestSelect(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := testutil.ScenarioDataFrame(mem)
	defer df.Release()

	selected := df.Select("qty", "missing", "platform")
	assert.Equal(t, []string{"qty", "platform"}, selected.Columns())
	assert.Equal(t, 4, selected.Len())
}

func TestTake(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := testutil.ScenarioDataFrame(mem)
	defer df.Release()

	t.Run("reorders and keeps types", func(t *testing.T) {
		taken, err := df.Take([]int{3, 0}, mem)
		require.NoError(t, err)
		defer taken.Release()

		assert.Equal(t, []string{"SHOPEE", "LAZADA"}, testutil.ColumnStrings(t, taken, "platform"))
		assert.Equal(t, []string{"40", "10"}, testutil.ColumnStrings(t, taken, "qty"))

		qty, _ := taken.Column("qty")
		assert.Equal(t, arrow.INT64, qty.DataType().ID())
	})

	t.Run("empty selection keeps schema", func(t *testing.T) {
		taken, err := df.Take(nil, mem)
		require.NoError(t, err)
		defer taken.Release()

		assert.Equal(t, 0, taken.Len())
		assert.Equal(t, df.Columns(), taken.Columns())
		assert.True(t, df.Schema().Equal(taken.Schema()))
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := df.Take([]int{9}, mem)
		assert.Error(t, err)
	})
}

func TestEqual(t *testing.T) {
	mem := memory.NewGoAllocator()
	a := testutil.ScenarioDataFrame(mem)
	defer a.Release()
	b := testutil.ScenarioDataFrame(mem)
	defer b.Release()

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(b.Select("platform", "year")))
	assert.False(t, a.Equal(nil))

	c := dataframe.New(
		series.New("platform", []string{"LAZADA", "SHOPEE", "LAZADA", "SHOPEE"}, mem),
		series.New("year", []float64{2022, 2022, 2023, 2023}, mem),
		series.New("qty", []int64{10, 20, 30, 40}, mem),
	)
	defer c.Release()
	assert.False(t, a.Equal(c), "type differences are not equal")
}

func TestWrapArrayUnsupported(t *testing.T) {
	mem := memory.NewGoAllocator()
	arr := series.EmptyArray(arrow.BinaryTypes.Binary, mem)
	defer arr.Release()

	_, err := dataframe.WrapArray("bin", arr)
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}
