package pivot_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/errors"
	"github.com/paveg/pivotgrid/internal/filter"
	"github.com/paveg/pivotgrid/internal/pivot"
	"github.com/paveg/pivotgrid/internal/series"
	"github.com/paveg/pivotgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPivot_Scenarios(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := testutil.ScenarioDataFrame(mem)
	defer df.Release()

	t.Run("sum by year and platform", func(t *testing.T) {
		out, err := pivot.Pivot(df, pivot.Spec{
			Rows: []string{"year"}, Columns: []string{"platform"}, Values: "qty", Agg: pivot.AggSum,
		}, mem)
		require.NoError(t, err)
		defer out.Release()

		testutil.AssertDataFrameHasColumns(t, out, []string{"year", "LAZADA", "SHOPEE"})
		assert.Equal(t, []string{"2022", "2023"}, testutil.ColumnStrings(t, out, "year"))
		assert.Equal(t, []string{"10", "30"}, testutil.ColumnStrings(t, out, "LAZADA"))
		assert.Equal(t, []string{"20", "40"}, testutil.ColumnStrings(t, out, "SHOPEE"))

		dt, _ := out.DataTypeOf("LAZADA")
		assert.Equal(t, arrow.INT64, dt.ID())
		dt, _ = out.DataTypeOf("year")
		assert.Equal(t, arrow.INT64, dt.ID())
	})

	t.Run("after filtering a single platform", func(t *testing.T) {
		filtered, err := filter.Apply(df, filter.Spec{
			Memberships: map[string][]string{"platform": {"LAZADA"}},
		}, mem)
		require.NoError(t, err)
		defer filtered.Release()

		out, err := pivot.Pivot(filtered, pivot.Spec{
			Rows: []string{"year"}, Columns: []string{"platform"}, Values: "qty", Agg: pivot.AggSum,
		}, mem)
		require.NoError(t, err)
		defer out.Release()

		testutil.AssertDataFrameHasColumns(t, out, []string{"year", "LAZADA"})
		assert.Equal(t, []string{"10", "30"}, testutil.ColumnStrings(t, out, "LAZADA"))
	})

	t.Run("zero-row input keeps the row-key columns", func(t *testing.T) {
		filtered, err := filter.Apply(df, filter.Spec{
			Ranges: map[string]filter.Range{"year": {Min: 2030, Max: 2031}},
		}, mem)
		require.NoError(t, err)
		defer filtered.Release()

		out, err := pivot.Pivot(filtered, pivot.Spec{
			Rows: []string{"year"}, Columns: []string{"platform"}, Values: "qty", Agg: pivot.AggSum,
		}, mem)
		require.NoError(t, err)
		defer out.Release()

		testutil.AssertDataFrameHasColumns(t, out, []string{"year"})
		assert.Equal(t, 0, out.Len())
		dt, _ := out.DataTypeOf("year")
		assert.Equal(t, arrow.INT64, dt.ID())
	})

	t.Run("mean yields floats", func(t *testing.T) {
		out, err := pivot.Pivot(df, pivot.Spec{
			Rows: []string{"year"}, Columns: []string{"platform"}, Values: "qty", Agg: pivot.AggMean,
		}, mem)
		require.NoError(t, err)
		defer out.Release()

		dt, _ := out.DataTypeOf("SHOPEE")
		assert.Equal(t, arrow.FLOAT64, dt.ID())
		assert.Equal(t, []string{"20", "40"}, testutil.ColumnStrings(t, out, "SHOPEE"))
	})

	t.Run("count works on a text value column", func(t *testing.T) {
		out, err := pivot.Pivot(df, pivot.Spec{
			Rows: []string{"year"}, Columns: []string{"platform"}, Values: "platform", Agg: pivot.AggCount,
		}, mem)
		require.NoError(t, err)
		defer out.Release()

		assert.Equal(t, []string{"1", "1"}, testutil.ColumnStrings(t, out, "LAZADA"))
	})
}

func TestPivot_Errors(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := testutil.ScenarioDataFrame(mem)
	defer df.Release()

	tests := []struct {
		name   string
		spec   pivot.Spec
		target error
	}{
		{
			name:   "sum on text column",
			spec:   pivot.Spec{Rows: []string{"year"}, Columns: []string{"platform"}, Values: "platform", Agg: pivot.AggSum},
			target: errors.ErrTypeMismatch,
		},
		{
			name:   "mean on text column",
			spec:   pivot.Spec{Rows: []string{"year"}, Columns: []string{"qty"}, Values: "platform", Agg: pivot.AggMean},
			target: errors.ErrTypeMismatch,
		},
		{
			name:   "missing row column",
			spec:   pivot.Spec{Rows: []string{"month"}, Columns: []string{"platform"}, Values: "qty"},
			target: errors.ErrColumnNotFound,
		},
		{
			name:   "missing value column",
			spec:   pivot.Spec{Rows: []string{"year"}, Columns: []string{"platform"}, Values: "amount"},
			target: errors.ErrColumnNotFound,
		},
		{
			name:   "overlapping keys",
			spec:   pivot.Spec{Rows: []string{"year", "platform"}, Columns: []string{"platform"}, Values: "qty"},
			target: errors.ErrInvalidInput,
		},
		{
			name:   "repeated row key",
			spec:   pivot.Spec{Rows: []string{"year", "year"}, Columns: []string{"platform"}, Values: "qty"},
			target: errors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := pivot.Pivot(df, tt.spec, mem)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestPivot_SalesOrderingAndNulls(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := testutil.SalesDataFrame(mem, testutil.WithNulls())
	defer df.Release()

	spec := pivot.Spec{Rows: []string{"Year"}, Columns: []string{"Ecommerce"}, Values: "QTY"}

	t.Run("rows and columns follow first appearance", func(t *testing.T) {
		out, err := pivot.Pivot(df, spec, mem)
		require.NoError(t, err)
		defer out.Release()

		testutil.AssertDataFrameHasColumns(t, out, []string{"Year", "LAZADA", "SHOPEE", "TOKOPEDIA"})
		assert.Equal(t, []string{"2021", "2022", "2023"}, testutil.ColumnStrings(t, out, "Year"))
	})

	t.Run("sum skips nulls and conserves the total", func(t *testing.T) {
		out, err := pivot.Pivot(df, spec, mem)
		require.NoError(t, err)
		defer out.Release()

		// Year 2021 LAZADA holds 5 and a null; Year 2022 SHOPEE holds only a null.
		assert.Equal(t, "5", testutil.ColumnStrings(t, out, "LAZADA")[0])
		assert.Equal(t, "0", testutil.ColumnStrings(t, out, "SHOPEE")[1])

		col, _ := df.Column("QTY")
		qty := col.(*series.Series[int64])
		var want int64
		for i := 0; i < qty.Len(); i++ {
			if !qty.IsNull(i) {
				want += qty.Value(i)
			}
		}

		var got int64
		for _, name := range []string{"LAZADA", "SHOPEE", "TOKOPEDIA"} {
			c, _ := out.Column(name)
			for _, v := range c.(*series.Series[int64]).Values() {
				got += v
			}
		}
		assert.Equal(t, want, got)
	})

	t.Run("count includes null values", func(t *testing.T) {
		out, err := pivot.Pivot(df, pivot.Spec{
			Rows: spec.Rows, Columns: spec.Columns, Values: spec.Values, Agg: pivot.AggCount,
		}, mem)
		require.NoError(t, err)
		defer out.Release()

		assert.Equal(t, "2", testutil.ColumnStrings(t, out, "LAZADA")[0])
		assert.Equal(t, "1", testutil.ColumnStrings(t, out, "SHOPEE")[1])

		var total int64
		for _, name := range []string{"LAZADA", "SHOPEE", "TOKOPEDIA"} {
			c, _ := out.Column(name)
			for _, v := range c.(*series.Series[int64]).Values() {
				total += v
			}
		}
		assert.Equal(t, int64(df.Len()), total)
	})

	t.Run("mean excludes nulls from the denominator", func(t *testing.T) {
		out, err := pivot.Pivot(df, pivot.Spec{
			Rows: spec.Rows, Columns: spec.Columns, Values: spec.Values, Agg: pivot.AggMean,
		}, mem)
		require.NoError(t, err)
		defer out.Release()

		assert.Equal(t, "5", testutil.ColumnStrings(t, out, "LAZADA")[0])
		assert.Equal(t, "0", testutil.ColumnStrings(t, out, "SHOPEE")[1])
	})

	t.Run("min and max on a float column", func(t *testing.T) {
		maxOut, err := pivot.Pivot(df, pivot.Spec{
			Rows: []string{"Ecommerce"}, Columns: []string{"SKU"}, Values: "Amount", Agg: pivot.AggMax,
		}, mem)
		require.NoError(t, err)
		defer maxOut.Release()

		minOut, err := pivot.Pivot(df, pivot.Spec{
			Rows: []string{"Ecommerce"}, Columns: []string{"SKU"}, Values: "Amount", Agg: pivot.AggMin,
		}, mem)
		require.NoError(t, err)
		defer minOut.Release()

		dt, _ := maxOut.DataTypeOf("SKU-A")
		assert.Equal(t, arrow.FLOAT64, dt.ID())

		// LAZADA with SKU-A: rows 0 (6.25) and 9 (null).
		assert.Equal(t, "6.25", testutil.ColumnStrings(t, maxOut, "SKU-A")[0])
		assert.Equal(t, "6.25", testutil.ColumnStrings(t, minOut, "SKU-A")[0])
		// TOKOPEDIA with SKU-B: rows 2 (18.75) and 11 (75).
		assert.Equal(t, "75", testutil.ColumnStrings(t, maxOut, "SKU-B")[2])
		assert.Equal(t, "18.75", testutil.ColumnStrings(t, minOut, "SKU-B")[2])
	})
}

func TestPivot_ColumnLabels(t *testing.T) {
	mem := memory.NewGoAllocator()

	t.Run("multi-key labels join with underscore", func(t *testing.T) {
		df := testutil.SalesDataFrame(mem)
		defer df.Release()

		out, err := pivot.Pivot(df, pivot.Spec{
			Rows: []string{"Year"}, Columns: []string{"Ecommerce", "SKU"}, Values: "QTY", Agg: pivot.AggSum,
		}, mem)
		require.NoError(t, err)
		defer out.Release()

		testutil.AssertDataFrameHasColumns(t, out, []string{
			"Year",
			"LAZADA_SKU-A", "SHOPEE_SKU-A", "TOKOPEDIA_SKU-B",
			"LAZADA_SKU-B", "TOKOPEDIA_SKU-A", "SHOPEE_SKU-B",
		})
	})

	t.Run("null key renders as null", func(t *testing.T) {
		platform, err := series.NewNullable("platform", []string{"A", "", "A"}, []bool{true, false, true}, mem)
		require.NoError(t, err)
		df := dataframe.New(
			series.New("k", []string{"x", "x", "y"}, mem),
			platform,
			series.New("v", []int64{1, 2, 3}, mem),
		)
		defer df.Release()

		out, err := pivot.Pivot(df, pivot.Spec{
			Rows: []string{"k"}, Columns: []string{"platform"}, Values: "v", Agg: pivot.AggSum,
		}, mem)
		require.NoError(t, err)
		defer out.Release()

		testutil.AssertDataFrameHasColumns(t, out, []string{"k", "A", "null"})
		assert.Equal(t, []string{"1", "3"}, testutil.ColumnStrings(t, out, "A"))
		assert.Equal(t, []string{"2", "0"}, testutil.ColumnStrings(t, out, "null"))
	})

	t.Run("colliding labels get a numeric suffix", func(t *testing.T) {
		df := dataframe.New(
			series.New("a", []string{"x", "x"}, mem),
			series.New("left", []string{"p_q", "p"}, mem),
			series.New("right", []string{"r", "q_r"}, mem),
			series.New("v", []int64{1, 2}, mem),
		)
		defer df.Release()

		out, err := pivot.Pivot(df, pivot.Spec{
			Rows: []string{"a"}, Columns: []string{"left", "right"}, Values: "v", Agg: pivot.AggSum,
		}, mem)
		require.NoError(t, err)
		defer out.Release()

		testutil.AssertDataFrameHasColumns(t, out, []string{"a", "p_q_r", "p_q_r_2"})
		assert.Equal(t, []string{"1"}, testutil.ColumnStrings(t, out, "p_q_r"))
		assert.Equal(t, []string{"2"}, testutil.ColumnStrings(t, out, "p_q_r_2"))
	})

	t.Run("label equal to a row key is suffixed", func(t *testing.T) {
		df := dataframe.New(
			series.New("x", []string{"r1", "r2"}, mem),
			series.New("c", []string{"x", "y"}, mem),
			series.New("v", []float64{1.5, 2.5}, mem),
		)
		defer df.Release()

		out, err := pivot.Pivot(df, pivot.Spec{
			Rows: []string{"x"}, Columns: []string{"c"}, Values: "v", Agg: pivot.AggSum,
		}, mem)
		require.NoError(t, err)
		defer out.Release()

		testutil.AssertDataFrameHasColumns(t, out, []string{"x", "x_2", "y"})
		assert.Equal(t, []string{"1.5", "0"}, testutil.ColumnStrings(t, out, "x_2"))
	})
}

func TestResolveAndRun(t *testing.T) {
	mem := memory.NewGoAllocator()
	df := testutil.ScenarioDataFrame(mem)
	defer df.Release()

	full := pivot.Spec{Rows: []string{"year"}, Columns: []string{"platform"}, Values: "qty"}

	incomplete := []pivot.Spec{
		{Columns: full.Columns, Values: full.Values},
		{Rows: full.Rows, Values: full.Values},
		{Rows: full.Rows, Columns: full.Columns},
		{},
	}
	for _, spec := range incomplete {
		assert.IsType(t, pivot.PassThrough{}, pivot.Resolve(spec), spec.String())
	}

	req := pivot.Resolve(full)
	require.IsType(t, pivot.FullPivot{}, req)
	assert.Equal(t, full, req.(pivot.FullPivot).Spec)

	t.Run("pass-through returns the input itself", func(t *testing.T) {
		out, err := pivot.Run(df, pivot.PassThrough{}, mem)
		require.NoError(t, err)
		assert.Same(t, df, out)
	})

	t.Run("full pivot reshapes", func(t *testing.T) {
		out, err := pivot.Run(df, req, mem)
		require.NoError(t, err)
		defer out.Release()

		assert.NotSame(t, df, out)
		testutil.AssertDataFrameHasColumns(t, out, []string{"year", "LAZADA", "SHOPEE"})
	})
}
