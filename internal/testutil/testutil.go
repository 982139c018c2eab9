// Package testutil provides common testing utilities shared by the pipeline
// packages: memory setup, the reference sales datasets, and frame assertions.
package testutil

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// defaultRowCount is the default number of rows in generated sales frames.
	defaultRowCount = 12
)

// TestMemoryContext provides memory allocator with automatic cleanup.
type TestMemoryContext struct {
	Allocator memory.Allocator
	cleanup   func()
}

// Release performs cleanup of the memory context.
func (tmc *TestMemoryContext) Release() {
	if tmc.cleanup != nil {
		tmc.cleanup()
	}
}

// SetupMemoryTest creates a memory allocator for tests.
// Returns a TestMemoryContext that should be released with defer.
//
//	mem := testutil.SetupMemoryTest(t)
//	defer mem.Release()
func SetupMemoryTest(tb testing.TB) *TestMemoryContext {
	tb.Helper()
	allocator := memory.NewCheckedAllocator(memory.NewGoAllocator())

	return &TestMemoryContext{
		Allocator: allocator,
		cleanup:   func() {},
	}
}

// ScenarioDataFrame returns the four-row reference frame:
//
//	platform: LAZADA, SHOPEE, LAZADA, SHOPEE
//	year:     2022,   2022,   2023,   2023
//	qty:      10,     20,     30,     40
func ScenarioDataFrame(allocator memory.Allocator) *dataframe.DataFrame {
	return dataframe.New(
		series.New("platform", []string{"LAZADA", "SHOPEE", "LAZADA", "SHOPEE"}, allocator),
		series.New("year", []int64{2022, 2022, 2023, 2023}, allocator),
		series.New("qty", []int64{10, 20, 30, 40}, allocator),
	)
}

// SalesOption configures SalesDataFrame.
type SalesOption func(*salesConfig)

type salesConfig struct {
	rowCount     int
	includeNulls bool
}

// WithRowCount sets the number of generated rows.
func WithRowCount(count int) SalesOption {
	return func(cfg *salesConfig) {
		cfg.rowCount = count
	}
}

// WithNulls marks every fifth QTY and Amount value as null.
func WithNulls() SalesOption {
	return func(cfg *salesConfig) {
		cfg.includeNulls = true
	}
}

// SalesDataFrame generates an e-commerce sales frame with the columns
// Ecommerce, Year, Month, SKU, QTY and Amount.
func SalesDataFrame(allocator memory.Allocator, opts ...SalesOption) *dataframe.DataFrame {
	cfg := &salesConfig{rowCount: defaultRowCount}
	for _, opt := range opts {
		opt(cfg)
	}

	platforms := []string{"LAZADA", "SHOPEE", "TOKOPEDIA"}
	skus := []string{"SKU-A", "SKU-B"}

	ecommerce := make([]string, cfg.rowCount)
	years := make([]int64, cfg.rowCount)
	months := make([]int64, cfg.rowCount)
	sku := make([]string, cfg.rowCount)
	qty := make([]int64, cfg.rowCount)
	amount := make([]float64, cfg.rowCount)
	var valid []bool
	if cfg.includeNulls {
		valid = make([]bool, cfg.rowCount)
	}

	for i := range cfg.rowCount {
		ecommerce[i] = platforms[i%len(platforms)]
		years[i] = int64(2021 + (i/len(platforms))%3)
		months[i] = int64(1 + i%12)
		sku[i] = skus[(i/2)%len(skus)]
		qty[i] = int64(5 * (i + 1))
		amount[i] = float64(qty[i]) * 1.25
		if valid != nil {
			valid[i] = i%5 != 4
		}
	}

	qtySeries, err := series.NewNullable("QTY", qty, valid, allocator)
	if err != nil {
		panic(err)
	}
	amountSeries, err := series.NewNullable("Amount", amount, valid, allocator)
	if err != nil {
		panic(err)
	}

	return dataframe.New(
		series.New("Ecommerce", ecommerce, allocator),
		series.New("Year", years, allocator),
		series.New("Month", months, allocator),
		series.New("SKU", sku, allocator),
		qtySeries,
		amountSeries,
	)
}

// ColumnStrings returns the canonical text of every cell in a column.
func ColumnStrings(t *testing.T, df *dataframe.DataFrame, name string) []string {
	t.Helper()

	col, ok := df.Column(name)
	require.True(t, ok, "column %s should exist", name)

	out := make([]string, col.Len())
	for i := range out {
		out[i] = col.GetAsString(i)
	}
	return out
}

// AssertDataFrameEqual performs deep equality comparison of DataFrames.
func AssertDataFrameEqual(t *testing.T, expected, actual *dataframe.DataFrame) {
	t.Helper()

	require.NotNil(t, expected, "expected DataFrame should not be nil")
	require.NotNil(t, actual, "actual DataFrame should not be nil")

	assert.Equal(t, expected.Len(), actual.Len(), "DataFrame lengths should match")
	assert.Equal(t, expected.Columns(), actual.Columns(), "DataFrame columns should match")

	for _, colName := range expected.Columns() {
		assert.Equal(t, ColumnStrings(t, expected, colName), ColumnStrings(t, actual, colName),
			"column %s data should match", colName)
	}
	assert.True(t, expected.Equal(actual), "DataFrames should be equal including types and nulls")
}

// AssertDataFrameHasColumns verifies that a DataFrame has exactly the expected columns in order.
func AssertDataFrameHasColumns(t *testing.T, df *dataframe.DataFrame, expectedColumns []string) {
	t.Helper()

	require.NotNil(t, df, "DataFrame should not be nil")
	assert.Equal(t, expectedColumns, df.Columns(), "columns should match")
}
