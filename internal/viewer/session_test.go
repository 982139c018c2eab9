package viewer_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/pivotgrid/internal/config"
	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/errors"
	"github.com/paveg/pivotgrid/internal/filter"
	"github.com/paveg/pivotgrid/internal/grid"
	"github.com/paveg/pivotgrid/internal/monitoring"
	"github.com/paveg/pivotgrid/internal/pivot"
	"github.com/paveg/pivotgrid/internal/source"
	"github.com/paveg/pivotgrid/internal/testutil"
	"github.com/paveg/pivotgrid/internal/viewer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const largeOrdersQuery = "SELECT Ecommerce, QTY FROM " + testutil.SalesTable + " WHERE QTY > 20"

type fixture struct {
	session *viewer.Session
	metrics *monitoring.MetricsCollector
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	mart := testutil.SetupDatamart(t)
	t.Cleanup(mart.Release)

	src, err := source.Open(context.Background(), mart.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	cfg := config.NewConfig()
	cfg.Query = testutil.SalesQuery
	cfg.Queries = map[string]string{"large_orders": largeOrdersQuery}

	mc := monitoring.NewMetricsCollector(true)
	session := viewer.New(src,
		viewer.WithSettings(viewer.SettingsFromConfig(cfg)),
		viewer.WithMetrics(mc),
		viewer.WithAllocator(memory.NewGoAllocator()),
		viewer.WithLogger(slog.New(slog.DiscardHandler)),
	)
	return fixture{session: session, metrics: mc}
}

type failingSource struct {
	err error
}

func (f failingSource) Fetch(context.Context, string) (*dataframe.DataFrame, error) {
	return nil, f.err
}

func TestSession_Default(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.session.Default(ctx, "")
	require.NoError(t, err)
	defer res.Release()

	assert.True(t, res.Pivoted)
	assert.Equal(t, 5, res.FilteredRows)
	assert.Equal(t, []string{"Year"}, res.RowKeys)
	testutil.AssertDataFrameHasColumns(t, res.Data, []string{"Year", "LAZADA", "SHOPEE"})
	assert.Equal(t, []string{"2022", "2023"}, testutil.ColumnStrings(t, res.Data, "Year"))
	assert.Equal(t, []string{"10", "45"}, testutil.ColumnStrings(t, res.Data, "LAZADA"))
	assert.Equal(t, []string{"20", "40"}, testutil.ColumnStrings(t, res.Data, "SHOPEE"))

	hits, misses := fx.session.Cache().Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, 1, fx.session.Cache().Len())
}

func TestSession_Controls(t *testing.T) {
	fx := newFixture(t)

	c, err := fx.session.Controls(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"Ecommerce", "Year", "Month", "OrderDate", "QTY", "Amount"}, c.Columns)
	assert.Equal(t, []string{"large_orders"}, c.Queries)
	assert.Equal(t, []string{"Year", "Month", "QTY", "Amount"}, c.NumericColumns)
	assert.Equal(t, []string{"sum", "mean", "count", "max", "min"}, c.Aggregations)

	require.NotNil(t, c.Categorical)
	assert.Equal(t, []string{"LAZADA", "SHOPEE", "TOKOPEDIA"}, c.Categorical.Values)
	require.NotNil(t, c.Range)
	assert.InDelta(t, 2022.0, c.Range.Min, 1e-9)
	assert.InDelta(t, 2023.0, c.Range.Max, 1e-9)

	assert.Equal(t, []string{"LAZADA", "SHOPEE"}, c.Default.Filter.Memberships["Ecommerce"])
	assert.Equal(t, filter.Range{Min: 2022, Max: 2023}, c.Default.Filter.Ranges["Year"])
	assert.Equal(t, pivot.Spec{Rows: []string{"Year"}, Columns: []string{"Ecommerce"}, Values: "QTY"}, c.Default.Pivot)

	t.Run("misconfigured column", func(t *testing.T) {
		mart := testutil.SetupDatamart(t)
		defer mart.Release()

		settings := viewer.SettingsFromConfig(config.NewConfig())
		settings.Query = testutil.SalesQuery
		settings.CategoricalColumn = "Marketplace"
		session := viewer.New(source.NewSQLSource(mart.DB), viewer.WithSettings(settings))

		_, err := session.Controls(context.Background(), "")
		assert.ErrorIs(t, err, errors.ErrColumnNotFound)
	})
}

func TestSession_Run(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	t.Run("pass-through keeps filtered rows", func(t *testing.T) {
		res, err := fx.session.Run(ctx, viewer.Interaction{
			Filter: filter.Spec{Memberships: map[string][]string{"Ecommerce": {"LAZADA"}}},
			Pivot:  pivot.Spec{Rows: []string{"Year"}},
		})
		require.NoError(t, err)
		defer res.Release()

		assert.False(t, res.Pivoted)
		assert.Equal(t, 3, res.FilteredRows)
		assert.Equal(t, 6, res.Data.Width())
		assert.Equal(t, []string{"10", "30", "15"}, testutil.ColumnStrings(t, res.Data, "QTY"))
	})

	t.Run("mean excludes null amounts", func(t *testing.T) {
		res, err := fx.session.Run(ctx, viewer.Interaction{
			Filter: filter.Spec{Ranges: map[string]filter.Range{"Year": {Min: 2023, Max: 2023}}},
			Pivot:  pivot.Spec{Rows: []string{"Year"}, Columns: []string{"Ecommerce"}, Values: "Amount", Agg: pivot.AggMean},
		})
		require.NoError(t, err)
		defer res.Release()

		testutil.AssertDataFrameHasColumns(t, res.Data, []string{"Year", "LAZADA", "SHOPEE", "TOKOPEDIA"})
		assert.Equal(t, []string{"28.125"}, testutil.ColumnStrings(t, res.Data, "LAZADA"))
		assert.Equal(t, []string{"0"}, testutil.ColumnStrings(t, res.Data, "SHOPEE"))
		assert.Equal(t, []string{"6.25"}, testutil.ColumnStrings(t, res.Data, "TOKOPEDIA"))
	})

	t.Run("no matches", func(t *testing.T) {
		res, err := fx.session.Run(ctx, viewer.Interaction{
			Filter: filter.Spec{Memberships: map[string][]string{"Ecommerce": {}}},
			Pivot:  pivot.Spec{Rows: []string{"Year"}, Columns: []string{"Ecommerce"}, Values: "QTY"},
		})
		require.NoError(t, err)
		defer res.Release()

		assert.Equal(t, 0, res.FilteredRows)
		assert.Equal(t, 0, res.Data.Len())
		testutil.AssertDataFrameHasColumns(t, res.Data, []string{"Year"})
	})

	t.Run("invalid range", func(t *testing.T) {
		_, err := fx.session.Run(ctx, viewer.Interaction{
			Filter: filter.Spec{Ranges: map[string]filter.Range{"Year": {Min: 2024, Max: 2022}}},
		})
		assert.ErrorIs(t, err, errors.ErrInvalidRange)
	})

	t.Run("unknown pivot column", func(t *testing.T) {
		_, err := fx.session.Run(ctx, viewer.Interaction{
			Pivot: pivot.Spec{Rows: []string{"Region"}, Columns: []string{"Ecommerce"}, Values: "QTY"},
		})
		assert.ErrorIs(t, err, errors.ErrColumnNotFound)
	})

	t.Run("named query", func(t *testing.T) {
		res, err := fx.session.Run(ctx, viewer.Interaction{Query: "large_orders"})
		require.NoError(t, err)
		defer res.Release()

		assert.Equal(t, []string{"30", "40"}, testutil.ColumnStrings(t, res.Data, "QTY"))
		assert.Equal(t, 2, fx.session.Cache().Len())
	})

	t.Run("unlisted query text is rejected before fetching", func(t *testing.T) {
		before := fx.session.Cache().Len()
		for _, query := range []string{
			largeOrdersQuery,
			"SELECT name, sql FROM sqlite_master",
			"SELECT * FROM " + testutil.SalesTable + " WHERE Year = 2022",
		} {
			_, err := fx.session.Run(ctx, viewer.Interaction{Query: query})
			assert.ErrorIs(t, err, errors.ErrInvalidInput, query)

			_, err = fx.session.Controls(ctx, query)
			assert.ErrorIs(t, err, errors.ErrInvalidInput, query)
		}
		assert.Equal(t, before, fx.session.Cache().Len())
	})

	t.Run("default query by text", func(t *testing.T) {
		res, err := fx.session.Run(ctx, viewer.Interaction{Query: testutil.SalesQuery})
		require.NoError(t, err)
		defer res.Release()
		assert.Equal(t, 6, res.FilteredRows)
	})

	t.Run("stages are recorded", func(t *testing.T) {
		summary := fx.metrics.GetSummary()
		assert.Positive(t, summary.OperationCounts[monitoring.StageFetch])
		assert.Positive(t, summary.OperationCounts[monitoring.StageFilter])
		assert.Positive(t, summary.OperationCounts[monitoring.StagePivot])
		assert.Positive(t, summary.Failures)
	})

	t.Run("reset cache", func(t *testing.T) {
		fx.session.ResetCache()
		assert.Equal(t, 0, fx.session.Cache().Len())
	})
}

func TestSession_SourceFailure(t *testing.T) {
	mc := monitoring.NewMetricsCollector(true)
	session := viewer.New(
		failingSource{err: errors.NewSourceUnavailableError("fetch", assert.AnError)},
		viewer.WithMetrics(mc),
		viewer.WithLogger(slog.New(slog.DiscardHandler)),
	)

	_, err := session.Run(context.Background(), viewer.Interaction{})
	require.ErrorIs(t, err, errors.ErrSourceUnavailable)

	_, err = session.Controls(context.Background(), "")
	require.ErrorIs(t, err, errors.ErrSourceUnavailable)

	summary := mc.GetSummary()
	assert.Equal(t, 2, summary.OperationCounts[monitoring.StageFetch])
	assert.Equal(t, 0, summary.OperationCounts[monitoring.StageFilter])
	assert.Equal(t, 2, summary.Failures)
	assert.Equal(t, 0, session.Cache().Len())
}

func TestSession_Export(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	c, err := fx.session.Controls(ctx, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	artifact, rows, err := fx.session.Export(ctx, &buf, c.Default, grid.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, 2, rows)
	assert.Equal(t, "pivot_table.csv", artifact.FileName)
	assert.Equal(t, "Year,LAZADA,SHOPEE\n2022,10,20\n2023,45,40\n", buf.String())
	assert.Equal(t, 1, fx.metrics.GetSummary().OperationCounts[monitoring.StageExport])

	_, _, err = fx.session.Export(ctx, &buf, viewer.Interaction{
		Pivot: pivot.Spec{Rows: []string{"Year"}, Columns: []string{"Year"}, Values: "QTY"},
	}, grid.FormatCSV)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
