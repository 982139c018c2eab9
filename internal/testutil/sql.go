package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// SalesTable is the table created by SetupDatamart.
const SalesTable = "ecommerce_sales"

// SalesQuery selects every row of SalesTable.
const SalesQuery = "SELECT * FROM " + SalesTable

// DatamartContext is a temporary SQLite data mart seeded with sales rows.
type DatamartContext struct {
	Path string
	DSN  string
	DB   *sql.DB
}

// Release closes the database handle.
func (ctx *DatamartContext) Release() {
	if ctx.DB != nil {
		_ = ctx.DB.Close()
	}
}

// SetupDatamart creates a SQLite file in a temp dir with an ecommerce_sales table:
//
//	Ecommerce TEXT, Year INTEGER, Month INTEGER, OrderDate DATE, QTY INTEGER, Amount REAL
//
// holding six rows, one of them with a NULL Amount.
func SetupDatamart(t *testing.T) *DatamartContext {
	t.Helper()

	path := filepath.Join(t.TempDir(), "datamart.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	_, err = db.Exec(`CREATE TABLE ` + SalesTable + ` (
		Ecommerce TEXT NOT NULL,
		Year INTEGER NOT NULL,
		Month INTEGER NOT NULL,
		OrderDate DATE,
		QTY INTEGER,
		Amount REAL
	)`)
	require.NoError(t, err)

	rows := []struct {
		platform string
		year     int
		month    int
		date     string
		qty      int
		amount   any
	}{
		{"LAZADA", 2022, 1, "2022-01-15", 10, 12.5},
		{"SHOPEE", 2022, 1, "2022-01-20", 20, 25.0},
		{"LAZADA", 2023, 2, "2023-02-03", 30, 37.5},
		{"SHOPEE", 2023, 2, "2023-02-11", 40, nil},
		{"TOKOPEDIA", 2023, 3, "2023-03-09", 5, 6.25},
		{"LAZADA", 2023, 3, "2023-03-21", 15, 18.75},
	}
	for _, r := range rows {
		_, err = db.Exec(`INSERT INTO `+SalesTable+` (Ecommerce, Year, Month, OrderDate, QTY, Amount)
			VALUES (?, ?, ?, ?, ?, ?)`, r.platform, r.year, r.month, r.date, r.qty, r.amount)
		require.NoError(t, err)
	}

	return &DatamartContext{Path: path, DSN: path, DB: db}
}
