package grid

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/pivotgrid/internal/dataframe"
	"github.com/paveg/pivotgrid/internal/errors"
	pgio "github.com/paveg/pivotgrid/internal/io"
)

const opExport = "grid.Export"

// Format is a download format.
type Format string

// Supported download formats.
const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatJSON    Format = "json"
)

// ParseFormat maps a name such as "csv" to its Format. Empty means CSV.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatParquet, FormatJSON:
		return f, nil
	default:
		return "", errors.NewInvalidInputError(opExport, fmt.Sprintf("unsupported export format %q", name))
	}
}

// Artifact names a download.
type Artifact struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

// ArtifactFor returns the artifact for format, replacing the extension of
// baseName (for example pivot_table.csv) with the format's own.
func ArtifactFor(format Format, baseName string) Artifact {
	stem := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	switch format {
	case FormatParquet:
		return Artifact{FileName: stem + ".parquet", ContentType: "application/vnd.apache.parquet"}
	case FormatJSON:
		return Artifact{FileName: stem + ".json", ContentType: "application/json"}
	default:
		return Artifact{FileName: stem + ".csv", ContentType: "text/csv; charset=utf-8"}
	}
}

// Export writes df to w. CSV is UTF-8, comma separated, with a header row.
func Export(w io.Writer, df *dataframe.DataFrame, format Format, mem memory.Allocator) error {
	var writer pgio.DataWriter
	switch format {
	case FormatCSV:
		writer = pgio.NewCSVWriter(w, pgio.DefaultCSVOptions())
	case FormatParquet:
		writer = pgio.NewParquetWriter(w, pgio.DefaultParquetOptions(), mem)
	case FormatJSON:
		writer = pgio.NewJSONWriter(w, false)
	default:
		return errors.NewInvalidInputError(opExport, fmt.Sprintf("unsupported export format %q", format))
	}

	if err := writer.Write(df); err != nil {
		return errors.NewInternalError(opExport, err)
	}
	return nil
}
