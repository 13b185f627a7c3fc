package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/model"
)

// bom makes spreadsheet tools detect UTF-8.
const bom = "\ufeff"

// Value renders the value at path for a cell. Lists are joined with "; "
// and objects become JSON.
func Value(r model.Record, path string) string {
	v, ok := r.Path(path)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = cellScalar(item)
		}
		return strings.Join(parts, "; ")
	case []string:
		return strings.Join(t, "; ")
	}
	return cellScalar(v)
}

func cellScalar(v any) string {
	switch v.(type) {
	case map[string]any, model.Record:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return model.ToString(v)
}

// Rows renders records as string rows in column order.
func Rows(records []model.Record, cols []Column) [][]string {
	out := make([][]string, len(records))
	for i, r := range records {
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = Value(r, c.Path)
		}
		out[i] = row
	}
	return out
}

// WriteCSV writes a BOM, an optional header row and one row per record.
// Fields holding a comma, quote or newline are quoted with quotes doubled.
// encoding/csv also quotes fields that start with whitespace and the
// literal field `\.`.
func WriteCSV(w io.Writer, records []model.Record, cols []Column, header bool) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return eris.Wrap(err, "export: write bom")
	}
	cw := csv.NewWriter(w)
	if header {
		labels := make([]string, len(cols))
		for i, c := range cols {
			labels[i] = c.Header()
		}
		if err := cw.Write(labels); err != nil {
			return eris.Wrap(err, "export: write header")
		}
	}
	if err := cw.WriteAll(Rows(records, cols)); err != nil {
		return eris.Wrap(err, "export: write rows")
	}
	return nil
}

// FileName is the export file name for a channel on a day.
func FileName(channelID string, day time.Time, ext string) string {
	return fmt.Sprintf("%s_leads_%s.%s", channelID, day.UTC().Format("2006-01-02"), ext)
}

// WriteCSVFile writes the export into dir and returns its path.
func WriteCSVFile(dir, channelID string, day time.Time, records []model.Record, cols []Column) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "export: mkdir %s", dir)
	}
	path := filepath.Join(dir, FileName(channelID, day, "csv"))
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrap(err, "export: create csv")
	}
	if err := WriteCSV(f, records, cols, true); err != nil {
		f.Close() //nolint:errcheck
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrap(err, "export: close csv")
	}
	return path, nil
}
