package export

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadflow/internal/model"
)

// WriteXLSX writes records to a single-sheet workbook at path.
func WriteXLSX(path, sheetName string, records []model.Record, cols []Column) error {
	if sheetName == "" {
		sheetName = "Leads"
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range cols {
		header.AddCell().SetString(c.Header())
	}
	for _, values := range Rows(records, cols) {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().SetString(v)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "xlsx: mkdir")
	}
	return eris.Wrap(f.Save(path), "xlsx: save")
}
