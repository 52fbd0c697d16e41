package trialio

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/fitk/internal/model"
)

// ReadXLSX parses a trial table from the first sheet of an XLSX workbook.
// Row numbers in validation errors are 1-based spreadsheet rows.
func ReadXLSX(path string, layout Layout) (model.Trials, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("xlsx: %s has no sheets", path)
	}

	p := newParser(layout)
	for i, row := range f.Sheets[0].Rows {
		if i < layout.SkipRows {
			continue
		}
		if err := p.add(i+1, rowToStrings(row)); err != nil {
			return nil, err
		}
	}
	return p.result()
}

// WriteXLSX saves trials to a single-sheet workbook with a header row.
func WriteXLSX(path string, trials model.Trials) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("trials")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, name := range model.TrialColumns {
		header.AddCell().SetString(name)
	}
	for _, t := range trials {
		row := sheet.AddRow()
		row.AddCell().SetFloat(t.SSAmount)
		row.AddCell().SetFloat(t.SSDelay)
		row.AddCell().SetFloat(t.LLAmount)
		row.AddCell().SetFloat(t.LLDelay)
		row.AddCell().SetInt(int(t.Choice))
	}

	return eris.Wrap(f.Save(path), "xlsx: save")
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
