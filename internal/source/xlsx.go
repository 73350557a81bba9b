package source

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/crossrank/crossrank/internal/panel"
)

// XLSXSource reads a factor panel from a spreadsheet. The expected layout
// matches the CSV form: a header of "timestamp" (or "row") plus one column
// per symbol, then one record per time step.
type XLSXSource struct {
	path  string
	sheet string // explicit sheet name, discovered when empty
}

// NewXLSX returns a source for the workbook at path. sheet may be empty, in
// which case the first sheet with a panel-shaped header is used.
func NewXLSX(path, sheet string) *XLSXSource {
	return &XLSXSource{path: path, sheet: sheet}
}

func (s *XLSXSource) Name() string {
	return "xlsx:" + filepath.Base(s.path)
}

// Fetch opens the workbook and parses the panel sheet.
func (s *XLSXSource) Fetch(ctx context.Context) (*panel.Panel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := s.panelRows(f)
	if err != nil {
		return nil, err
	}
	return buildPanel(rows)
}

// panelRows locates the sheet holding the panel and returns its cells.
func (s *XLSXSource) panelRows(f *excelize.File) ([][]string, error) {
	if s.sheet != "" {
		rows, err := f.GetRows(s.sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", s.sheet, err)
		}
		return rows, nil
	}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) < 2 {
			continue
		}
		if isPanelHeader(rows[0]) {
			return rows, nil
		}
	}
	return nil, fmt.Errorf("no sheet in %s has a panel header", s.path)
}

// isPanelHeader accepts a label column followed by at least one symbol.
func isPanelHeader(header []string) bool {
	if len(header) < 2 {
		return false
	}
	switch header[0] {
	case "timestamp", "row":
		return true
	}
	return false
}

// buildPanel converts sheet cells into a panel. Spreadsheet rows arrive
// with trailing empty cells trimmed, so short records are padded back out
// to the header width as missing.
func buildPanel(rows [][]string) (*panel.Panel, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet needs a header and at least one record")
	}
	header := rows[0]
	if !isPanelHeader(header) {
		return nil, fmt.Errorf("sheet header must start with timestamp or row, got %q", header)
	}
	symbols := header[1:]
	indexed := header[0] == "row"

	var (
		values [][]float64
		times  []time.Time
	)
	for i, rec := range rows[1:] {
		line := i + 2
		if len(rec) > len(header) {
			return nil, fmt.Errorf("row %d: got %d cells, want at most %d", line, len(rec), len(header))
		}
		if len(rec) == 0 || rec[0] == "" {
			return nil, fmt.Errorf("row %d: empty label", line)
		}
		if !indexed {
			t, err := panel.ParseTime(rec[0])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", line, err)
			}
			times = append(times, t)
		}
		row := make([]float64, len(symbols))
		for j := range symbols {
			cell := ""
			if j+1 < len(rec) {
				cell = rec[j+1]
			}
			v, err := panel.ParseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", line, symbols[j], err)
			}
			row[j] = v
		}
		values = append(values, row)
	}

	p, err := panel.FromRows(values)
	if err != nil {
		return nil, err
	}
	if err := p.SetSymbols(symbols); err != nil {
		return nil, err
	}
	if !indexed {
		if err := p.SetTimes(times); err != nil {
			return nil, err
		}
	}
	return p, nil
}
