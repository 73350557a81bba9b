package panel

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// timeLayouts are accepted when parsing row labels, most specific first.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type panelJSON struct {
	Times   []string     `json:"times,omitempty"`
	Symbols []string     `json:"symbols,omitempty"`
	Rows    [][]*float64 `json:"rows"`
}

// MarshalJSON encodes the panel with missing cells as null. Plain NaN is not
// representable in JSON, so the codec is the only way panels cross the wire.
func (p *Panel) MarshalJSON() ([]byte, error) {
	out := panelJSON{Symbols: p.symbols, Rows: make([][]*float64, p.rows)}
	if p.times != nil {
		out.Times = make([]string, len(p.times))
		for i, t := range p.times {
			out.Times[i] = t.UTC().Format(time.RFC3339)
		}
	}
	for i := 0; i < p.rows; i++ {
		row := make([]*float64, p.cols)
		for j := 0; j < p.cols; j++ {
			if v := p.At(i, j); !math.IsNaN(v) {
				f := v
				row[j] = &f
			}
		}
		out.Rows[i] = row
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the null-for-missing representation.
func (p *Panel) UnmarshalJSON(b []byte) error {
	var in panelJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return fmt.Errorf("failed to decode panel: %w", err)
	}
	if len(in.Rows) == 0 {
		return fmt.Errorf("panel payload has no rows")
	}
	cols := len(in.Rows[0])
	if cols == 0 {
		return fmt.Errorf("panel payload has no columns")
	}
	np := New(len(in.Rows), cols)
	for i, row := range in.Rows {
		if len(row) != cols {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		for j, cell := range row {
			if cell != nil {
				np.Set(i, j, *cell)
			}
		}
	}
	if in.Symbols != nil {
		if err := np.SetSymbols(in.Symbols); err != nil {
			return err
		}
	}
	if in.Times != nil {
		ts := make([]time.Time, len(in.Times))
		for i, s := range in.Times {
			t, err := ParseTime(s)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			ts[i] = t
		}
		if err := np.SetTimes(ts); err != nil {
			return err
		}
	}
	*p = *np
	return nil
}

// ParseTime parses a row label using the accepted layouts.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseCell parses one CSV/spreadsheet cell. Empty and "NaN" (any case)
// mean missing.
func ParseCell(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad numeric cell %q", s)
	}
	return v, nil
}

// ReadCSV parses a panel from a header plus one record per row. The first
// header field names the row-label column; when it is "row" the labels are
// bare indices and no timestamps are attached, otherwise labels must parse
// as timestamps. Remaining header fields are column symbols.
func ReadCSV(r io.Reader) (*Panel, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("header needs a label column and at least one symbol")
	}
	symbols := header[1:]
	indexed := header[0] == "row"

	var (
		rows  [][]float64
		times []time.Time
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("line %d: got %d fields, want %d", line, len(rec), len(header))
		}
		if !indexed {
			t, err := ParseTime(rec[0])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			times = append(times, t)
		}
		row := make([]float64, len(symbols))
		for j, cell := range rec[1:] {
			v, err := ParseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %s: %w", line, symbols[j], err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}

	p, err := FromRows(rows)
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

// WriteCSV writes the panel with full float precision and empty cells for
// missing values.
func WriteCSV(w io.Writer, p *Panel) error {
	return WriteCSVWith(w, p, func(v float64) string {
		return strconv.FormatFloat(v, 'g', -1, 64)
	})
}

// WriteCSVWith writes the panel formatting each non-missing cell with format.
func WriteCSVWith(w io.Writer, p *Panel, format func(float64) string) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, p.cols+1)
	if p.times != nil {
		header = append(header, "timestamp")
	} else {
		header = append(header, "row")
	}
	for j := 0; j < p.cols; j++ {
		header = append(header, p.Symbol(j))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	rec := make([]string, len(header))
	for i := 0; i < p.rows; i++ {
		if t, ok := p.Time(i); ok {
			rec[0] = t.UTC().Format(time.RFC3339)
		} else {
			rec[0] = strconv.Itoa(i)
		}
		for j := 0; j < p.cols; j++ {
			if v := p.At(i, j); math.IsNaN(v) {
				rec[j+1] = ""
			} else {
				rec[j+1] = format(v)
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
