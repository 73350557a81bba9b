// Package panel provides the dense time-by-asset matrix that factor inputs
// and signal outputs share. Cells are float64; NaN marks a missing
// observation. Row index is the time axis, column index is the asset axis.
package panel

import (
	"fmt"
	"math"
	"time"
)

// Missing returns the sentinel stored in cells with no observation.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing sentinel.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Panel is a dense rows x cols matrix backed by a single row-major slice.
// Timestamps and symbols are optional labels; the numeric core ignores them.
type Panel struct {
	rows, cols int
	data       []float64
	times      []time.Time
	symbols    []string
}

// New returns a rows x cols panel with every cell missing.
// Dimensions must be non-negative.
func New(rows, cols int) *Panel {
	p := &Panel{rows: rows, cols: cols, data: make([]float64, rows*cols)}
	for i := range p.data {
		p.data[i] = math.NaN()
	}
	return p
}

// FromRows builds a panel from a slice of equal-length rows.
func FromRows(rows [][]float64) (*Panel, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("panel needs at least one row")
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, fmt.Errorf("panel needs at least one column")
	}
	p := &Panel{rows: len(rows), cols: cols, data: make([]float64, 0, len(rows)*cols)}
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(r), cols)
		}
		p.data = append(p.data, r...)
	}
	return p, nil
}

// Rows returns the number of time steps.
func (p *Panel) Rows() int { return p.rows }

// Cols returns the number of assets.
func (p *Panel) Cols() int { return p.cols }

// At returns the cell at row i, column j.
func (p *Panel) At(i, j int) float64 { return p.data[i*p.cols+j] }

// Set stores v at row i, column j.
func (p *Panel) Set(i, j int, v float64) { p.data[i*p.cols+j] = v }

// Row returns the backing slice for row i. The slice aliases the panel;
// callers that need an independent copy use CopyRow.
func (p *Panel) Row(i int) []float64 {
	return p.data[i*p.cols : (i+1)*p.cols]
}

// CopyRow copies row i into dst, which must have length Cols.
func (p *Panel) CopyRow(dst []float64, i int) {
	copy(dst, p.Row(i))
}

// CopyRowFrom overwrites row i with src, which must have length Cols.
func (p *Panel) CopyRowFrom(i int, src []float64) {
	copy(p.Row(i), src)
}

// Clone returns a deep copy including labels.
func (p *Panel) Clone() *Panel {
	out := &Panel{rows: p.rows, cols: p.cols, data: make([]float64, len(p.data))}
	copy(out.data, p.data)
	if p.times != nil {
		out.times = make([]time.Time, len(p.times))
		copy(out.times, p.times)
	}
	if p.symbols != nil {
		out.symbols = make([]string, len(p.symbols))
		copy(out.symbols, p.symbols)
	}
	return out
}

// EmptyLike returns an all-missing panel with p's shape and labels.
func (p *Panel) EmptyLike() *Panel {
	out := New(p.rows, p.cols)
	out.times = p.times
	out.symbols = p.symbols
	return out
}

// SetTimes attaches one timestamp per row.
func (p *Panel) SetTimes(ts []time.Time) error {
	if len(ts) != p.rows {
		return fmt.Errorf("got %d timestamps for %d rows", len(ts), p.rows)
	}
	p.times = ts
	return nil
}

// Times returns the row timestamps, or nil when unlabeled.
func (p *Panel) Times() []time.Time { return p.times }

// Time returns the timestamp of row i and whether one is attached.
func (p *Panel) Time(i int) (time.Time, bool) {
	if p.times == nil {
		return time.Time{}, false
	}
	return p.times[i], true
}

// SetSymbols attaches one symbol per column.
func (p *Panel) SetSymbols(syms []string) error {
	if len(syms) != p.cols {
		return fmt.Errorf("got %d symbols for %d columns", len(syms), p.cols)
	}
	p.symbols = syms
	return nil
}

// Symbols returns the column symbols, or nil when unlabeled.
func (p *Panel) Symbols() []string { return p.symbols }

// Symbol returns the label for column j, falling back to "C<j>".
func (p *Panel) Symbol(j int) string {
	if p.symbols != nil {
		return p.symbols[j]
	}
	return fmt.Sprintf("C%d", j)
}

// ValidInRow counts the non-missing cells of row i.
func (p *Panel) ValidInRow(i int) int {
	n := 0
	for _, v := range p.Row(i) {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Equal reports cell-for-cell equality of shape and values, treating
// missing cells as equal to each other. Labels are ignored.
func (p *Panel) Equal(q *Panel) bool {
	if p.rows != q.rows || p.cols != q.cols {
		return false
	}
	for i, v := range p.data {
		w := q.data[i]
		if math.IsNaN(v) && math.IsNaN(w) {
			continue
		}
		if v != w {
			return false
		}
	}
	return true
}
