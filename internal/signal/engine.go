package signal

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/crossrank/crossrank/internal/panel"
)

// Params configure one signal computation.
type Params struct {
	// Percent is the tail fraction per side, in (0, 0.5].
	Percent float64 `yaml:"percent"`
	// HoldDays is the rebalance interval in rows under the periodic
	// policy. Ignored by the continuous policy.
	HoldDays int `yaml:"hold_days" envconfig:"HOLD_DAYS"`
	// Policy selects continuous or periodic rebalancing.
	Policy Policy `yaml:"policy"`
	// Workers caps the goroutines computing decision rows. Zero means
	// one per available CPU.
	Workers int `yaml:"workers"`
}

// DefaultParams returns the stock configuration: 20% tails, continuous
// rebalancing.
func DefaultParams() Params {
	return Params{Percent: 0.2, HoldDays: 1, Policy: Continuous}
}

// Validate rejects out-of-range parameters before any row is touched.
func (p Params) Validate() error {
	if p.Percent <= 0 || p.Percent > 0.5 {
		return fmt.Errorf("percent must be in (0, 0.5], got %g", p.Percent)
	}
	if p.HoldDays < 1 {
		return fmt.Errorf("hold_days must be at least 1, got %d", p.HoldDays)
	}
	if p.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", p.Workers)
	}
	if err := p.Policy.Validate(); err != nil {
		return err
	}
	return nil
}

// hold returns the effective rebalance interval.
func (p Params) hold() int {
	if p.Policy == Continuous {
		return 1
	}
	return p.HoldDays
}

// RowStat describes one decision row of a computation.
type RowStat struct {
	Row        int
	Valid      int
	TailSize   int
	Longs      int
	Shorts     int
	Missing    bool
	Thresholds ThresholdPair
}

// Result carries the signal panel plus per-decision diagnostics.
type Result struct {
	Signals   *panel.Panel
	Decisions []RowStat
}

// MissingDecisions counts decision rows that produced no signal.
func (r *Result) MissingDecisions() int {
	n := 0
	for _, d := range r.Decisions {
		if d.Missing {
			n++
		}
	}
	return n
}

// Engine turns factor panels into signal panels. It is stateless across
// Compute calls and safe for concurrent use.
type Engine struct {
	params Params
}

// NewEngine validates params and returns an engine.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signal params: %w", err)
	}
	return &Engine{params: params}, nil
}

// Params returns the engine's validated parameters.
func (e *Engine) Params() Params { return e.params }

// Compute derives the signal panel for src. src is never mutated; the
// result is freshly allocated. Decision rows are independent and run on a
// worker pool writing disjoint output rows, then held rows are filled in
// one sequential pass, so the output is identical for any worker count.
func (e *Engine) Compute(src *panel.Panel) (*Result, error) {
	if src == nil {
		return nil, fmt.Errorf("factor panel is nil")
	}
	if src.Rows() == 0 || src.Cols() == 0 {
		return nil, fmt.Errorf("factor panel is empty: %dx%d", src.Rows(), src.Cols())
	}

	hold := e.params.hold()
	decisions := decisionRows(src.Rows(), hold)
	out := src.EmptyLike()
	stats := make([]RowStat, len(decisions))

	workers := e.params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(decisions) {
		workers = len(decisions)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tb := make([]float64, src.Cols())
			valid := make([]float64, 0, src.Cols())
			for slot := range jobs {
				stats[slot] = e.computeRow(out, src, decisions[slot], tb, valid)
			}
		}()
	}
	for slot := range decisions {
		jobs <- slot
	}
	close(jobs)
	wg.Wait()

	// Held rows repeat the most recent decision row, including all-missing
	// decisions. Factor values on held rows never reset the carried signal.
	if hold > 1 {
		for i := 1; i < src.Rows(); i++ {
			if i%hold != 0 {
				out.CopyRowFrom(i, out.Row(i-1))
			}
		}
	}

	return &Result{Signals: out, Decisions: stats}, nil
}

// computeRow scores one decision row into dst using the caller's scratch
// buffers. dst rows start all-missing, so an undefined threshold pair
// leaves the row missing without a write.
func (e *Engine) computeRow(dst, src *panel.Panel, row int, tb, valid []float64) RowStat {
	breakTiesInto(tb, src.Row(row))
	valid = valid[:0]
	for _, v := range tb {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}

	st := RowStat{
		Row:      row,
		Valid:    len(valid),
		TailSize: TailSize(len(valid), e.params.Percent),
	}
	st.Thresholds = thresholdsSorted(valid, e.params.Percent)
	if !st.Thresholds.Defined() {
		st.Missing = true
		return st
	}
	st.Longs, st.Shorts = scoreRowInto(dst.Row(row), tb, st.Thresholds)
	return st
}
