package signal

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossrank/crossrank/internal/panel"
)

func mustEngine(t *testing.T, params Params) *Engine {
	t.Helper()
	e, err := NewEngine(params)
	require.NoError(t, err)
	return e
}

// assertSameDecisions compares stats field by field; threshold bounds of
// missing decisions are NaN and would trip DeepEqual.
func assertSameDecisions(t *testing.T, want, got []RowStat) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		assert.Equal(t, w.Row, g.Row)
		assert.Equal(t, w.Valid, g.Valid)
		assert.Equal(t, w.TailSize, g.TailSize)
		assert.Equal(t, w.Longs, g.Longs)
		assert.Equal(t, w.Shorts, g.Shorts)
		assert.Equal(t, w.Missing, g.Missing)
		if !w.Missing {
			assert.Equal(t, w.Thresholds, g.Thresholds, "row %d", w.Row)
		}
	}
}

func mustPanel(t *testing.T, rows [][]float64) *panel.Panel {
	t.Helper()
	p, err := panel.FromRows(rows)
	require.NoError(t, err)
	return p
}

// randomPanel builds a reproducible panel with a sprinkling of missing cells.
func randomPanel(t *testing.T, rows, cols int, seed int64) *panel.Panel {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	p := panel.New(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if rng.Float64() < 0.1 {
				continue // leave missing
			}
			p.Set(i, j, rng.NormFloat64()*10)
		}
	}
	return p
}

func TestNewEngine_RejectsBadParams(t *testing.T) {
	cases := []struct {
		name   string
		params Params
		want   string
	}{
		{"zero percent", Params{Percent: 0, HoldDays: 1, Policy: Continuous}, "percent"},
		{"negative percent", Params{Percent: -0.1, HoldDays: 1, Policy: Continuous}, "percent"},
		{"percent above half", Params{Percent: 0.51, HoldDays: 1, Policy: Continuous}, "percent"},
		{"zero hold", Params{Percent: 0.25, HoldDays: 0, Policy: Periodic}, "hold_days"},
		{"negative workers", Params{Percent: 0.25, HoldDays: 1, Policy: Continuous, Workers: -1}, "workers"},
		{"bad policy", Params{Percent: 0.25, HoldDays: 1, Policy: "sometimes"}, "policy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEngine(tc.params)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	e, err := NewEngine(Params{Percent: 0.5, HoldDays: 1, Policy: Continuous})
	require.NoError(t, err, "boundary percent 0.5 is allowed")
	assert.Equal(t, 0.5, e.Params().Percent)
}

func TestEngine_Compute_RejectsNilAndEmpty(t *testing.T) {
	e := mustEngine(t, DefaultParams())

	_, err := e.Compute(nil)
	assert.Error(t, err)

	_, err = e.Compute(panel.New(0, 0))
	assert.Error(t, err)
}

func TestEngine_Compute_SingleRowTails(t *testing.T) {
	e := mustEngine(t, Params{Percent: 0.25, HoldDays: 1, Policy: Continuous})

	res, err := e.Compute(mustPanel(t, [][]float64{{1, 2, 3, 4}}))
	require.NoError(t, err)

	assert.Equal(t, []float64{Short, Flat, Flat, Long}, res.Signals.Row(0))
	require.Len(t, res.Decisions, 1)
	st := res.Decisions[0]
	assert.Equal(t, 4, st.Valid)
	assert.Equal(t, 1, st.TailSize)
	assert.Equal(t, 1, st.Longs)
	assert.Equal(t, 1, st.Shorts)
	assert.False(t, st.Missing)
}

func TestEngine_Compute_InsufficientRowIsMissing(t *testing.T) {
	e := mustEngine(t, Params{Percent: 0.25, HoldDays: 1, Policy: Continuous})

	res, err := e.Compute(mustPanel(t, [][]float64{{math.NaN(), 5, 10, 15}}))
	require.NoError(t, err)

	for j := 0; j < 4; j++ {
		assert.True(t, panel.IsMissing(res.Signals.At(0, j)), "column %d", j)
	}
	require.Len(t, res.Decisions, 1)
	assert.True(t, res.Decisions[0].Missing)
	assert.Equal(t, 3, res.Decisions[0].Valid)
	assert.Equal(t, 0, res.Decisions[0].TailSize)
	assert.Equal(t, 1, res.MissingDecisions())
}

func TestEngine_Compute_PeriodicHoldRepeatsDecisionRow(t *testing.T) {
	e := mustEngine(t, Params{Percent: 0.25, HoldDays: 2, Policy: Periodic})

	res, err := e.Compute(mustPanel(t, [][]float64{
		{1, 2, 3, 4},
		{4, 3, 2, 1}, // reversed, but row 1 is inside the hold window
	}))
	require.NoError(t, err)

	want := []float64{Short, Flat, Flat, Long}
	assert.Equal(t, want, res.Signals.Row(0))
	assert.Equal(t, want, res.Signals.Row(1), "held row must repeat the decision row")
	assert.Len(t, res.Decisions, 1, "two rows at hold 2 is one decision")
}

func TestEngine_Compute_PeriodicDecisionSpacing(t *testing.T) {
	e := mustEngine(t, Params{Percent: 0.25, HoldDays: 3, Policy: Periodic})

	p := randomPanel(t, 10, 8, 7)
	res, err := e.Compute(p)
	require.NoError(t, err)

	require.Len(t, res.Decisions, 4, "ceil(10/3)")
	rows := []int{res.Decisions[0].Row, res.Decisions[1].Row, res.Decisions[2].Row, res.Decisions[3].Row}
	assert.Equal(t, []int{0, 3, 6, 9}, rows)

	for i := 0; i < p.Rows(); i++ {
		if i%3 == 0 {
			continue
		}
		prev := res.Signals.Row(i - 1)
		for j := 0; j < p.Cols(); j++ {
			a, b := res.Signals.At(i, j), prev[j]
			if panel.IsMissing(a) && panel.IsMissing(b) {
				continue
			}
			assert.Equal(t, b, a, "row %d col %d must carry the held signal", i, j)
		}
	}
}

func TestEngine_Compute_MissingDecisionFillsItsWindow(t *testing.T) {
	e := mustEngine(t, Params{Percent: 0.25, HoldDays: 2, Policy: Periodic})

	res, err := e.Compute(mustPanel(t, [][]float64{
		{math.NaN(), 5, 10, math.NaN()}, // 2 valid, tail empty
		{1, 2, 3, 4},                    // held, despite being fully observed
	}))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			assert.True(t, panel.IsMissing(res.Signals.At(i, j)), "row %d col %d", i, j)
		}
	}
}

func TestEngine_Compute_ContinuousEqualsPeriodicHoldOne(t *testing.T) {
	p := randomPanel(t, 40, 12, 99)

	cont := mustEngine(t, Params{Percent: 0.2, HoldDays: 1, Policy: Continuous})
	peri := mustEngine(t, Params{Percent: 0.2, HoldDays: 1, Policy: Periodic})

	a, err := cont.Compute(p)
	require.NoError(t, err)
	b, err := peri.Compute(p)
	require.NoError(t, err)

	assert.True(t, a.Signals.Equal(b.Signals), "hold 1 must match continuous exactly")
	assertSameDecisions(t, a.Decisions, b.Decisions)
}

func TestEngine_Compute_DeterministicAcrossWorkerCounts(t *testing.T) {
	p := randomPanel(t, 60, 20, 1234)

	var base *Result
	for _, workers := range []int{1, 2, 3, 8, 33} {
		e := mustEngine(t, Params{Percent: 0.25, HoldDays: 4, Policy: Periodic, Workers: workers})
		res, err := e.Compute(p)
		require.NoError(t, err)
		if base == nil {
			base = res
			continue
		}
		assert.True(t, base.Signals.Equal(res.Signals), "workers=%d changed the output", workers)
		assertSameDecisions(t, base.Decisions, res.Decisions)
	}
}

func TestEngine_Compute_RepeatInvocationsIdentical(t *testing.T) {
	p := randomPanel(t, 25, 10, 5)
	e := mustEngine(t, Params{Percent: 0.3, HoldDays: 1, Policy: Continuous})

	a, err := e.Compute(p)
	require.NoError(t, err)
	b, err := e.Compute(p)
	require.NoError(t, err)

	assert.True(t, a.Signals.Equal(b.Signals))
}

func TestEngine_Compute_TailCountsNeverExceedTailSize(t *testing.T) {
	p := randomPanel(t, 50, 15, 77)
	e := mustEngine(t, Params{Percent: 0.25, HoldDays: 1, Policy: Continuous})

	res, err := e.Compute(p)
	require.NoError(t, err)

	for _, st := range res.Decisions {
		if st.Missing {
			continue
		}
		assert.Equal(t, st.TailSize, st.Longs, "row %d", st.Row)
		assert.Equal(t, st.TailSize, st.Shorts, "row %d", st.Row)
		assert.Less(t, st.Thresholds.Lower, st.Thresholds.Upper, "row %d bounds ordered", st.Row)
	}
}

func TestEngine_Compute_DoesNotMutateInput(t *testing.T) {
	p := mustPanel(t, [][]float64{{1, 2, 3, 4}})
	before := p.Clone()
	e := mustEngine(t, Params{Percent: 0.25, HoldDays: 1, Policy: Continuous})

	_, err := e.Compute(p)
	require.NoError(t, err)

	assert.True(t, before.Equal(p), "factor panel is read-only")
}

func TestEngine_Compute_CarriesLabels(t *testing.T) {
	p := mustPanel(t, [][]float64{{1, 2, 3, 4}})
	require.NoError(t, p.SetSymbols([]string{"BTC", "ETH", "SOL", "XRP"}))
	e := mustEngine(t, Params{Percent: 0.25, HoldDays: 1, Policy: Continuous})

	res, err := e.Compute(p)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC", "ETH", "SOL", "XRP"}, res.Signals.Symbols())
}

func TestDefaultParams_Valid(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
}
