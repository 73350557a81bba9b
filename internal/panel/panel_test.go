package panel

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AllCellsMissing(t *testing.T) {
	p := New(3, 4)

	assert.Equal(t, 3, p.Rows())
	assert.Equal(t, 4, p.Cols())
	for i := 0; i < p.Rows(); i++ {
		for j := 0; j < p.Cols(); j++ {
			assert.True(t, IsMissing(p.At(i, j)), "fresh panel should be all missing")
		}
	}
}

func TestFromRows_ShapeAndValues(t *testing.T) {
	p, err := FromRows([][]float64{
		{1, 2, 3},
		{4, math.NaN(), 6},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, p.Rows())
	assert.Equal(t, 3, p.Cols())
	assert.Equal(t, 4.0, p.At(1, 0))
	assert.True(t, IsMissing(p.At(1, 1)))
}

func TestFromRows_RejectsRaggedAndEmpty(t *testing.T) {
	_, err := FromRows([][]float64{{1, 2}, {3}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")

	_, err = FromRows(nil)
	require.Error(t, err, "empty input should be rejected")

	_, err = FromRows([][]float64{{}})
	require.Error(t, err, "zero-column input should be rejected")
}

func TestPanel_RowAliasesAndCopyRowDoesNot(t *testing.T) {
	p, err := FromRows([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)

	row := p.Row(0)
	row[1] = 99
	assert.Equal(t, 99.0, p.At(0, 1), "Row returns a live view")

	dst := make([]float64, p.Cols())
	p.CopyRow(dst, 1)
	dst[0] = -1
	assert.Equal(t, 3.0, p.At(1, 0), "CopyRow must detach from the backing array")
}

func TestPanel_CopyRowFrom(t *testing.T) {
	p := New(2, 3)
	p.CopyRowFrom(1, []float64{7, 8, 9})

	assert.Equal(t, 8.0, p.At(1, 1))
	assert.True(t, IsMissing(p.At(0, 0)), "other rows untouched")
}

func TestPanel_CloneIsDeep(t *testing.T) {
	p, err := FromRows([][]float64{{1, 2}})
	require.NoError(t, err)
	require.NoError(t, p.SetSymbols([]string{"BTC", "ETH"}))
	require.NoError(t, p.SetTimes([]time.Time{time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)}))

	q := p.Clone()
	q.Set(0, 0, 42)
	q.Symbols()[0] = "XRP"

	assert.Equal(t, 1.0, p.At(0, 0))
	assert.Equal(t, "BTC", p.Symbol(0))
}

func TestPanel_LabelLengthValidation(t *testing.T) {
	p := New(2, 2)

	assert.Error(t, p.SetSymbols([]string{"only-one"}))
	assert.Error(t, p.SetTimes([]time.Time{time.Now()}))
	assert.NoError(t, p.SetSymbols([]string{"A", "B"}))
}

func TestPanel_SymbolFallback(t *testing.T) {
	p := New(1, 2)

	assert.Equal(t, "C1", p.Symbol(1), "unlabeled columns get positional names")
}

func TestPanel_ValidInRow(t *testing.T) {
	p, err := FromRows([][]float64{{math.NaN(), 5, 10, 15}})
	require.NoError(t, err)

	assert.Equal(t, 3, p.ValidInRow(0))
}

func TestPanel_EqualTreatsMissingAsEqual(t *testing.T) {
	a, err := FromRows([][]float64{{1, math.NaN()}})
	require.NoError(t, err)
	b, err := FromRows([][]float64{{1, math.NaN()}})
	require.NoError(t, err)
	c, err := FromRows([][]float64{{1, 2}})
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
