package signal

import (
	"math"
	"sort"
)

// ThresholdPair bounds one cross-section's tails: values at or below Lower
// are shorted, values at or above Upper are longed. Undefined (both NaN)
// when the row has too few valid cells for the requested tail size.
// On a tie-broken row the bounds are strictly ordered: Lower < Upper.
type ThresholdPair struct {
	Lower float64
	Upper float64
}

// Defined reports whether the pair carries usable bounds.
func (tp ThresholdPair) Defined() bool {
	return !math.IsNaN(tp.Lower) && !math.IsNaN(tp.Upper)
}

// TailSize returns the number of assets per tail for n valid values,
// computed as int(float64(n) * percent). The truncation after the float
// multiply is part of the contract: fractions with no exact binary form
// may round down an extra step (TailSize(10, 0.3) is 2).
func TailSize(n int, percent float64) int {
	return int(float64(n) * percent)
}

// Thresholds computes the tail bounds of one row. Missing cells are
// ignored; they reduce the valid count and therefore the tail size.
func Thresholds(row []float64, percent float64) ThresholdPair {
	valid := make([]float64, 0, len(row))
	for _, v := range row {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	return thresholdsSorted(valid, percent)
}

// thresholdsSorted computes bounds from the valid values of a row, sorting
// the slice in place. valid must not contain NaN.
func thresholdsSorted(valid []float64, percent float64) ThresholdPair {
	n := len(valid)
	k := TailSize(n, percent)
	if k == 0 {
		return ThresholdPair{Lower: math.NaN(), Upper: math.NaN()}
	}
	sort.Float64s(valid)
	return ThresholdPair{Lower: valid[k-1], Upper: valid[n-k]}
}
