package signal

import "math"

// Signal values stored per asset in a computed row.
const (
	Short float64 = -1
	Flat  float64 = 0
	Long  float64 = 1
)

// ScoreRow maps one tie-broken row against its threshold pair:
// -1 at or below Lower, +1 at or above Upper, 0 between. An undefined pair
// yields an all-missing row. A missing cell compares false against both
// bounds and scores 0; missingness never spreads to neighbors in a row
// whose thresholds are defined.
func ScoreRow(tiebroken []float64, pair ThresholdPair) []float64 {
	out := make([]float64, len(tiebroken))
	scoreRowInto(out, tiebroken, pair)
	return out
}

func scoreRowInto(dst, tiebroken []float64, pair ThresholdPair) (longs, shorts int) {
	if !pair.Defined() {
		for j := range dst {
			dst[j] = math.NaN()
		}
		return 0, 0
	}
	for j, v := range tiebroken {
		switch {
		case v <= pair.Lower:
			dst[j] = Short
			shorts++
		case v >= pair.Upper:
			dst[j] = Long
			longs++
		default:
			dst[j] = Flat
		}
	}
	return longs, shorts
}
