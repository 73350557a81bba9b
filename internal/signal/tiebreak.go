// Package signal computes cross-sectional long/short signal panels from
// factor panels. Each computed row ranks the assets of one time step,
// marks the bottom tail -1 and the top tail +1, and leaves the middle 0.
// Rebalance policy decides which rows are computed and which repeat the
// last computed row.
package signal

// tieEpsilon is the per-column penalty that turns the cross-sectional
// ordering into a strict total order. Small enough to never reorder
// distinct factor values at realistic universe widths.
const tieEpsilon = 1e-14

// BreakTies returns a copy of row with out[j] = row[j] - eps*j. Columns
// holding the same raw value then order deterministically, the lower index
// ranking higher. Missing cells stay missing.
func BreakTies(row []float64) []float64 {
	out := make([]float64, len(row))
	breakTiesInto(out, row)
	return out
}

func breakTiesInto(dst, row []float64) {
	for j, v := range row {
		dst[j] = v - tieEpsilon*float64(j)
	}
}
