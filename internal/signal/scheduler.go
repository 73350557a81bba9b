package signal

import "fmt"

// Policy selects how often the cross-section is re-decided.
type Policy string

const (
	// Continuous recomputes thresholds at every row independently.
	Continuous Policy = "continuous"
	// Periodic recomputes at rows 0, H, 2H, ... where H is the hold
	// interval, and repeats the last decided row in between.
	Periodic Policy = "periodic"
)

// Validate rejects unknown policies.
func (p Policy) Validate() error {
	switch p {
	case Continuous, Periodic:
		return nil
	}
	return fmt.Errorf("unknown rebalance policy %q", string(p))
}

func (p Policy) String() string { return string(p) }

// decisionRows lists the rows where thresholds are recomputed for a panel
// of total rows under a hold interval. Length is ceil(total/hold).
func decisionRows(total, hold int) []int {
	rows := make([]int, 0, (total+hold-1)/hold)
	for i := 0; i < total; i += hold {
		rows = append(rows, i)
	}
	return rows
}
