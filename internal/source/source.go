// Package source loads factor panels from files, spreadsheets, and
// Postgres, with optional caching and circuit breaking layered on top.
package source

import (
	"context"

	"github.com/crossrank/crossrank/internal/panel"
)

// Source produces the factor panel a run computes signals from.
type Source interface {
	// Fetch loads the panel. Implementations honor ctx deadlines.
	Fetch(ctx context.Context) (*panel.Panel, error)
	// Name identifies the source in logs and cache keys.
	Name() string
}
