package source

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/crossrank/crossrank/internal/panel"
)

// PostgresSource pivots long-format factor observations into a panel. The
// table holds one row per (ts, symbol) observation; a NULL value is a
// missing cell. Panel rows are ordered by timestamp, columns by symbol
// name, both ascending, so column order, and with it tie-breaking, is
// stable across fetches.
type PostgresSource struct {
	db      *sqlx.DB
	table   string
	factor  string // optional filter on the factor column
	timeout time.Duration
}

// NewPostgres creates a source over db reading from table. When factor is
// non-empty only rows with that factor name are loaded.
func NewPostgres(db *sqlx.DB, table, factor string, timeout time.Duration) *PostgresSource {
	return &PostgresSource{db: db, table: table, factor: factor, timeout: timeout}
}

func (s *PostgresSource) Name() string {
	if s.factor != "" {
		return "postgres:" + s.table + ":" + s.factor
	}
	return "postgres:" + s.table
}

type observation struct {
	TS     time.Time       `db:"ts"`
	Symbol string          `db:"symbol"`
	Value  sql.NullFloat64 `db:"value"`
}

// Fetch loads and pivots the observations.
func (s *PostgresSource) Fetch(ctx context.Context) (*panel.Panel, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT ts, symbol, value FROM %s ORDER BY ts, symbol`, pq.QuoteIdentifier(s.table))
	args := []interface{}{}
	if s.factor != "" {
		query = fmt.Sprintf(`SELECT ts, symbol, value FROM %s WHERE factor = $1 ORDER BY ts, symbol`, pq.QuoteIdentifier(s.table))
		args = append(args, s.factor)
	}

	var obs []observation
	if err := s.db.SelectContext(ctx, &obs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load factor observations: %w", err)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("no factor observations in %s", s.table)
	}
	return pivot(obs)
}

// pivot turns ts-ordered observations into a dense panel. Symbols are
// sorted by name so a symbol that only appears late in the history still
// lands in its alphabetical column. Duplicate (ts, symbol) pairs are a
// data fault, not something to resolve silently.
func pivot(obs []observation) (*panel.Panel, error) {
	timeIdx := make(map[time.Time]int)
	symIdx := make(map[string]int)
	var times []time.Time
	for i := range obs {
		obs[i].TS = obs[i].TS.UTC()
		if _, ok := timeIdx[obs[i].TS]; !ok {
			timeIdx[obs[i].TS] = len(times)
			times = append(times, obs[i].TS)
		}
		symIdx[obs[i].Symbol] = 0
	}
	symbols := make([]string, 0, len(symIdx))
	for sym := range symIdx {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for j, sym := range symbols {
		symIdx[sym] = j
	}

	p := panel.New(len(times), len(symbols))
	seen := make(map[[2]int]bool, len(obs))
	for _, o := range obs {
		cell := [2]int{timeIdx[o.TS], symIdx[o.Symbol]}
		if seen[cell] {
			return nil, fmt.Errorf("duplicate observation for %s/%s", o.TS.Format(time.RFC3339), o.Symbol)
		}
		seen[cell] = true
		if o.Value.Valid {
			p.Set(cell[0], cell[1], o.Value.Float64)
		}
	}

	if err := p.SetTimes(times); err != nil {
		return nil, err
	}
	if err := p.SetSymbols(symbols); err != nil {
		return nil, err
	}
	return p, nil
}
