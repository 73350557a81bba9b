package source

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/crossrank/crossrank/internal/panel"
)

// Breaker trip tuning. Three straight failures open the circuit; one probe
// is allowed after the open window.
const (
	breakerFailures = 3
	breakerTimeout  = 30 * time.Second
)

// BreakerSource guards a source with a circuit breaker so a broken backend
// fails fast instead of hammering it on every scheduled run.
type BreakerSource struct {
	inner Source
	cb    *gobreaker.CircuitBreaker
}

// NewBreaker wraps inner with a circuit breaker named after it.
func NewBreaker(inner Source) *BreakerSource {
	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("source", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Source circuit breaker state change")
		},
	}
	return &BreakerSource{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (s *BreakerSource) Name() string { return s.inner.Name() }

// Fetch runs the inner fetch through the breaker. While open it returns
// gobreaker.ErrOpenState without touching the backend.
func (s *BreakerSource) Fetch(ctx context.Context) (*panel.Panel, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.Fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*panel.Panel), nil
}

// State exposes the breaker state for health reporting.
func (s *BreakerSource) State() gobreaker.State {
	return s.cb.State()
}
