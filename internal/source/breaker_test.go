package source

import (
	"context"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerSource_PassesThroughSuccess(t *testing.T) {
	inner := &stubSource{name: "stub", p: testPanel(t)}
	src := NewBreaker(inner)

	p, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, inner.p.Equal(p))
	assert.Equal(t, "stub", src.Name())
	assert.Equal(t, gobreaker.StateClosed, src.State())
}

func TestBreakerSource_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &stubSource{name: "stub", err: assert.AnError}
	src := NewBreaker(inner)

	for i := 0; i < breakerFailures; i++ {
		_, err := src.Fetch(context.Background())
		assert.ErrorIs(t, err, assert.AnError)
	}
	assert.Equal(t, gobreaker.StateOpen, src.State())
	assert.Equal(t, breakerFailures, inner.fetches)

	_, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, breakerFailures, inner.fetches, "open circuit must not touch the backend")
}

func TestBreakerSource_RecoversAfterSuccess(t *testing.T) {
	inner := &stubSource{name: "stub", err: assert.AnError}
	src := NewBreaker(inner)

	_, err := src.Fetch(context.Background())
	assert.Error(t, err)

	inner.err = nil
	inner.p = testPanel(t)
	_, err = src.Fetch(context.Background())
	require.NoError(t, err, "a failure below the trip threshold must not open the circuit")
	assert.Equal(t, gobreaker.StateClosed, src.State())
}
