package errors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker(t *testing.T) {
	now := time.Date(2025, time.May, 7, 10, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerOptions{FailureRatio: 0.5, MinCalls: 4, Cooldown: time.Minute, Probes: 2})
	b.now = func() time.Time { return now }

	for _, ok := range []bool{true, false, true} {
		require.NoError(t, b.Allow())
		b.Record(ok)
	}
	assert.Equal(t, BreakerClosed, b.State(), "too few calls to judge")

	require.NoError(t, b.Allow())
	b.Record(false)
	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	now = now.Add(time.Minute)
	require.NoError(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())
	require.NoError(t, b.Allow())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen, "only two probes at a time")

	b.Record(true)
	b.Record(true)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Date(2025, time.May, 7, 10, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerOptions{MinCalls: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }

	require.NoError(t, b.Allow())
	b.Record(false)
	assert.Equal(t, BreakerOpen, b.State())

	now = now.Add(time.Second)
	require.NoError(t, b.Allow())
	b.Record(false)
	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
	assert.Equal(t, "open", b.State().String())
}
