package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-support/routingcore/internal/clock"
)

func newTestBreaker(fake *clock.Fake) *Breaker {
	return NewBreaker(Config{
		Name:               "test",
		FailureThreshold:   5,
		SuccessThreshold:   2,
		ResetTimeout:       30 * time.Second,
		LatencyThresholdMs: 500,
		Clock:              fake,
	})
}

func TestConsecutiveFailuresTripOpen(t *testing.T) {
	fake := clock.NewFake(time.Now())
	b := newTestBreaker(fake)

	for i := 0; i < 4; i++ {
		b.RecordFailure(-1)
		assert.Equal(t, StateClosed, b.State())
	}
	b.RecordFailure(-1)
	assert.Equal(t, StateOpen, b.State())
}

func TestSingleLatencySampleAboveThresholdTripsOpen(t *testing.T) {
	fake := clock.NewFake(time.Now())
	b := newTestBreaker(fake)

	b.RecordFailure(600)
	assert.Equal(t, StateOpen, b.State())
}

func TestMovingAverageLatencyTripsOpen(t *testing.T) {
	fake := clock.NewFake(time.Now())
	b := newTestBreaker(fake)

	for i := 0; i < 9; i++ {
		b.RecordLatency(600)
		require.Equal(t, StateClosed, b.State())
	}
	b.RecordLatency(600)
	assert.Equal(t, StateOpen, b.State())
}

func TestOpenToHalfOpenAfterTimeout(t *testing.T) {
	fake := clock.NewFake(time.Now())
	b := newTestBreaker(fake)

	b.ForceOpen()
	assert.False(t, b.IsAvailable())

	fake.Advance(29 * time.Second)
	assert.Equal(t, StateOpen, b.State())

	fake.Advance(2 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	fake := clock.NewFake(time.Now())
	b := newTestBreaker(fake)
	b.ForceOpen()
	fake.Advance(31 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	fake := clock.NewFake(time.Now())
	b := newTestBreaker(fake)
	b.ForceOpen()
	fake.Advance(31 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordFailure(-1)
	assert.Equal(t, StateOpen, b.State())
}

func TestExecuteFailsFastWhenOpen(t *testing.T) {
	fake := clock.NewFake(time.Now())
	b := newTestBreaker(fake)
	b.ForceOpen()

	called := false
	err := b.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestExecuteRecordsSuccessAndFailure(t *testing.T) {
	fake := clock.NewFake(time.Now())
	b := newTestBreaker(fake)

	require.NoError(t, b.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())

	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), func() error { return boom })
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestReset(t *testing.T) {
	fake := clock.NewFake(time.Now())
	b := newTestBreaker(fake)
	b.ForceOpen()
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}

func TestGroupGetIsIdempotent(t *testing.T) {
	g := NewGroup(Config{FailureThreshold: 5, Clock: clock.Real{}})
	a := g.Get("primary")
	b := g.Get("primary")
	assert.Same(t, a, b)

	states := g.States()
	assert.Contains(t, states, "primary")
}
