package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 10*time.Millisecond, b.Delay(1))
	assert.Equal(t, 20*time.Millisecond, b.Delay(2))
	assert.Equal(t, 40*time.Millisecond, b.Delay(3))
	assert.Equal(t, 50*time.Millisecond, b.Delay(4))
	assert.Equal(t, 50*time.Millisecond, b.Delay(400))

	jittered := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2, Jitter: 0.1}
	for i := 0; i < 20; i++ {
		d := jittered.Delay(1)
		assert.GreaterOrEqual(t, d, 90*time.Millisecond)
		assert.LessOrEqual(t, d, 110*time.Millisecond)
	}

	assert.Equal(t, DefaultBackoff().Initial, Backoff{}.Delay(1))
}

func TestRetryUntilSucceeds(t *testing.T) {
	calls := 0
	var seen []int
	err := RetryUntil(context.Background(), Backoff{Initial: time.Millisecond, Max: time.Millisecond},
		func() error {
			calls++
			if calls < 3 {
				return errors.New("not yet")
			}
			return nil
		},
		func(attempt int, err error, wait time.Duration) { seen = append(seen, attempt) },
	)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestRetryUntilStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := RetryUntil(ctx, Backoff{Initial: 5 * time.Millisecond, Max: 5 * time.Millisecond},
		func() error { return errors.New("down") }, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCircuitBreakerTransitions(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("redis", BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	cb.now = func() time.Time { return now }
	boom := errors.New("boom")

	assert.ErrorIs(t, cb.Do(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Do(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, cb.Do(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(time.Minute)
	require.NoError(t, cb.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerSingleProbe(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("redis", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.now = func() time.Time { return now }
	_ = cb.Do(func() error { return errors.New("boom") })
	now = now.Add(time.Second)

	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Do(func() error { <-release; return nil })
	}()
	require.Eventually(t, func() bool { return cb.State() == StateHalfOpen }, time.Second, time.Millisecond)
	assert.ErrorIs(t, cb.Do(func() error { return nil }), ErrCircuitOpen)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}
