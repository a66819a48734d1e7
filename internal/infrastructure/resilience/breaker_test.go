package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errQueueFull = errors.New("queue full")

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(settings Settings) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := New("conn_test", settings)
	b.now = clock.Now
	b.deadline = clock.Now().Add(b.settings.Interval)
	return b, clock
}

func tripAfter(n uint32) func(Counts) bool {
	return func(c Counts) bool { return c.ConsecutiveFailures >= n }
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []bool // true = delivered
		want     State
	}{
		{"stays closed on deliveries", []bool{true, true, true}, StateClosed},
		{"opens after consecutive failures", []bool{false, false, false}, StateOpen},
		{"success resets the failure streak", []bool{false, false, true, false, false}, StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(Settings{Timeout: time.Minute, ReadyToTrip: tripAfter(3)})

			for _, ok := range tt.outcomes {
				_ = b.Do(func() error {
					if ok {
						return nil
					}
					return errQueueFull
				})
			}

			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(Settings{Timeout: time.Minute, ReadyToTrip: tripAfter(2)})

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, b.Do(func() error { return errQueueFull }), errQueueFull)
	}

	ran := false
	err := b.Do(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	var transitions []string
	b, clock := newTestBreaker(Settings{
		MaxRequests: 2,
		Timeout:     10 * time.Second,
		ReadyToTrip: tripAfter(2),
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	for i := 0; i < 2; i++ {
		_ = b.Do(func() error { return errQueueFull })
	}
	require.Equal(t, StateOpen, b.State())

	clock.Advance(11 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Do(func() error { return nil }))
	}

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(Settings{Timeout: time.Second, ReadyToTrip: tripAfter(1)})

	_ = b.Do(func() error { return errQueueFull })
	clock.Advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	_ = b.Do(func() error { return errQueueFull })
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerCountsResetEachInterval(t *testing.T) {
	b, clock := newTestBreaker(Settings{Interval: time.Minute, ReadyToTrip: tripAfter(3)})

	_ = b.Do(func() error { return errQueueFull })
	_ = b.Do(func() error { return errQueueFull })
	assert.Equal(t, uint32(2), b.Counts().ConsecutiveFailures)

	clock.Advance(2 * time.Minute)
	_ = b.Do(func() error { return errQueueFull })

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
}

func TestBreakerLimitsHalfOpenTrials(t *testing.T) {
	b, clock := newTestBreaker(Settings{Timeout: time.Second, ReadyToTrip: tripAfter(1)})

	_ = b.Do(func() error { return errQueueFull })
	clock.Advance(2 * time.Second)

	probing := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(func() error {
			close(probing)
			<-release
			return nil
		})
	}()
	<-probing

	assert.ErrorIs(t, b.Do(func() error { return nil }), ErrTrialLimit)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}
