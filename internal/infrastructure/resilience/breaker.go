package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned while the breaker rejects deliveries.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTrialLimit is returned in half-open state once every trial slot is taken.
	ErrTrialLimit = errors.New("circuit breaker trial limit reached")
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateHalfOpen: "half-open",
	StateOpen:     "open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Settings configures a Breaker. Zero values get defaults in New.
type Settings struct {
	// MaxRequests is both the number of trial calls admitted while half-open and
	// the number of consecutive successes that close the breaker again.
	MaxRequests uint32
	// Interval clears the counts periodically while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// ReadyToTrip decides, after each failure while closed, whether to open.
	ReadyToTrip func(counts Counts) bool
	// OnStateChange runs with the breaker lock held; it must not call back
	// into the breaker.
	OnStateChange func(name string, from State, to State)
}

// Counts are the outcomes seen in the current window.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) success() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker stops calling a delivery function that keeps failing.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu     sync.Mutex
	state  State
	counts Counts
	// window identifies the current counting period; outcomes reported for
	// an older window are ignored.
	window   uint64
	deadline time.Time
}

// New creates a closed breaker.
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval <= 0 {
		settings.Interval = time.Minute
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures > 5 }
	}

	b := &Breaker{name: name, settings: settings, now: time.Now}
	b.deadline = b.now().Add(settings.Interval)
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// State returns the position after applying any elapsed timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(b.now())
	return b.state
}

// Counts returns a copy of the current window's counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn unless the breaker rejects it, and records whether fn failed.
// A rejected call returns ErrCircuitOpen or ErrTrialLimit and fn never runs.
func (b *Breaker) Do(fn func() error) error {
	window, err := b.acquire()
	if err != nil {
		return err
	}
	err = fn()
	b.release(window, err == nil)
	return err
}

func (b *Breaker) acquire() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())
	if b.state == StateOpen {
		return 0, ErrCircuitOpen
	}
	if b.state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests {
		return 0, ErrTrialLimit
	}
	b.counts.Requests++
	return b.window, nil
}

func (b *Breaker) release(window uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.advance(now)
	if window != b.window {
		return
	}

	if ok {
		b.counts.success()
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			b.moveTo(StateClosed, now)
		}
		return
	}

	b.counts.failure()
	if b.state == StateHalfOpen || b.settings.ReadyToTrip(b.counts) {
		b.moveTo(StateOpen, now)
	}
}

// advance applies time-based transitions: an expired closed window starts
// fresh counts and an expired open period turns half-open.
func (b *Breaker) advance(now time.Time) {
	if b.deadline.IsZero() || !now.After(b.deadline) {
		return
	}
	switch b.state {
	case StateClosed:
		b.reset(now)
	case StateOpen:
		b.moveTo(StateHalfOpen, now)
	}
}

func (b *Breaker) moveTo(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.reset(now)
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) reset(now time.Time) {
	b.window++
	b.counts = Counts{}
	switch b.state {
	case StateClosed:
		b.deadline = now.Add(b.settings.Interval)
	case StateOpen:
		b.deadline = now.Add(b.settings.Timeout)
	default:
		b.deadline = time.Time{}
	}
}
