package errors

import (
	"sync"
	"time"
)

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// Closed lets every call through.
	Closed BreakerState = iota
	// Open rejects calls until the cool-down has passed.
	Open
	// HalfOpen lets a single probe through.
	HalfOpen
)

// String returns the string representation of BreakerState.
func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	FailureThreshold int           // Consecutive failures before opening
	Cooldown         time.Duration // Time to stay open before probing
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Breaker stops calls to a dependency that keeps failing, such as a crashed
// browser, and lets one probe through after a cool-down.
type Breaker struct {
	mu sync.Mutex

	config   BreakerConfig
	state    BreakerState
	now      func() time.Time
	failures int
	openedAt time.Time
	probing  bool

	onStateChange func(from, to BreakerState)
}

// NewBreaker creates a closed breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	return &Breaker{
		config: config,
		now:    time.Now,
	}
}

// OnStateChange sets a callback for state changes. It runs with the breaker
// locked and must not call back into it.
func (b *Breaker) OnStateChange(fn func(from, to BreakerState)) {
	b.mu.Lock()
	b.onStateChange = fn
	b.mu.Unlock()
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. A true result must be followed by
// Success or Failure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			return false
		}
		b.transition(HalfOpen)
		b.probing = true
		return true
	default:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

// Success records a call that worked.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	b.transition(Closed)
}

// Failure records a call that failed.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if b.state == HalfOpen {
		b.openedAt = b.now()
		b.transition(Open)
		return
	}

	b.failures++
	if b.state == Closed && b.failures >= b.config.FailureThreshold {
		b.openedAt = b.now()
		b.transition(Open)
	}
}

func (b *Breaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if to == Closed {
		b.failures = 0
	}
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}
