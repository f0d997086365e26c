// Package resilience retries transient store conflicts and guards outbound
// calls with a circuit breaker.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the state of a Breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned when a call is rejected by an open breaker.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Default: 3.
	FailureThreshold int
	// Cooldown is how long an open breaker rejects calls before letting a
	// single probe through. Default: 1m.
	Cooldown time.Duration
	// OnStateChange is called on every transition, under the breaker lock.
	OnStateChange func(from, to CircuitState)
}

// FromBreakerConfig builds a BreakerConfig from a failure count and a
// cooldown in seconds. Zero values leave the NewBreaker defaults.
func FromBreakerConfig(failureThreshold, cooldownSecs int) BreakerConfig {
	return BreakerConfig{
		FailureThreshold: failureThreshold,
		Cooldown:         time.Duration(cooldownSecs) * time.Second,
	}
}

// Breaker stops calling a failing dependency until a cooldown has passed.
// A single success in half-open closes it again; a failure reopens it.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewBreaker returns a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker is open. Any error from fn counts as a
// failure.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrCircuitOpen
		}
		b.transition(CircuitHalfOpen)
		b.probing = true
		return nil
	case CircuitHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.probing = false
		if b.state != CircuitClosed {
			b.transition(CircuitClosed)
		}
		return
	}

	b.failures++
	b.probing = false
	if b.state == CircuitHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		if b.state != CircuitOpen {
			b.transition(CircuitOpen)
		}
	}
}

func (b *Breaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
