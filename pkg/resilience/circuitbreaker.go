// Package resilience provides a circuit breaker for optional dependencies
// whose failure should degrade a request rather than slow it down.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config controls when the breaker trips and how it recovers. Zero values
// take the defaults (5 failures, 30s cool-down, 1 probe).
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
	HalfOpenProbes   int
}

// Breaker counts consecutive failures of a dependency. Reaching the
// threshold opens it; after the cool-down a limited number of probes run and
// the first outcome decides between closed and open again.
type Breaker struct {
	name     string
	cfg      Config
	now      func() time.Time
	onChange func(name string, s State)
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

type Option func(*Breaker)

// WithStateHook registers fn to run on every state transition, under the
// breaker lock. It must not call back into the breaker.
func WithStateHook(fn func(name string, s State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

func withClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

func New(name string, cfg Config, opts ...Option) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Do runs fn when the breaker admits it and records the outcome. A nil
// return from fn counts as success.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, b.name, wait.Round(time.Millisecond))
		}
		b.transition(StateHalfOpen)
		b.probes = 1
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, b.name)
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ok {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.transition(StateClosed)
		}
		return
	}
	b.failures++
	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	case StateHalfOpen:
		b.open()
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.transition(StateOpen)
	b.logger.Warn("circuit opened", "consecutive_failures", b.failures, "cooldown", b.cfg.Cooldown)
}

func (b *Breaker) transition(s State) {
	if b.state == s {
		return
	}
	b.state = s
	if s == StateClosed {
		b.logger.Info("circuit closed")
	}
	if b.onChange != nil {
		b.onChange(b.name, s)
	}
}
