// Package resilience provides the circuit breaker that shields the gateway
// from upstream APIs that have gone persistently unhealthy.
//
// The [Breaker] is a classic three-state breaker (closed → open → half-open):
// consecutive failures trip it open, after a cooldown a limited number of
// probe calls decide whether it closes again. It is safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("circuit breaker open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call. The normal state.
	Closed State = iota

	// Open rejects every call with [ErrOpen] until the cooldown elapses.
	Open

	// HalfOpen lets a bounded number of probe calls through. Success closes
	// the breaker, any failure re-opens it.
	HalfOpen
)

func (s State) String() string {
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

// Config tunes a [Breaker]. Zero fields fall back to defaults.
type Config struct {
	// Name labels the breaker in log messages, typically the upstream name.
	Name string

	// TripAfter is the number of consecutive failures that opens the
	// breaker. Default: 5.
	TripAfter int

	// Cooldown is how long the breaker stays open before probing again.
	// Default: 30s.
	Cooldown time.Duration

	// Probes is how many half-open calls must succeed before the breaker
	// closes. Default: 3.
	Probes int
}

// Breaker is a three-state circuit breaker keyed to one upstream.
type Breaker struct {
	name      string
	tripAfter int
	cooldown  time.Duration
	probes    int

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probeCalls  int
	probeFails  int
}

// New creates a [Breaker] in the closed state.
func New(cfg Config) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 3
	}
	return &Breaker{
		name:      cfg.Name,
		tripAfter: cfg.TripAfter,
		cooldown:  cfg.Cooldown,
		probes:    cfg.Probes,
	}
}

// Do runs fn if the breaker allows it and feeds the outcome back into the
// breaker's failure accounting. While open it returns [ErrOpen] without
// calling fn.
func (b *Breaker) Do(fn func() error) error {
	probing, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// admit decides whether a call may proceed, transitioning open → half-open
// once the cooldown has elapsed. It reports whether the call counts as a
// half-open probe.
func (b *Breaker) admit() (probing bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.lastFailure) < b.cooldown {
			return false, ErrOpen
		}
		b.state = HalfOpen
		b.probeCalls = 0
		b.probeFails = 0
		slog.Info("circuit breaker half-open", "name", b.name)

	case HalfOpen:
		if b.probeCalls >= b.probes {
			// Probe budget spent, wait for the verdict.
			return false, ErrOpen
		}
	}

	if b.state == HalfOpen {
		b.probeCalls++
		return true, nil
	}
	return false, nil
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.lastFailure = time.Now()

	if probing {
		b.probeFails++
		b.state = Open
		b.failures = b.tripAfter
		slog.Warn("circuit breaker re-opened", "name", b.name)
		return
	}

	b.failures++
	if b.failures >= b.tripAfter {
		b.state = Open
		slog.Warn("circuit breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probeCalls-b.probeFails >= b.probes {
			b.state = Closed
			b.failures = 0
			slog.Info("circuit breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's current state. An open breaker whose cooldown
// has elapsed reports [HalfOpen]; the actual transition happens on the next
// [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.lastFailure) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}
