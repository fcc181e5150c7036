// Package circuitbreaker implements the circuit-breaker pattern for the
// upstream inference endpoint. When the provider fails repeatedly the
// breaker opens and requests are rejected immediately instead of burning
// the retry budget against a dead upstream.
//
// State transitions:
//
//	Closed   → Open      when consecutive failures ≥ FailureThreshold
//	Open     → HalfOpen  after Cooldown elapses
//	HalfOpen → Closed    when consecutive successes ≥ SuccessThreshold
//	HalfOpen → Open      on any failure
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the breaker's current state.
type State int

const (
	// StateClosed — normal operation; calls pass through.
	StateClosed State = iota
	// StateOpen — the upstream is considered failing; calls are rejected immediately.
	StateOpen
	// StateHalfOpen — the breaker is testing recovery with a limited number of calls.
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a call is rejected because the circuit is open.
var ErrOpen = errors.New("circuit breaker open")

// Options configures a Breaker. Zero values fall back to the defaults noted
// on each field.
type Options struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit (default 5).
	FailureThreshold int
	// SuccessThreshold is the consecutive-success count that closes a
	// half-open circuit (default 1).
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before probing the
	// upstream again (default 30s).
	Cooldown time.Duration
}

// Breaker guards the upstream inference endpoint.
type Breaker struct {
	mu           sync.Mutex
	opts         Options
	state        State
	failureCount int
	successCount int
	openUntil    time.Time
}

// New creates a Breaker with the given options.
func New(opts Options) *Breaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.SuccessThreshold <= 0 {
		opts.SuccessThreshold = 1
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	return &Breaker{opts: opts, state: StateClosed}
}

// State returns the current state, transitioning Open→HalfOpen if the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolveState()
}

// resolveState must be called with b.mu held.
func (b *Breaker) resolveState() State {
	if b.state == StateOpen && time.Now().After(b.openUntil) {
		b.state = StateHalfOpen
		b.successCount = 0
	}
	return b.state
}

// Allow reports whether a call should proceed (circuit Closed or HalfOpen).
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolveState() != StateOpen
}

// RecordSuccess notifies the breaker that a call succeeded.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.opts.SuccessThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// RecordFailure notifies the breaker that a call failed.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.opts.FailureThreshold {
			b.state = StateOpen
			b.openUntil = time.Now().Add(b.opts.Cooldown)
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openUntil = time.Now().Add(b.opts.Cooldown)
		b.successCount = 0
	}
}
