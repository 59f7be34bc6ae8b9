// Package resilience provides reliability patterns for external service calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker implements a circuit breaker for protecting external calls.
// It tracks consecutive failures and opens the circuit when a threshold is
// reached, rejecting calls until a timeout elapses. After the timeout a
// bounded number of probe calls is allowed through; one success closes the
// circuit, one failure reopens it.
type Breaker struct {
	name string

	mu               sync.Mutex
	state            state
	failures         int
	maxFailures      int
	timeout          time.Duration
	halfOpenMax      int
	halfOpenInFlight int
	openedAt         time.Time
	now              func() time.Time // for testing
}

// NewBreaker creates a circuit breaker that opens after maxFailures
// consecutive failures and stays open for the given timeout. At most
// halfOpenMax concurrent probe calls are allowed in the half-open state;
// values below 1 are treated as 1.
func NewBreaker(name string, maxFailures int, timeout time.Duration, halfOpenMax int) *Breaker {
	if halfOpenMax < 1 {
		halfOpenMax = 1
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		timeout:     timeout,
		halfOpenMax: halfOpenMax,
		now:         time.Now,
	}
}

// Name returns the breaker's name, identifying the protected binding.
func (b *Breaker) Name() string { return b.name }

// State returns the current state as a string for logging and health output.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

// Execute runs fn if the circuit is closed or half-open.
// Returns ErrCircuitOpen if the circuit is open or the half-open probe
// budget is exhausted.
func (b *Breaker) Execute(fn func() error) error {
	allowed, probe := b.allowRequest()
	if !allowed {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if probe && b.state == stateHalfOpen {
		b.halfOpenInFlight--
	}

	if err != nil {
		b.onFailure()
		return err
	}

	b.onSuccess()
	return nil
}

// allowRequest reports whether the call may proceed and whether it counts
// against the half-open probe budget.
func (b *Breaker) allowRequest() (allowed, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true, false
	case stateOpen:
		if b.now().Sub(b.openedAt) >= b.timeout {
			b.state = stateHalfOpen
			b.halfOpenInFlight = 1
			return true, true
		}
		return false, false
	case stateHalfOpen:
		if b.halfOpenInFlight >= b.halfOpenMax {
			return false, false
		}
		b.halfOpenInFlight++
		return true, true
	}
	return false, false
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		b.state = stateOpen
		b.openedAt = b.now()
		b.halfOpenInFlight = 0
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	b.failures = 0
	b.state = stateClosed
	b.halfOpenInFlight = 0
}
