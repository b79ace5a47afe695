// Package circuitbreaker implements the circuit-breaker pattern for provider
// calls. Each provider has its own CircuitBreaker instance.
//
// State transitions:
//
//	Closed   → Open      when consecutive failures ≥ FailureThreshold
//	Open     → HalfOpen  on the first call after ResetTimeout has elapsed
//	                     since the last failure
//	HalfOpen → Closed    when consecutive successes ≥ SuccessThreshold
//	HalfOpen → Open      on any failure
//
// Errors matched by Config.IsIgnored (throttling signals) count as neither
// success nor failure.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ferro-labs/gateway-core/internal/clock"
)

// State represents the circuit breaker's current state.
type State int

const (
	// StateClosed: normal operation; calls pass through.
	StateClosed State = iota
	// StateOpen: provider is considered failing; calls are rejected immediately.
	StateOpen
	// StateHalfOpen: a limited number of trial calls test recovery.
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

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ErrCircuitOpen is returned when a call is rejected because the circuit is
// open or the half-open trial slots are taken.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Defaults.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 3
	DefaultResetTimeout     = 60 * time.Second
)

// Config configures a CircuitBreaker. Zero values take defaults.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
	// HalfOpenMaxCalls bounds concurrent trial calls while half-open.
	// Defaults to SuccessThreshold.
	HalfOpenMaxCalls int
	// IsIgnored classifies errors that must not affect the breaker.
	IsIgnored func(error) bool
	// OnStateChange is called outside the breaker lock after every transition.
	OnStateChange func(name string, from, to State)
	Clock         clock.Clock
}

// CircuitBreaker guards a single downstream provider.
type CircuitBreaker struct {
	name string
	cfg  Config

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	trials       int
	lastFailure  time.Time
	openedAt     time.Time
	trips        int
}

type transition struct{ from, to State }

// New creates a CircuitBreaker for the named provider.
func New(name string, cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultSuccessThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = cfg.SuccessThreshold
	}
	cfg.Clock = clock.OrReal(cfg.Clock)
	return &CircuitBreaker{name: name, cfg: cfg, state: StateClosed}
}

// Name returns the guarded provider name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state without side effects. An Open breaker
// whose reset timeout has elapsed still reports Open until the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs fn if the breaker admits the call and records its outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.Allow() {
		return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	}
	err := fn(ctx)
	switch {
	case err == nil:
		cb.RecordSuccess()
	case cb.cfg.IsIgnored != nil && cb.cfg.IsIgnored(err):
		cb.release()
	default:
		cb.RecordFailure()
	}
	return err
}

// Allow reports whether a call may proceed and, while half-open, takes one
// trial slot. Callers that use Allow directly must follow up with
// RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	var changes []transition
	if cb.state == StateOpen && !cb.cfg.Clock.Now().Before(cb.lastFailure.Add(cb.cfg.ResetTimeout)) {
		changes = append(changes, cb.setState(StateHalfOpen))
	}
	allowed := true
	switch cb.state {
	case StateOpen:
		allowed = false
	case StateHalfOpen:
		if cb.trials >= cb.cfg.HalfOpenMaxCalls {
			allowed = false
		} else {
			cb.trials++
		}
	}
	cb.mu.Unlock()
	cb.notify(changes)
	return allowed
}

// RecordSuccess notifies the breaker that a call succeeded.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var changes []transition
	switch cb.state {
	case StateHalfOpen:
		if cb.trials > 0 {
			cb.trials--
		}
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			changes = append(changes, cb.setState(StateClosed))
		}
	case StateClosed:
		cb.failureCount = 0
	}
	cb.mu.Unlock()
	cb.notify(changes)
}

// RecordFailure notifies the breaker that a call failed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	var changes []transition
	cb.lastFailure = cb.cfg.Clock.Now()
	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			changes = append(changes, cb.setState(StateOpen))
		}
	case StateHalfOpen:
		changes = append(changes, cb.setState(StateOpen))
	}
	cb.mu.Unlock()
	cb.notify(changes)
}

// release frees a half-open trial slot without recording an outcome.
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	if cb.state == StateHalfOpen && cb.trials > 0 {
		cb.trials--
	}
	cb.mu.Unlock()
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	var changes []transition
	if cb.state != StateClosed {
		changes = append(changes, cb.setState(StateClosed))
	}
	cb.failureCount = 0
	cb.mu.Unlock()
	cb.notify(changes)
}

// setState must be called with cb.mu held.
func (cb *CircuitBreaker) setState(to State) transition {
	t := transition{from: cb.state, to: to}
	cb.state = to
	cb.successCount = 0
	cb.trials = 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.cfg.Clock.Now()
		cb.trips++
	case StateClosed:
		cb.failureCount = 0
	}
	return t
}

func (cb *CircuitBreaker) notify(changes []transition) {
	if cb.cfg.OnStateChange == nil {
		return
	}
	for _, t := range changes {
		cb.cfg.OnStateChange(cb.name, t.from, t.to)
	}
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name         string    `json:"name"`
	State        State     `json:"state"`
	FailureCount int       `json:"failure_count"`
	SuccessCount int       `json:"success_count"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
	OpenedAt     time.Time `json:"opened_at,omitempty"`
	RetryAt      time.Time `json:"retry_at,omitempty"`
	Trips        int       `json:"trips"`
}

// Snapshot returns the breaker's counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := Snapshot{
		Name:         cb.name,
		State:        cb.state,
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
		LastFailure:  cb.lastFailure,
		OpenedAt:     cb.openedAt,
		Trips:        cb.trips,
	}
	if cb.state == StateOpen {
		s.RetryAt = cb.lastFailure.Add(cb.cfg.ResetTimeout)
	}
	return s
}
