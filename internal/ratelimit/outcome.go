package ratelimit

import (
	"fmt"
	"math"
	"time"

	"github.com/ferro-labs/gateway-core/internal/metrics"
)

// Outcome classifies how an admitted call ended.
type Outcome int

// Outcomes.
const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeRateLimited
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// RecordOutcome books the result of an admitted call. extraTokens are
// tokens consumed beyond the estimate reserved by CanProceed. A
// rate-limited outcome starts or extends the backoff window, honouring
// retryAfter when the provider sent one.
func (l *Limiter) RecordOutcome(provider string, extraTokens int, outcome Outcome, retryAfter time.Duration) {
	st, ok := l.state(provider)
	if !ok {
		return
	}
	st.mu.Lock()
	l.rollWindow(st, l.opts.Clock.Now())
	if extraTokens > 0 {
		st.tokens += extraTokens
	}
	st.mu.Unlock()

	if outcome == OutcomeRateLimited {
		l.OnRateLimitHit(provider, retryAfter)
	}
}

// OnRateLimitHit increases the consecutive hit count and arms the backoff
// window: delay = min(max, min * multiplier^(hits-1)).
func (l *Limiter) OnRateLimitHit(provider string, retryAfter time.Duration) {
	st, ok := l.state(provider)
	if !ok {
		return
	}
	st.mu.Lock()
	now := l.opts.Clock.Now()
	l.rollWindow(st, now)
	st.hits++
	st.hitInWindow = true
	delay := l.backoffFor(st.hits)
	if retryAfter > delay {
		delay = retryAfter
	}
	st.backoffDelay = delay
	st.backoffUntil = now.Add(delay)
	hits := st.hits
	st.mu.Unlock()

	metrics.RateLimitBackoff.WithLabelValues(provider).Set(delay.Seconds())
	l.opts.Logger.Warn("provider rate limited, backing off",
		"provider", provider, "consecutive_hits", hits, "delay", delay.String())
	if l.opts.OnRateLimitHit != nil {
		l.opts.OnRateLimitHit(provider, hits, delay)
	}
}

func (l *Limiter) backoffFor(hits int) time.Duration {
	f := float64(l.opts.MinBackoff) * math.Pow(l.opts.BackoffMultiplier, float64(hits-1))
	if f > float64(l.opts.MaxBackoff) || math.IsInf(f, 0) {
		return l.opts.MaxBackoff
	}
	return time.Duration(f)
}

// RecordCompletion releases the in-flight slot reserved by CanProceed.
func (l *Limiter) RecordCompletion(provider string) {
	st, ok := l.state(provider)
	if !ok {
		return
	}
	st.mu.Lock()
	if st.active > 0 {
		st.active--
	}
	st.mu.Unlock()
}

// ResetBackoff clears the backoff window and hit count.
func (l *Limiter) ResetBackoff(provider string) error {
	st, ok := l.state(provider)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	st.mu.Lock()
	st.hits = 0
	st.hitInWindow = false
	st.backoffDelay = 0
	st.backoffUntil = time.Time{}
	st.mu.Unlock()
	metrics.RateLimitBackoff.WithLabelValues(provider).Set(0)
	return nil
}

// LimitsUpdate carries optional replacements for a provider's limits.
type LimitsUpdate struct {
	RequestsPerMinute  *int `json:"requests_per_minute,omitempty"`
	TokensPerMinute    *int `json:"tokens_per_minute,omitempty"`
	ConcurrentRequests *int `json:"concurrent_requests,omitempty"`
}

// UpdateLimits applies the non-nil fields of u.
func (l *Limiter) UpdateLimits(provider string, u LimitsUpdate) (Limits, error) {
	st, ok := l.state(provider)
	if !ok {
		return Limits{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	for name, v := range map[string]*int{
		"requests_per_minute": u.RequestsPerMinute,
		"tokens_per_minute":   u.TokensPerMinute,
		"concurrent_requests": u.ConcurrentRequests,
	} {
		if v != nil && *v < 0 {
			return Limits{}, fmt.Errorf("%s must not be negative", name)
		}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if u.RequestsPerMinute != nil {
		st.limits.RequestsPerMinute = *u.RequestsPerMinute
	}
	if u.TokensPerMinute != nil {
		st.limits.TokensPerMinute = *u.TokensPerMinute
	}
	if u.ConcurrentRequests != nil {
		st.limits.ConcurrentRequests = *u.ConcurrentRequests
	}
	return st.limits, nil
}

// State is a point-in-time view of a provider's limiter state.
type State struct {
	Provider         string        `json:"provider"`
	Limits           Limits        `json:"limits"`
	WindowStart      time.Time     `json:"window_start"`
	RequestsInWindow int           `json:"requests_in_window"`
	TokensInWindow   int           `json:"tokens_in_window"`
	InFlight         int           `json:"in_flight"`
	ConsecutiveHits  int           `json:"consecutive_hits"`
	BackoffDelay     time.Duration `json:"backoff_delay"`
	BackoffUntil     time.Time     `json:"backoff_until,omitempty"`
	BackoffActive    bool          `json:"backoff_active"`
}

// State returns the current view of provider.
func (l *Limiter) State(provider string) (State, error) {
	st, ok := l.state(provider)
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	now := l.opts.Clock.Now()
	l.rollWindow(st, now)
	return State{
		Provider:         provider,
		Limits:           st.limits,
		WindowStart:      st.windowStart,
		RequestsInWindow: st.requests,
		TokensInWindow:   st.tokens,
		InFlight:         st.active,
		ConsecutiveHits:  st.hits,
		BackoffDelay:     st.backoffDelay,
		BackoffUntil:     st.backoffUntil,
		BackoffActive:    now.Before(st.backoffUntil),
	}, nil
}
