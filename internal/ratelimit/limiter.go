// Package ratelimit provides per-provider admission control: request, token
// and concurrency counters inside fixed one-minute windows, a safety margin
// below published quotas, and adaptive backoff when a provider throttles.
package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ferro-labs/gateway-core/internal/clock"
	"github.com/ferro-labs/gateway-core/internal/logging"
	"github.com/ferro-labs/gateway-core/internal/metrics"
)

// ErrUnknownProvider is returned by admin and query calls for a provider the
// limiter does not track.
var ErrUnknownProvider = errors.New("rate limiter: unknown provider")

// ErrAdmissionDenied is wrapped by Decision.Err for refused calls.
var ErrAdmissionDenied = errors.New("rate limiter: admission denied")

// Defaults.
const (
	DefaultSafetyBuffer      = 0.8
	DefaultWindow            = time.Minute
	DefaultMinBackoff        = time.Second
	DefaultMaxBackoff        = 5 * time.Minute
	DefaultBackoffMultiplier = 2.0
)

// Reason explains an admission decision.
type Reason string

// Decision reasons.
const (
	ReasonAllowed          Reason = "allowed"
	ReasonNotConfigured    Reason = "limits_not_configured"
	ReasonBackoffActive    Reason = "backoff_active"
	ReasonConcurrencyLimit Reason = "concurrency_limit_exceeded"
	ReasonRequestLimit     Reason = "request_limit_exceeded"
	ReasonTokenLimit       Reason = "token_limit_exceeded"
)

// Limits are a provider's published quotas. Zero means unlimited.
type Limits struct {
	RequestsPerMinute  int `json:"requests_per_minute"`
	TokensPerMinute    int `json:"tokens_per_minute"`
	ConcurrentRequests int `json:"concurrent_requests"`
}

// Configured reports whether any quota is set.
func (l Limits) Configured() bool {
	return l.RequestsPerMinute > 0 || l.TokensPerMinute > 0 || l.ConcurrentRequests > 0
}

// Decision is the answer of CanProceed.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Reason     Reason        `json:"reason"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Err returns nil for allowed decisions and an error wrapping
// ErrAdmissionDenied with the reason otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.RetryAfter > 0 {
		return fmt.Errorf("%w: %s (retry after %s)", ErrAdmissionDenied, d.Reason, d.RetryAfter)
	}
	return fmt.Errorf("%w: %s", ErrAdmissionDenied, d.Reason)
}

// Options configures a Limiter.
type Options struct {
	SafetyBuffer      float64
	Window            time.Duration
	MinBackoff        time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Clock             clock.Clock
	Logger            *slog.Logger
	// OnRateLimitHit is called outside any lock after a throttling signal
	// has been recorded.
	OnRateLimitHit func(provider string, hits int, delay time.Duration)
}

func (o *Options) defaults() {
	if o.SafetyBuffer <= 0 || o.SafetyBuffer > 1 {
		o.SafetyBuffer = DefaultSafetyBuffer
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = DefaultMinBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = DefaultBackoffMultiplier
	}
	o.Clock = clock.OrReal(o.Clock)
	o.Logger = logging.OrDefault(o.Logger)
}

// providerState is the per-provider counter bundle. Every read-modify-write
// happens under its mutex.
type providerState struct {
	mu sync.Mutex

	limits      Limits
	windowStart time.Time
	requests    int
	tokens      int
	active      int

	hits         int
	hitInWindow  bool
	backoffDelay time.Duration
	backoffUntil time.Time
}

// Limiter tracks admission state for every registered provider.
type Limiter struct {
	opts Options

	mu        sync.RWMutex
	providers map[string]*providerState

	gapMu       sync.Mutex
	gapReported map[string]bool
}

// New creates a Limiter.
func New(opts Options) *Limiter {
	opts.defaults()
	return &Limiter{
		opts:        opts,
		providers:   make(map[string]*providerState),
		gapReported: make(map[string]bool),
	}
}

// Register starts tracking provider with limits. Registering an existing
// provider replaces its limits and keeps its counters.
func (l *Limiter) Register(provider string, limits Limits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.providers[provider]; ok {
		st.mu.Lock()
		st.limits = limits
		st.mu.Unlock()
		return
	}
	l.providers[provider] = &providerState{limits: limits, windowStart: l.opts.Clock.Now()}
}

// Deregister stops tracking provider.
func (l *Limiter) Deregister(provider string) {
	l.mu.Lock()
	delete(l.providers, provider)
	l.mu.Unlock()
	l.gapMu.Lock()
	delete(l.gapReported, provider)
	l.gapMu.Unlock()
}

func (l *Limiter) state(provider string) (*providerState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, ok := l.providers[provider]
	return st, ok
}

// effectiveCap applies the safety buffer. A configured limit never yields a
// cap below one; zero means unlimited.
func (l *Limiter) effectiveCap(limit int) int {
	if limit <= 0 {
		return 0
	}
	c := int(math.Floor(float64(limit) * l.opts.SafetyBuffer))
	if c < 1 {
		c = 1
	}
	return c
}

// rollWindow resets counters once the current window has elapsed and
// applies gradual recovery for every clean window. Caller holds st.mu.
func (l *Limiter) rollWindow(st *providerState, now time.Time) {
	elapsed := now.Sub(st.windowStart)
	if elapsed < l.opts.Window {
		return
	}
	windows := int(elapsed / l.opts.Window)
	clean := windows
	if st.hitInWindow {
		clean--
	}
	if clean > 0 && st.hits > 0 {
		st.hits -= clean
		if st.hits <= 0 {
			st.hits = 0
			st.backoffDelay = 0
		}
	}
	st.windowStart = st.windowStart.Add(time.Duration(windows) * l.opts.Window)
	st.requests = 0
	st.tokens = 0
	st.hitInWindow = false
}

// CanProceed decides whether a call with estimatedCost tokens may start. An
// allowed decision reserves one request slot, the estimated tokens and one
// in-flight slot atomically; callers must pair it with RecordCompletion.
func (l *Limiter) CanProceed(provider string, estimatedCost int) Decision {
	st, ok := l.state(provider)
	if !ok {
		l.reportGap(provider)
		return Decision{Allowed: true, Reason: ReasonNotConfigured}
	}

	st.mu.Lock()
	now := l.opts.Clock.Now()
	l.rollWindow(st, now)

	if !st.limits.Configured() {
		st.requests++
		st.tokens += estimatedCost
		st.active++
		st.mu.Unlock()
		l.reportGap(provider)
		return Decision{Allowed: true, Reason: ReasonNotConfigured}
	}

	d := l.admit(st, now, estimatedCost)
	if d.Allowed {
		st.requests++
		if estimatedCost > 0 {
			st.tokens += estimatedCost
		}
		st.active++
	}
	st.mu.Unlock()

	if !d.Allowed {
		metrics.RateLimitRejections.WithLabelValues(provider, string(d.Reason)).Inc()
	}
	return d
}

func (l *Limiter) admit(st *providerState, now time.Time, cost int) Decision {
	if now.Before(st.backoffUntil) {
		return Decision{Reason: ReasonBackoffActive, RetryAfter: st.backoffUntil.Sub(now)}
	}
	windowLeft := st.windowStart.Add(l.opts.Window).Sub(now)
	// In-flight calls are bounded by the configured limit itself; the
	// safety buffer only shrinks the per-window counters.
	if c := st.limits.ConcurrentRequests; c > 0 && st.active >= c {
		return Decision{Reason: ReasonConcurrencyLimit}
	}
	if c := l.effectiveCap(st.limits.RequestsPerMinute); c > 0 && st.requests >= c {
		return Decision{Reason: ReasonRequestLimit, RetryAfter: windowLeft}
	}
	if c := l.effectiveCap(st.limits.TokensPerMinute); c > 0 && cost > 0 && st.tokens+cost > c {
		return Decision{Reason: ReasonTokenLimit, RetryAfter: windowLeft}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

func (l *Limiter) reportGap(provider string) {
	l.gapMu.Lock()
	seen := l.gapReported[provider]
	l.gapReported[provider] = true
	l.gapMu.Unlock()
	if !seen {
		l.opts.Logger.Warn("no rate limits configured for provider, admitting all calls", "provider", provider)
	}
}
