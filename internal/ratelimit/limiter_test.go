package ratelimit

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ferro-labs/gateway-core/internal/clock/clocktest"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newLimiter(t *testing.T, opts Options) (*Limiter, *clocktest.Fake) {
	t.Helper()
	clk := clocktest.New(epoch)
	opts.Clock = clk
	return New(opts), clk
}

// rpm=2 with the default 0.8 buffer leaves an effective cap of one request.
func TestCanProceed_RequestCapWithSafetyBuffer(t *testing.T) {
	l, _ := newLimiter(t, Options{})
	l.Register("p1", Limits{RequestsPerMinute: 2})

	if d := l.CanProceed("p1", 0); !d.Allowed {
		t.Fatalf("first call denied: %+v", d)
	}
	d := l.CanProceed("p1", 0)
	if d.Allowed || d.Reason != ReasonRequestLimit {
		t.Fatalf("second call = %+v, want request_limit_exceeded", d)
	}
}

func TestCanProceed_AllowsAfterWindowRollover(t *testing.T) {
	l, clk := newLimiter(t, Options{})
	l.Register("p", Limits{RequestsPerMinute: 10})
	for i := 0; i < 8; i++ {
		if !l.CanProceed("p", 0).Allowed {
			t.Fatalf("call %d denied below cap", i+1)
		}
		l.RecordCompletion("p")
	}
	if l.CanProceed("p", 0).Allowed {
		t.Fatal("ninth call admitted above floor(10*0.8)")
	}
	clk.Advance(time.Minute)
	if !l.CanProceed("p", 0).Allowed {
		t.Fatal("call denied after window rollover")
	}
	st, _ := l.State("p")
	if st.RequestsInWindow != 1 {
		t.Errorf("RequestsInWindow = %d, want 1", st.RequestsInWindow)
	}
}

func TestCanProceed_TokenLimit(t *testing.T) {
	l, _ := newLimiter(t, Options{})
	l.Register("p", Limits{TokensPerMinute: 1000}) // cap 800
	if !l.CanProceed("p", 500).Allowed {
		t.Fatal("500 tokens denied")
	}
	d := l.CanProceed("p", 400)
	if d.Allowed || d.Reason != ReasonTokenLimit {
		t.Fatalf("900 tokens admitted: %+v", d)
	}
	if !l.CanProceed("p", 0).Allowed {
		t.Fatal("zero-cost call must not be gated by tokens")
	}
	st, _ := l.State("p")
	if st.TokensInWindow != 500 || st.RequestsInWindow != 2 {
		t.Errorf("state = %+v", st)
	}
}

func TestCanProceed_Concurrency(t *testing.T) {
	l, _ := newLimiter(t, Options{})
	l.Register("p", Limits{ConcurrentRequests: 2})
	for i := 1; i <= 2; i++ {
		if d := l.CanProceed("p", 0); !d.Allowed {
			t.Fatalf("in-flight call %d denied: %+v", i, d)
		}
	}
	if d := l.CanProceed("p", 0); d.Allowed || d.Reason != ReasonConcurrencyLimit {
		t.Fatalf("third in-flight call = %+v", d)
	}
	l.RecordCompletion("p")
	if !l.CanProceed("p", 0).Allowed {
		t.Fatal("call denied after completion")
	}
}

func TestCanProceed_ConcurrencyIgnoresSafetyBuffer(t *testing.T) {
	l, _ := newLimiter(t, Options{SafetyBuffer: 0.5})
	l.Register("p", Limits{ConcurrentRequests: 5})
	admitted := 0
	for i := 0; i < 10; i++ {
		if l.CanProceed("p", 0).Allowed {
			admitted++
		}
	}
	if admitted != 5 {
		t.Errorf("admitted %d in-flight calls, want 5", admitted)
	}
}

func TestCanProceed_AtomicReservation(t *testing.T) {
	l, _ := newLimiter(t, Options{})
	l.Register("p", Limits{RequestsPerMinute: 50}) // cap 40

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CanProceed("p", 0).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 40 {
		t.Fatalf("allowed %d concurrent calls, want exactly 40", allowed)
	}
}

func TestCanProceed_Unconfigured(t *testing.T) {
	l, _ := newLimiter(t, Options{})
	l.Register("open", Limits{})
	for i := 0; i < 100; i++ {
		if d := l.CanProceed("open", 1000); !d.Allowed || d.Reason != ReasonNotConfigured {
			t.Fatalf("unconfigured provider denied: %+v", d)
		}
	}
	if d := l.CanProceed("never-registered", 0); !d.Allowed {
		t.Fatalf("unknown provider denied: %+v", d)
	}
}

func TestEffectiveCap_ClampsToOne(t *testing.T) {
	l, _ := newLimiter(t, Options{})
	l.Register("tiny", Limits{RequestsPerMinute: 1})
	if !l.CanProceed("tiny", 0).Allowed {
		t.Fatal("rpm=1 must still admit one call per window")
	}
	if l.CanProceed("tiny", 0).Allowed {
		t.Fatal("rpm=1 admitted a second call")
	}
}

func TestOnRateLimitHit_ExponentialBackoff(t *testing.T) {
	var gotHits []int
	var gotDelays []time.Duration
	l, clk := newLimiter(t, Options{
		MinBackoff: time.Second,
		MaxBackoff: 5 * time.Second,
		OnRateLimitHit: func(_ string, hits int, delay time.Duration) {
			gotHits = append(gotHits, hits)
			gotDelays = append(gotDelays, delay)
		},
	})
	l.Register("p", Limits{RequestsPerMinute: 100})

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for range want {
		l.RecordOutcome("p", 0, OutcomeRateLimited, 0)
	}
	for i, w := range want {
		if gotDelays[i] != w {
			t.Errorf("hit %d delay = %v, want %v", i+1, gotDelays[i], w)
		}
		if gotHits[i] != i+1 {
			t.Errorf("hit %d reported hits=%d", i+1, gotHits[i])
		}
	}

	d := l.CanProceed("p", 0)
	if d.Allowed || d.Reason != ReasonBackoffActive || d.RetryAfter != 5*time.Second {
		t.Fatalf("during backoff = %+v", d)
	}
	clk.Advance(5 * time.Second)
	if !l.CanProceed("p", 0).Allowed {
		t.Fatal("denied after backoff expired")
	}
}

func TestOnRateLimitHit_HonoursRetryAfter(t *testing.T) {
	l, _ := newLimiter(t, Options{})
	l.Register("p", Limits{RequestsPerMinute: 100})
	l.OnRateLimitHit("p", 30*time.Second)
	st, _ := l.State("p")
	if st.BackoffDelay != 30*time.Second || !st.BackoffActive {
		t.Fatalf("state = %+v", st)
	}
}

func TestGradualRecovery(t *testing.T) {
	l, clk := newLimiter(t, Options{})
	l.Register("p", Limits{RequestsPerMinute: 100})
	l.OnRateLimitHit("p", 0)
	l.OnRateLimitHit("p", 0)
	l.OnRateLimitHit("p", 0)

	clk.Advance(time.Minute) // window with hits closes: no decay
	st, _ := l.State("p")
	if st.ConsecutiveHits != 3 {
		t.Fatalf("hits after dirty window = %d, want 3", st.ConsecutiveHits)
	}
	clk.Advance(time.Minute) // one clean window
	st, _ = l.State("p")
	if st.ConsecutiveHits != 2 {
		t.Fatalf("hits after clean window = %d, want 2", st.ConsecutiveHits)
	}
	clk.Advance(10 * time.Minute)
	st, _ = l.State("p")
	if st.ConsecutiveHits != 0 || st.BackoffDelay != 0 {
		t.Fatalf("hits never below zero, got %+v", st)
	}
}

func TestSingleHitReturnsToBaselineAfterCleanWindow(t *testing.T) {
	l, clk := newLimiter(t, Options{})
	l.Register("p", Limits{RequestsPerMinute: 100})
	l.OnRateLimitHit("p", 0)

	clk.Advance(time.Minute)
	clk.Advance(time.Minute)
	st, _ := l.State("p")
	if st.ConsecutiveHits != 0 || st.BackoffDelay != 0 {
		t.Fatalf("state after one clean window = %+v, want baseline", st)
	}
	if !l.CanProceed("p", 0).Allowed {
		t.Fatal("call denied at baseline")
	}
}

func TestRecordOutcome_ExtraTokens(t *testing.T) {
	l, _ := newLimiter(t, Options{})
	l.Register("p", Limits{TokensPerMinute: 1000})
	l.CanProceed("p", 100)
	l.RecordOutcome("p", 250, OutcomeSuccess, 0)
	l.RecordCompletion("p")
	st, _ := l.State("p")
	if st.TokensInWindow != 350 || st.InFlight != 0 {
		t.Fatalf("state = %+v", st)
	}
	l.RecordCompletion("p")
	st, _ = l.State("p")
	if st.InFlight != 0 {
		t.Fatal("in-flight went negative")
	}
}

func TestAdmin_UpdateLimitsAndResetBackoff(t *testing.T) {
	l, _ := newLimiter(t, Options{})
	l.Register("p", Limits{RequestsPerMinute: 2})
	rpm := 100
	lim, err := l.UpdateLimits("p", LimitsUpdate{RequestsPerMinute: &rpm})
	if err != nil || lim.RequestsPerMinute != 100 {
		t.Fatalf("UpdateLimits() = %+v, %v", lim, err)
	}
	neg := -1
	if _, err := l.UpdateLimits("p", LimitsUpdate{TokensPerMinute: &neg}); err == nil {
		t.Fatal("negative limit accepted")
	}

	l.OnRateLimitHit("p", 0)
	if err := l.ResetBackoff("p"); err != nil {
		t.Fatalf("ResetBackoff() error: %v", err)
	}
	if !l.CanProceed("p", 0).Allowed {
		t.Fatal("denied after ResetBackoff")
	}

	if err := l.ResetBackoff("ghost"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("ResetBackoff(ghost) = %v", err)
	}
	if _, err := l.UpdateLimits("ghost", LimitsUpdate{}); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("UpdateLimits(ghost) = %v", err)
	}
	if _, err := l.State("ghost"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("State(ghost) = %v", err)
	}
}

func TestDeregister(t *testing.T) {
	l, _ := newLimiter(t, Options{})
	l.Register("p", Limits{RequestsPerMinute: 1})
	l.Deregister("p")
	if _, err := l.State("p"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatal("state survived deregistration")
	}
}

func TestDecisionErr(t *testing.T) {
	l, _ := newLimiter(t, Options{})
	l.Register("p", Limits{RequestsPerMinute: 2})
	if err := l.CanProceed("p", 0).Err(); err != nil {
		t.Fatalf("first call: %v", err)
	}
	err := l.CanProceed("p", 0).Err()
	if !errors.Is(err, ErrAdmissionDenied) {
		t.Fatalf("second call: %v, want ErrAdmissionDenied", err)
	}
	if !strings.Contains(err.Error(), string(ReasonRequestLimit)) {
		t.Errorf("error %q does not name the reason", err)
	}
}
