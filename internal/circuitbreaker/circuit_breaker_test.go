package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ferro-labs/gateway-core/internal/clock/clocktest"
)

var (
	errBoom     = errors.New("boom")
	errThrottle = errors.New("throttled")
)

func newBreaker(cfg Config) (*CircuitBreaker, *clocktest.Fake) {
	clk := clocktest.New(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg.Clock = clk
	return New("p", cfg), clk
}

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestInitialStateClosed(t *testing.T) {
	cb, _ := newBreaker(Config{})
	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("expected Allow=true when closed")
	}
}

func TestOpensAfterThreshold(t *testing.T) {
	cb, _ := newBreaker(Config{FailureThreshold: 2})
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after 2 failures, got %s", cb.State())
	}

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("wrapped function ran while open")
	}
}

func TestClosedSuccessResetsFailures(t *testing.T) {
	cb, _ := newBreaker(Config{FailureThreshold: 3})
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateClosed {
		t.Fatalf("non-consecutive failures opened the breaker")
	}
}

func TestHalfOpenAfterResetTimeout(t *testing.T) {
	cb, clk := newBreaker(Config{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	_ = cb.Execute(context.Background(), fail)

	clk.Advance(9 * time.Second)
	if cb.Allow() {
		t.Fatal("admitted before reset timeout")
	}
	clk.Advance(time.Second)
	if cb.State() != StateOpen {
		t.Fatal("state must stay open until the next call")
	}
	if !cb.Allow() {
		t.Fatal("expected trial call after reset timeout")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half_open, got %s", cb.State())
	}
}

func TestClosesAfterSuccessThreshold(t *testing.T) {
	cb, clk := newBreaker(Config{FailureThreshold: 1, ResetTimeout: time.Second})
	_ = cb.Execute(context.Background(), fail)
	clk.Advance(time.Second)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), succeed); err != nil {
			t.Fatalf("trial %d rejected: %v", i+1, err)
		}
		if cb.State() != StateHalfOpen {
			t.Fatalf("closed after %d successes", i+1)
		}
	}
	_ = cb.Execute(context.Background(), succeed)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after 3 successes, got %s", cb.State())
	}
	snap := cb.Snapshot()
	if snap.FailureCount != 0 || snap.SuccessCount != 0 {
		t.Fatalf("counters not reset: %+v", snap)
	}
}

func TestReopensOnFailureInHalfOpen(t *testing.T) {
	cb, clk := newBreaker(Config{FailureThreshold: 1, ResetTimeout: time.Second})
	_ = cb.Execute(context.Background(), fail)
	clk.Advance(time.Second)
	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after half-open failure, got %s", cb.State())
	}
	if cb.Allow() {
		t.Fatal("reset timer not restarted")
	}
	if cb.Snapshot().Trips != 2 {
		t.Fatalf("trips = %d, want 2", cb.Snapshot().Trips)
	}
}

func TestHalfOpenLimitsTrials(t *testing.T) {
	cb, clk := newBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, ResetTimeout: time.Second})
	cb.RecordFailure()
	clk.Advance(time.Second)
	if !cb.Allow() || !cb.Allow() {
		t.Fatal("expected two trial slots")
	}
	if cb.Allow() {
		t.Fatal("third concurrent trial admitted")
	}
	cb.RecordSuccess()
	if !cb.Allow() {
		t.Fatal("finished trial did not free its slot")
	}
}

func TestIgnoredErrorsDoNotCount(t *testing.T) {
	cb, _ := newBreaker(Config{
		FailureThreshold: 1,
		IsIgnored:        func(err error) bool { return errors.Is(err, errThrottle) },
	})
	for i := 0; i < 5; i++ {
		err := cb.Execute(context.Background(), func(context.Context) error { return errThrottle })
		if !errors.Is(err, errThrottle) {
			t.Fatalf("Execute() = %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatal("throttling signals opened the breaker")
	}
}

func TestOnStateChange(t *testing.T) {
	var got []string
	cb, clk := newBreaker(Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		ResetTimeout:     time.Second,
		OnStateChange: func(name string, from, to State) {
			got = append(got, name+":"+from.String()+"->"+to.String())
		},
	})
	_ = cb.Execute(context.Background(), fail)
	clk.Advance(time.Second)
	_ = cb.Execute(context.Background(), succeed)

	want := []string{"p:closed->open", "p:open->half_open", "p:half_open->closed"}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestReset(t *testing.T) {
	cb, _ := newBreaker(Config{FailureThreshold: 1})
	cb.RecordFailure()
	cb.Reset()
	if cb.State() != StateClosed || !cb.Allow() {
		t.Fatal("Reset did not close the breaker")
	}
}

func TestSnapshot_RetryAt(t *testing.T) {
	cb, clk := newBreaker(Config{FailureThreshold: 1, ResetTimeout: time.Minute})
	cb.RecordFailure()
	snap := cb.Snapshot()
	if !snap.RetryAt.Equal(clk.Now().Add(time.Minute)) {
		t.Fatalf("RetryAt = %v", snap.RetryAt)
	}
	if snap.State != StateOpen || snap.Name != "p" {
		t.Fatalf("snapshot = %+v", snap)
	}
}
