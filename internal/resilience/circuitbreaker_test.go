package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func succeeding(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(Config{Name: "llm", MaxFailures: 3, ResetTimeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Do(ctx, failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v, want errBoom", i, err)
		}
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	// Next call is rejected without invoking fn.
	called := false
	err := cb.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn was invoked while the breaker was open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(Config{MaxFailures: 2, ResetTimeout: time.Hour})
	ctx := context.Background()

	_ = cb.Do(ctx, failing)
	_ = cb.Do(ctx, succeeding)
	_ = cb.Do(ctx, failing)

	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed (counter reset by success)", got)
	}
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	_ = cb.Do(ctx, failing)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open after timeout", got)
	}
}

func TestCircuitBreaker_ClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2})
	ctx := context.Background()

	_ = cb.Do(ctx, failing)
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Do(ctx, succeeding); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed after probes", got)
	}
}

func TestCircuitBreaker_ReopensOnProbeFailure(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 3})
	ctx := context.Background()

	_ = cb.Do(ctx, failing)
	time.Sleep(20 * time.Millisecond)

	if err := cb.Do(ctx, failing); !errors.Is(err, errBoom) {
		t.Fatalf("probe err = %v, want errBoom", err)
	}
	if err := cb.Do(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err after failed probe = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_CancellationDoesNotCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(Config{MaxFailures: 1, ResetTimeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := cb.Do(ctx, func(context.Context) error {
			return context.Canceled
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed (cancellations absorbed)", got)
	}

	err := cb.Do(ctx, func(context.Context) error {
		return context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed (deadline absorbed)", got)
	}
}

func TestCircuitBreaker_CancelledProbesReturnBudget(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 3})
	ctx := context.Background()

	_ = cb.Do(ctx, failing)
	time.Sleep(20 * time.Millisecond)

	// Burn through more cancelled probes than the half-open budget allows.
	// None of them carries a verdict, so none may consume a probe slot.
	for i := 0; i < 5; i++ {
		err := cb.Do(ctx, func(context.Context) error {
			return context.DeadlineExceeded
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("probe %d: err = %v, want context.DeadlineExceeded", i, err)
		}
	}

	// Healthy calls must still be admitted and close the breaker.
	for i := 0; i < 3; i++ {
		if err := cb.Do(ctx, succeeding); err != nil {
			t.Fatalf("healthy call %d after cancelled probes: %v", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed after successful probes", got)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(Config{MaxFailures: 1, ResetTimeout: time.Hour})
	ctx := context.Background()

	_ = cb.Do(ctx, failing)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed after Reset", got)
	}
	if err := cb.Do(ctx, succeeding); err != nil {
		t.Errorf("Do after Reset = %v, want nil", err)
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(Config{})
	if cb.maxFailures != 5 || cb.resetTimeout != 30*time.Second || cb.halfOpenMax != 3 {
		t.Errorf("defaults = (%d, %v, %d), want (5, 30s, 3)",
			cb.maxFailures, cb.resetTimeout, cb.halfOpenMax)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(9), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
