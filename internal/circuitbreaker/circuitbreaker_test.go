package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestBreaker() *CircuitBreaker {
	return New(Config{
		Name:             "test",
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
	})
}

func TestCircuitBreakerStateClosed(t *testing.T) {
	cb := newTestBreaker()

	if err := cb.Call(func() error { return nil }); err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state to be Closed, got %v", cb.GetState())
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := newTestBreaker()
	testErr := errors.New("test error")

	for i := 0; i < 2; i++ {
		if err := cb.Call(func() error { return testErr }); err != testErr {
			t.Errorf("Expected test error, got: %v", err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Errorf("Expected state to be Open, got %v", cb.GetState())
	}

	called := false
	err := cb.Call(func() error { called = true; return nil })
	if err != ErrCircuitOpen {
		t.Errorf("Expected ErrCircuitOpen, got: %v", err)
	}
	if called {
		t.Error("Expected function not to run while open")
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := newTestBreaker()
	testErr := errors.New("test error")
	cb.Call(func() error { return testErr })
	cb.Call(func() error { return testErr })

	time.Sleep(75 * time.Millisecond)

	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("Expected half-open attempt to succeed, got: %v", err)
	}
	if cb.GetState() != StateHalfOpen {
		t.Errorf("Expected state to be HalfOpen, got %v", cb.GetState())
	}
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("Expected second success, got: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state to be Closed after successes, got %v", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker()
	testErr := errors.New("test error")
	cb.Call(func() error { return testErr })
	cb.Call(func() error { return testErr })

	time.Sleep(75 * time.Millisecond)

	cb.Call(func() error { return testErr })
	if cb.GetState() != StateOpen {
		t.Errorf("Expected state to be Open after half-open failure, got %v", cb.GetState())
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := newTestBreaker()
	testErr := errors.New("test error")

	cb.Call(func() error { return testErr })
	cb.Call(func() error { return nil })
	cb.Call(func() error { return testErr })

	if cb.GetState() != StateClosed {
		t.Errorf("Expected non-consecutive failures to keep the breaker closed, got %v", cb.GetState())
	}
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := newTestBreaker()
	for i := 0; i < 3; i++ {
		cb.CallContext(context.Background(), func(context.Context) error { return context.Canceled })
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected cancellations not to trip the breaker, got %v", cb.GetState())
	}
}

func TestCircuitBreakerCustomIsFailure(t *testing.T) {
	clientErr := errors.New("bad request")
	cb := New(Config{
		Name:             "custom",
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, clientErr) },
	})

	if err := cb.Call(func() error { return clientErr }); err != clientErr {
		t.Fatalf("Expected error to be returned unchanged, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected ignored error to keep breaker closed, got %v", cb.GetState())
	}
}

func TestCallContextDoneContext(t *testing.T) {
	cb := newTestBreaker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.CallContext(ctx, func(context.Context) error {
		t.Error("function should not run with a done context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
