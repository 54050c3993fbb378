package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts uint64) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2.0,
	}
}

// TestDo_SucceedsAfterTransientFailures verifies retrying until success.
func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
}

// TestDo_BoundedAttempts verifies the attempt cap and last-error reporting.
func TestDo_BoundedAttempts(t *testing.T) {
	lastErr := errors.New("still failing")
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return lastErr
	})
	if !errors.Is(err, lastErr) {
		t.Errorf("Expected the last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", calls)
	}
}

// TestDo_Permanent verifies that a permanent error stops retries immediately.
func TestDo_Permanent(t *testing.T) {
	permErr := errors.New("bad request")
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return Permanent(permErr)
	})
	if !errors.Is(err, permErr) {
		t.Errorf("Expected the permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 attempt, got %d", calls)
	}
}

// TestDo_ZeroAttemptsRunsOnce verifies the zero value still runs the operation.
func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{InitialInterval: time.Millisecond}.Do(context.Background(), func() error {
		calls++
		return errors.New("nope")
	})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if calls != 1 {
		t.Errorf("Expected 1 attempt, got %d", calls)
	}
}

// TestDo_ContextCancellation verifies a cancelled context stops retrying.
func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := fastPolicy(10).Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if calls != 1 {
		t.Errorf("Expected 1 attempt after cancellation, got %d", calls)
	}
}
