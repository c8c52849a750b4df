package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omegaflow/agentcore/internal/backoff"
)

func fastConfig(maxAttempts int) Config {
	return Config{MaxAttempts: maxAttempts, Policy: backoff.Policy{InitialMs: 1, MaxMs: 2, Factor: 1, Jitter: 0}}
}

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if result.Err != nil || result.Attempts != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call, got %d", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if result.Err != nil {
		t.Fatalf("expected eventual success, got %v", result.Err)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestDoStopsImmediatelyOnPermanentError(t *testing.T) {
	calls := 0
	cause := errors.New("bad request")
	result := Do(context.Background(), fastConfig(5), func(ctx context.Context, attempt int) error {
		calls++
		return Permanent(cause)
	})
	if calls != 1 {
		t.Fatalf("expected exactly one attempt before giving up, got %d", calls)
	}
	if !IsPermanent(result.Err) {
		t.Fatalf("expected a permanent error, got %v", result.Err)
	}
	if !errors.Is(result.Err, cause) {
		t.Fatal("expected the underlying cause to unwrap via errors.Is")
	}
}

func TestDoExhaustsAttemptsAndWrapsLastError(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("always fails")
	})
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
	if result.Attempts != 3 || result.Err == nil {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDoStopsOnContextCancellationBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	result := Do(ctx, Config{MaxAttempts: 5, Policy: backoff.Policy{InitialMs: 50, MaxMs: 50, Factor: 1, Jitter: 0}},
		func(ctx context.Context, attempt int) error {
			calls++
			if calls == 1 {
				cancel()
			}
			return errors.New("transient")
		})
	if !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled to surface, got %v", result.Err)
	}
	if calls != 1 {
		t.Fatalf("expected the loop to stop after cancellation, got %d calls", calls)
	}
}

func TestIsPermanentFalseForOrdinaryError(t *testing.T) {
	if IsPermanent(errors.New("ordinary")) {
		t.Fatal("expected an ordinary error to not be permanent")
	}
}

func TestPermanentNilPassesThrough(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("expected Permanent(nil) to return nil")
	}
}

func TestDefaultConfigMatchesMCPConnectRetrySchedule(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxAttempts != 5 {
		t.Fatalf("expected 5 max attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.Policy.InitialMs != 100 {
		t.Fatalf("expected the default backoff policy, got %+v", cfg.Policy)
	}
}

func TestDoRespectsRealisticDelayBetweenAttempts(t *testing.T) {
	calls := 0
	start := time.Now()
	Do(context.Background(), Config{MaxAttempts: 2, Policy: backoff.Policy{InitialMs: 20, MaxMs: 20, Factor: 1, Jitter: 0}},
		func(ctx context.Context, attempt int) error {
			calls++
			return errors.New("fail")
		})
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected at least one backoff sleep between attempts, elapsed=%v", elapsed)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}
