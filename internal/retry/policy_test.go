package retry_test

import (
	"testing"
	"time"

	"postflow/internal/retry"
	"postflow/internal/services"
)

func midpoint() float64 { return 0.5 }

func TestShouldRetryByKind(t *testing.T) {
	policy := retry.NewPolicy(3, time.Second, time.Minute, 0.2, retry.WithRandom(midpoint))

	never := []services.ErrorKind{
		services.KindModerationRejected,
		services.KindPermanent,
		services.KindValidation,
		services.KindInvalidContent,
		services.KindReviewRejected,
		services.KindRetriesExhausted,
	}
	for _, kind := range never {
		if d := policy.ShouldRetry(kind, 0); d.Retry {
			t.Fatalf("%s should never retry", kind)
		}
	}

	for attempt := 0; attempt < 3; attempt++ {
		if d := policy.ShouldRetry(services.KindTransient, attempt); !d.Retry {
			t.Fatalf("transient attempt %d should retry", attempt)
		}
	}
	if d := policy.ShouldRetry(services.KindTransient, 3); d.Retry {
		t.Fatal("transient failure retried past max attempts")
	}
}

func TestBackoffDoublesWithoutJitter(t *testing.T) {
	policy := retry.NewPolicy(5, time.Second, 10*time.Second, 0.2, retry.WithRandom(midpoint))
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	for attempt, expected := range want {
		if got := policy.Backoff(attempt); got != expected {
			t.Fatalf("Backoff(%d) = %s, want %s", attempt, got, expected)
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	low := retry.NewPolicy(3, 10*time.Second, time.Hour, 0.2, retry.WithRandom(func() float64 { return 0 }))
	if got := low.Backoff(0); got != 8*time.Second {
		t.Fatalf("lowest jitter = %s, want 8s", got)
	}
	high := retry.NewPolicy(3, 10*time.Second, time.Hour, 0.2, retry.WithRandom(func() float64 { return 0.999999 }))
	if got := high.Backoff(0); got < 11*time.Second || got > 12*time.Second {
		t.Fatalf("highest jitter = %s, want within (11s, 12s]", got)
	}
	capped := retry.NewPolicy(3, 10*time.Second, 10*time.Second, 0.2, retry.WithRandom(func() float64 { return 0.999999 }))
	if got := capped.Backoff(4); got != 10*time.Second {
		t.Fatalf("capped backoff = %s, want 10s", got)
	}
}

func TestDefaultsApplied(t *testing.T) {
	policy := retry.NewPolicy(0, 0, 0, -1)
	if policy.MaxAttempts != retry.DefaultMaxAttempts {
		t.Fatalf("max attempts = %d", policy.MaxAttempts)
	}
	if policy.BaseDelay != retry.DefaultBaseDelay || policy.MaxDelay != retry.DefaultMaxDelay {
		t.Fatalf("delays = %s/%s", policy.BaseDelay, policy.MaxDelay)
	}
	if policy.JitterFraction != retry.DefaultJitterFraction {
		t.Fatalf("jitter = %f", policy.JitterFraction)
	}
}
