package usecase

import (
	"errors"
	"testing"
	"time"
)

func TestReconnectPolicyValidate(t *testing.T) {
	t.Parallel()

	if err := (ReconnectPolicy{BaseDelay: time.Second, MaxAttempts: 3}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range []ReconnectPolicy{
		{BaseDelay: 0, MaxAttempts: 3},
		{BaseDelay: time.Second, MaxAttempts: 0},
		{BaseDelay: -time.Second, MaxAttempts: -1},
	} {
		if err := p.Validate(); !errors.Is(err, ErrInvalidReconnectPolicy) {
			t.Fatalf("expected invalid policy for %+v, got %v", p, err)
		}
	}
}

func TestReconnectBackOffDoubles(t *testing.T) {
	t.Parallel()

	policy := ReconnectPolicy{BaseDelay: 500 * time.Millisecond, MaxAttempts: 4}
	b := policy.newBackOff()
	for attempt := 0; attempt < 4; attempt++ {
		want := policy.Delay(attempt)
		if got := b.NextBackOff(); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}

	b.Reset()
	if got := b.NextBackOff(); got != 500*time.Millisecond {
		t.Fatalf("expected reset to base delay, got %s", got)
	}
}

func TestReconnectPolicyDelay(t *testing.T) {
	t.Parallel()

	policy := ReconnectPolicy{BaseDelay: time.Second, MaxAttempts: 3}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, delay := range want {
		if got := policy.Delay(attempt); got != delay {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, delay, got)
		}
	}
}
