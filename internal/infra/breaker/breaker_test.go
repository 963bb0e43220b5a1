package breaker

import (
	"errors"
	"testing"
	"time"

	"ai-analysis-ops/internal/domain"

	"github.com/rs/zerolog"
)

func newTestBreaker(t *testing.T, threshold int, cooldown time.Duration, onOpen OnOpenFunc) *Breaker {
	t.Helper()
	logger := zerolog.Nop()
	return New("ai-service", threshold, cooldown, onOpen, &logger)
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := newTestBreaker(t, 3, time.Minute, nil)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if got := b.State(); got != StateClosed {
			t.Fatalf("after %d failures state = %s, want closed", i+1, got)
		}
		if err := b.Allow(); err != nil {
			t.Fatalf("Allow() below threshold: %v", err)
		}
	}

	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %s, want open", got)
	}
	if err := b.Allow(); !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("Allow() while open = %v, want ErrCircuitOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(t, 3, time.Minute, nil)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %s, want closed (count was reset)", got)
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Run("successful probe closes", func(t *testing.T) {
		b := newTestBreaker(t, 1, 10*time.Millisecond, nil)
		b.RecordFailure()
		if b.State() != StateOpen {
			t.Fatal("breaker should be open")
		}

		time.Sleep(20 * time.Millisecond)
		if err := b.Allow(); err != nil {
			t.Fatalf("probe after cooldown: %v", err)
		}
		if b.State() != StateHalfOpen {
			t.Fatalf("state = %s, want half_open", b.State())
		}
		// Only one probe at a time.
		if err := b.Allow(); !errors.Is(err, domain.ErrCircuitOpen) {
			t.Fatalf("second probe = %v, want ErrCircuitOpen", err)
		}

		b.RecordSuccess()
		if b.State() != StateClosed {
			t.Fatalf("state = %s, want closed after successful probe", b.State())
		}
	})

	t.Run("failed probe reopens", func(t *testing.T) {
		b := newTestBreaker(t, 1, 10*time.Millisecond, nil)
		b.RecordFailure()
		time.Sleep(20 * time.Millisecond)
		if err := b.Allow(); err != nil {
			t.Fatalf("probe after cooldown: %v", err)
		}

		b.RecordFailure()
		if b.State() != StateOpen {
			t.Fatalf("state = %s, want open after failed probe", b.State())
		}
	})
}

func TestBreaker_OnOpenHook(t *testing.T) {
	var calls int
	var gotService string
	var gotCount int
	var gotErr string
	hook := func(service string, failureCount int, lastError string) {
		calls++
		gotService = service
		gotCount = failureCount
		gotErr = lastError
	}

	b := newTestBreaker(t, 2, time.Minute, hook)
	b.RecordFailureErr(errors.New("upstream timeout"))
	if calls != 0 {
		t.Fatal("hook fired before threshold")
	}
	b.RecordFailureErr(errors.New("upstream timeout"))

	if calls != 1 {
		t.Fatalf("hook calls = %d, want 1", calls)
	}
	if gotService != "ai-service" || gotCount != 2 || gotErr != "upstream timeout" {
		t.Fatalf("hook args = (%s, %d, %q)", gotService, gotCount, gotErr)
	}

	// Already open: further failures do not re-fire the hook.
	b.RecordFailure()
	if calls != 1 {
		t.Fatalf("hook calls after extra failure = %d, want 1", calls)
	}
}

func TestBreaker_ForceReset(t *testing.T) {
	b := newTestBreaker(t, 1, time.Hour, nil)
	b.RecordFailureErr(errors.New("boom"))
	if b.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	b.ForceReset()
	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after reset: %v", err)
	}
	stats := b.Stats()
	if stats.FailureCount != 0 || stats.LastError != "" || stats.OpenedAt != nil {
		t.Fatalf("stats not cleared: %+v", stats)
	}
}

func TestBreaker_Stats(t *testing.T) {
	b := newTestBreaker(t, 5, 30*time.Second, nil)
	b.RecordFailureErr(errors.New("rate limit exceeded"))

	s := b.Stats()
	if s.Service != "ai-service" {
		t.Fatalf("service = %s", s.Service)
	}
	if s.State != StateClosed || s.FailureCount != 1 || s.FailureThreshold != 5 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.CooldownSeconds != 30 {
		t.Fatalf("cooldown = %d, want 30", s.CooldownSeconds)
	}
	if s.LastFailureAt == nil {
		t.Fatal("LastFailureAt not set")
	}
	if s.LastError != "rate limit exceeded" {
		t.Fatalf("lastError = %q", s.LastError)
	}
}
