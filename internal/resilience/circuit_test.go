package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failN(b *Breaker, n int) {
	for range n {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("webhook returned 502")
		})
	}
}

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b := NewBreaker(BreakerConfig{})
	var calls int
	err := b.Execute(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected one successful call, got %d calls, err %v", calls, err)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})
	failN(b, 3)

	if b.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	err := b.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not be called while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3})
	failN(b, 2)
	_ = b.Execute(context.Background(), func(_ context.Context) error { return nil })
	failN(b, 2)

	if b.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: 100 * time.Millisecond})
	b.now = func() time.Time { return now }
	failN(b, 2)

	b.now = func() time.Time { return now.Add(200 * time.Millisecond) }
	if b.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", b.State())
	}
	if err := b.Execute(context.Background(), func(_ context.Context) error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: 100 * time.Millisecond})
	b.now = func() time.Time { return now }
	failN(b, 2)

	later := now.Add(200 * time.Millisecond)
	b.now = func() time.Time { return later }
	failN(b, 1)

	if b.State() != CircuitOpen {
		t.Errorf("expected open after failed probe, got %s", b.State())
	}
}

func TestBreaker_SingleProbeInHalfOpen(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }
	failN(b, 1)
	b.now = func() time.Time { return now.Add(2 * time.Second) }

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		// A second caller arriving while the probe is in flight is rejected.
		inner := b.Execute(ctx, func(context.Context) error { return nil })
		if !errors.Is(inner, ErrCircuitOpen) {
			t.Errorf("expected concurrent call rejected, got %v", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var got []string
	now := time.Now()
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Second,
		OnStateChange: func(from, to CircuitState) {
			got = append(got, from.String()+">"+to.String())
		},
	})
	b.now = func() time.Time { return now }
	failN(b, 1)
	b.now = func() time.Time { return now.Add(2 * time.Second) }
	_ = b.Execute(context.Background(), func(_ context.Context) error { return nil })

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestFromBreakerConfig(t *testing.T) {
	cfg := FromBreakerConfig(4, 30)
	if cfg.FailureThreshold != 4 || cfg.Cooldown != 30*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}
	b := NewBreaker(FromBreakerConfig(0, 0))
	if b.cfg.FailureThreshold != 3 || b.cfg.Cooldown != time.Minute {
		t.Errorf("expected defaults, got %+v", b.cfg)
	}
}

func TestCircuitState_String(t *testing.T) {
	if CircuitState(9).String() != "unknown" {
		t.Error("expected unknown")
	}
}
