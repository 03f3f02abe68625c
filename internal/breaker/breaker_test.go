package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/petrosa/realtime-strategies/errs"
)

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := New("test", Settings{FailureThreshold: 3, RecoveryTimeout: time.Second})
	for i := 0; i < 10; i++ {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if b.State() != "closed" {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("test", Settings{FailureThreshold: 3, RecoveryTimeout: time.Minute})
	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected underlying error, got %v", err)
		}
	}
	if !b.Open() {
		t.Fatalf("expected open after threshold, got %s", b.State())
	}

	err := b.Do(func() error {
		t.Fatal("open breaker must not invoke the call")
		return nil
	})
	var envelope *errs.E
	if !errors.As(err, &envelope) || envelope.Code != errs.CodeUnavailable {
		t.Fatalf("expected unavailable envelope, got %v", err)
	}
}

func TestBreakerRecoversAfterTimeout(t *testing.T) {
	b := New("test", Settings{FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond})
	if err := b.Do(func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected failure")
	}
	if !b.Open() {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(30 * time.Millisecond)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("half-open probe should pass: %v", err)
	}
	if b.State() != "closed" {
		t.Fatalf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := New("test", Settings{FailureThreshold: 3, RecoveryTimeout: time.Minute})
	boom := errors.New("boom")
	_ = b.Do(func() error { return boom })
	_ = b.Do(func() error { return boom })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return boom })
	_ = b.Do(func() error { return boom })
	if b.Open() {
		t.Fatal("streak should have reset before reaching the threshold")
	}
}
