package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"frontsync/pkg/kv"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(store kv.Store) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("test", DefaultConfig(), store).WithClock(clock.now)
	return cb, clock
}

func TestOpensAfterThresholdAndRefusesDuringCooldown(t *testing.T) {
	ctx := context.Background()
	cb, clock := newTestBreaker(kv.NewMemory())
	boom := errors.New("remote returned 503")

	for i := 0; i < 4; i++ {
		if _, err := cb.RecordFailure(ctx, boom); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if ok, _ := cb.Allow(ctx); !ok {
		t.Fatalf("expected closed circuit after 4 failures")
	}

	snap, err := cb.RecordFailure(ctx, boom)
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if !snap.Open || snap.ConsecutiveFailures != 5 {
		t.Fatalf("expected open circuit with 5 failures, got %+v", snap)
	}
	if snap.NextAttemptAt == nil || !snap.NextAttemptAt.Equal(clock.t.Add(5*time.Minute)) {
		t.Fatalf("expected next attempt in 5m, got %v", snap.NextAttemptAt)
	}

	clock.t = clock.t.Add(4 * time.Minute)
	if ok, _ := cb.Allow(ctx); ok {
		t.Fatalf("expected call refused before cool-down elapsed")
	}
	if state, _ := cb.GetState(ctx); state != StateOpen {
		t.Fatalf("expected open, got %s", state)
	}

	clock.t = clock.t.Add(time.Minute)
	if ok, _ := cb.Allow(ctx); !ok {
		t.Fatalf("expected call permitted after cool-down")
	}
	if state, _ := cb.GetState(ctx); state != StateHalfOpen {
		t.Fatalf("expected half_open, got %s", state)
	}
}

func TestSuccessResetsCounterAndCloses(t *testing.T) {
	ctx := context.Background()
	cb, _ := newTestBreaker(kv.NewMemory())
	for i := 0; i < 5; i++ {
		cb.RecordFailure(ctx, errors.New("timeout"))
	}

	snap, err := cb.RecordSuccess(ctx)
	if err != nil {
		t.Fatalf("record success: %v", err)
	}
	if snap.Open || snap.ConsecutiveFailures != 0 || snap.NextAttemptAt != nil {
		t.Fatalf("expected closed and reset, got %+v", snap)
	}
	if ok, _ := cb.Allow(ctx); !ok {
		t.Fatalf("expected closed circuit to allow calls")
	}
}

func TestFailureDuringHalfOpenRestartsCooldown(t *testing.T) {
	ctx := context.Background()
	cb, clock := newTestBreaker(kv.NewMemory())
	for i := 0; i < 5; i++ {
		cb.RecordFailure(ctx, errors.New("timeout"))
	}
	clock.t = clock.t.Add(6 * time.Minute)

	snap, _ := cb.RecordFailure(ctx, errors.New("timeout"))
	if want := clock.t.Add(5 * time.Minute); !snap.NextAttemptAt.Equal(want) {
		t.Fatalf("expected new cool-down until %v, got %v", want, snap.NextAttemptAt)
	}
	if ok, _ := cb.Allow(ctx); ok {
		t.Fatalf("expected refused after failed trial call")
	}
}

func TestStateSharedThroughStore(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	a, _ := newTestBreaker(store)
	b, _ := newTestBreaker(store)
	for i := 0; i < 5; i++ {
		a.RecordFailure(ctx, errors.New("boom"))
	}
	if ok, _ := b.Allow(ctx); ok {
		t.Fatalf("expected second breaker instance to observe open state")
	}
	if err := b.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if ok, _ := a.Allow(ctx); !ok {
		t.Fatalf("expected reset to be visible to first instance")
	}
}
