package usage_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/usage"
)

func TestPeriod(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"mid month", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), "2025-03"},
		{"last instant", time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), "2025-12"},
		{"first instant", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "2026-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := usage.Period(tt.at); got != tt.want {
				t.Errorf("Period() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLimitsFor(t *testing.T) {
	l := usage.Limits{Free: 5}
	if got := l.For(business.TierFree); got != 5 {
		t.Errorf("free = %d, want 5", got)
	}
	if got := l.For(business.TierPro); got != usage.Unlimited {
		t.Errorf("pro = %d, want unlimited", got)
	}
}

func TestSnapshot(t *testing.T) {
	biz := id.NewBusinessID()

	s := usage.NewSnapshot(biz, "2025-03", business.TierFree, 3, 3)
	if s.CanSend || s.Remaining != 0 {
		t.Errorf("at limit: CanSend=%v Remaining=%d", s.CanSend, s.Remaining)
	}

	s = usage.NewSnapshot(biz, "2025-03", business.TierFree, 1, 3)
	if !s.CanSend || s.Remaining != 2 {
		t.Errorf("under limit: CanSend=%v Remaining=%d", s.CanSend, s.Remaining)
	}

	s = usage.NewSnapshot(biz, "2025-03", business.TierPro, 400, usage.Unlimited)
	if !s.CanSend || s.Remaining != usage.Unlimited {
		t.Errorf("unlimited: CanSend=%v Remaining=%d", s.CanSend, s.Remaining)
	}
}

func TestGateReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	gate := usage.NewGate(memory.New(), usage.DefaultLimits())
	biz := id.NewBusinessID()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		snap, ok, err := gate.Reserve(ctx, biz, business.TierFree, now)
		if err != nil {
			t.Fatal(err)
		}
		if !ok || snap.Count != int64(i) {
			t.Fatalf("reserve %d: ok=%v count=%d", i, ok, snap.Count)
		}
	}

	snap, ok, err := gate.Reserve(ctx, biz, business.TierFree, now)
	if err != nil {
		t.Fatal(err)
	}
	if ok || snap.Count != 3 || snap.CanSend {
		t.Fatalf("over limit: ok=%v count=%d", ok, snap.Count)
	}

	if err := gate.Release(ctx, biz, snap.Period); err != nil {
		t.Fatal(err)
	}
	snap, err = gate.Check(ctx, biz, business.TierFree, now)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Count != 2 || !snap.CanSend {
		t.Errorf("after release: count=%d can_send=%v", snap.Count, snap.CanSend)
	}

	next, err := gate.Check(ctx, biz, business.TierFree, now.AddDate(0, 1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if next.Count != 0 || next.Period != "2025-04" {
		t.Errorf("next month: count=%d period=%s", next.Count, next.Period)
	}
}

func TestGateReserveIsAtomic(t *testing.T) {
	ctx := context.Background()
	gate := usage.NewGate(memory.New(), usage.DefaultLimits())
	biz := id.NewBusinessID()
	now := time.Now()

	var granted atomic.Int64
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := gate.Reserve(ctx, biz, business.TierFree, now); err == nil && ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != usage.DefaultFreeLimit {
		t.Errorf("granted = %d, want %d", got, usage.DefaultFreeLimit)
	}
}

func TestGateProIsUnlimited(t *testing.T) {
	ctx := context.Background()
	gate := usage.NewGate(memory.New(), usage.DefaultLimits())
	biz := id.NewBusinessID()

	for range 10 {
		if _, ok, err := gate.Reserve(ctx, biz, business.TierPro, time.Now()); err != nil || !ok {
			t.Fatalf("pro reserve: ok=%v err=%v", ok, err)
		}
	}
}
