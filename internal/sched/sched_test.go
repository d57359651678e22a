package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "blastbot/pkg/logx"
)

func TestAddRejectsInvalidSpec(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	err := s.Add(Job{Name: "bad", Spec: "not a cron spec", Run: func(ctx context.Context) {}})
	if err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestAddRejectsNilRun(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	if err := s.Add(Job{Name: "nil", Spec: "@daily"}); err == nil {
		t.Fatal("expected error for nil run func")
	}
}

func TestJobFiresAndNeverOverlaps(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())

	var fires, active, maxActive int64
	err := s.Add(Job{
		Name: "tick",
		Spec: "@every 10ms",
		Run: func(ctx context.Context) {
			cur := atomic.AddInt64(&active, 1)
			for {
				prev := atomic.LoadInt64(&maxActive)
				if cur <= prev || atomic.CompareAndSwapInt64(&maxActive, prev, cur) {
					break
				}
			}
			atomic.AddInt64(&fires, 1)
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt64(&active, -1)
		},
	})
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt64(&fires) < 2 {
		select {
		case <-deadline:
			t.Fatalf("job fired %d times, want >= 2", atomic.LoadInt64(&fires))
		case <-time.After(10 * time.Millisecond):
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	s.Stop(stopCtx)

	if got := atomic.LoadInt64(&maxActive); got != 1 {
		t.Fatalf("max concurrent runs = %d, want 1", got)
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()
	s := New(logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Stop(ctx) // must not panic or block
}
