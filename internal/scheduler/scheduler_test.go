package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"snipebot/pkg/logx"
)

func TestAddScheduleRejectsBadInput(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if err := s.AddSchedule("", "2s", 0, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("empty name accepted")
	}
	if err := s.AddSchedule("x", "whenever", 0, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("bad schedule accepted")
	}
}

func TestAddScheduleReplacesByName(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	job := func(ctx context.Context) error { return nil }
	if err := s.AddSchedule("scan", "2s", 0, job); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddSchedule("scan", "5s", 0, job); err != nil {
		t.Fatalf("replace: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.defs) != 1 {
		t.Fatalf("defs = %d, want 1", len(s.defs))
	}
	if s.defs[0].spec != "@every 5s" {
		t.Fatalf("spec = %q", s.defs[0].spec)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	_ = s.AddSchedule("a", "2s", 0, func(ctx context.Context) error { return nil })
	if !s.Remove("a") {
		t.Fatal("existing schedule not removed")
	}
	if s.Remove("a") {
		t.Fatal("second remove reported success")
	}
}

func TestExecOneRecordsHistoryAndRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(Config{HistorySize: 2}, logx.Nop())

	run := func(name string, job func(ctx context.Context) error) {
		s.execOne(context.Background(), &scheduleDef{name: name, job: job})
	}
	run("ok", func(ctx context.Context) error { return nil })
	run("fail", func(ctx context.Context) error { return errors.New("boom") })
	run("panic", func(ctx context.Context) error { panic("kaboom") })

	h := s.History()
	// HistorySize 2 keeps only the most recent entries.
	if len(h) != 2 {
		t.Fatalf("history = %d entries, want 2", len(h))
	}
	if h[0].Name != "fail" || h[0].Error != "boom" {
		t.Fatalf("h[0] = %+v", h[0])
	}
	if h[1].Name != "panic" || h[1].Error == "" {
		t.Fatalf("h[1] = %+v", h[1])
	}
}

func TestExecOneHonorsTimeout(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	d := &scheduleDef{
		name:    "slow",
		timeout: 50 * time.Millisecond,
		job: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	start := time.Now()
	s.execOne(context.Background(), d)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not applied, took %s", elapsed)
	}
	h := s.History()
	if len(h) != 1 || h[0].Error == "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	_ = s.AddSchedule("noop", "1h", 0, func(ctx context.Context) error { return nil })

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Start is idempotent.
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Stop after stop is a no-op.
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
