package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"snipebot/pkg/logx"
)

func (s *Service) worker(ctx context.Context) {
	s.mu.Lock()
	queue := s.queue
	stopCh := s.stopCh
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case d := <-queue:
			s.execOne(ctx, d)
		}
	}
}

func (s *Service) execOne(ctx context.Context, d *scheduleDef) {
	d.runMu.Lock()
	d.running = true
	d.runMu.Unlock()
	defer func() {
		d.runMu.Lock()
		d.running = false
		d.runMu.Unlock()
	}()

	start := time.Now()
	runCtx := ctx
	var cancel context.CancelFunc
	if d.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
	}
	err := s.runSafe(runCtx, d)
	if cancel != nil {
		cancel()
	}
	dur := time.Since(start)

	item := HistoryItem{Name: d.name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task failed", logx.String("task", d.name), logx.Err(err), logx.Duration("dur", dur))
	} else if dur >= 750*time.Millisecond {
		s.log.Info("task completed", logx.String("task", d.name), logx.Duration("dur", dur))
	} else {
		s.log.Debug("task completed", logx.String("task", d.name), logx.Duration("dur", dur))
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	if keep := s.historySize(); len(s.history) > keep {
		s.history = s.history[len(s.history)-keep:]
	}
	s.hmu.Unlock()
}

// runSafe contains a panicking task so one bad cycle cannot kill the worker.
func (s *Service) runSafe(ctx context.Context, d *scheduleDef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in task",
				logx.String("task", d.name), logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.job(ctx)
}

func (s *Service) historySize() int {
	s.mu.Lock()
	n := s.cfg.HistorySize
	s.mu.Unlock()
	return n
}
