// Package scheduler runs named background tasks on cron or interval
// triggers. Triggers only enqueue; a small worker pool executes, so a slow
// task can never stall the cron goroutine. Tasks whose previous run is
// still in flight are skipped, not queued up.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"snipebot/pkg/logx"
)

type Service struct {
	log    logx.Logger
	parser cron.Parser

	mu     sync.Mutex
	cfg    Config
	c      *cron.Cron
	defs   []*scheduleDef
	queue  chan *scheduleDef
	stopCh chan struct{}
	wg     sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID

	runMu   sync.Mutex
	running bool
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log: log,
		cfg: cfg.withDefaults(),
		parser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// AddSchedule registers (or replaces, by name) a task on a cron or interval
// trigger. Safe to call before or after Start.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	spec := ps.Cron
	if ps.Kind == SpecInterval {
		spec = fmt.Sprintf("@every %s", ps.Every)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(name)
	d := &scheduleDef{name: name, spec: spec, timeout: timeout, job: job}
	s.defs = append(s.defs, d)
	if s.c != nil {
		if err := s.registerLocked(d); err != nil {
			return err
		}
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec))
	return nil
}

// Remove unschedules the named task. It reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) registerLocked(d *scheduleDef) error {
	eid, err := s.c.AddFunc(d.spec, func() { s.fire(d) })
	if err != nil {
		return fmt.Errorf("schedule %q: %w", d.name, err)
	}
	d.entryID = eid
	return nil
}

// fire enqueues one execution unless the previous run is still in flight.
func (s *Service) fire(d *scheduleDef) {
	d.runMu.Lock()
	running := d.running
	d.runMu.Unlock()
	if running {
		s.log.Debug("schedule skipped (previous run still in flight)", logx.String("task", d.name))
		return
	}

	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return
	}
	select {
	case q <- d:
	default:
		s.log.Warn("scheduler queue full; dropping run",
			logx.String("task", d.name), logx.Int("queue_cap", cap(q)))
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		} else {
			loc = l
		}
	}

	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	s.queue = make(chan *scheduleDef, s.cfg.QueueSize)
	s.stopCh = make(chan struct{})
	for _, d := range s.defs {
		if err := s.registerLocked(d); err != nil {
			s.log.Error("schedule register failed", logx.String("name", d.name), logx.Err(err))
		}
	}
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.worker(ctx)
		}()
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("schedules", len(s.defs)), logx.Int("workers", s.cfg.Workers), logx.String("tz", loc.String()))
	return nil
}

// Stop halts triggers and waits for in-flight tasks up to the ctx deadline.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	stopCh := s.stopCh
	s.c = nil
	s.queue = nil
	s.stopCh = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	cronDone := c.Stop().Done()
	close(stopCh)

	done := make(chan struct{})
	go func() {
		<-cronDone
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", logx.Err(ctx.Err()))
		return ctx.Err()
	}
}

// History returns a copy of the recent execution history, newest last.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}
