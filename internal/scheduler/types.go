package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// Config controls the trigger service.
type Config struct {
	// Workers is the task worker pool size. Default 1: cycles of the same
	// task must not interleave, and the task set here is tiny.
	Workers int

	// QueueSize bounds pending task executions. Default 16.
	QueueSize int

	// HistorySize caps the in-memory execution history. Default 200.
	HistorySize int

	// Timezone for cron specs; empty means time.Local.
	Timezone string
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// HistoryItem is one completed task execution.
type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// SpecKind distinguishes parsed schedule formats.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// Spec is a parsed schedule string.
type Spec struct {
	Kind  SpecKind
	Cron  string        // valid when Kind == SpecCron
	Every time.Duration // valid when Kind == SpecInterval
}

// ParseSchedule accepts either a cron expression ("*/5 * * * *", "@hourly",
// "cron:0 6 * * *") or an interval duration ("2s", "interval:90s").
func ParseSchedule(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("empty schedule")
	}
	if rest, ok := strings.CutPrefix(s, "cron:"); ok {
		return Spec{Kind: SpecCron, Cron: strings.TrimSpace(rest)}, nil
	}
	if rest, ok := strings.CutPrefix(s, "interval:"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return Spec{}, fmt.Errorf("invalid interval %q: %w", rest, err)
		}
		return intervalSpec(d)
	}
	if d, err := time.ParseDuration(s); err == nil {
		return intervalSpec(d)
	}
	if strings.HasPrefix(s, "@") || strings.Count(s, " ") >= 4 {
		return Spec{Kind: SpecCron, Cron: s}, nil
	}
	return Spec{}, fmt.Errorf("unrecognized schedule %q", raw)
}

func intervalSpec(d time.Duration) (Spec, error) {
	if d <= 0 {
		return Spec{}, fmt.Errorf("interval must be > 0")
	}
	return Spec{Kind: SpecInterval, Every: d}, nil
}
