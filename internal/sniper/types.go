// Package sniper is the product core: it scans the course catalog on an
// interval, notifies watchers when a watched section opens, and exposes the
// user and operator command surface.
package sniper

import "time"

// Config carries the runtime knobs resolved from the main config file.
type Config struct {
	// ScanInterval is the catalog poll cadence.
	ScanInterval time.Duration

	// ScanNotifyCooldown gates the optional per-cycle operator summary so an
	// enabled summary cannot flood the operator chat at scan cadence.
	ScanNotifyCooldown time.Duration

	// RatePerSec caps outbound notification DMs across all recipients.
	RatePerSec int

	// Owners are operator user ids. Owners always pass the admin check and
	// receive global-watch alerts.
	Owners []string

	// OperatorChatID receives scan summaries and global-watch alerts.
	OperatorChatID int64
}

func (c Config) withDefaults() Config {
	if c.ScanInterval <= 0 {
		c.ScanInterval = 2 * time.Second
	}
	if c.ScanNotifyCooldown <= 0 {
		c.ScanNotifyCooldown = 5 * time.Minute
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	return c
}

// CycleReport summarizes one scan cycle for logs and the operator summary.
type CycleReport struct {
	Started       time.Time
	Duration      time.Duration
	CoursesSeen   int
	WatchedOpen   int
	Notifications int
	NewlyOpened   int // global watch transitions observed this cycle
}
