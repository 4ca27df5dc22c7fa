package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidLimit is returned when a notification cap outside
	// [MinNotifLimit, MaxNotifLimit] is requested. The stored value is
	// left unchanged.
	ErrInvalidLimit = errors.New("notification limit out of range")
)

const (
	MinNotifLimit = 1
	MaxNotifLimit = 20
)

// AddResult is the policy outcome of an AddWatch call. Policy rejections are
// values, not errors: callers turn them into specific user-visible replies.
type AddResult int

const (
	AddCreated AddResult = iota
	AddDuplicate
	AddLimitReached
	AddBanned
)

func (r AddResult) String() string {
	switch r {
	case AddCreated:
		return "created"
	case AddDuplicate:
		return "duplicate"
	case AddLimitReached:
		return "limit_reached"
	case AddBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// WatchEntry is one user's subscription to one course section.
type WatchEntry struct {
	UserID            string
	CourseIndex       string
	NotificationsSent int
}

// UserConfig is per-user policy state, created lazily with defaults on first
// touch and never deleted.
type UserConfig struct {
	UserID       string
	MaxSnipes    int
	Banned       bool
	Moderator    bool
	NotifLimit   int
	SpeechOutput bool
}

// Defaults are applied when a user config row is first created.
type Defaults struct {
	MaxSnipes  int
	NotifLimit int
}

// Config configures the store. Driver must be "sqlite" (or empty, which
// means the same).
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
	Defaults    Defaults
}

// Stats is a cheap aggregate snapshot for the admin status command.
type Stats struct {
	Watches    int
	Users      int
	Banned     int
	Moderators int
}
