package storage

import (
	"context"
	"errors"
	"strings"

	"snipebot/pkg/logx"
)

// Store is the durable watch/user-config API.
//
// All operations are atomic at the statement or transaction level; a storage
// error is fatal to the triggering request only and must never take down the
// scan loop.
type Store interface {
	// AddWatch creates a watch entry subject to ban and quota policy.
	AddWatch(ctx context.Context, userID, courseIndex string) (AddResult, error)

	// RemoveWatch and ClearWatches are idempotent: deleting an absent watch
	// is not an error.
	RemoveWatch(ctx context.Context, userID, courseIndex string) error
	ClearWatches(ctx context.Context, userID string) error
	ListWatches(ctx context.Context, userID string) ([]string, error)
	ListAllWatches(ctx context.Context) ([]WatchEntry, error)

	// DistinctWatchedCourses returns the deduplicated set of watched course
	// indexes; called once per scan cycle.
	DistinctWatchedCourses(ctx context.Context) ([]string, error)
	WatchesForCourse(ctx context.Context, courseIndex string) ([]WatchEntry, error)

	// RecordNotification increments the entry's counter and, when the new
	// count reaches the owner's notification cap, deletes the entry in the
	// same transaction. removed reports whether the entry is gone.
	RecordNotification(ctx context.Context, userID, courseIndex string) (newCount int, removed bool, err error)

	GetOrCreateUserConfig(ctx context.Context, userID string) (UserConfig, error)
	SetMaxWatches(ctx context.Context, userID string, n int) error
	SetBanned(ctx context.Context, userID string, banned bool) error
	SetModerator(ctx context.Context, userID string, mod bool) error
	SetNotificationCap(ctx context.Context, userID string, n int) error
	SetSpeechOutput(ctx context.Context, userID string, enabled bool) error
	ListModerators(ctx context.Context) ([]UserConfig, error)
	ListBanned(ctx context.Context) ([]UserConfig, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
