package sniper

import (
	"context"
	"errors"
	"fmt"

	"snipebot/internal/catalog"
	"snipebot/internal/storage"
	"snipebot/internal/transport"
	"snipebot/pkg/logx"
)

// notifyCourse DMs every watcher of an open section and returns how many
// notifications were recorded. Each cycle an open section costs each watcher
// exactly one count against their cap; a failed send still counts, so a
// broken recipient cannot pin a watch forever.
func (s *Service) notifyCourse(ctx context.Context, course catalog.Course, courseIndex string) (int, error) {
	entries, err := s.store.WatchesForCourse(ctx, courseIndex)
	if err != nil {
		return 0, fmt.Errorf("watchers for %s: %w", courseIndex, err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	name := displayName(course, courseIndex)
	sent := 0
	var firstErr error
	for _, entry := range entries {
		if err := s.notifyOne(ctx, entry, name, courseIndex); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return sent, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}
	return sent, firstErr
}

func (s *Service) notifyOne(ctx context.Context, entry storage.WatchEntry, name, courseIndex string) error {
	uc, err := s.store.GetOrCreateUserConfig(ctx, entry.UserID)
	if err != nil {
		return fmt.Errorf("user config %s: %w", entry.UserID, err)
	}

	// The store deletes entries at the cap, so this should not trigger; skip
	// rather than over-notify if it ever does.
	if entry.NotificationsSent >= uc.NotifLimit {
		s.log.Warn("watch entry at cap still present",
			logx.String("user", entry.UserID), logx.String("index", courseIndex))
		return nil
	}

	if err := s.dmLimit.Wait(ctx); err != nil {
		return err
	}

	count := entry.NotificationsSent + 1
	msg := fmt.Sprintf("%s (index %s) is now OPEN! Register ASAP. (notification %d/%d)",
		name, courseIndex, count, uc.NotifLimit)
	if count >= uc.NotifLimit {
		msg += "\nThis was the final notification; the watch has been removed."
	}

	sendErr := s.adapter.SendDM(ctx, entry.UserID, msg, &transport.SendOptions{Audible: uc.SpeechOutput})
	if sendErr != nil {
		s.log.Warn("notification send failed",
			logx.String("user", entry.UserID), logx.String("index", courseIndex), logx.Err(sendErr))
	}

	// Count the attempt whether or not the DM landed.
	newCount, removed, err := s.store.RecordNotification(ctx, entry.UserID, courseIndex)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("record notification %s/%s: %w", entry.UserID, courseIndex, err)
	}
	if removed {
		s.log.Info("watch exhausted and removed",
			logx.String("user", entry.UserID), logx.String("index", courseIndex), logx.Int("count", newCount))
	}
	return sendErr
}

func displayName(course catalog.Course, courseIndex string) string {
	if course.Title == "" && course.Subject == "" {
		return fmt.Sprintf("Unknown course (%s)", courseIndex)
	}
	return fmt.Sprintf("%s %s - %s", course.Subject, course.CourseNumber, course.Title)
}
