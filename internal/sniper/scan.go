package sniper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"snipebot/internal/catalog"
	"snipebot/pkg/logx"
)

// Scan runs one poll cycle. A fetch failure aborts the cycle without
// touching any state: no notifications, no global-watch baseline update, so
// a flapping upstream cannot fake open/close transitions.
func (s *Service) Scan(ctx context.Context) error {
	start := time.Now()

	watched, err := s.store.DistinctWatchedCourses(ctx)
	if err != nil {
		return fmt.Errorf("list watched courses: %w", err)
	}

	s.mu.Lock()
	globalWatch := s.globalWatch
	s.mu.Unlock()

	if len(watched) == 0 && !globalWatch {
		// Nothing to compare against; skip the round trip entirely.
		s.finishCycle(CycleReport{Started: start, Duration: time.Since(start)})
		return nil
	}

	courses, err := s.catalog.Fetch(ctx)
	if err != nil {
		s.log.Warn("catalog fetch failed, skipping cycle", logx.Err(err))
		return err
	}

	report := CycleReport{Started: start, CoursesSeen: len(courses)}

	open := openSections(courses)
	for _, idx := range watched {
		sec, ok := open[idx]
		if !ok {
			continue
		}
		report.WatchedOpen++
		n, err := s.notifyCourse(ctx, sec, idx)
		if err != nil {
			s.log.Warn("notify cycle error", logx.String("index", idx), logx.Err(err))
		}
		report.Notifications += n
	}

	if globalWatch {
		report.NewlyOpened = s.trackTransitions(ctx, courses, open)
	}

	report.Duration = time.Since(start)
	s.finishCycle(report)
	s.maybeScanNotice(ctx, report)
	return nil
}

// openSections flattens the catalog into index -> owning course for every
// section currently open.
func openSections(courses []catalog.Course) map[string]catalog.Course {
	out := map[string]catalog.Course{}
	for _, course := range courses {
		for _, sec := range course.Sections {
			if sec.Open() {
				out[sec.Index] = course
			}
		}
	}
	return out
}

// trackTransitions diffs the full catalog against last cycle's baseline and
// alerts the operator chat about sections that flipped in either direction.
// The first cycle after enabling only seeds the baseline, and an index
// absent from the baseline seeds silently the same way.
func (s *Service) trackTransitions(ctx context.Context, courses []catalog.Course, open map[string]catalog.Course) int {
	seen := make(map[string]bool, 256)
	for _, course := range courses {
		for _, sec := range course.Sections {
			seen[sec.Index] = sec.Open()
		}
	}

	s.mu.Lock()
	prev := s.lastSeen
	s.lastSeen = seen
	chatID := s.cfg.OperatorChatID
	s.mu.Unlock()

	if prev == nil {
		return 0
	}

	var opened, closed []string
	for idx, isOpen := range seen {
		was, known := prev[idx]
		if !known {
			continue
		}
		if isOpen && !was {
			opened = append(opened, idx)
		} else if !isOpen && was {
			closed = append(closed, idx)
		}
	}
	if len(opened) == 0 && len(closed) == 0 {
		return 0
	}
	sort.Strings(opened)
	sort.Strings(closed)

	var b strings.Builder
	if len(opened) > 0 {
		fmt.Fprintf(&b, "Global watch: %d section(s) just opened:\n", len(opened))
		writeTransitionList(&b, opened, open)
	}
	if len(closed) > 0 {
		fmt.Fprintf(&b, "Global watch: %d section(s) just closed:\n", len(closed))
		writeTransitionList(&b, closed, nil)
	}
	if err := s.adapter.SendText(ctx, chatID, strings.TrimRight(b.String(), "\n"), nil); err != nil {
		s.log.Warn("global watch alert failed", logx.Err(err))
	}
	return len(opened) + len(closed)
}

func writeTransitionList(b *strings.Builder, indexes []string, open map[string]catalog.Course) {
	for i, idx := range indexes {
		if i >= 25 {
			fmt.Fprintf(b, "... and %d more\n", len(indexes)-i)
			return
		}
		if course, ok := open[idx]; ok {
			fmt.Fprintf(b, "- %s %s - %s (index %s)\n", course.Subject, course.CourseNumber, course.Title, idx)
		} else {
			fmt.Fprintf(b, "- index %s\n", idx)
		}
	}
}

func (s *Service) finishCycle(r CycleReport) {
	s.mu.Lock()
	s.lastReport = r
	s.mu.Unlock()
	s.log.Debug("scan cycle done",
		logx.Int("courses", r.CoursesSeen),
		logx.Int("watched_open", r.WatchedOpen),
		logx.Int("notified", r.Notifications),
		logx.Duration("dur", r.Duration))
}

// maybeScanNotice sends the operator summary at most once per cooldown.
func (s *Service) maybeScanNotice(ctx context.Context, r CycleReport) {
	s.mu.Lock()
	if !s.scanNotify || time.Since(s.lastNotice) < s.cfg.ScanNotifyCooldown {
		s.mu.Unlock()
		return
	}
	s.lastNotice = time.Now()
	chatID := s.cfg.OperatorChatID
	s.mu.Unlock()

	msg := fmt.Sprintf("scan ok: %d courses, %d watched open, %d notifications (%s)",
		r.CoursesSeen, r.WatchedOpen, r.Notifications, r.Duration.Round(time.Millisecond))
	if err := s.adapter.SendText(ctx, chatID, msg, nil); err != nil {
		s.log.Warn("scan notice failed", logx.Err(err))
	}
}
