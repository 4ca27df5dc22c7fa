package sniper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"snipebot/internal/router"
	"snipebot/internal/storage"
)

func (s *Service) adminCommands() []router.Command {
	admin := func(route, desc, usage string, h router.HandlerFunc) router.Command {
		return router.Command{
			Route:       route,
			Description: desc,
			Usage:       usage,
			Access:      router.AccessAdmin,
			Handle:      h,
		}
	}
	return []router.Command{
		admin("admin snipes", "list all watches, or one user's", "/admin snipes [user]", s.cmdAdminSnipes),
		admin("admin limit", "set a user's watch quota", "/admin limit <user> <n>", s.cmdAdminLimit),
		admin("admin ban", "ban a user and drop their watches", "/admin ban <user>", s.cmdAdminBan),
		admin("admin unban", "lift a ban", "/admin unban <user>", s.cmdAdminUnban),
		admin("admin mod", "grant moderator (admin commands, no quota)", "/admin mod <user>", s.cmdAdminMod),
		admin("admin unmod", "revoke moderator", "/admin unmod <user>", s.cmdAdminUnmod),
		admin("admin mods", "list moderators", "/admin mods", s.cmdAdminMods),
		admin("admin banned", "list banned users", "/admin banned", s.cmdAdminBanned),
		admin("admin status", "runtime and storage status", "/admin status", s.cmdAdminStatus),
		admin("admin scannotify", "toggle the periodic scan summary", "/admin scannotify on|off", s.cmdAdminScanNotify),
		admin("admin globalwatch", "toggle catalog-wide open alerts", "/admin globalwatch on|off", s.cmdAdminGlobalWatch),
		admin("admin mem", "allocate a memory ballast", "/admin mem <MiB>", s.cmdAdminMem),
		admin("admin memclear", "release the memory ballast", "/admin memclear", s.cmdAdminMemClear),
	}
}

// resolveTarget turns a numeric id or @username argument into a user id.
func (s *Service) resolveTarget(ctx context.Context, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("empty user")
	}
	if _, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return arg, nil
	}
	u, err := s.adapter.ResolveUser(ctx, arg)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", arg, err)
	}
	return u.ID, nil
}

func (s *Service) cmdAdminSnipes(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 1 {
		target, err := s.resolveTarget(ctx, req.Args[0])
		if err != nil {
			req.Reply(ctx, "unknown user: "+req.Args[0])
			return nil
		}
		indexes, err := s.store.ListWatches(ctx, target)
		if err != nil {
			return err
		}
		if len(indexes) == 0 {
			req.Reply(ctx, fmt.Sprintf("user %s has no watches", target))
			return nil
		}
		req.Reply(ctx, fmt.Sprintf("user %s watches: %s", target, strings.Join(indexes, ", ")))
		return nil
	}

	entries, err := s.store.ListAllWatches(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		req.Reply(ctx, "no active watches")
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Active watches (%d):\n", len(entries))
	for i, e := range entries {
		if i >= 50 {
			fmt.Fprintf(&b, "... and %d more\n", len(entries)-i)
			break
		}
		fmt.Fprintf(&b, "- %s -> %s (%d sent)\n", e.UserID, e.CourseIndex, e.NotificationsSent)
	}
	req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (s *Service) cmdAdminLimit(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 2 {
		req.Reply(ctx, "usage: /admin limit <user> <n>")
		return nil
	}
	target, err := s.resolveTarget(ctx, req.Args[0])
	if err != nil {
		req.Reply(ctx, "unknown user: "+req.Args[0])
		return nil
	}
	n, err := strconv.Atoi(req.Args[1])
	if err != nil || n < 0 {
		req.Reply(ctx, "the quota must be a non-negative number")
		return nil
	}
	if err := s.store.SetMaxWatches(ctx, target, n); err != nil {
		return err
	}
	req.Reply(ctx, fmt.Sprintf("user %s watch quota set to %d", target, n))
	return nil
}

func (s *Service) cmdAdminBan(ctx context.Context, req *router.Request) error {
	return s.setBan(ctx, req, true)
}

func (s *Service) cmdAdminUnban(ctx context.Context, req *router.Request) error {
	return s.setBan(ctx, req, false)
}

func (s *Service) setBan(ctx context.Context, req *router.Request, ban bool) error {
	if len(req.Args) != 1 {
		req.Reply(ctx, "usage: /admin ban|unban <user>")
		return nil
	}
	target, err := s.resolveTarget(ctx, req.Args[0])
	if err != nil {
		req.Reply(ctx, "unknown user: "+req.Args[0])
		return nil
	}
	if err := s.store.SetBanned(ctx, target, ban); err != nil {
		return err
	}
	if ban {
		// A banned user keeps no watches; their rows go with the ban.
		if err := s.store.ClearWatches(ctx, target); err != nil {
			return err
		}
		req.Reply(ctx, fmt.Sprintf("user %s banned, watches cleared", target))
	} else {
		req.Reply(ctx, fmt.Sprintf("user %s unbanned", target))
	}
	return nil
}

func (s *Service) cmdAdminMod(ctx context.Context, req *router.Request) error {
	return s.setMod(ctx, req, true)
}

func (s *Service) cmdAdminUnmod(ctx context.Context, req *router.Request) error {
	return s.setMod(ctx, req, false)
}

func (s *Service) setMod(ctx context.Context, req *router.Request, mod bool) error {
	if len(req.Args) != 1 {
		req.Reply(ctx, "usage: /admin mod|unmod <user>")
		return nil
	}
	target, err := s.resolveTarget(ctx, req.Args[0])
	if err != nil {
		req.Reply(ctx, "unknown user: "+req.Args[0])
		return nil
	}
	if err := s.store.SetModerator(ctx, target, mod); err != nil {
		return err
	}
	if mod {
		req.Reply(ctx, fmt.Sprintf("user %s is now a moderator", target))
	} else {
		req.Reply(ctx, fmt.Sprintf("user %s is no longer a moderator", target))
	}
	return nil
}

func (s *Service) cmdAdminMods(ctx context.Context, req *router.Request) error {
	mods, err := s.store.ListModerators(ctx)
	if err != nil {
		return err
	}
	req.Reply(ctx, userList("moderators", mods))
	return nil
}

func (s *Service) cmdAdminBanned(ctx context.Context, req *router.Request) error {
	banned, err := s.store.ListBanned(ctx)
	if err != nil {
		return err
	}
	req.Reply(ctx, userList("banned users", banned))
	return nil
}

func userList(label string, users []storage.UserConfig) string {
	if len(users) == 0 {
		return "no " + label
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.UserID
	}
	return fmt.Sprintf("%s (%d): %s", label, len(users), strings.Join(ids, ", "))
}

func (s *Service) cmdAdminStatus(ctx context.Context, req *router.Request) error {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return err
	}
	fetches, failures := s.catalog.Counters()
	r := s.LastReport()

	s.mu.Lock()
	interval := s.cfg.ScanInterval
	globalWatch := s.globalWatch
	scanNotify := s.scanNotify
	s.mu.Unlock()

	snap := s.ballast.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "watches: %d across %d users (%d banned, %d mods)\n",
		st.Watches, st.Users, st.Banned, st.Moderators)
	fmt.Fprintf(&b, "scan: every %s, last cycle %d courses / %d open / %d notified in %s\n",
		interval, r.CoursesSeen, r.WatchedOpen, r.Notifications, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "catalog: %d fetches, %d failures\n", fetches, failures)
	fmt.Fprintf(&b, "toggles: globalwatch=%t scannotify=%t\n", globalWatch, scanNotify)
	fmt.Fprintf(&b, "mem: heap %d/%d MiB, ballast %d MiB, %d goroutines, %d GCs",
		snap.HeapAllocMB, snap.HeapSysMB, snap.BallastMB, snap.Goroutines, snap.NumGC)

	if hist := s.sched.History(); len(hist) > 0 {
		b.WriteString("\nrecent tasks:")
		start := len(hist) - 3
		if start < 0 {
			start = 0
		}
		for _, item := range hist[start:] {
			fmt.Fprintf(&b, "\n- %s %s (%s)", item.Name, taskOutcome(item.Error), item.Duration.Round(time.Millisecond))
		}
	}
	req.Reply(ctx, b.String())
	return nil
}

func taskOutcome(errText string) string {
	if errText == "" {
		return "ok"
	}
	return "failed: " + errText
}

func (s *Service) cmdAdminScanNotify(ctx context.Context, req *router.Request) error {
	on, ok := onOffArg(req.Args)
	if !ok {
		req.Reply(ctx, "usage: /admin scannotify on|off")
		return nil
	}
	s.SetScanNotify(on)
	req.Reply(ctx, fmt.Sprintf("scan summaries %s", onOff(on)))
	return nil
}

func (s *Service) cmdAdminGlobalWatch(ctx context.Context, req *router.Request) error {
	on, ok := onOffArg(req.Args)
	if !ok {
		req.Reply(ctx, "usage: /admin globalwatch on|off")
		return nil
	}
	s.SetGlobalWatch(on)
	if on {
		req.Reply(ctx, "global watch enabled; the first scan seeds the baseline silently")
	} else {
		req.Reply(ctx, "global watch disabled")
	}
	return nil
}

func (s *Service) cmdAdminMem(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		req.Reply(ctx, "usage: /admin mem <MiB>")
		return nil
	}
	n, err := strconv.Atoi(req.Args[0])
	if err != nil {
		req.Reply(ctx, "the size must be a number of MiB")
		return nil
	}
	if err := s.ballast.Set(n); err != nil {
		req.Reply(ctx, err.Error())
		return nil
	}
	req.Reply(ctx, fmt.Sprintf("ballast set to %d MiB", s.ballast.CurrentMB()))
	return nil
}

func (s *Service) cmdAdminMemClear(ctx context.Context, req *router.Request) error {
	s.ballast.Clear()
	req.Reply(ctx, "ballast released")
	return nil
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
