package sniper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"snipebot/internal/router"
	"snipebot/internal/storage"
)

// Commands returns the full command surface, user commands plus the admin
// subtree.
func (s *Service) Commands() []router.Command {
	cmds := []router.Command{
		{
			Route:       "snipe",
			Aliases:     []string{"watch"},
			Description: "watch a course section and get a DM when it opens",
			Usage:       "/snipe <section index>",
			Handle:      s.cmdSnipe,
		},
		{
			Route:       "snipes",
			Aliases:     []string{"watches"},
			Description: "list your watched sections",
			Usage:       "/snipes",
			Handle:      s.cmdSnipes,
		},
		{
			Route:       "unsnipe",
			Aliases:     []string{"unwatch"},
			Description: "stop watching a section",
			Usage:       "/unsnipe <section index>",
			Handle:      s.cmdUnsnipe,
		},
		{
			Route:       "clearsnipes",
			Description: "remove all your watches",
			Usage:       "/clearsnipes",
			Handle:      s.cmdClearSnipes,
		},
		{
			Route:       "notifylimit",
			Description: "set how many times you are notified per watch",
			Usage:       fmt.Sprintf("/notifylimit <%d-%d>", storage.MinNotifLimit, storage.MaxNotifLimit),
			Handle:      s.cmdNotifyLimit,
		},
		{
			Route:       "tts",
			Description: "toggle audible notifications",
			Usage:       "/tts on|off",
			Handle:      s.cmdTTS,
		},
	}
	return append(cmds, s.adminCommands()...)
}

func (s *Service) cmdSnipe(ctx context.Context, req *router.Request) error {
	idx, ok := sectionIndexArg(req.Args)
	if !ok {
		req.Reply(ctx, "usage: /snipe <section index>")
		return nil
	}

	res, err := s.store.AddWatch(ctx, req.FromID, idx)
	if err != nil {
		req.Reply(ctx, "storage error, try again later")
		return err
	}
	switch res {
	case storage.AddCreated:
		req.Reply(ctx, fmt.Sprintf("Watching %s. You will get a DM when it opens.", s.catalog.DisplayName(ctx, idx)))
	case storage.AddDuplicate:
		req.Reply(ctx, "You are already watching that section.")
	case storage.AddLimitReached:
		uc, cerr := s.store.GetOrCreateUserConfig(ctx, req.FromID)
		if cerr != nil {
			return cerr
		}
		req.Reply(ctx, fmt.Sprintf("You are at your watch limit (%d). Remove one with /unsnipe first.", uc.MaxSnipes))
	case storage.AddBanned:
		req.Reply(ctx, "You are banned from using this bot.")
	}
	return nil
}

func (s *Service) cmdSnipes(ctx context.Context, req *router.Request) error {
	indexes, err := s.store.ListWatches(ctx, req.FromID)
	if err != nil {
		req.Reply(ctx, "storage error, try again later")
		return err
	}
	if len(indexes) == 0 {
		req.Reply(ctx, "You are not watching any sections. Add one with /snipe <index>.")
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your watches (%d):\n", len(indexes))
	for _, idx := range indexes {
		fmt.Fprintf(&b, "- %s (index %s)\n", s.catalog.DisplayName(ctx, idx), idx)
	}
	req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (s *Service) cmdUnsnipe(ctx context.Context, req *router.Request) error {
	idx, ok := sectionIndexArg(req.Args)
	if !ok {
		req.Reply(ctx, "usage: /unsnipe <section index>")
		return nil
	}
	if err := s.store.RemoveWatch(ctx, req.FromID, idx); err != nil {
		req.Reply(ctx, "storage error, try again later")
		return err
	}
	req.Reply(ctx, fmt.Sprintf("No longer watching index %s.", idx))
	return nil
}

func (s *Service) cmdClearSnipes(ctx context.Context, req *router.Request) error {
	if err := s.store.ClearWatches(ctx, req.FromID); err != nil {
		req.Reply(ctx, "storage error, try again later")
		return err
	}
	req.Reply(ctx, "All your watches have been removed.")
	return nil
}

func (s *Service) cmdNotifyLimit(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		req.Reply(ctx, fmt.Sprintf("usage: /notifylimit <%d-%d>", storage.MinNotifLimit, storage.MaxNotifLimit))
		return nil
	}
	n, err := strconv.Atoi(req.Args[0])
	if err != nil {
		req.Reply(ctx, "the limit must be a number")
		return nil
	}
	err = s.store.SetNotificationCap(ctx, req.FromID, n)
	if errors.Is(err, storage.ErrInvalidLimit) {
		req.Reply(ctx, fmt.Sprintf("the limit must be between %d and %d", storage.MinNotifLimit, storage.MaxNotifLimit))
		return nil
	}
	if err != nil {
		req.Reply(ctx, "storage error, try again later")
		return err
	}
	req.Reply(ctx, fmt.Sprintf("You will now be notified up to %d times per watch.", n))
	return nil
}

func (s *Service) cmdTTS(ctx context.Context, req *router.Request) error {
	on, ok := onOffArg(req.Args)
	if !ok {
		req.Reply(ctx, "usage: /tts on|off")
		return nil
	}
	if err := s.store.SetSpeechOutput(ctx, req.FromID, on); err != nil {
		req.Reply(ctx, "storage error, try again later")
		return err
	}
	if on {
		req.Reply(ctx, "Notifications will now make sound.")
	} else {
		req.Reply(ctx, "Notifications will now arrive silently.")
	}
	return nil
}

// sectionIndexArg extracts and sanity-checks the single index argument.
// Upstream indexes are short numeric strings; leading zeros are significant,
// so the raw string is kept as-is.
func sectionIndexArg(args []string) (string, bool) {
	if len(args) != 1 {
		return "", false
	}
	idx := strings.TrimSpace(args[0])
	if idx == "" || len(idx) > 10 {
		return "", false
	}
	for _, r := range idx {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return idx, true
}

func onOffArg(args []string) (on, ok bool) {
	if len(args) != 1 {
		return false, false
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "yes", "1":
		return true, true
	case "off", "false", "no", "0":
		return false, true
	}
	return false, false
}
