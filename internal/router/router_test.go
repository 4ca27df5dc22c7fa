package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"snipebot/internal/transport"
	"snipebot/pkg/logx"
)

type recordingAdapter struct {
	mu    sync.Mutex
	texts []string
	dms   []string
}

func (a *recordingAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (a *recordingAdapter) Stop(ctx context.Context) error                               { return nil }

func (a *recordingAdapter) SendText(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return nil
}

func (a *recordingAdapter) SendDM(ctx context.Context, userID, text string, opt *transport.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dms = append(a.dms, text)
	return nil
}

func (a *recordingAdapter) ResolveUser(ctx context.Context, identifier string) (transport.User, error) {
	return transport.User{ID: identifier}, nil
}

func (a *recordingAdapter) sent() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.texts...)
}

func newTestManager(t *testing.T, admins map[string]bool) (*Manager, *recordingAdapter, chan transport.Update) {
	t.Helper()
	adapter := &recordingAdapter{}
	m := NewManager(logx.Nop(), adapter, func(ctx context.Context, userID string) bool {
		return admins[userID]
	})

	updates := make(chan transport.Update, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.DispatchLoop(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m, adapter, updates
}

func msg(text string) transport.Update {
	return transport.Update{Message: &transport.Message{
		ChatID: 7, FromID: "42", FromUsername: "tester", Text: text,
	}}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatchRunsHandler(t *testing.T) {
	t.Parallel()
	m, _, updates := newTestManager(t, nil)

	var mu sync.Mutex
	var gotArgs []string
	m.SetCommands([]Command{{
		Route: "echo",
		Handle: func(ctx context.Context, req *Request) error {
			mu.Lock()
			gotArgs = req.Args
			mu.Unlock()
			return nil
		},
	}})

	updates <- msg("/echo hello world")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotArgs) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if gotArgs[0] != "hello" || gotArgs[1] != "world" {
		t.Fatalf("args = %v", gotArgs)
	}
}

func TestDispatchAliasAndBotSuffix(t *testing.T) {
	t.Parallel()
	m, _, updates := newTestManager(t, nil)

	hits := make(chan string, 4)
	m.SetCommands([]Command{{
		Route:   "snipe",
		Aliases: []string{"watch"},
		Handle: func(ctx context.Context, req *Request) error {
			hits <- req.Command
			return nil
		},
	}})

	updates <- msg("/watch 1")
	updates <- msg("/snipe@some_bot 2")
	for i := 0; i < 2; i++ {
		select {
		case cmd := <-hits:
			if cmd != "snipe" {
				t.Fatalf("routed to %q", cmd)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("handler not invoked")
		}
	}
}

func TestDispatchSubcommandRouting(t *testing.T) {
	t.Parallel()
	m, _, updates := newTestManager(t, map[string]bool{"42": true})

	hits := make(chan []string, 1)
	m.SetCommands([]Command{{
		Route:  "admin ban",
		Access: AccessAdmin,
		Handle: func(ctx context.Context, req *Request) error {
			hits <- req.Args
			return nil
		},
	}})

	updates <- msg("/admin ban 777")
	select {
	case args := <-hits:
		if len(args) != 1 || args[0] != "777" {
			t.Fatalf("args = %v", args)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subcommand not routed")
	}
}

func TestDispatchDeniesNonAdmin(t *testing.T) {
	t.Parallel()
	m, adapter, updates := newTestManager(t, nil)

	m.SetCommands([]Command{{
		Route:  "admin ban",
		Access: AccessAdmin,
		Handle: func(ctx context.Context, req *Request) error {
			t.Error("admin handler ran for non-admin")
			return nil
		},
	}})

	updates <- msg("/admin ban 777")
	waitFor(t, func() bool {
		for _, s := range adapter.sent() {
			if strings.Contains(s, "permission denied") {
				return true
			}
		}
		return false
	})
}

func TestUnknownCommandReplyOnlyInPrivate(t *testing.T) {
	t.Parallel()
	m, adapter, updates := newTestManager(t, nil)
	m.SetCommands(nil)

	updates <- msg("/bogus")
	waitFor(t, func() bool {
		for _, s := range adapter.sent() {
			if strings.Contains(s, "unknown command") {
				return true
			}
		}
		return false
	})

	group := msg("/bogus")
	group.Message.IsGroup = true
	before := len(adapter.sent())
	updates <- group
	time.Sleep(200 * time.Millisecond)
	if got := len(adapter.sent()); got != before {
		t.Fatalf("group chat got %d extra replies", got-before)
	}
}

func TestHelpListsCommands(t *testing.T) {
	t.Parallel()
	m, adapter, updates := newTestManager(t, nil)
	m.SetCommands([]Command{
		{Route: "snipe", Description: "watch a section", Handle: func(ctx context.Context, req *Request) error { return nil }},
		{Route: "admin status", Access: AccessAdmin, Handle: func(ctx context.Context, req *Request) error { return nil }},
	})

	updates <- msg("/help")
	waitFor(t, func() bool {
		for _, s := range adapter.sent() {
			if strings.Contains(s, "/snipe") && strings.Contains(s, "watch a section") {
				// Admin commands stay hidden from the plain listing.
				if strings.Contains(s, "admin status") {
					t.Error("help leaked admin commands")
				}
				return true
			}
		}
		return false
	})
}

func TestNonCommandTextIgnored(t *testing.T) {
	t.Parallel()
	m, adapter, updates := newTestManager(t, nil)
	m.SetCommands(nil)

	updates <- msg("just chatting")
	time.Sleep(200 * time.Millisecond)
	if got := adapter.sent(); len(got) != 0 {
		t.Fatalf("plain text triggered replies: %v", got)
	}
}
