// Package router dispatches chat commands to registered handlers. Routes are
// space-separated paths ("snipe", "admin ban"), matched through a command
// tree with root-level aliases. Handlers run on a bounded worker pool behind
// panic-recovery, request-logging and timeout middleware.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"snipebot/internal/transport"
	"snipebot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota

	// AccessAdmin commands require the caller to pass the manager's admin
	// check (operator id or stored moderator flag).
	AccessAdmin
)

type Command struct {
	Route       string // space-separated path, e.g. "admin ban"
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

// Request is one matched command invocation.
type Request struct {
	ChatID       int64
	FromID       string // opaque user identifier
	FromUsername string
	Command      string
	Args         []string
	Flags        map[string]string
	BoolFlags    map[string]bool
	ReqID        string

	Adapter transport.Adapter
	Logger  logx.Logger
}

// Reply sends plain text back to the originating chat.
func (r *Request) Reply(ctx context.Context, text string) {
	if err := r.Adapter.SendText(ctx, r.ChatID, text, &transport.SendOptions{DisablePreview: true, Audible: true}); err != nil {
		r.Logger.Warn("reply failed", logx.Err(err))
	}
}

// AdminCheck decides whether a user may run AccessAdmin commands.
type AdminCheck func(ctx context.Context, userID string) bool

type Manager struct {
	mu    sync.RWMutex
	root  *cmdNode
	alias map[string]*cmdNode

	log     logx.Logger
	adapter transport.Adapter
	isAdmin AdminCheck

	jobs chan func()
}

func NewManager(log logx.Logger, adapter transport.Adapter, isAdmin AdminCheck) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		root:    newRoot(),
		alias:   map[string]*cmdNode{},
		log:     log,
		adapter: adapter,
		isAdmin: isAdmin,
		jobs:    make(chan func(), 64),
	}
}

// SetCommands replaces the command registry. A help command is always
// injected.
func (m *Manager) SetCommands(cmds []Command) {
	cmds = append(cmds, Command{
		Route:       "help",
		Aliases:     []string{"commands", "h"},
		Description: "list available commands",
		Usage:       "/help [cmd]",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			req.Reply(ctx, m.helpText(req.Args, m.isAdminUser(ctx, req.FromID)))
			return nil
		},
	})

	root := newRoot()
	alias := map[string]*cmdNode{}
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		cc := c
		root.add(route, cc)
		leaf := root.find(route)
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = leaf
		}
	}

	m.mu.Lock()
	m.root = root
	m.alias = alias
	m.mu.Unlock()
}

// DispatchLoop consumes updates until ctx is done.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-m.jobs:
					if !ok {
						return
					}
					// A handler should never panic past the middleware; keep
					// the worker alive if one does anyway.
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job",
									logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		}()
	}
	m.log.Info("command dispatcher started", logx.Int("workers", workers))

	defer func() {
		wg.Wait()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Message != nil {
				m.routeMessage(ctx, up.Message)
			}
		}
	}
}

func (m *Manager) routeMessage(root context.Context, msg *transport.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i] // strip bot-name suffix in groups
	}
	args := parts[1:]

	m.mu.RLock()
	rootNode := m.root
	aliasMap := m.alias
	m.mu.RUnlock()

	if leaf, ok := aliasMap[word]; ok && leaf != nil && leaf.cmd != nil {
		m.enqueue(root, msg, *leaf.cmd, args)
		return
	}

	cur, ok := rootNode.child(word)
	if !ok {
		if !msg.IsGroup {
			_ = m.adapter.SendText(root, msg.ChatID, "unknown command, try /help", nil)
		}
		return
	}
	path := []string{word}
	for len(args) > 0 {
		if strings.HasPrefix(args[0], "-") {
			break
		}
		next, ok := cur.child(args[0])
		if !ok {
			break
		}
		cur = next
		path = append(path, args[0])
		args = args[1:]
	}

	if cur.cmd == nil {
		// container node: show the relevant help slice
		_ = m.adapter.SendText(root, msg.ChatID, m.helpText(path, m.isAdminUser(root, msg.FromID)), nil)
		return
	}
	m.enqueue(root, msg, *cur.cmd, args)
}

func (m *Manager) isAdminUser(ctx context.Context, userID string) bool {
	return m.isAdmin != nil && m.isAdmin(ctx, userID)
}

func (m *Manager) enqueue(root context.Context, msg *transport.Message, cmd Command, rawArgs []string) {
	if cmd.Access == AccessAdmin && !m.isAdminUser(root, msg.FromID) {
		_ = m.adapter.SendText(root, msg.ChatID, "permission denied", nil)
		return
	}

	rid := uuid.NewString()[:8]
	pos, flags, bools := parseFlags(rawArgs)
	req := &Request{
		ChatID:       msg.ChatID,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Command:      cmd.Route,
		Args:         pos,
		Flags:        flags,
		BoolFlags:    bools,
		ReqID:        rid,
		Adapter:      m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.String("from", msg.FromID),
			logx.String("cmd", cmd.Route),
		),
	}

	final := Chain(cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)

	select {
	case m.jobs <- func() { _ = final(root, req) }:
	default:
		_ = m.adapter.SendText(root, msg.ChatID, "busy, try again", nil)
	}
}

// ---- command tree ----

type cmdNode struct {
	children map[string]*cmdNode
	cmd      *Command
}

func newRoot() *cmdNode { return &cmdNode{children: map[string]*cmdNode{}} }

func (n *cmdNode) add(route []string, c Command) {
	cur := n
	for _, tok := range route {
		next, ok := cur.children[tok]
		if !ok {
			next = &cmdNode{children: map[string]*cmdNode{}}
			cur.children[tok] = next
		}
		cur = next
	}
	cur.cmd = &c
}

func (n *cmdNode) find(route []string) *cmdNode {
	cur := n
	for _, tok := range route {
		next, ok := cur.children[tok]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func (n *cmdNode) child(name string) (*cmdNode, bool) {
	c, ok := n.children[name]
	return c, ok
}

func splitRoute(route string) []string {
	return strings.Fields(strings.TrimSpace(route))
}
