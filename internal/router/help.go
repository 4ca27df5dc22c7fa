package router

import (
	"sort"
	"strings"
)

// helpText renders the command list, or detail for one command when args
// name it. Admin-only commands are included only when admin is true, except
// when asked for by name.
func (m *Manager) helpText(args []string, admin bool) string {
	m.mu.RLock()
	root := m.root
	m.mu.RUnlock()

	if len(args) > 0 {
		if node := root.find(args); node != nil {
			return renderNode(strings.Join(args, " "), node)
		}
		return "no such command: " + strings.Join(args, " ")
	}

	var lines []string
	collect(root, nil, admin, &lines)
	sort.Strings(lines)

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString("\nUse /help <cmd> for details.")
	return b.String()
}

func collect(n *cmdNode, path []string, admin bool, out *[]string) {
	if n.cmd != nil && (admin || n.cmd.Access == AccessEveryone) {
		line := "/" + strings.Join(path, " ")
		if d := n.cmd.Description; d != "" {
			line += " - " + d
		}
		*out = append(*out, line)
	}
	for name, child := range n.children {
		sub := make([]string, len(path)+1)
		copy(sub, path)
		sub[len(path)] = name
		collect(child, sub, admin, out)
	}
}

func renderNode(route string, n *cmdNode) string {
	var b strings.Builder
	if n.cmd != nil {
		b.WriteString("/" + route)
		if n.cmd.Description != "" {
			b.WriteString(" - " + n.cmd.Description)
		}
		if n.cmd.Usage != "" {
			b.WriteString("\nusage: " + n.cmd.Usage)
		}
		if len(n.cmd.Aliases) > 0 {
			b.WriteString("\naliases: " + strings.Join(n.cmd.Aliases, ", "))
		}
	}
	if len(n.children) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("subcommands:")
		names := make([]string, 0, len(n.children))
		for name := range n.children {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteString("\n  " + route + " " + name)
			if c := n.children[name].cmd; c != nil && c.Description != "" {
				b.WriteString(" - " + c.Description)
			}
		}
	}
	if b.Len() == 0 {
		return "no help available for " + route
	}
	return b.String()
}
