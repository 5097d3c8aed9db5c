// Package frontend exposes the companion to the user: a slash-command
// registry, a readline terminal, and a small HTTP/WebSocket API.
package frontend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// HandlerFunc runs one command. Args is everything after the command name,
// trimmed; it may be empty.
type HandlerFunc func(ctx context.Context, args string) (string, error)

// Command is one slash-command descriptor.
type Command struct {
	Name          string
	Description   string
	Category      string
	RequiresBrain bool
	RequiresAPI   bool
	Handler       HandlerFunc
}

// Registry is a flat command table shared by all front-ends. The ready
// probes gate commands that need a working brain or API credentials.
type Registry struct {
	mu         sync.Mutex
	cmds       map[string]Command
	brainReady func() bool
	apiReady   func() bool
}

// NewRegistry builds an empty registry. Nil probes count as ready.
func NewRegistry(brainReady, apiReady func() bool) *Registry {
	return &Registry{
		cmds:       make(map[string]Command),
		brainReady: brainReady,
		apiReady:   apiReady,
	}
}

// Register adds or replaces a command.
func (r *Registry) Register(cmd Command) error {
	if cmd.Name == "" || cmd.Handler == nil {
		return fmt.Errorf("command needs a name and a handler")
	}
	r.mu.Lock()
	r.cmds[strings.ToLower(cmd.Name)] = cmd
	r.mu.Unlock()
	return nil
}

// Commands returns the table sorted by category then name.
func (r *Registry) Commands() []Command {
	r.mu.Lock()
	out := make([]Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, c)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Dispatch parses "/name args..." and runs the matching command.
func (r *Registry) Dispatch(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if line == "" {
		return "", fmt.Errorf("empty command")
	}
	name, args, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	args = strings.TrimSpace(args)

	r.mu.Lock()
	cmd, ok := r.cmds[name]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown command %q, try /help", name)
	}
	if cmd.RequiresBrain && r.brainReady != nil && !r.brainReady() {
		return "", fmt.Errorf("/%s needs the AI brain, but no provider is available", name)
	}
	if cmd.RequiresAPI && r.apiReady != nil && !r.apiReady() {
		return "", fmt.Errorf("/%s needs API credentials, but none are configured", name)
	}
	return cmd.Handler(ctx, args)
}

// Help renders the command table grouped by category.
func (r *Registry) Help() string {
	var b strings.Builder
	var lastCat string
	for _, c := range r.Commands() {
		if c.Category != lastCat {
			if lastCat != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "%s:\n", c.Category)
			lastCat = c.Category
		}
		fmt.Fprintf(&b, "  /%-12s %s\n", c.Name, c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
