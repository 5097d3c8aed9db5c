package frontend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// ChatFunc sends a free-form message to the brain and returns the reply.
type ChatFunc func(ctx context.Context, message string) (string, error)

// Terminal is the interactive readline front-end. Slash lines go to the
// registry, everything else goes to chat.
type Terminal struct {
	name        string
	reg         *Registry
	chat        ChatFunc
	historyFile string
	prompt      string
}

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithHistoryFile persists input history across sessions.
func WithHistoryFile(path string) TerminalOption {
	return func(t *Terminal) { t.historyFile = path }
}

// WithPrompt overrides the input prompt.
func WithPrompt(p string) TerminalOption {
	return func(t *Terminal) { t.prompt = p }
}

// NewTerminal builds the terminal front-end. Name is the companion name
// used to prefix replies.
func NewTerminal(name string, reg *Registry, chat ChatFunc, opts ...TerminalOption) *Terminal {
	t := &Terminal{
		name:   name,
		reg:    reg,
		chat:   chat,
		prompt: "you> ",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Terminal) completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(t.reg.Commands()))
	for _, c := range t.reg.Commands() {
		items = append(items, readline.PcItem("/"+c.Name))
	}
	return readline.NewPrefixCompleter(items...)
}

// Run reads lines until EOF, a double Ctrl-C, or ctx cancellation.
func (t *Terminal) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          t.prompt,
		HistoryFile:     t.historyFile,
		AutoComplete:    t.completer(),
		InterruptPrompt: "^C",
	})
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t.handle(ctx, rl.Stdout(), line)
	}
}

func (t *Terminal) handle(ctx context.Context, out io.Writer, line string) {
	if strings.HasPrefix(line, "/") {
		reply, err := t.reg.Dispatch(ctx, line)
		if err != nil {
			fmt.Fprintln(out, err)
			return
		}
		if reply != "" {
			fmt.Fprintln(out, reply)
		}
		return
	}

	reply, err := t.chat(ctx, line)
	if err != nil {
		fmt.Fprintf(out, "%s: (something went wrong: %v)\n", t.name, err)
		return
	}
	fmt.Fprintf(out, "%s: %s\n", t.name, reply)
}
