package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/inkling/internal/mcp"
	"github.com/nextlevelbuilder/inkling/internal/memory"
	"github.com/nextlevelbuilder/inkling/internal/progression"
	"github.com/nextlevelbuilder/inkling/internal/providers"
	"github.com/nextlevelbuilder/inkling/internal/state"
)

const (
	// ConversationFile holds the persisted transcript.
	ConversationFile = "conversation.json"

	transcriptCap        = 100
	defaultMaxRetries    = 3
	defaultMaxToolRounds = 5
	toolResultLimit      = 500

	fallbackApology = "Sorry, my thoughts got tangled up for a moment. Could you ask me that again?"
)

// ErrBudgetExhausted is returned when today's token budget cannot cover
// another request.
var ErrBudgetExhausted = errors.New("daily token budget exhausted")

// ErrAllProvidersExhausted is returned when every configured provider
// failed for one think call.
var ErrAllProvidersExhausted = errors.New("all providers exhausted")

// ToolSource selects and invokes remote tools. *mcp.Manager satisfies it.
type ToolSource interface {
	ToolsForQuery(userText string) []mcp.Tool
	CallTool(ctx context.Context, fullName string, args map[string]any) (string, error)
}

// MemoryStore is the slice of the memory API the Brain needs.
type MemoryStore interface {
	Remember(key, value string, cat memory.Category, importance float64) error
	Recall(term string, cat memory.Category, limit int) ([]memory.Entry, error)
	RecallByCategory(cat memory.Category, limit int) ([]memory.Entry, error)
}

// StatusFunc receives UI updates around tool calls. Panics from the
// callback are swallowed.
type StatusFunc func(face, text, status string)

// ThinkResult is the outcome of one successful turn.
type ThinkResult struct {
	Content    string
	Provider   string
	Model      string
	TokensUsed int
	ToolRounds int

	// Chat quality classification for XP routing.
	Source progression.Source
	BaseXP int
}

// Stats summarizes the Brain's current state.
type Stats struct {
	Messages    int    `json:"messages"`
	Turns       int    `json:"turns"`
	TokensToday int    `json:"tokens_today"`
	DailyLimit  int    `json:"daily_limit"`
	Providers   int    `json:"providers"`
	LastError   string `json:"last_error,omitempty"`
}

// Brain drives provider failover, the tool loop, memory augmentation, and
// transcript persistence. The conversation history is owned exclusively by
// the Brain; one turn runs at a time.
type Brain struct {
	mu       sync.Mutex
	chain    []providers.Provider
	tools    ToolSource
	memory   MemoryStore
	budget   *TokenBudget
	dir      string
	messages []providers.Message

	historyMax    int
	maxRetries    int
	maxToolRounds int
	perRequestMax int
	contextItems  int
	contextChars  int
	captureMax    int

	lastErr string
	sleep   func(time.Duration)
}

// Option configures a Brain.
type Option func(*Brain)

// WithTools wires the MCP tool source.
func WithTools(t ToolSource) Option {
	return func(b *Brain) { b.tools = t }
}

// WithMemory wires the fact store for prompt context and capture.
func WithMemory(m MemoryStore) Option {
	return func(b *Brain) { b.memory = m }
}

// WithBudget wires the daily token budget.
func WithBudget(tb *TokenBudget) Option {
	return func(b *Brain) { b.budget = tb }
}

// WithHistoryLimit caps the in-memory conversation length.
func WithHistoryLimit(n int) Option {
	return func(b *Brain) {
		if n > 0 {
			b.historyMax = n
		}
	}
}

// WithMaxRetries sets per-provider retry attempts.
func WithMaxRetries(n int) Option {
	return func(b *Brain) {
		if n > 0 {
			b.maxRetries = n
		}
	}
}

// WithPerRequestMax sets the token estimate checked against the budget
// before each turn.
func WithPerRequestMax(n int) Option {
	return func(b *Brain) {
		if n > 0 {
			b.perRequestMax = n
		}
	}
}

// WithContextLimits bounds the memory context block.
func WithContextLimits(items, chars int) Option {
	return func(b *Brain) {
		if items > 0 {
			b.contextItems = items
		}
		if chars > 0 {
			b.contextChars = chars
		}
	}
}

// WithCaptureLimit bounds facts extracted per turn.
func WithCaptureLimit(n int) Option {
	return func(b *Brain) {
		if n > 0 {
			b.captureMax = n
		}
	}
}

// WithSleep overrides the backoff sleep, for tests.
func WithSleep(fn func(time.Duration)) Option {
	return func(b *Brain) { b.sleep = fn }
}

// New creates a Brain over an ordered provider chain.
func New(dir string, chain []providers.Provider, opts ...Option) *Brain {
	b := &Brain{
		chain:         chain,
		dir:           dir,
		historyMax:    10,
		maxRetries:    defaultMaxRetries,
		maxToolRounds: defaultMaxToolRounds,
		perRequestMax: 500,
		contextItems:  defaultContextItems,
		contextChars:  defaultContextChars,
		captureMax:    defaultMaxNewPerTurn,
		sleep:         time.Sleep,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Think runs one conversational turn: budget check, memory-augmented
// prompt, provider failover with retry, the tool loop, persistence, and
// fact capture.
func (b *Brain) Think(ctx context.Context, userMessage, systemPrompt string, status StatusFunc) (*ThinkResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.chain) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	if b.budget != nil && !b.budget.Check(b.perRequestMax) {
		return nil, ErrBudgetExhausted
	}

	turns := b.userTurnsLocked() + 1
	b.messages = append(b.messages, providers.Message{Role: "user", Content: userMessage})
	b.trimLocked()

	effectivePrompt := systemPrompt
	if memCtx := b.buildMemoryContext(userMessage); memCtx != "" {
		effectivePrompt = systemPrompt + "\n\n" + memCtx
	}

	var tools []providers.ToolDef
	if b.tools != nil {
		for _, t := range b.tools.ToolsForQuery(userMessage) {
			tools = append(tools, providers.ToolDef{
				Name:        t.FullName,
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
	}

	var lastErr error
	for _, p := range b.chain {
	attempts:
		for attempt := 0; attempt < b.maxRetries; attempt++ {
			result, err := p.Generate(ctx, effectivePrompt, b.messages, tools)
			if err != nil {
				lastErr = err
				switch providers.KindOf(err) {
				case providers.KindQuota:
					slog.Warn("brain.provider.quota", "provider", p.Name())
					break attempts
				case providers.KindRateLimit:
					b.sleep(backoff(attempt))
				default:
					slog.Debug("brain.provider.error", "provider", p.Name(), "error", err)
					b.sleep(500 * time.Millisecond)
				}
				continue
			}

			rounds := 0
			for result.IsToolUse && rounds < b.maxToolRounds {
				rounds++
				result, err = b.runToolRound(ctx, p, effectivePrompt, result, tools, status)
				if err != nil {
					break
				}
			}
			if err != nil {
				lastErr = err
				if providers.KindOf(err) == providers.KindQuota {
					break attempts
				}
				b.sleep(backoff(attempt))
				continue
			}

			return b.finishTurnLocked(userMessage, turns, rounds, result), nil
		}
	}

	// The appended user message never produced a response.
	b.messages = b.messages[:len(b.messages)-1]
	if lastErr != nil {
		b.lastErr = providers.Sanitize(lastErr.Error())
		return nil, fmt.Errorf("%w: %s", ErrAllProvidersExhausted, b.lastErr)
	}
	return nil, ErrAllProvidersExhausted
}

// finishTurnLocked records a successful provider result: quality, budget,
// transcript, and memory capture.
func (b *Brain) finishTurnLocked(userMessage string, turns, rounds int, result *providers.Result) *ThinkResult {
	content := result.Content
	if strings.TrimSpace(content) == "" {
		content = fallbackApology
	}

	source, baseXP := progression.ChatQuality(
		len(userMessage), turns, strings.Contains(userMessage, "?"), 0)

	if b.budget != nil {
		b.budget.Record(result.TokensUsed)
	}
	b.messages = append(b.messages, providers.Message{Role: "assistant", Content: content})
	b.trimLocked()
	b.saveTranscriptLocked()
	b.captureFacts(userMessage)
	b.lastErr = ""

	return &ThinkResult{
		Content:    content,
		Provider:   result.Provider,
		Model:      result.Model,
		TokensUsed: result.TokensUsed,
		ToolRounds: rounds,
		Source:     source,
		BaseXP:     baseXP,
	}
}

// runToolRound executes every requested tool call, appends the synthetic
// result message, and asks the same provider again.
func (b *Brain) runToolRound(ctx context.Context, p providers.Provider, systemPrompt string, current *providers.Result, tools []providers.ToolDef, status StatusFunc) (*providers.Result, error) {
	var sb strings.Builder
	sb.WriteString("[Tool results]\n")
	for _, call := range current.ToolCalls {
		notify(status, "face_focused", "Using "+call.Name, "working")

		content, err := b.tools.CallTool(ctx, call.Name, call.Arguments)
		if err != nil {
			content = "Error: " + providers.Sanitize(err.Error())
		}
		if len(content) > toolResultLimit {
			content = content[:toolResultLimit]
		}
		fmt.Fprintf(&sb, "Tool %s: %s\n", call.ID, content)

		notify(status, "face_happy", "", "done")
	}

	b.messages = append(b.messages, providers.Message{Role: "user", Content: sb.String()})
	b.trimLocked()
	return p.Generate(ctx, systemPrompt, b.messages, tools)
}

// Quick asks for a short completion outside the conversation: no tools, no
// history, no memory capture. Used for autonomous thoughts.
func (b *Brain) Quick(ctx context.Context, systemPrompt, prompt string) (string, error) {
	if len(b.chain) == 0 {
		return "", fmt.Errorf("no providers configured")
	}
	if b.budget != nil && !b.budget.Check(b.perRequestMax) {
		return "", ErrBudgetExhausted
	}

	msgs := []providers.Message{{Role: "user", Content: prompt}}
	var lastErr error
	for _, p := range b.chain {
		result, err := p.Generate(ctx, systemPrompt, msgs, nil)
		if err != nil {
			lastErr = err
			continue
		}
		if b.budget != nil {
			b.budget.Record(result.TokensUsed)
		}
		return providers.Sanitize(result.Content), nil
	}
	return "", fmt.Errorf("%w: %s", ErrAllProvidersExhausted, providers.Sanitize(lastErr.Error()))
}

func (b *Brain) captureFacts(userMessage string) {
	if b.memory == nil {
		return
	}
	for _, c := range ExtractFacts(userMessage, b.captureMax) {
		if err := b.memory.Remember(c.Key, c.Value, c.Category, c.Importance); err != nil {
			slog.Warn("brain.capture.store_failed", "key", c.Key, "error", err)
		}
	}
}

// History returns a copy of the conversation.
func (b *Brain) History() []providers.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]providers.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// ClearHistory drops the conversation and persists the empty transcript.
func (b *Brain) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
	b.saveTranscriptLocked()
}

// LoadHistory replaces the in-memory conversation with the persisted
// transcript. Missing or corrupt transcripts leave it empty.
func (b *Brain) LoadHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	var msgs []providers.Message
	if err := state.LoadJSON(filepath.Join(b.dir, ConversationFile), &msgs); err == nil {
		b.messages = msgs
		b.trimLocked()
	}
}

// GetStats reports transcript and budget counters.
func (b *Brain) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Stats{
		Messages:  len(b.messages),
		Turns:     b.userTurnsLocked(),
		Providers: len(b.chain),
		LastError: b.lastErr,
	}
	if b.budget != nil {
		s.TokensToday = b.budget.UsedToday()
		s.DailyLimit = b.budget.DailyLimit()
	}
	return s
}

func (b *Brain) userTurnsLocked() int {
	n := 0
	for _, m := range b.messages {
		if m.Role == "user" && !strings.HasPrefix(m.Content, "[Tool results]") {
			n++
		}
	}
	return n
}

func (b *Brain) trimLocked() {
	if len(b.messages) > b.historyMax {
		b.messages = b.messages[len(b.messages)-b.historyMax:]
	}
}

// saveTranscriptLocked persists the last hundred messages; failures are
// swallowed.
func (b *Brain) saveTranscriptLocked() {
	msgs := b.messages
	if len(msgs) > transcriptCap {
		msgs = msgs[len(msgs)-transcriptCap:]
	}
	if err := state.SaveJSON(filepath.Join(b.dir, ConversationFile), msgs); err != nil {
		slog.Warn("brain.transcript.save_failed", "error", err)
	}
}

func backoff(attempt int) time.Duration {
	secs := math.Pow(2, float64(attempt)) + 0.1*float64(attempt)
	return time.Duration(secs * float64(time.Second))
}

func notify(status StatusFunc, face, text, phase string) {
	if status == nil {
		return
	}
	defer func() { _ = recover() }()
	status(face, text, phase)
}
