package providers

import (
	"context"
	"encoding/json"
)

// Provider is the interface all LLM back-ends implement.
type Provider interface {
	// Generate sends the conversation and returns the model's reply.
	// tools carries the function schemas offered for this call.
	Generate(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDef) (*Result, error)

	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// Message is one canonical conversation message. Role is "user" or
// "assistant"; the system prompt travels separately.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDef describes a tool offered to the model.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Result is the outcome of one Generate call. TokensUsed is whatever the
// native response reported, input plus output or total, unchanged.
type Result struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	IsToolUse  bool       `json:"is_tool_use"`
	TokensUsed int        `json:"tokens_used"`
	Model      string     `json:"model,omitempty"`
	Provider   string     `json:"provider,omitempty"`
}
