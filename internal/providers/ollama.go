package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const ollamaAPIBase = "https://ollama.com/api"

// OllamaProvider talks to Ollama Cloud's native chat API with bearer auth.
type OllamaProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaCloudProvider creates a provider for Ollama's hosted API.
func NewOllamaCloudProvider(apiKey, model string) *OllamaProvider {
	return &OllamaProvider{
		apiKey:  apiKey,
		baseURL: ollamaAPIBase,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaResponse struct {
	Message struct {
		Content   string `json:"content"`
		ToolCalls []struct {
			Function struct {
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"message"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Model           string `json:"model"`
}

func (p *OllamaProvider) Generate(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDef) (*Result, error) {
	native := make([]map[string]any, 0, len(messages)+1)
	if systemPrompt != "" {
		native = append(native, map[string]any{"role": "system", "content": systemPrompt})
	}
	for _, m := range messages {
		native = append(native, map[string]any{"role": m.Role, "content": m.Content})
	}

	body := map[string]any{
		"model":    p.model,
		"messages": native,
		"stream":   false,
	}
	if len(tools) > 0 {
		defs := make([]map[string]any, 0, len(tools))
		for _, t := range tools {
			defs = append(defs, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  schemaOrEmpty(t.InputSchema),
				},
			})
		}
		body["tools"] = defs
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(p.baseURL, "/")+"/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, newError(p.Name(), err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newError(p.Name(), fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg))
	}

	var native2 ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&native2); err != nil {
		return nil, newError(p.Name(), "decode response: "+err.Error())
	}

	result := &Result{
		Provider:   p.Name(),
		Model:      native2.Model,
		Content:    native2.Message.Content,
		TokensUsed: native2.PromptEvalCount + native2.EvalCount,
	}
	for _, tc := range native2.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        fmt.Sprintf("ollama-call-%d", len(result.ToolCalls)),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	result.IsToolUse = len(result.ToolCalls) > 0
	return result, nil
}
