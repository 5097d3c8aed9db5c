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

const openAIAPIBase = "https://api.openai.com/v1"

// OpenAIProvider serves any OpenAI-compatible API (OpenAI, Groq, Ollama
// Cloud, OpenRouter, local gateways).
type OpenAIProvider struct {
	name      string
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
}

// NewOpenAIProvider creates an OpenAI-compatible provider. name is the
// identifier reported in results and errors.
func NewOpenAIProvider(name, apiKey, baseURL, model string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = openAIAPIBase
	}
	return &OpenAIProvider{
		name:      name,
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		maxTokens: 1024,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

// maxTokensField picks the completion-limit parameter name. Ollama Cloud
// only understands the legacy max_tokens; newer OpenAI endpoints reject it
// in favor of max_completion_tokens.
func (p *OpenAIProvider) maxTokensField() string {
	if strings.Contains(p.baseURL, "ollama.com") {
		return "max_tokens"
	}
	return "max_completion_tokens"
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDef) (*Result, error) {
	native := make([]map[string]any, 0, len(messages)+1)
	if systemPrompt != "" {
		native = append(native, map[string]any{"role": "system", "content": systemPrompt})
	}
	for _, m := range messages {
		native = append(native, map[string]any{"role": m.Role, "content": m.Content})
	}

	body := map[string]any{
		"model":            p.model,
		"messages":         native,
		p.maxTokensField(): p.maxTokens,
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
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, newError(p.name, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newError(p.name, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg))
	}

	var oai openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oai); err != nil {
		return nil, newError(p.name, "decode response: "+err.Error())
	}
	if len(oai.Choices) == 0 {
		return nil, newError(p.name, "response carried no choices")
	}

	msg := oai.Choices[0].Message
	result := &Result{
		Provider:   p.name,
		Model:      oai.Model,
		Content:    msg.Content,
		TokensUsed: oai.Usage.TotalTokens,
	}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	result.IsToolUse = len(result.ToolCalls) > 0
	return result, nil
}
