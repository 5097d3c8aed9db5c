package providers

import (
	"log/slog"
	"os"
	"strings"
)

// Settings selects and configures the provider chain. Empty API keys fall
// back to the conventional environment variables.
type Settings struct {
	Primary   string   `yaml:"primary" json:"primary"`
	Anthropic Endpoint `yaml:"anthropic" json:"anthropic"`
	OpenAI    Endpoint `yaml:"openai" json:"openai"`
	Gemini    Endpoint `yaml:"gemini" json:"gemini"`
	Ollama    Endpoint `yaml:"ollama" json:"ollama"`
}

// Endpoint configures one provider entry.
type Endpoint struct {
	APIKey  string `yaml:"api_key" json:"api_key"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	Model   string `yaml:"model" json:"model"`
}

// envKey returns the first non-empty value among vars.
func envKey(vars ...string) string {
	for _, v := range vars {
		if val := os.Getenv(v); val != "" {
			return val
		}
	}
	return ""
}

// BuildChain assembles the failover order: anthropic, openai, gemini,
// ollama, with the configured primary promoted to the front. Providers
// without credentials are skipped silently.
func BuildChain(s Settings) []Provider {
	build := map[string]func() Provider{
		"anthropic": func() Provider {
			key := s.Anthropic.APIKey
			if key == "" {
				key = envKey("ANTHROPIC_API_KEY")
			}
			if key == "" {
				return nil
			}
			return NewAnthropicProvider(key,
				WithAnthropicModel(s.Anthropic.Model),
				WithAnthropicBaseURL(s.Anthropic.BaseURL))
		},
		"openai": func() Provider {
			key := s.OpenAI.APIKey
			if key == "" {
				key = envKey("OPENAI_API_KEY")
			}
			// GROQ_API_KEY only applies when the endpoint is groq.
			if key == "" && strings.Contains(s.OpenAI.BaseURL, "api.groq.com") {
				key = envKey("GROQ_API_KEY")
			}
			if key == "" {
				return nil
			}
			model := s.OpenAI.Model
			if model == "" {
				model = "gpt-4o-mini"
			}
			return NewOpenAIProvider("openai", key, s.OpenAI.BaseURL, model)
		},
		"gemini": func() Provider {
			key := s.Gemini.APIKey
			if key == "" {
				key = envKey("GOOGLE_API_KEY", "GEMINI_API_KEY")
			}
			if key == "" {
				return nil
			}
			return NewGeminiProvider(key, s.Gemini.Model)
		},
		"ollama": func() Provider {
			key := s.Ollama.APIKey
			if key == "" {
				key = envKey("OLLAMA_API_KEY")
			}
			if key == "" {
				return nil
			}
			model := s.Ollama.Model
			if model == "" {
				model = "gpt-oss:20b"
			}
			return NewOllamaCloudProvider(key, model)
		},
	}

	order := []string{"anthropic", "openai", "gemini", "ollama"}
	if s.Primary != "" {
		promoted := []string{}
		for _, name := range order {
			if name == s.Primary {
				promoted = append([]string{name}, promoted...)
			} else {
				promoted = append(promoted, name)
			}
		}
		order = promoted
	}

	var chain []Provider
	for _, name := range order {
		if p := build[name](); p != nil {
			chain = append(chain, p)
		}
	}
	if len(chain) == 0 {
		slog.Warn("providers.none_configured")
	}
	return chain
}
