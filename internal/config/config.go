// Package config reads and writes the companion's YAML configuration.
// Every key is optional; Load overlays the file onto Default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/inkling/internal/heartbeat"
	"github.com/nextlevelbuilder/inkling/internal/mcp"
	"github.com/nextlevelbuilder/inkling/internal/providers"
	"github.com/nextlevelbuilder/inkling/internal/state"
)

// FileName is the config file inside the state directory.
const FileName = "config.yaml"

// Config is the root configuration.
type Config struct {
	Name      string          `yaml:"name"`
	AI        AIConfig        `yaml:"ai"`
	Memory    MemoryConfig    `yaml:"memory"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	MCP       MCPConfig       `yaml:"mcp"`

	path string
}

// AIConfig selects providers and the token budget.
type AIConfig struct {
	providers.Settings `yaml:",inline"`
	Budget             BudgetConfig `yaml:"budget"`
}

// BudgetConfig bounds daily token spend.
type BudgetConfig struct {
	DailyTokens   int `yaml:"daily_tokens"`
	PerRequestMax int `yaml:"per_request_max"`
}

// MemoryConfig controls the memory store and prompt augmentation.
type MemoryConfig struct {
	Enabled       bool                `yaml:"enabled"`
	PromptContext PromptContextConfig `yaml:"prompt_context"`
	Capture       CaptureConfig       `yaml:"capture"`
}

// PromptContextConfig bounds the memories injected into system prompts.
type PromptContextConfig struct {
	Enabled  bool `yaml:"enabled"`
	MaxItems int  `yaml:"max_items"`
	MaxChars int  `yaml:"max_chars"`
}

// CaptureConfig controls fact extraction from user messages. LLMEnabled is
// a reserved hook and currently does nothing.
type CaptureConfig struct {
	RuleBased     bool `yaml:"rule_based"`
	LLMEnabled    bool `yaml:"llm_enabled"`
	MaxNewPerTurn int  `yaml:"max_new_per_turn"`
}

// HeartbeatConfig tunes the tick loop.
type HeartbeatConfig struct {
	Enabled      bool `yaml:"enabled"`
	TickInterval int  `yaml:"tick_interval"`

	EnableMoodBehaviors        bool `yaml:"enable_mood_behaviors"`
	EnableTimeBehaviors        bool `yaml:"enable_time_behaviors"`
	EnableSocialBehaviors      bool `yaml:"enable_social_behaviors"`
	EnableMaintenanceBehaviors bool `yaml:"enable_maintenance_behaviors"`
	EnableBatteryBehaviors     bool `yaml:"enable_battery_behaviors"`

	ThoughtIntervalMinMinutes int     `yaml:"thought_interval_min_minutes"`
	ThoughtIntervalMaxMinutes int     `yaml:"thought_interval_max_minutes"`
	ThoughtSurfaceProbability float64 `yaml:"thought_surface_probability"`

	QuietHoursStart int `yaml:"quiet_hours_start"`
	QuietHoursEnd   int `yaml:"quiet_hours_end"`

	BatteryLowThreshold      int `yaml:"battery_low_threshold"`
	BatteryCriticalThreshold int `yaml:"battery_critical_threshold"`
	BatteryFullThreshold     int `yaml:"battery_full_threshold"`
}

// Runtime converts the file shape into the heartbeat's config.
func (h HeartbeatConfig) Runtime() heartbeat.Config {
	return heartbeat.Config{
		TickInterval:               time.Duration(h.TickInterval) * time.Second,
		EnableMoodBehaviors:        h.EnableMoodBehaviors,
		EnableTimeBehaviors:        h.EnableTimeBehaviors,
		EnableSocialBehaviors:      h.EnableSocialBehaviors,
		EnableMaintenanceBehaviors: h.EnableMaintenanceBehaviors,
		EnableBatteryBehaviors:     h.EnableBatteryBehaviors,
		ThoughtIntervalMin:         time.Duration(h.ThoughtIntervalMinMinutes) * time.Minute,
		ThoughtIntervalMax:         time.Duration(h.ThoughtIntervalMaxMinutes) * time.Minute,
		ThoughtSurfaceProbability:  h.ThoughtSurfaceProbability,
		QuietHoursStart:            h.QuietHoursStart,
		QuietHoursEnd:              h.QuietHoursEnd,
		BatteryLowThreshold:        h.BatteryLowThreshold,
		BatteryCriticalThreshold:   h.BatteryCriticalThreshold,
		BatteryFullThreshold:       h.BatteryFullThreshold,
	}
}

// SchedulerConfig declares the persisted job list.
type SchedulerConfig struct {
	Enabled bool         `yaml:"enabled"`
	Tasks   []TaskConfig `yaml:"tasks"`
}

// TaskConfig is one declared job.
type TaskConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Action   string `yaml:"action"`
	Enabled  bool   `yaml:"enabled"`
}

// MCPConfig declares external tool servers.
type MCPConfig struct {
	Enabled     bool                        `yaml:"enabled"`
	MaxTools    int                         `yaml:"max_tools"`
	CoreServers []string                    `yaml:"core_servers"`
	Servers     map[string]mcp.ServerConfig `yaml:"servers"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Name: "Inkling",
		AI: AIConfig{
			Settings: providers.Settings{Primary: "anthropic"},
			Budget: BudgetConfig{
				DailyTokens:   10000,
				PerRequestMax: 500,
			},
		},
		Memory: MemoryConfig{
			Enabled: true,
			PromptContext: PromptContextConfig{
				Enabled:  true,
				MaxItems: 6,
				MaxChars: 600,
			},
			Capture: CaptureConfig{
				RuleBased:     true,
				LLMEnabled:    false,
				MaxNewPerTurn: 5,
			},
		},
		Heartbeat: HeartbeatConfig{
			Enabled:                    true,
			TickInterval:               60,
			EnableMoodBehaviors:        true,
			EnableTimeBehaviors:        true,
			EnableSocialBehaviors:      true,
			EnableMaintenanceBehaviors: true,
			EnableBatteryBehaviors:     true,
			ThoughtIntervalMinMinutes:  15,
			ThoughtIntervalMaxMinutes:  30,
			ThoughtSurfaceProbability:  0.35,
			QuietHoursStart:            23,
			QuietHoursEnd:              7,
			BatteryLowThreshold:        20,
			BatteryCriticalThreshold:   10,
			BatteryFullThreshold:       95,
		},
		Scheduler: SchedulerConfig{Enabled: true},
		MCP: MCPConfig{
			Enabled:  false,
			MaxTools: 20,
		},
	}
}

// DefaultPath returns the config file path inside the state directory.
func DefaultPath() (string, error) {
	dir, err := state.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads the config file, falling back to Default when it is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Path returns where this config was loaded from.
func (c *Config) Path() string { return c.path }

// Save writes the whole config back to its file.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("config has no file path")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return writeFileAtomic(c.path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
