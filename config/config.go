// Package config handles docagent configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/martinemde/docagent/docagent"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from --config) is checked first.
// Then: ./docagent.yaml, ~/.config/docagent/docagent.yaml, /etc/docagent/docagent.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"docagent.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "docagent", "docagent.yaml"))
	}

	paths = append(paths, "/etc/docagent/docagent.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all docagent configuration.
type Config struct {
	LLM      LLMConfig   `yaml:"llm"`
	Store    StoreConfig `yaml:"store"`
	Agent    AgentConfig `yaml:"agent"`
	LogLevel string      `yaml:"log_level"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// APIKey may be left empty; the provider's environment variable is used.
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	MaxRetries  int     `yaml:"max_retries"`
}

// StoreConfig selects where documents live.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite or memory
	Path   string `yaml:"path"`
}

// AgentConfig tunes the iteration controller. Zero values keep the
// controller defaults.
type AgentConfig struct {
	MaxIterations       int    `yaml:"max_iterations"`
	StatusCheckInterval int    `yaml:"status_check_interval"`
	RepetitionThreshold int    `yaml:"repetition_threshold"`
	StallThreshold      int    `yaml:"stall_threshold"`
	NoToolCallLimit     int    `yaml:"no_tool_call_limit"`
	ChangeStopCount     *int   `yaml:"change_stop_count"` // 0 disables
	ToolAttempts        int    `yaml:"tool_attempts"`
	ToolBaseTimeout     string `yaml:"tool_base_timeout"`
	EnablePlanning      *bool  `yaml:"enable_planning"`

	Fallback         *FallbackConfig `yaml:"fallback"`
	NarrationMarkers []string        `yaml:"narration_markers"`
}

// FallbackConfig is the stop schedule used when a status check fails.
type FallbackConfig struct {
	Checkpoints []docagent.FallbackCheckpoint `yaml:"checkpoints"`
	HardStop    int                           `yaml:"hard_stop"`
}

// Load reads a config file, expanding ${VAR} references from the
// environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			MaxTokens:   4096,
			Temperature: 0.2,
			MaxRetries:  2,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join("data", "docagent.db"),
		},
		LogLevel: "info",
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported (valid: sqlite, memory)", c.Store.Driver)
	}
	if c.Agent.ToolBaseTimeout != "" {
		if _, err := time.ParseDuration(c.Agent.ToolBaseTimeout); err != nil {
			return fmt.Errorf("agent.tool_base_timeout: %w", err)
		}
	}
	if f := c.Agent.Fallback; f != nil {
		for _, cp := range f.Checkpoints {
			if cp.Iteration <= 0 {
				return fmt.Errorf("agent.fallback checkpoint iteration must be positive, got %d", cp.Iteration)
			}
		}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// LoopConfig maps the agent section onto the controller defaults.
func (c *Config) LoopConfig() docagent.LoopConfig {
	lc := docagent.DefaultLoopConfig()
	a := c.Agent

	if a.MaxIterations > 0 {
		lc.MaxIterations = a.MaxIterations
	}
	if a.StatusCheckInterval > 0 {
		lc.StatusCheckInterval = a.StatusCheckInterval
	}
	if a.RepetitionThreshold > 0 {
		lc.RepetitionThreshold = a.RepetitionThreshold
	}
	if a.StallThreshold > 0 {
		lc.StallThreshold = a.StallThreshold
	}
	if a.NoToolCallLimit > 0 {
		lc.NoToolCallLimit = a.NoToolCallLimit
	}
	if a.ChangeStopCount != nil {
		lc.ChangeStopCount = *a.ChangeStopCount
	}
	if a.ToolAttempts > 0 {
		lc.ToolAttempts = a.ToolAttempts
	}
	if d, err := time.ParseDuration(a.ToolBaseTimeout); err == nil && d > 0 {
		lc.ToolBaseTimeout = d
	}
	if a.EnablePlanning != nil {
		lc.EnablePlanning = *a.EnablePlanning
	}
	if a.Fallback != nil {
		lc.Fallback = docagent.FallbackPolicy{
			Checkpoints: a.Fallback.Checkpoints,
			HardStop:    a.Fallback.HardStop,
		}
	}
	return lc
}
