// Package config loads and manages parley configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, OPENAI_API_KEY, PARLEY_MODELS, etc.)
// 2. Config file path specified via --config flag
// 3. ~/.config/parley/config.yaml
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed providers_default.yaml
var defaultProvidersYAML []byte

// ProviderDefaults holds the default base URL and model for a provider.
type ProviderDefaults struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// LoadProviderDefaults parses the embedded defaults and merges any user
// overrides from ~/.config/parley/providers.yaml.
func LoadProviderDefaults() map[string]ProviderDefaults {
	defs := make(map[string]ProviderDefaults)
	_ = yaml.Unmarshal(defaultProvidersYAML, &defs)

	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".config", "parley", "providers.yaml")
		if data, err := os.ReadFile(userPath); err == nil {
			userDefs := make(map[string]ProviderDefaults)
			if yaml.Unmarshal(data, &userDefs) == nil {
				for name, ud := range userDefs {
					d := defs[name]
					if ud.BaseURL != "" {
						d.BaseURL = ud.BaseURL
					}
					if ud.DefaultModel != "" {
						d.DefaultModel = ud.DefaultModel
					}
					defs[name] = d
				}
			}
		}
	}
	return defs
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// BudgetConfig holds token budget tunables. Zero values use built-in
// defaults.
type BudgetConfig struct {
	// ResponseReservePct of each model's context window is held for output.
	ResponseReservePct float64 `yaml:"response_reserve_pct"`

	// ReserveCap caps the response reserve in tokens.
	ReserveCap int `yaml:"reserve_cap"`

	// HistoryFloor / FilesFloor bound how hard content may be compressed.
	HistoryFloor float64 `yaml:"history_floor"`
	FilesFloor   float64 `yaml:"files_floor"`
}

// DispatchConfig holds dispatch engine tunables.
type DispatchConfig struct {
	// Workers caps concurrent provider calls. 0 = default (5).
	Workers int `yaml:"workers"`

	// TimeoutSeconds bounds each provider call. 0 = default (60).
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// MemoryConfig holds conversation persistence settings.
type MemoryConfig struct {
	// Disabled turns off on-disk conversation storage.
	Disabled bool `yaml:"disabled"`

	// Path overrides the SQLite database location.
	// Empty = ~/.local/share/parley/conversations.db.
	Path string `yaml:"path"`
}

// PricingEntry is a user-defined pricing override for a model, in dollars
// per 1000 tokens.
type PricingEntry struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// Config is the complete configuration structure for parley.
type Config struct {
	// Models is the default panel consulted when a command names none.
	Models []string `yaml:"models"`

	// HostModel answers single-model chat and host-perspective turns.
	HostModel string `yaml:"host_model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// Budget holds token budget tunables.
	Budget BudgetConfig `yaml:"budget"`

	// Dispatch holds worker pool tunables.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Memory holds conversation persistence settings.
	Memory MemoryConfig `yaml:"memory"`

	// EstimatorCacheSize bounds the token estimator's LRU cache.
	// 0 = default (1024).
	EstimatorCacheSize int `yaml:"estimator_cache_size"`

	// Pricing holds user-defined pricing overrides for cost tracking.
	Pricing map[string]PricingEntry `yaml:"pricing"`

	// EventLog enables per-discussion JSONL event files.
	EventLog bool `yaml:"event_log"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Models:    []string{"deepseek/deepseek-r1", "gemini-2.5-flash"},
		HostModel: "claude-sonnet-4-20250514",
		Providers: make(map[string]*ProviderConfig),
	}
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".config", "parley", "config.yaml")
		}
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	return cfg, nil
}

// GetProviderConfig returns the config for the named provider, or an empty
// config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok {
		return pc
	}
	return &ProviderConfig{}
}

// providerKeyEnvs maps provider names to their conventional API key
// environment variables.
var providerKeyEnvs = map[string]string{
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"gemini":     "GEMINI_API_KEY",
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	for name, env := range providerKeyEnvs {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		if cfg.Providers[name] == nil {
			cfg.Providers[name] = &ProviderConfig{}
		}
		cfg.Providers[name].APIKey = v
	}

	if v := os.Getenv("PARLEY_MODEL"); v != "" {
		cfg.HostModel = v
	}
	if v := os.Getenv("PARLEY_MODELS"); v != "" {
		var models []string
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				models = append(models, m)
			}
		}
		if len(models) > 0 {
			cfg.Models = models
		}
	}
}

// WriteExample writes a commented starter config to path, refusing to
// overwrite an existing file.
func WriteExample(path string) error {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(home, ".config", "parley", "config.yaml")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(exampleConfig), 0600)
}

const exampleConfig = `# parley configuration
# API keys may also come from environment variables:
#   ANTHROPIC_API_KEY, OPENAI_API_KEY, DEEPSEEK_API_KEY,
#   OPENROUTER_API_KEY, GEMINI_API_KEY

# Default panel for discuss/consensus when no --models flag is given.
models:
  - deepseek/deepseek-r1
  - gemini-2.5-flash

# Model used for single-model chat and host perspectives.
host_model: claude-sonnet-4-20250514

providers:
  anthropic:
    api_key: ""
  openai:
    api_key: ""
  openrouter:
    api_key: ""

# budget:
#   response_reserve_pct: 0.15
#   reserve_cap: 4096
#   history_floor: 0.3
#   files_floor: 0.3

# dispatch:
#   workers: 5
#   timeout_seconds: 60

# memory:
#   disabled: false
#   path: ""

# event_log: true
`
