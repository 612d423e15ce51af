package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading.
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the config file (when present) and environment overrides with
// the SPIDER2_ prefix, then resolves the system prompt file.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPIDER2")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultConfig()

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			return nil, fmt.Errorf("config file not found: %s", l.configPath)
		}
		v.SetConfigFile(l.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Provider API keys fall back to the conventional env variables.
	if cfg.Model.APIKey == "" {
		switch cfg.Model.Provider {
		case "openai":
			cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	if cfg.Paths.SystemPrompt == "" && cfg.Paths.SystemPromptFile != "" {
		data, err := os.ReadFile(cfg.Paths.SystemPromptFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read system prompt file: %w", err)
		}
		cfg.Paths.SystemPrompt = string(data)
	}

	return cfg, nil
}

// Load is a convenience wrapper over a one-shot loader.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
