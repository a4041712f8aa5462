package config

import (
	"strings"
	"time"
)

// LLMConfig configures the confidence judge provider.
type LLMConfig struct {
	Type        string        `mapstructure:"type"` // openai (any OpenAI-compatible endpoint), static
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Normalize applies defaults for unset values.
func (c LLMConfig) Normalize() LLMConfig {
	cfg := c
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Type == "" {
		cfg.Type = "openai"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	return cfg
}
