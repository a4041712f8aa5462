package config

import (
	"fmt"
	"strings"
)

// DefaultMatchThreshold is the Jaccard similarity a knowledge entry must reach to count as a match.
const DefaultMatchThreshold = 0.6

// KnowledgeConfig controls knowledge base matching and seeding.
type KnowledgeConfig struct {
	MatchThreshold     float64 `mapstructure:"match_threshold"`
	SeedFile           string  `mapstructure:"seed_file"`
	PromptContextLimit int     `mapstructure:"prompt_context_limit"`
}

// Normalize applies defaults for unset values.
func (c KnowledgeConfig) Normalize() KnowledgeConfig {
	cfg := c
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = DefaultMatchThreshold
	}
	if cfg.PromptContextLimit <= 0 {
		cfg.PromptContextLimit = 10
	}
	cfg.SeedFile = strings.TrimSpace(cfg.SeedFile)
	return cfg
}

// Validate ensures the threshold is a usable similarity.
func (c KnowledgeConfig) Validate() error {
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("knowledge.match_threshold must be in (0, 1], got %.2f", c.MatchThreshold)
	}
	return nil
}
