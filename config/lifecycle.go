package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
)

// LifecycleConfig controls help request timeouts and the background sweep.
type LifecycleConfig struct {
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	SweepCron        string        `mapstructure:"sweep_cron"`
	SweepLockTTL     time.Duration `mapstructure:"sweep_lock_ttl"`
	CreateRetryDelay time.Duration `mapstructure:"create_retry_delay"`
}

// Normalize applies defaults for unset values.
func (c LifecycleConfig) Normalize() LifecycleConfig {
	cfg := c
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 15 * time.Minute
	}
	if cfg.SweepLockTTL <= 0 {
		cfg.SweepLockTTL = 2 * time.Minute
	}
	if cfg.CreateRetryDelay < 0 {
		cfg.CreateRetryDelay = 0
	}
	cfg.SweepCron = strings.TrimSpace(cfg.SweepCron)
	return cfg
}

// Validate checks the sweep cron expression when one is set.
func (c LifecycleConfig) Validate() error {
	if c.SweepCron == "" {
		return nil
	}
	if _, err := cronexpr.Parse(c.SweepCron); err != nil {
		return fmt.Errorf("lifecycle.sweep_cron: %w", err)
	}
	return nil
}
