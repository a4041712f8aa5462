package config

import (
	"fmt"
	"strings"
	"time"
)

// Notification drivers.
const (
	NotifyDriverLog   = "log"
	NotifyDriverRedis = "redis"
	NotifyDriverNoop  = "noop"
)

// NotifyConfig selects how supervisors and callers are reached.
type NotifyConfig struct {
	Driver           string        `mapstructure:"driver"`
	Timeout          time.Duration `mapstructure:"timeout"`
	SupervisorTarget string        `mapstructure:"supervisor_target"`
	Stream           string        `mapstructure:"stream"`
	StreamMaxLen     int64         `mapstructure:"stream_max_len"`
}

// Normalize applies defaults for unset values.
func (c NotifyConfig) Normalize() NotifyConfig {
	cfg := c
	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	if cfg.Driver == "" {
		cfg.Driver = NotifyDriverLog
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if strings.TrimSpace(cfg.SupervisorTarget) == "" {
		cfg.SupervisorTarget = "supervisor"
	}
	if strings.TrimSpace(cfg.Stream) == "" {
		cfg.Stream = "frontdesk:notifications"
	}
	return cfg
}

func (c NotifyConfig) Validate() error {
	switch c.Driver {
	case NotifyDriverLog, NotifyDriverRedis, NotifyDriverNoop:
		return nil
	default:
		return fmt.Errorf("notify.driver %q unsupported (log, redis, noop)", c.Driver)
	}
}
