package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (FRONTDESK_STORAGE_DRIVER, ...).
const EnvPrefix = "FRONTDESK"

// Config holds all configuration for the escalation service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug        bool   `mapstructure:"debug"`
	LogLevel     string `mapstructure:"log_level"`
	BusinessName string `mapstructure:"business_name"`
	DashboardURL string `mapstructure:"dashboard_url"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && !strings.HasPrefix(t.MetricsPath, "/") {
		return fmt.Errorf("telemetry.metrics_path must start with / when telemetry is enabled")
	}
	return nil
}

// Storage drivers.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
	StorageDriverMemory   = "memory"
)

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Driver    string         `mapstructure:"driver"`
	OpTimeout time.Duration  `mapstructure:"op_timeout"` // bounds each collection read and write
	Postgres  PostgresConfig `mapstructure:"postgres"`
	SQLite    SQLiteConfig   `mapstructure:"sqlite"`
	Redis     RedisConfig    `mapstructure:"redis"`
}

func (s StorageConfig) Validate() error {
	switch s.Driver {
	case StorageDriverPostgres:
		return s.Postgres.Validate()
	case StorageDriverSQLite:
		if strings.TrimSpace(s.SQLite.Path) == "" {
			return fmt.Errorf("storage.sqlite.path required for sqlite driver")
		}
		return nil
	case StorageDriverMemory:
		return nil
	default:
		return fmt.Errorf("storage.driver %q unsupported (postgres, sqlite, memory)", s.Driver)
	}
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// SQLiteConfig points at the embedded database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig contains Redis connection settings. Redis is optional: without a
// host the sweep runs unlocked and the stream notifier is unavailable.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.business_name", "Luxe Hair Salon")
	v.SetDefault("general.dashboard_url", "http://localhost:10001/api/requests/pending")
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("llm.type", "openai")
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 256)
	v.SetDefault("llm.timeout", 8*time.Second)
	v.SetDefault("knowledge.match_threshold", DefaultMatchThreshold)
	v.SetDefault("knowledge.prompt_context_limit", 10)
	v.SetDefault("lifecycle.request_timeout", 24*time.Hour)
	v.SetDefault("lifecycle.sweep_interval", 15*time.Minute)
	v.SetDefault("lifecycle.sweep_lock_ttl", 2*time.Minute)
	v.SetDefault("lifecycle.create_retry_delay", 200*time.Millisecond)
	v.SetDefault("notify.driver", NotifyDriverLog)
	v.SetDefault("notify.timeout", 3*time.Second)
	v.SetDefault("notify.supervisor_target", "supervisor")
	v.SetDefault("notify.stream", "frontdesk:notifications")
	v.SetDefault("notify.stream_max_len", 10000)
	v.SetDefault("storage.driver", StorageDriverPostgres)
	v.SetDefault("storage.op_timeout", 5*time.Second)
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.sqlite.path", "frontdesk.db")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics_path", "/metrics")
}

// Load reads config from path (or the default search locations when path is empty),
// applies FRONTDESK_* environment overrides, normalizes and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// a missing file is fine when searching; defaults and env still apply
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Knowledge = cfg.Knowledge.Normalize()
	cfg.Lifecycle = cfg.Lifecycle.Normalize()
	cfg.Notify = cfg.Notify.Normalize()
	cfg.LLM = cfg.LLM.Normalize()

	for _, validate := range []func() error{
		cfg.Telemetry.Validate,
		cfg.Storage.Validate,
		cfg.Knowledge.Validate,
		cfg.Lifecycle.Validate,
		cfg.Notify.Validate,
	} {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Notify.Driver == NotifyDriverRedis && !cfg.Storage.Redis.Enabled() {
		return nil, fmt.Errorf("notify.driver redis requires storage.redis.host")
	}
	return &cfg, nil
}

// LoadConfig loads config or panics; used by command entrypoints.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return cfg
}
