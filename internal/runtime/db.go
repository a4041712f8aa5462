package runtime

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/frontdesk/config"
	"github.com/mohammad-safakhou/frontdesk/internal/store"
	"github.com/redis/go-redis/v9"
)

// BuildPostgresDSN constructs a DSN from the application configuration.
func BuildPostgresDSN(cfg *config.Config) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("config is nil")
	}
	p := cfg.Storage.Postgres
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres configuration incomplete: host/dbname required")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// OpenCollection opens the configured backing collection, bounding each call by
// storage.op_timeout. The returned close function is always non-nil.
func OpenCollection(ctx context.Context, cfg *config.Config) (store.Collection, func() error, error) {
	coll, closeFn, err := openCollection(ctx, cfg)
	if err != nil {
		return nil, closeFn, err
	}
	return store.WithTimeout(coll, cfg.Storage.OpTimeout), closeFn, nil
}

func openCollection(ctx context.Context, cfg *config.Config) (store.Collection, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		return store.NewMemory(), noop, nil
	case config.StorageDriverSQLite:
		st, err := store.NewSQLite(ctx, cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite %s: %w", cfg.Storage.SQLite.Path, err)
		}
		return st, st.Close, nil
	case config.StorageDriverPostgres:
		dsn, err := BuildPostgresDSN(cfg)
		if err != nil {
			return nil, noop, err
		}
		if t := cfg.Storage.Postgres.Timeout; t > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}
		st, err := store.NewWithDSN(ctx, dsn)
		if err != nil {
			return nil, noop, fmt.Errorf("open postgres: %w", err)
		}
		return st, st.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// NewRedis connects to the configured Redis, or returns nil when none is configured.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	opts := &redis.Options{Addr: cfg.Addr(), Password: cfg.Password, DB: cfg.DB}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Addr(), err)
	}
	return rdb, nil
}
