package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/frontdesk/config"
	"github.com/mohammad-safakhou/frontdesk/internal/coordinator"
	"github.com/mohammad-safakhou/frontdesk/internal/decider"
	"github.com/mohammad-safakhou/frontdesk/internal/knowledge"
	"github.com/mohammad-safakhou/frontdesk/internal/lifecycle"
	"github.com/mohammad-safakhou/frontdesk/internal/notify"
	"github.com/mohammad-safakhou/frontdesk/internal/runtime"
	"github.com/mohammad-safakhou/frontdesk/models"
	"github.com/mohammad-safakhou/frontdesk/provider"
	openai_provider "github.com/mohammad-safakhou/frontdesk/provider/openai"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired engine components shared by the serve, sweep and seed commands.
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *runtime.Metrics
	Redis       *redis.Client
	Knowledge   *knowledge.Store
	Lifecycle   *lifecycle.Lifecycle
	Coordinator *coordinator.Coordinator

	closers []func() error
}

// NewApp opens storage, loads the knowledge cache and wires every component.
// The judge is only built when withJudge is set; offline commands do not need one.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, withJudge bool) (*App, error) {
	logger = runtime.OrNop(logger)
	app := &App{Config: cfg, Logger: logger, Metrics: runtime.NewMetrics()}

	coll, closeColl, err := runtime.OpenCollection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeColl)

	if app.Redis, err = runtime.NewRedis(ctx, cfg.Storage.Redis); err != nil {
		_ = app.Close()
		return nil, err
	}
	if app.Redis != nil {
		app.closers = append(app.closers, app.Redis.Close)
	}

	app.Knowledge = knowledge.New(coll,
		knowledge.WithThreshold(cfg.Knowledge.MatchThreshold),
		knowledge.WithLogger(logger),
		knowledge.WithMetrics(app.Metrics),
		knowledge.WithTextIndex(),
	)
	app.closers = append(app.closers, app.Knowledge.Close)
	if err := app.Knowledge.Load(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	if cfg.Knowledge.SeedFile != "" {
		if _, err := app.SeedFrom(ctx, cfg.Knowledge.SeedFile); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	notifier, err := notify.New(cfg.Notify, app.Redis, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Lifecycle = lifecycle.New(coll,
		lifecycle.WithLearner(app.Knowledge),
		lifecycle.WithNotifier(notifier),
		lifecycle.WithLogger(logger),
		lifecycle.WithMetrics(app.Metrics),
		lifecycle.WithBusinessName(cfg.General.BusinessName),
		lifecycle.WithRequestTimeout(cfg.Lifecycle.RequestTimeout),
	)

	var judge provider.Judge = provider.StaticJudge{}
	if withJudge {
		limit := cfg.Knowledge.PromptContextLimit
		judge, err = provider.NewJudge(cfg.LLM,
			openai_provider.WithBusinessName(cfg.General.BusinessName),
			openai_provider.WithKnowledge(func() []models.KnowledgeEntry { return app.Knowledge.TopByUsage(limit) }),
			openai_provider.WithLogger(logger.Named("judge")),
		)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
	}
	dec := decider.New(judge,
		decider.WithTimeout(cfg.LLM.Timeout),
		decider.WithLogger(logger),
		decider.WithMetrics(app.Metrics),
	)

	app.Coordinator = coordinator.New(app.Knowledge, dec, app.Lifecycle,
		coordinator.WithNotifier(notifier),
		coordinator.WithSupervisorTarget(cfg.Notify.SupervisorTarget),
		coordinator.WithDashboardURL(cfg.General.DashboardURL),
		coordinator.WithRetryDelay(cfg.Lifecycle.CreateRetryDelay),
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(app.Metrics),
	)
	return app, nil
}

// SeedFrom loads a seed file into the knowledge base and returns how many entries were added.
func (a *App) SeedFrom(ctx context.Context, path string) (int, error) {
	seeds, err := knowledge.LoadSeedFile(path)
	if err != nil {
		return 0, err
	}
	n, err := a.Knowledge.Seed(ctx, seeds)
	if err != nil {
		return n, fmt.Errorf("seed %s: %w", path, err)
	}
	a.Logger.Info("knowledge seeded", zap.String("file", path), zap.Int("added", n), zap.Int("skipped", len(seeds)-n))
	return n, nil
}

// Sweeper builds the timeout sweeper from lifecycle settings.
func (a *App) Sweeper() *Sweeper {
	s := &Sweeper{
		Requests: a.Lifecycle,
		Interval: a.Config.Lifecycle.SweepInterval,
		Cron:     a.Config.Lifecycle.SweepCron,
		Cutoff:   a.Config.Lifecycle.RequestTimeout,
		LockTTL:  a.Config.Lifecycle.SweepLockTTL,
		Logger:   a.Logger,
		Metrics:  a.Metrics,
	}
	if a.Redis != nil {
		s.Lock = a.Redis
	}
	return s
}

// Close releases everything NewApp opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
