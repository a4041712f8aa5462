package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/frontdesk/config"
	"github.com/mohammad-safakhou/frontdesk/internal/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewRouter builds the HTTP surface over app.
func NewRouter(app *App) *echo.Echo {
	logger := runtime.OrNop(app.Logger).Named("http")
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	origins := []string{"*"}
	if app.Config != nil && len(app.Config.Server.CORSOrigins) > 0 {
		origins = app.Config.Server.CORSOrigins
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if app.Config == nil || app.Config.Telemetry.Enabled {
		path := "/metrics"
		if app.Config != nil {
			path = app.Config.Telemetry.MetricsPath
		}
		e.GET(path, echo.WrapHandler(promhttp.HandlerFor(app.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	h := &Handlers{Coordinator: app.Coordinator, Knowledge: app.Knowledge}
	h.Register(e.Group("/api"))
	return e
}

// Run serves HTTP and the timeout sweeper until ctx is cancelled or either fails.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	app, err := NewApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer app.Close()

	e := NewRouter(app)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Logger.Info("listening", zap.String("address", cfg.Server.Address), zap.String("storage", cfg.Storage.Driver))
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return app.Sweeper().Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return e.Shutdown(sctx)
	})
	return g.Wait()
}
