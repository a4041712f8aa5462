package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/frontdesk/config"
	"github.com/mohammad-safakhou/frontdesk/internal/runtime"
	srv "github.com/mohammad-safakhou/frontdesk/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCMD(load loader) *cobra.Command {
	var serveAddr string
	var migrateFirst bool
	var migDir string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the timeout sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}

			if migrateFirst && cfg.Storage.Driver == config.StorageDriverPostgres {
				dsn, err := runtime.BuildPostgresDSN(cfg)
				if err != nil {
					return err
				}
				if err := srv.Migrate(migDir, dsn, "up", 0); err != nil {
					return err
				}
				logger.Info("migrations applied", zap.String("dir", migDir))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, cfg, logger)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	serve.Flags().BoolVar(&migrateFirst, "migrate", true, "apply Postgres migrations before serving")
	serve.Flags().StringVar(&migDir, "migrations", "file://migrations", "migrations source")
	return serve
}
