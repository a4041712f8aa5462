package main

import (
	"fmt"

	"github.com/mohammad-safakhou/frontdesk/config"
	"github.com/mohammad-safakhou/frontdesk/internal/runtime"
	srv "github.com/mohammad-safakhou/frontdesk/internal/server"
	"github.com/spf13/cobra"
)

func migrateCMD(load loader) *cobra.Command {
	var migDir string
	var direction string
	var steps int

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run Postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != config.StorageDriverPostgres {
				return fmt.Errorf("migrate only applies to the postgres driver (storage.driver=%s)", cfg.Storage.Driver)
			}
			dsn, err := runtime.BuildPostgresDSN(cfg)
			if err != nil {
				return err
			}
			if err := srv.Migrate(migDir, dsn, direction, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: ok\n", direction)
			return nil
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return migrate
}
