package main

import (
	"errors"
	"fmt"

	srv "github.com/mohammad-safakhou/frontdesk/internal/server"
	"github.com/spf13/cobra"
)

func seedCMD(load loader) *cobra.Command {
	var file string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Load SEEDED knowledge entries from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			// the configured seed file would otherwise be applied on top
			cfg.Knowledge.SeedFile = ""

			app, err := srv.NewApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer app.Close()

			n, err := app.SeedFrom(cmd.Context(), file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d entries (%d total)\n", n, app.Knowledge.Len())
			return nil
		},
	}
	seed.Flags().StringVarP(&file, "file", "f", "", "seed file")
	return seed
}
