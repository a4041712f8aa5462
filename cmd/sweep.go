package main

import (
	"fmt"
	"time"

	srv "github.com/mohammad-safakhou/frontdesk/internal/server"
	"github.com/spf13/cobra"
)

func sweepCMD(load loader) *cobra.Command {
	var cutoff time.Duration
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Time out stale pending help requests once and print their ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if cutoff > 0 {
				cfg.Lifecycle.RequestTimeout = cutoff
			}

			app, err := srv.NewApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer app.Close()

			out, err := app.Sweeper().Sweep(cmd.Context())
			for _, r := range out {
				fmt.Fprintln(cmd.OutOrStdout(), r.ID)
			}
			return err
		},
	}
	sweep.Flags().DurationVar(&cutoff, "cutoff", 0, "age after which pending requests time out (default lifecycle.request_timeout)")
	return sweep
}
