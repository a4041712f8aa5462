package main

import (
	"fmt"
	"os"

	"github.com/mohammad-safakhou/frontdesk/config"
	"github.com/mohammad-safakhou/frontdesk/internal/runtime"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCMD().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCMD() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "frontdesk",
		Short:        "Escalation and learning engine for an AI receptionist",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	load := func() (*config.Config, *zap.Logger, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, nil, err
		}
		logger, err := runtime.NewLogger(cfg.General)
		if err != nil {
			return nil, nil, fmt.Errorf("build logger: %w", err)
		}
		return cfg, logger, nil
	}

	root.AddCommand(serveCMD(load), migrateCMD(load), sweepCMD(load), seedCMD(load))
	return root
}

// loader reads configuration and builds the process logger.
type loader func() (*config.Config, *zap.Logger, error)
