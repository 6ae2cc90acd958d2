package main

import (
	"fmt"

	"github.com/groveapp/grove/internal/config"
	"github.com/groveapp/grove/internal/db"
	"github.com/groveapp/grove/internal/notify"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete notifications past their retention window",
		Long:  "Runs one retention sweep and exits. The serve command also runs this on a schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "grove.yaml", "path to Grove config file")
	return cmd
}

func runSweep(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}

	removed, err := notify.SweepExpired(gormDB)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired notifications\n", removed)
	return nil
}
