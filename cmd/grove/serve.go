package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/groveapp/grove/internal/api"
	"github.com/groveapp/grove/internal/config"
	"github.com/groveapp/grove/internal/db"
	"github.com/groveapp/grove/internal/notify"
	"github.com/groveapp/grove/internal/notify/discord"
	"github.com/groveapp/grove/internal/notify/slack"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Grove API server",
		Long:  "Launches the REST API, outbound notification channels, and the retention sweeper.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "grove.yaml", "path to Grove config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	outbound, err := buildOutbound(cfg, out)
	if err != nil {
		return err
	}
	defer outbound.Close()

	sweeper, err := notify.StartSweeper(gormDB, cfg.Notifications.SweepCron, out)
	if err != nil {
		return err
	}
	defer sweeper.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	return api.Start(ctx, api.StartOpts{
		DB:               gormDB,
		Port:             port,
		JWTSecret:        cfg.Auth.JWTSecret,
		Outbound:         outbound,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimitRPS:     cfg.RateLimit.RPS,
		RateLimitBurst:   cfg.RateLimit.Burst,
		Out:              out,
	})
}

// buildOutbound wires the configured chat channels. Channels without a
// token are simply absent.
func buildOutbound(cfg *config.Config, out io.Writer) (*notify.Outbound, error) {
	var adapters []notify.Adapter

	if cfg.Notifications.SlackToken != "" {
		a, err := slack.New(slack.Opts{
			BotToken:  cfg.Notifications.SlackToken,
			ChannelID: cfg.Notifications.SlackChannel,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if cfg.Notifications.DiscordToken != "" {
		a, err := discord.New(discord.Opts{
			BotToken:  cfg.Notifications.DiscordToken,
			ChannelID: cfg.Notifications.DiscordChannel,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	return notify.NewOutbound(out, adapters...), nil
}
