package main

import (
	"fmt"
	"time"

	"github.com/groveapp/grove/internal/auth"
	"github.com/groveapp/grove/internal/config"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		email      string
		name       string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed API token for a user",
		Long:  "Signs a bearer token with the configured secret, for local testing and scripts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute
			}

			token, err := auth.Mint(auth.Identity{UserID: userID, Email: email, Name: name}, cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "grove.yaml", "path to Grove config file")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (token subject)")
	cmd.Flags().StringVarP(&email, "email", "e", "", "user email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to config token_ttl_minutes)")
	cmd.MarkFlagRequired("user")
	return cmd
}
