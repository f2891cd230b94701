package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maneesh/docsync/internal/config"
	"github.com/maneesh/docsync/internal/session"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a session credential for a subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return errors.New("--subject is required")
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			token, err := session.NewTokenService([]byte(cfg.JWTSecret)).IssueWithTTL(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject (user) id")
	cmd.Flags().DurationVar(&ttl, "ttl", session.TokenTTL, "credential lifetime")
	return cmd
}
