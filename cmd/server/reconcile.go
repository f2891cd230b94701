package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/maneesh/docsync/internal/config"
	"github.com/maneesh/docsync/internal/session"
)

// operatorTokenTTL bounds credentials minted by operator commands
const operatorTokenTTL = 5 * time.Minute

func newReconcileCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Print the divergence report between records and index entries for a subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return errors.New("--subject is required")
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := config.SetupLogger(cfg)

			a := newReconcileApp(cfg, logger)
			defer a.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.IndexTimeout+10*time.Second)
			defer cancel()

			return runReconcile(ctx, a, subject, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject (user) id to reconcile")
	return cmd
}

// runReconcile mints a short-lived credential for subject and prints the report
func runReconcile(ctx context.Context, a *app, subject string, out io.Writer) error {
	token, err := a.tokens.IssueWithTTL(subject, operatorTokenTTL)
	if err != nil {
		return err
	}

	report, err := a.coord.Reconcile(ctx, session.Identity{Subject: subject, Token: token})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
