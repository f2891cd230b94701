package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maneesh/docsync/internal/config"
	"github.com/maneesh/docsync/internal/handlers"
	"github.com/maneesh/docsync/internal/tracing"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("starting docsync service",
		slog.String("version", version),
		slog.String("port", cfg.ServicePort),
	)

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(cfg.TracingEnabled, cfg.ServiceName, cfg.JaegerEndpoint, version, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Warn("error shutting down tracer", slog.String("error", err.Error()))
		}
	}()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	a.ensureSchema(startCtx)
	a.checkIndex(startCtx)
	cancel()

	router := handlers.NewRouter(handlers.RouterDeps{
		Documents:    a.coord,
		Users:        a.users,
		Tokens:       a.tokens,
		Resolver:     a.resolver,
		CookieSecure: cfg.CookieSecure,
		MaxUpload:    cfg.GetMaxUploadBytes(),
		Health:       a.health,
		Logger:       logger,
	})

	// Create HTTP server; index calls are bounded by IndexTimeout
	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.IndexTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	logger.Info("server exited")
	return nil
}
