package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lolerskatez/jellysso-sub000/internal/config"
	"github.com/lolerskatez/jellysso-sub000/internal/errorreporting"
	"github.com/lolerskatez/jellysso-sub000/internal/logger"
	"github.com/lolerskatez/jellysso-sub000/internal/server"
	"github.com/lolerskatez/jellysso-sub000/internal/tracing"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the companion HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(envFile); err != nil {
				logger.Debug("No .env file found, using the process environment", "path", envFile)
			}
			return serve(cmd.Context(), config.Load())
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Setup(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: tracing.ServiceName})

	if err := errorreporting.Init(errorreporting.OptionsFromConfig(cfg)); err != nil {
		logger.Warn("Error reporting disabled", "error", err)
	}
	defer errorreporting.Flush(2 * time.Second)

	shutdownTracing, err := tracing.Init(tracing.OptionsFromConfig(cfg, version))
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	srv, err := server.New(ctx, cfg)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(ctx) }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown did not finish cleanly", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Failed to flush traces", "error", err)
	}
	return nil
}
