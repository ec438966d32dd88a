package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/izukaai/izuka/config"
	"github.com/izukaai/izuka/pkg/logging"
	"github.com/izukaai/izuka/pkg/telemetry"
	"github.com/izukaai/izuka/server"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the OpenAI-compatible facade server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.Addr = addr
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides IZUKA_ADDR)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Settings) error {
	logger := logging.WithComponent("cli")

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "izuka-facade",
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	srv := server.New(cfg.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("facade server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop server: %w", err))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	return errors.Join(errs...)
}
