package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/boorutools/wsroom/internal/roomserver"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(load func() (*config, error)) *cobra.Command {
	var (
		address   string
		noMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a development room server",
		Long: `Run a room server for local development.

Endpoints:
  GET  /ws                    websocket endpoint
  GET  /rooms                 rooms with member counts
  POST /rooms/{room}/events   broadcast {"type", "payload"} to a room
  GET  /healthz               health check
  GET  /metrics               Prometheus metrics

Examples:
  wsroom serve
  wsroom serve --addr :9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Serve.Address = address
			}
			if noMetrics {
				cfg.Serve.Metrics = false
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&address, "addr", "a", "", "Address to listen on (default localhost:8080)")
	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "Disable the /metrics endpoint")
	return cmd
}

func runServe(ctx context.Context, cfg *config) error {
	logger := cfg.logger()
	shutdownTracing, err := initTracing(ctx, cfg.Trace, logger)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	server := roomserver.New(logger)
	if cfg.Serve.Metrics {
		server.Mount("/metrics", promhttp.Handler())
	}

	httpServer := &http.Server{
		Addr:              cfg.Serve.Address,
		Handler:           otelhttp.NewHandler(server.Handler(), "wsroom.serve"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("room server listening", slog.String("addr", cfg.Serve.Address))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown
	server.DropAll()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("room server graceful shutdown failed", slog.Any("error", err))
		return err
	}
	logger.Debug("room server graceful shutdown")
	return nil
}
