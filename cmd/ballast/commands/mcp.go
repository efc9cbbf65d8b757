package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ballast-dev/ballast/pkg/config"
	"github.com/ballast-dev/ballast/pkg/mcpserver"
	"github.com/ballast-dev/ballast/pkg/observability"
)

// metricsReadTimeout bounds header reads on the metrics listener.
const metricsReadTimeout = 10 * time.Second

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes the execution core as tools that AI agents can
discover and invoke:
  - ballast_execute_files: Run an operation over a file set, chunked by priority
  - ballast_execute_log: Run an operation over a log file, windowed by lines
  - ballast_status: Report breaker, admission, and memory state`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			providers, err := initObservability(cfg, observability.ModeMCP, debug)
			if err != nil {
				return err
			}

			defer func() {
				shutdownErr := providers.Shutdown(context.Background())
				if shutdownErr != nil {
					providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
				}
			}()

			core, err := buildStack(cfg, providers)
			if err != nil {
				return err
			}

			if cfg.Telemetry.MetricsAddr != "" {
				stopMetrics, metricsErr := startMetricsListener(cfg.Telemetry.MetricsAddr, providers)
				if metricsErr != nil {
					return metricsErr
				}

				defer stopMetrics()
			}

			srv := mcpserver.NewServer(mcpserver.ServerDeps{
				Executor: core.exec,
				Logger:   providers.Logger,
				Metrics:  core.red,
				Tracer:   providers.Tracer,
			})

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}

// startMetricsListener serves Prometheus scrape and health endpoints on addr.
// The returned stop function shuts the listener down.
func startMetricsListener(addr string, providers observability.Providers) (func(), error) {
	promHandler, err := observability.PrometheusHandler()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promHandler)
	mux.Handle("/healthz", observability.HealthHandler())
	mux.Handle("/readyz", observability.ReadyHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           observability.HTTPMiddleware(providers.Tracer, mux),
		ReadHeaderTimeout: metricsReadTimeout,
	}

	go func() {
		serveErr := srv.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			providers.Logger.Error("metrics listener failed", "error", serveErr)
		}
	}()

	return func() {
		shutdownErr := srv.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("metrics listener shutdown failed", "error", shutdownErr)
		}
	}, nil
}
