// Package commands implements CLI command handlers for ballast.
package commands

import (
	"log/slog"
	"os"

	"github.com/ballast-dev/ballast/pkg/admission"
	"github.com/ballast-dev/ballast/pkg/breaker"
	"github.com/ballast-dev/ballast/pkg/chunker"
	"github.com/ballast-dev/ballast/pkg/config"
	"github.com/ballast-dev/ballast/pkg/delivery"
	"github.com/ballast-dev/ballast/pkg/executor"
	"github.com/ballast-dev/ballast/pkg/memguard"
	"github.com/ballast-dev/ballast/pkg/observability"
	"github.com/ballast-dev/ballast/pkg/throttle"
	"github.com/ballast-dev/ballast/pkg/version"
)

// stack holds the assembled execution core and its observability recorders.
type stack struct {
	exec        *executor.Executor
	red         *observability.REDMetrics
	execMetrics *observability.ExecutionMetrics
}

// buildStack wires the resource-bounding components from configuration.
func buildStack(cfg *config.Config, providers observability.Providers) (*stack, error) {
	logger := providers.Logger

	red, err := observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}

	execMetrics, err := observability.NewExecutionMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}

	serviceBreaker := breaker.New(
		breaker.ScopeService,
		cfg.Breaker.Service.FailureThreshold,
		cfg.Breaker.Service.Timeout,
		logger,
	)
	deliveryBreaker := breaker.New(
		breaker.ScopeDelivery,
		cfg.Breaker.Delivery.FailureThreshold,
		cfg.Breaker.Delivery.Timeout,
		logger,
	)
	registry := breaker.NewRegistry(serviceBreaker, deliveryBreaker)

	guard := memguard.New(cfg.Memory.LimitBytes(), logger)

	throttler := throttle.New(throttle.Config{
		YieldInterval:  cfg.Throttle.YieldInterval,
		ScanYieldEvery: cfg.Throttle.FileScanYieldFrequency,
		MaxCPUPercent:  cfg.Throttle.MaxCPUPercent,
	}, logger)

	planner := chunker.NewPlanner(chunker.Config{
		MaxFilesPerChunk: cfg.Chunker.MaxFilesPerChunk,
		QualityMaxFiles:  cfg.Chunker.QualityMaxFiles,
		MaxChunkBytes:    cfg.Chunker.MaxChunkBytes(),
		LogChunkLines:    cfg.Chunker.LogChunkLines,
		LogOverlapLines:  cfg.Chunker.LogOverlapLines,
		LogSizeThreshold: cfg.Chunker.LogSizeThresholdBytes(),
	}, throttler, logger)

	streamer := delivery.New(delivery.Config{
		MaxResponseBytes:    cfg.Delivery.MaxResponseBytes(),
		MaxChunkBytes:       cfg.Delivery.MaxChunkBytes(),
		EnableStreaming:     cfg.Delivery.EnableStreaming,
		EnableLargeResponse: cfg.Delivery.EnableLargeResponse,
	}, delivery.Deps{
		Guard:    guard,
		Throttle: throttler,
		Breaker:  deliveryBreaker,
		Logger:   logger,
	})

	exec := executor.New(executor.Config{
		OperationTimeout: cfg.Executor.OperationTimeout,
		MaxChunks:        cfg.Executor.MaxChunks,
	}, executor.Deps{
		Breakers:    registry,
		Pool:        admission.NewPool("operations", cfg.Executor.MaxConcurrentOperations, logger),
		Guard:       guard,
		Throttle:    throttler,
		Planner:     planner,
		Streamer:    streamer,
		Metrics:     red,
		ExecMetrics: execMetrics,
		Tracer:      providers.Tracer,
		Logger:      logger,
	})

	return &stack{exec: exec, red: red, execMetrics: execMetrics}, nil
}

// initObservability configures the telemetry providers for a command mode.
// The OTLP endpoint comes from configuration, with the standard environment
// variable as fallback.
func initObservability(cfg *config.Config, mode observability.AppMode, debug bool) (observability.Providers, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Telemetry.Environment
	obsCfg.Mode = mode
	obsCfg.LogJSON = true

	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	if obsCfg.OTLPEndpoint == "" {
		obsCfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure || os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"

	if debug {
		obsCfg.LogLevel = slog.LevelDebug
		obsCfg.DebugTrace = true
	}

	return observability.Init(obsCfg)
}
