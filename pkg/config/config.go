// Package config provides configuration loading and validation for the ballast core.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidConcurrent     = errors.New("max concurrent operations must be positive")
	ErrInvalidTimeout        = errors.New("operation timeout must be positive")
	ErrInvalidSize           = errors.New("invalid size value")
	ErrInvalidThreshold      = errors.New("breaker failure threshold must be positive")
	ErrInvalidBreakerTimeout = errors.New("breaker timeout must be positive")
	ErrInvalidYield          = errors.New("yield frequency must be positive")
	ErrInvalidChunkLines     = errors.New("log chunk lines must be positive")
	ErrInvalidOverlap        = errors.New("log overlap must be non-negative and below chunk lines")
)

// Default configuration values.
const (
	defaultMaxConcurrent    = 4
	defaultOperationTimeout = 180 * time.Second
	defaultMaxChunks        = 5

	defaultServiceThreshold  = 5
	defaultServiceTimeout    = 300 * time.Second
	defaultDeliveryThreshold = 3
	defaultDeliveryTimeout   = 60 * time.Second

	defaultYieldInterval = 100 * time.Millisecond
	defaultScanYieldFreq = 50
	defaultMaxCPUPercent = 80

	defaultMaxFiles      = 50
	defaultQualityFiles  = 20
	defaultLogChunkLines = 10000
	defaultLogOverlap    = 100
)

// Config holds all configuration for the ballast core.
type Config struct {
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Throttle  ThrottleConfig  `mapstructure:"throttle"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ExecutorConfig bounds the execution pipeline.
type ExecutorConfig struct {
	OperationTimeout        time.Duration `mapstructure:"operation_timeout"`
	MaxConcurrentOperations int           `mapstructure:"max_concurrent_operations"`
	MaxChunks               int           `mapstructure:"max_chunks"`
}

// MemoryConfig holds the process memory budget. "0" means unbounded.
type MemoryConfig struct {
	Limit string `mapstructure:"limit"`
}

// LimitBytes returns the parsed budget in bytes (0 = unbounded).
func (m MemoryConfig) LimitBytes() int64 { return parseSize(m.Limit) }

// DeliveryConfig holds streaming delivery limits and modes.
type DeliveryConfig struct {
	MaxResponseSize     string `mapstructure:"max_response_size"`
	MaxChunkSize        string `mapstructure:"max_chunk_size"`
	EnableStreaming     bool   `mapstructure:"enable_streaming"`
	EnableLargeResponse bool   `mapstructure:"enable_large_response"`
}

// MaxResponseBytes returns the parsed response limit in bytes.
func (d DeliveryConfig) MaxResponseBytes() int64 { return parseSize(d.MaxResponseSize) }

// MaxChunkBytes returns the parsed streaming window in bytes.
func (d DeliveryConfig) MaxChunkBytes() int64 { return parseSize(d.MaxChunkSize) }

// BreakerScopeConfig configures one circuit breaker scope.
type BreakerScopeConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
}

// BreakerConfig holds per-scope circuit breaker settings.
type BreakerConfig struct {
	Service  BreakerScopeConfig `mapstructure:"service"`
	Delivery BreakerScopeConfig `mapstructure:"delivery"`
}

// ThrottleConfig tunes the cooperative CPU throttle.
type ThrottleConfig struct {
	YieldInterval          time.Duration `mapstructure:"yield_interval"`
	FileScanYieldFrequency int           `mapstructure:"file_scan_yield_frequency"`
	MaxCPUPercent          int           `mapstructure:"max_cpu_percent"`
}

// ChunkerConfig tunes the chunk planner.
type ChunkerConfig struct {
	MaxChunkSize     string `mapstructure:"max_chunk_size"`
	LogSizeThreshold string `mapstructure:"log_size_threshold"`
	MaxFilesPerChunk int    `mapstructure:"max_files_per_chunk"`
	QualityMaxFiles  int    `mapstructure:"quality_max_files"`
	LogChunkLines    int    `mapstructure:"log_chunk_lines"`
	LogOverlapLines  int    `mapstructure:"log_overlap_lines"`
}

// MaxChunkBytes returns the parsed per-chunk byte cap.
func (c ChunkerConfig) MaxChunkBytes() int64 { return parseSize(c.MaxChunkSize) }

// LogSizeThresholdBytes returns the parsed log chunking threshold.
func (c ChunkerConfig) LogSizeThresholdBytes() int64 { return parseSize(c.LogSizeThreshold) }

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds OTel export settings. An empty endpoint disables
// trace and metric export.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
	Environment  string `mapstructure:"environment"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// LoadConfig loads configuration from file and BALLAST_* environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	// Set defaults.
	setDefaults(viperCfg)

	// Read config file.
	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("ballast")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/ballast")
	}

	// Read environment variables.
	viperCfg.SetEnvPrefix("BALLAST")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Executor defaults.
	viperCfg.SetDefault("executor.max_concurrent_operations", defaultMaxConcurrent)
	viperCfg.SetDefault("executor.operation_timeout", defaultOperationTimeout)
	viperCfg.SetDefault("executor.max_chunks", defaultMaxChunks)

	// Memory defaults. Unbounded unless the operator opts in to a budget.
	viperCfg.SetDefault("memory.limit", "0")

	// Delivery defaults.
	viperCfg.SetDefault("delivery.max_response_size", "1500KiB")
	viperCfg.SetDefault("delivery.max_chunk_size", "200KiB")
	viperCfg.SetDefault("delivery.enable_streaming", true)
	viperCfg.SetDefault("delivery.enable_large_response", true)

	// Breaker defaults.
	viperCfg.SetDefault("breaker.service.failure_threshold", defaultServiceThreshold)
	viperCfg.SetDefault("breaker.service.timeout", defaultServiceTimeout)
	viperCfg.SetDefault("breaker.delivery.failure_threshold", defaultDeliveryThreshold)
	viperCfg.SetDefault("breaker.delivery.timeout", defaultDeliveryTimeout)

	// Throttle defaults.
	viperCfg.SetDefault("throttle.yield_interval", defaultYieldInterval)
	viperCfg.SetDefault("throttle.file_scan_yield_frequency", defaultScanYieldFreq)
	viperCfg.SetDefault("throttle.max_cpu_percent", defaultMaxCPUPercent)

	// Chunker defaults.
	viperCfg.SetDefault("chunker.max_files_per_chunk", defaultMaxFiles)
	viperCfg.SetDefault("chunker.quality_max_files", defaultQualityFiles)
	viperCfg.SetDefault("chunker.max_chunk_size", "5MiB")
	viperCfg.SetDefault("chunker.log_chunk_lines", defaultLogChunkLines)
	viperCfg.SetDefault("chunker.log_overlap_lines", defaultLogOverlap)
	viperCfg.SetDefault("chunker.log_size_threshold", "2MiB")

	// Logging defaults.
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "json")
	viperCfg.SetDefault("logging.output", "stdout")

	// Telemetry defaults.
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.metrics_addr", "")
	viperCfg.SetDefault("telemetry.environment", "")
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Executor.MaxConcurrentOperations <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrent, config.Executor.MaxConcurrentOperations)
	}

	if config.Executor.OperationTimeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, config.Executor.OperationTimeout)
	}

	for _, scope := range []BreakerScopeConfig{config.Breaker.Service, config.Breaker.Delivery} {
		if scope.FailureThreshold <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidThreshold, scope.FailureThreshold)
		}

		if scope.Timeout <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidBreakerTimeout, scope.Timeout)
		}
	}

	if config.Throttle.FileScanYieldFrequency <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidYield, config.Throttle.FileScanYieldFrequency)
	}

	if config.Chunker.LogChunkLines <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkLines, config.Chunker.LogChunkLines)
	}

	if config.Chunker.LogOverlapLines < 0 || config.Chunker.LogOverlapLines >= config.Chunker.LogChunkLines {
		return fmt.Errorf("%w: %d", ErrInvalidOverlap, config.Chunker.LogOverlapLines)
	}

	for _, size := range []string{
		config.Memory.Limit,
		config.Delivery.MaxResponseSize,
		config.Delivery.MaxChunkSize,
		config.Chunker.MaxChunkSize,
		config.Chunker.LogSizeThreshold,
	} {
		_, err := humanize.ParseBytes(size)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidSize, size)
		}
	}

	return nil
}

// parseSize converts a validated human-readable size to bytes.
func parseSize(size string) int64 {
	parsed, err := humanize.ParseBytes(size)
	if err != nil {
		return 0
	}

	return int64(parsed)
}
