package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ballast-dev/ballast/pkg/config"
)

const kib = 1024

// writeConfig writes content to a temp YAML file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ballast.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_NoFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Executor.MaxConcurrentOperations)
	assert.Equal(t, 180*time.Second, cfg.Executor.OperationTimeout)
	assert.Equal(t, 5, cfg.Executor.MaxChunks)

	assert.Equal(t, int64(0), cfg.Memory.LimitBytes())

	assert.Equal(t, int64(1500*kib), cfg.Delivery.MaxResponseBytes())
	assert.Equal(t, int64(200*kib), cfg.Delivery.MaxChunkBytes())
	assert.True(t, cfg.Delivery.EnableStreaming)
	assert.True(t, cfg.Delivery.EnableLargeResponse)

	assert.Equal(t, 5, cfg.Breaker.Service.FailureThreshold)
	assert.Equal(t, 300*time.Second, cfg.Breaker.Service.Timeout)
	assert.Equal(t, 3, cfg.Breaker.Delivery.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Breaker.Delivery.Timeout)

	assert.Equal(t, 100*time.Millisecond, cfg.Throttle.YieldInterval)
	assert.Equal(t, 50, cfg.Throttle.FileScanYieldFrequency)
	assert.Equal(t, 80, cfg.Throttle.MaxCPUPercent)

	assert.Equal(t, 50, cfg.Chunker.MaxFilesPerChunk)
	assert.Equal(t, 20, cfg.Chunker.QualityMaxFiles)
	assert.Equal(t, int64(5*kib*kib), cfg.Chunker.MaxChunkBytes())
	assert.Equal(t, 10000, cfg.Chunker.LogChunkLines)
	assert.Equal(t, 100, cfg.Chunker.LogOverlapLines)
	assert.Equal(t, int64(2*kib*kib), cfg.Chunker.LogSizeThresholdBytes())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig_FromFile_Overrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
executor:
  max_concurrent_operations: 2
  operation_timeout: "90s"

memory:
  limit: "512MiB"

delivery:
  max_response_size: "1MiB"
  enable_large_response: false

breaker:
  service:
    failure_threshold: 7
    timeout: "120s"

chunker:
  max_files_per_chunk: 25
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Executor.MaxConcurrentOperations)
	assert.Equal(t, 90*time.Second, cfg.Executor.OperationTimeout)
	assert.Equal(t, int64(512*kib*kib), cfg.Memory.LimitBytes())
	assert.Equal(t, int64(kib*kib), cfg.Delivery.MaxResponseBytes())
	assert.False(t, cfg.Delivery.EnableLargeResponse)
	assert.Equal(t, 7, cfg.Breaker.Service.FailureThreshold)
	assert.Equal(t, 120*time.Second, cfg.Breaker.Service.Timeout)
	assert.Equal(t, 25, cfg.Chunker.MaxFilesPerChunk)

	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Breaker.Delivery.FailureThreshold)
	assert.Equal(t, 20, cfg.Chunker.QualityMaxFiles)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "")

	t.Setenv("BALLAST_EXECUTOR_MAX_CONCURRENT_OPERATIONS", "8")
	t.Setenv("BALLAST_MEMORY_LIMIT", "2GiB")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Executor.MaxConcurrentOperations)
	assert.Equal(t, int64(2*kib*kib*kib), cfg.Memory.LimitBytes())
}

func TestLoadConfig_InvalidConcurrency_ReturnsError(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
executor:
  max_concurrent_operations: 0
`)

	cfg, err := config.LoadConfig(path)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConcurrent)
}

func TestLoadConfig_InvalidSize_ReturnsError(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
memory:
  limit: "lots"
`)

	cfg, err := config.LoadConfig(path)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, config.ErrInvalidSize)
}

func TestLoadConfig_OverlapAtOrAboveChunkLines_ReturnsError(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
chunker:
  log_chunk_lines: 100
  log_overlap_lines: 100
`)

	_, err := config.LoadConfig(path)
	require.ErrorIs(t, err, config.ErrInvalidOverlap)
}

func TestLoadConfig_InvalidBreakerTimeout_ReturnsError(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
breaker:
  delivery:
    timeout: "0s"
`)

	_, err := config.LoadConfig(path)
	require.ErrorIs(t, err, config.ErrInvalidBreakerTimeout)
}

func TestLoadConfig_MalformedYAML_ReturnsError(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "executor:\n  max_chunks: [broken\n")

	cfg, err := config.LoadConfig(path)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_ExplicitPath_NotFound_ReturnsError(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("/nonexistent/path/ballast.yaml")
	require.Error(t, err)
	assert.Nil(t, cfg)
}
