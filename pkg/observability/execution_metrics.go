package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricChunksTotal      = "ballast.execution.chunks.total"
	metricChunkFailures    = "ballast.execution.chunk.failures.total"
	metricChunkDuration    = "ballast.execution.chunk.duration.seconds"
	metricTruncationsTotal = "ballast.execution.truncations.total"
	metricMemoryUsage      = "ballast.memory.usage.bytes"
	metricBreakerOpens     = "ballast.breaker.opens.total"

	attrBreaker = "breaker"
)

// ExecutionMetrics holds OTel instruments for execution-specific metrics.
type ExecutionMetrics struct {
	chunksTotal   metric.Int64Counter
	chunkFailures metric.Int64Counter
	chunkDuration metric.Float64Histogram
	truncations   metric.Int64Counter
	memoryUsage   metric.Int64Gauge
	breakerOpens  metric.Int64Counter
}

// ExecutionStats holds the statistics for a single executed batch, decoupled
// from executor types.
type ExecutionStats struct {
	Chunks         int
	Failed         int
	Truncated      bool
	ChunkDurations []time.Duration
}

// NewExecutionMetrics creates execution metric instruments from the given meter.
func NewExecutionMetrics(mt metric.Meter) (*ExecutionMetrics, error) {
	chunks, err := mt.Int64Counter(metricChunksTotal,
		metric.WithDescription("Total chunks processed"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChunksTotal, err)
	}

	failures, err := mt.Int64Counter(metricChunkFailures,
		metric.WithDescription("Total chunks replaced by failure notices"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChunkFailures, err)
	}

	chunkDur, err := mt.Float64Histogram(metricChunkDuration,
		metric.WithDescription("Per-chunk processing duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChunkDuration, err)
	}

	truncations, err := mt.Int64Counter(metricTruncationsTotal,
		metric.WithDescription("Total batches whose plan was truncated at the chunk cap"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTruncationsTotal, err)
	}

	memUsage, err := mt.Int64Gauge(metricMemoryUsage,
		metric.WithDescription("Sampled process memory usage"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricMemoryUsage, err)
	}

	breakerOpens, err := mt.Int64Counter(metricBreakerOpens,
		metric.WithDescription("Circuit breaker open transitions by scope"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricBreakerOpens, err)
	}

	return &ExecutionMetrics{
		chunksTotal:   chunks,
		chunkFailures: failures,
		chunkDuration: chunkDur,
		truncations:   truncations,
		memoryUsage:   memUsage,
		breakerOpens:  breakerOpens,
	}, nil
}

// RecordBatch records statistics for a completed batch.
// Safe to call on a nil receiver (no-op).
func (em *ExecutionMetrics) RecordBatch(ctx context.Context, stats ExecutionStats) {
	if em == nil {
		return
	}

	em.chunksTotal.Add(ctx, int64(stats.Chunks))
	em.chunkFailures.Add(ctx, int64(stats.Failed))

	if stats.Truncated {
		em.truncations.Add(ctx, 1)
	}

	for _, d := range stats.ChunkDurations {
		em.chunkDuration.Record(ctx, d.Seconds())
	}
}

// RecordMemoryUsage records the current sampled memory usage.
// Safe to call on a nil receiver (no-op).
func (em *ExecutionMetrics) RecordMemoryUsage(ctx context.Context, usageBytes int64) {
	if em == nil {
		return
	}

	em.memoryUsage.Record(ctx, usageBytes)
}

// RecordBreakerOpen records one breaker open transition.
// Safe to call on a nil receiver (no-op).
func (em *ExecutionMetrics) RecordBreakerOpen(ctx context.Context, scope string) {
	if em == nil {
		return
	}

	em.breakerOpens.Add(ctx, 1, metric.WithAttributes(attribute.String(attrBreaker, scope)))
}
