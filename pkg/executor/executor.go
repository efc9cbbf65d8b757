// Package executor composes the resource-bounding layers into one execution
// path: circuit breaking, concurrency admission, timeouts, chunked operation
// runs with per-chunk failure isolation, and bounded delivery of the result.
package executor

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ballast-dev/ballast/pkg/admission"
	"github.com/ballast-dev/ballast/pkg/breaker"
	"github.com/ballast-dev/ballast/pkg/chunker"
	"github.com/ballast-dev/ballast/pkg/delivery"
	"github.com/ballast-dev/ballast/pkg/memguard"
	"github.com/ballast-dev/ballast/pkg/observability"
	"github.com/ballast-dev/ballast/pkg/throttle"
)

// DefaultOperationTimeout bounds one operation when the request names none.
const DefaultOperationTimeout = 180 * time.Second

// Metric status labels.
const (
	statusOK    = "ok"
	statusError = "error"
)

// Operation produces content for one chunk of a file set.
type Operation func(ctx context.Context, members []string) (string, error)

// LogOperation produces content for one window of a log file.
type LogOperation func(ctx context.Context, chunk chunker.LogChunk) (string, error)

// Request describes one execution.
type Request struct {
	// Kind selects the chunking threshold profile.
	Kind chunker.OpKind

	// Paths is the file set to process. Ignored when LogPath is set.
	Paths []string

	// Op runs once per file chunk.
	Op Operation

	// LogPath switches the request to log-window chunking.
	LogPath string

	// LogOp runs once per log window.
	LogOp LogOperation

	// MaxChunks caps the plan size. Zero uses the executor default.
	MaxChunks int

	// Timeout bounds the whole operation. Zero uses the executor default.
	Timeout time.Duration
}

func (r Request) validate() error {
	if r.LogPath != "" {
		if r.LogOp == nil {
			return ErrNoOperation
		}

		return nil
	}

	if r.Op == nil {
		return ErrNoOperation
	}

	if len(r.Paths) == 0 {
		return ErrNoInput
	}

	return nil
}

// Result is the outcome of one execution.
type Result struct {
	// Content is the combined, delivered output.
	Content string

	// Chunks is how many chunks the plan held.
	Chunks int

	// Failed is how many chunks were replaced by inline failure notices.
	Failed int

	// Truncated reports that lower-priority chunks were dropped at the cap.
	Truncated bool
}

// Config holds executor defaults.
type Config struct {
	// OperationTimeout bounds one operation when the request names none.
	OperationTimeout time.Duration

	// MaxChunks caps the plan size when the request names none.
	MaxChunks int
}

// Deps holds the executor's collaborators. Breakers, Guard, Throttle,
// Metrics, ExecMetrics, and Tracer may be nil, disabling the respective
// concern; Pool, Planner, and Streamer are required.
type Deps struct {
	Breakers    *breaker.Registry
	Pool        *admission.Pool
	Guard       *memguard.Guard
	Throttle    *throttle.Throttler
	Planner     *chunker.Planner
	Streamer    *delivery.Streamer
	Metrics     *observability.REDMetrics
	ExecMetrics *observability.ExecutionMetrics
	Tracer      trace.Tracer
	Logger      *slog.Logger
}

// Executor runs operations inside the configured resource bounds.
type Executor struct {
	cfg         Config
	breakers    *breaker.Registry
	pool        *admission.Pool
	guard       *memguard.Guard
	throttle    *throttle.Throttler
	planner     *chunker.Planner
	streamer    *delivery.Streamer
	metrics     *observability.REDMetrics
	execMetrics *observability.ExecutionMetrics
	tracer      trace.Tracer
	logger      *slog.Logger
}

// New creates an executor.
func New(cfg Config, deps Deps) *Executor {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultOperationTimeout
	}

	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = chunker.DefaultMaxChunks
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Executor{
		cfg:         cfg,
		breakers:    deps.Breakers,
		pool:        deps.Pool,
		guard:       deps.Guard,
		throttle:    deps.Throttle,
		planner:     deps.Planner,
		streamer:    deps.Streamer,
		metrics:     deps.Metrics,
		execMetrics: deps.ExecMetrics,
		tracer:      deps.Tracer,
		logger:      deps.Logger,
	}
}

// Execute runs the request and materializes the full response. The service
// breaker records the outcome exactly once per attempt; chunk failures are
// isolated and do not count as operation failures unless every chunk fails.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	result, err := e.execute(ctx, req, func(deliverCtx context.Context, combined string) (string, error) {
		return e.streamer.Process(deliverCtx, combined)
	})

	e.record(ctx, opLabel(req), start, err)

	return result, err
}

// ExecuteStream runs the request and lazily streams the response. The
// admission slot is held until the sequence finishes, so callers must drain
// or abandon it promptly.
func (e *Executor) ExecuteStream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := time.Now()

		var streamErr error

		_, err := e.execute(ctx, req, func(deliverCtx context.Context, combined string) (string, error) {
			for chunk, chunkErr := range e.streamer.Stream(deliverCtx, combined) {
				if chunkErr != nil {
					streamErr = chunkErr

					return "", chunkErr
				}

				if !yield(chunk, nil) {
					return "", nil
				}
			}

			return "", nil
		})

		if err == nil {
			err = streamErr
		}

		e.record(ctx, opLabel(req), start, err)

		if err != nil {
			yield("", err)
		}
	}
}

// deliverFunc sends the combined chunk output onward and returns what the
// caller should see as Result.Content.
type deliverFunc func(ctx context.Context, combined string) (string, error)

// execute is the shared gate-admit-chunk-deliver pipeline.
func (e *Executor) execute(ctx context.Context, req Request, deliver deliverFunc) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}

	svc := e.serviceBreaker()

	if svc != nil {
		if err := svc.Allow(); err != nil {
			return Result{}, err
		}
	}

	lease, err := e.pool.TryAcquire()
	if err != nil {
		// Backpressure, not a service fault: the breaker stays untouched.
		e.logger.Warn("operation rejected by admission pool", "error", err)

		return Result{}, err
	}

	defer lease.Release()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.OperationTimeout
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if e.metrics != nil {
		done := e.metrics.TrackInflight(opCtx, opLabel(req))
		defer done()
	}

	combined, result, err := e.runChunks(opCtx, req)
	if err != nil {
		e.fail(svc, err)

		return Result{}, err
	}

	content, err := deliver(opCtx, combined)
	if err != nil {
		e.fail(svc, err)

		return Result{}, err
	}

	if svc != nil {
		svc.RecordSuccess()
	}

	if e.guard != nil {
		e.execMetrics.RecordMemoryUsage(opCtx, e.guard.Usage().Effective())
	}

	result.Content = content

	return result, nil
}

// runChunks plans the input and runs the operation once per chunk, isolating
// per-chunk failures behind inline notices.
func (e *Executor) runChunks(ctx context.Context, req Request) (string, Result, error) {
	if req.LogPath != "" {
		return e.runLogChunks(ctx, req)
	}

	maxChunks := req.MaxChunks
	if maxChunks <= 0 {
		maxChunks = e.cfg.MaxChunks
	}

	plan, truncated := e.planner.PlanBatch(req.Paths, req.Kind, maxChunks)
	result := Result{Chunks: len(plan), Truncated: truncated}

	var (
		sb        strings.Builder
		durations []time.Duration
	)

	for _, chunk := range plan {
		if err := ctx.Err(); err != nil {
			return "", Result{}, fmt.Errorf("operation aborted at chunk %d/%d: %w", chunk.ID, chunk.TotalChunks, err)
		}

		chunkCtx, endSpan := e.startChunkSpan(ctx, chunk.ID, chunk.TotalChunks)
		chunkStart := time.Now()

		out, err := req.Op(chunkCtx, chunk.Members)

		durations = append(durations, time.Since(chunkStart))

		endSpan()

		if err != nil {
			chunkErr := &ChunkError{
				Err:   err,
				Label: chunk.Description,
				ID:    chunk.ID,
				Total: chunk.TotalChunks,
			}
			e.logger.Warn("chunk failed, continuing batch", "error", chunkErr)

			result.Failed++
			out = chunkErr.Notice()
		}

		writeChunkOutput(&sb, chunkHeader(chunk), out)
		e.yieldBetweenChunks()
	}

	if result.Chunks > 0 && result.Failed == result.Chunks {
		return "", Result{}, fmt.Errorf("%w: %d of %d", ErrAllChunksFailed, result.Failed, result.Chunks)
	}

	e.execMetrics.RecordBatch(ctx, observability.ExecutionStats{
		Chunks:         result.Chunks,
		Failed:         result.Failed,
		Truncated:      result.Truncated,
		ChunkDurations: durations,
	})

	return sb.String(), result, nil
}

// runLogChunks is runChunks for log-window plans.
func (e *Executor) runLogChunks(ctx context.Context, req Request) (string, Result, error) {
	plan, err := e.planner.PlanLogChunks(req.LogPath)
	if err != nil {
		return "", Result{}, err
	}

	result := Result{Chunks: len(plan)}

	var (
		sb        strings.Builder
		durations []time.Duration
	)

	for _, chunk := range plan {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", Result{}, fmt.Errorf("operation aborted at chunk %d/%d: %w", chunk.ID, chunk.TotalChunks, ctxErr)
		}

		chunkCtx, endSpan := e.startChunkSpan(ctx, chunk.ID, chunk.TotalChunks)
		chunkStart := time.Now()

		out, opErr := req.LogOp(chunkCtx, chunk)

		durations = append(durations, time.Since(chunkStart))

		endSpan()

		if opErr != nil {
			chunkErr := &ChunkError{
				Err:   opErr,
				Label: fmt.Sprintf("lines %d-%d", chunk.StartLine, chunk.EndLine),
				ID:    chunk.ID,
				Total: chunk.TotalChunks,
			}
			e.logger.Warn("log chunk failed, continuing batch", "error", chunkErr)

			result.Failed++
			out = chunkErr.Notice()
		}

		writeChunkOutput(&sb, logChunkHeader(chunk), out)
		e.yieldBetweenChunks()
	}

	if result.Chunks > 0 && result.Failed == result.Chunks {
		return "", Result{}, fmt.Errorf("%w: %d of %d", ErrAllChunksFailed, result.Failed, result.Chunks)
	}

	e.execMetrics.RecordBatch(ctx, observability.ExecutionStats{
		Chunks:         result.Chunks,
		Failed:         result.Failed,
		ChunkDurations: durations,
	})

	return sb.String(), result, nil
}

// Status is a point-in-time view of the executor's resource state.
type Status struct {
	Breakers         []breaker.Snapshot `json:"breakers"`
	ActiveOperations int                `json:"active_operations"`
	MaxConcurrent    int                `json:"max_concurrent"`
	MemoryUsageBytes int64              `json:"memory_usage_bytes"`
	MemoryLimitBytes int64              `json:"memory_limit_bytes"`
}

// Status reports active leases, breaker states, and memory usage.
func (e *Executor) Status() Status {
	status := Status{
		ActiveOperations: e.pool.Active(),
		MaxConcurrent:    e.pool.Max(),
	}

	if e.breakers != nil {
		status.Breakers = e.breakers.Snapshots()
	}

	if e.guard != nil {
		status.MemoryUsageBytes = e.guard.Usage().Effective()
		status.MemoryLimitBytes = e.guard.Limit()
	}

	return status
}

func (e *Executor) serviceBreaker() *breaker.Breaker {
	if e.breakers == nil {
		return nil
	}

	return e.breakers.Get(breaker.ScopeService)
}

func (e *Executor) fail(svc *breaker.Breaker, err error) {
	e.logger.Error("operation failed", "error", err)

	if svc != nil {
		svc.RecordFailure()
	}
}

// startChunkSpan opens a per-chunk span when tracing is wired. The span is
// suppressed by the filtering provider unless verbose tracing is on.
func (e *Executor) startChunkSpan(ctx context.Context, id, total int) (context.Context, func()) {
	if e.tracer == nil {
		return ctx, func() {}
	}

	spanCtx, span := e.tracer.Start(ctx, "ballast.executor.chunk",
		trace.WithAttributes(
			attribute.Int("chunk.id", id),
			attribute.Int("chunk.total", total),
		))

	return spanCtx, func() { span.End() }
}

func (e *Executor) yieldBetweenChunks() {
	if e.throttle != nil {
		e.throttle.Yield()
	}
}

func (e *Executor) record(ctx context.Context, op string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}

	status := statusOK
	if err != nil {
		status = statusError
	}

	e.metrics.RecordRequest(ctx, op, status, time.Since(start))
}

func opLabel(req Request) string {
	if req.LogPath != "" {
		return "execute_log"
	}

	return "execute_files"
}

// chunkHeader labels one file chunk's output within the combined response.
// Single-chunk batches stay unlabeled.
func chunkHeader(chunk chunker.Chunk) string {
	if chunk.TotalChunks <= 1 {
		return ""
	}

	return fmt.Sprintf("=== chunk %d/%d: %s (%d files) ===",
		chunk.ID, chunk.TotalChunks, chunk.Description, len(chunk.Members))
}

// logChunkHeader labels one log window's output, including the time range
// when timestamps were found.
func logChunkHeader(chunk chunker.LogChunk) string {
	if chunk.TotalChunks <= 1 {
		return ""
	}

	header := fmt.Sprintf("=== chunk %d/%d: lines %d-%d",
		chunk.ID, chunk.TotalChunks, chunk.StartLine, chunk.EndLine)

	if chunk.StartStamp != "" && chunk.EndStamp != "" {
		header += fmt.Sprintf(" (%s .. %s)", chunk.StartStamp, chunk.EndStamp)
	}

	return header + " ==="
}

func writeChunkOutput(sb *strings.Builder, header, out string) {
	if header != "" {
		sb.WriteString(header)
		sb.WriteString("\n")
	}

	sb.WriteString(out)

	if !strings.HasSuffix(out, "\n") {
		sb.WriteString("\n")
	}
}
