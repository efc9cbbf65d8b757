// Package delivery emits operation results either whole or as a bounded
// sequence of byte-window chunks, guarding memory along the way and refusing
// to split payloads that only make sense intact.
package delivery

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ballast-dev/ballast/pkg/breaker"
	"github.com/ballast-dev/ballast/pkg/memguard"
	"github.com/ballast-dev/ballast/pkg/throttle"
	"github.com/ballast-dev/ballast/pkg/units"
)

// Delivery defaults.
const (
	// DefaultMaxResponseBytes is the single-response size limit.
	DefaultMaxResponseBytes = 1500 * units.KiB

	// DefaultMaxChunkBytes is the byte window size for large-response
	// streaming.
	DefaultMaxChunkBytes = 200 * units.KiB
)

// Config holds delivery limits and modes.
type Config struct {
	// MaxResponseBytes is the limit above which content is streamed,
	// truncated, or rejected. Zero uses the default.
	MaxResponseBytes int64

	// MaxChunkBytes is the byte window for large-response streaming.
	// Zero uses the default.
	MaxChunkBytes int64

	// EnableStreaming allows multi-chunk emission at all. When false,
	// oversized streamable content is delivered as a single chunk.
	EnableStreaming bool

	// EnableLargeResponse selects between chunked streaming (true) and
	// truncation with a notice (false) for oversized streamable content.
	EnableLargeResponse bool
}

// DefaultConfig returns the delivery defaults: streaming and large-response
// mode enabled.
func DefaultConfig() Config {
	return Config{
		MaxResponseBytes:    DefaultMaxResponseBytes,
		MaxChunkBytes:       DefaultMaxChunkBytes,
		EnableStreaming:     true,
		EnableLargeResponse: true,
	}
}

// Deps holds the streamer's collaborators. Guard, Throttle, and Breaker may
// be nil, disabling the respective concern; a nil Classify uses SniffPayload.
type Deps struct {
	Guard    *memguard.Guard
	Throttle *throttle.Throttler
	Breaker  *breaker.Breaker
	Classify Classifier
	Logger   *slog.Logger
}

// Streamer delivers results within the configured resource bounds.
type Streamer struct {
	cfg      Config
	guard    *memguard.Guard
	throttle *throttle.Throttler
	breaker  *breaker.Breaker
	classify Classifier
	logger   *slog.Logger
}

// New creates a streamer.
func New(cfg Config, deps Deps) *Streamer {
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}

	if cfg.MaxChunkBytes <= 0 {
		cfg.MaxChunkBytes = DefaultMaxChunkBytes
	}

	if deps.Classify == nil {
		deps.Classify = SniffPayload
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Streamer{
		cfg:      cfg,
		guard:    deps.Guard,
		throttle: deps.Throttle,
		breaker:  deps.Breaker,
		classify: deps.Classify,
		logger:   deps.Logger,
	}
}

// Stream lazily emits the content as one or more chunks. The sequence is
// finite and non-restartable. On failure the final element carries a nil
// chunk with the structured error; successes end with a nil error and no
// terminator. Every failure after admission is recorded against the delivery
// breaker exactly once.
func (s *Streamer) Stream(ctx context.Context, content string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s.breaker != nil {
			if err := s.breaker.Allow(); err != nil {
				yield("", err)

				return
			}
		}

		err := s.deliver(ctx, content, yield)
		if err != nil {
			s.recordFailure(err)
			yield("", err)

			return
		}

		s.recordSuccess()
	}
}

// Process buffers the full stream into one materialized string.
func (s *Streamer) Process(ctx context.Context, content string) (string, error) {
	var sb strings.Builder

	for chunk, err := range s.Stream(ctx, content) {
		if err != nil {
			return "", err
		}

		sb.WriteString(chunk)
	}

	return sb.String(), nil
}

// deliver runs the classification and emission logic. It returns an error
// instead of yielding it; Stream owns failure accounting.
func (s *Streamer) deliver(ctx context.Context, content string, yield func(string, error) bool) error {
	size := int64(len(content))

	if s.guard != nil {
		if err := s.guard.Check(size); err != nil {
			return s.wrapStreamErr(err, size)
		}
	}

	if s.classify(content) == PayloadAtomic {
		if size > s.cfg.MaxResponseBytes {
			return &AtomicTooLargeError{SizeBytes: size, LimitBytes: s.cfg.MaxResponseBytes}
		}

		s.logger.Debug("delivering atomic payload", "size", humanize.IBytes(uint64(size)))
		yield(content, nil)

		return nil
	}

	if !s.cfg.EnableStreaming || size <= s.cfg.MaxResponseBytes {
		yield(content, nil)

		return nil
	}

	if !s.cfg.EnableLargeResponse {
		s.truncate(content, yield)

		return nil
	}

	return s.streamWindows(ctx, content, yield)
}

// truncate emits the head of the content plus a notice naming the cut.
func (s *Streamer) truncate(content string, yield func(string, error) bool) {
	cut := s.cfg.MaxResponseBytes

	if !yield(content[:cut], nil) {
		return
	}

	notice := fmt.Sprintf(
		"\n\n--- content truncated ---\nresponse was %s, truncated to %s; enable large-response mode for the full content",
		humanize.IBytes(uint64(len(content))),
		humanize.IBytes(uint64(cut)))
	yield(notice, nil)
}

// streamWindows slices the content into fixed byte windows, marking the
// stream boundaries and yielding the CPU between windows. Memory is
// re-checked after every window; a near-limit reading forces a collection
// before the next window.
func (s *Streamer) streamWindows(ctx context.Context, content string, yield func(string, error) bool) error {
	window := s.cfg.MaxChunkBytes
	size := int64(len(content))
	total := int((size + window - 1) / window)

	s.logger.Info("streaming large response",
		"size", humanize.IBytes(uint64(size)),
		"chunks", total,
		"window", humanize.IBytes(uint64(window)))

	for i := range total {
		if err := ctx.Err(); err != nil {
			return s.wrapStreamErr(err, size)
		}

		start := int64(i) * window
		end := min(start+window, size)
		chunk := content[start:end]

		if i == 0 {
			chunk = fmt.Sprintf("--- streaming response: %d chunks, %s total ---\n\n",
				total, humanize.IBytes(uint64(size))) + chunk
		}

		if i == total-1 {
			chunk += fmt.Sprintf("\n\n--- end of stream (chunk %d/%d) ---", total, total)
		}

		if !yield(chunk, nil) {
			return nil
		}

		if s.throttle != nil {
			s.throttle.YieldIfNeeded()
		}

		if s.guard != nil && s.guard.NearLimit(memguard.DefaultNearLimitRatio) {
			s.logger.Warn("memory near limit mid-stream, forcing collection",
				"usage", humanize.IBytes(uint64(s.guard.Usage().Effective())))
			s.guard.Collect()

			if s.throttle != nil {
				s.throttle.Yield()
			}
		}
	}

	return nil
}

// wrapStreamErr attaches resource context to a mid-stream failure.
func (s *Streamer) wrapStreamErr(err error, size int64) error {
	var memoryBytes int64
	if s.guard != nil {
		memoryBytes = s.guard.Usage().Effective()
	}

	return &StreamError{Err: err, SizeBytes: size, MemoryBytes: memoryBytes}
}

func (s *Streamer) recordFailure(err error) {
	s.logger.Error("delivery failed", "error", err)

	if s.breaker != nil {
		s.breaker.RecordFailure()
	}
}

func (s *Streamer) recordSuccess() {
	if s.breaker != nil {
		s.breaker.RecordSuccess()
	}
}
