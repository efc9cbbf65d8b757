package delivery

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// Sentinel errors matched by [errors.Is].
var (
	// ErrAtomicTooLarge marks an atomic payload over the response limit.
	ErrAtomicTooLarge = errors.New("atomic payload too large")

	// ErrStreaming wraps any unexpected failure during streaming.
	ErrStreaming = errors.New("streaming failed")
)

// AtomicTooLargeError reports a structured payload that exceeds the response
// limit and must not be split, because partial structured data is worse than
// an error.
type AtomicTooLargeError struct {
	// SizeBytes is the payload size.
	SizeBytes int64

	// LimitBytes is the configured response limit.
	LimitBytes int64
}

func (e *AtomicTooLargeError) Error() string {
	return fmt.Sprintf(
		"structured payload (%s) exceeds the %s response limit and cannot be chunked - "+
			"use a summary mode or raise the response size limit",
		humanize.IBytes(uint64(e.SizeBytes)),
		humanize.IBytes(uint64(e.LimitBytes)))
}

// Unwrap makes errors.Is(err, ErrAtomicTooLarge) match.
func (e *AtomicTooLargeError) Unwrap() error { return ErrAtomicTooLarge }

// StreamError wraps a mid-stream failure with the resource context a caller
// needs to act on it.
type StreamError struct {
	// Err is the underlying failure.
	Err error

	// SizeBytes is the size of the payload being streamed.
	SizeBytes int64

	// MemoryBytes is the sampled process memory usage at failure time.
	MemoryBytes int64
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("streaming failed (payload %s, process memory %s): %v",
		humanize.IBytes(uint64(e.SizeBytes)),
		humanize.IBytes(uint64(e.MemoryBytes)),
		e.Err)
}

// Unwrap exposes the underlying error and matches ErrStreaming.
func (e *StreamError) Unwrap() error { return e.Err }

// Is matches both the sentinel and the wrapped chain.
func (e *StreamError) Is(target error) bool { return target == ErrStreaming }
