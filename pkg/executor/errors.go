package executor

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by [errors.Is].
var (
	// ErrNoOperation marks a request without a content producer.
	ErrNoOperation = errors.New("request has no operation")

	// ErrNoInput marks a request naming neither files nor a log path.
	ErrNoInput = errors.New("request has no input paths")

	// ErrAllChunksFailed marks a batch where not a single chunk produced
	// output.
	ErrAllChunksFailed = errors.New("all chunks failed")
)

// ChunkError reports one failed chunk inside a batch that keeps going.
type ChunkError struct {
	// Err is the operation's failure for this chunk.
	Err error

	// Label describes the chunk (members or line range).
	Label string

	// ID and Total position the chunk within the batch.
	ID    int
	Total int
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d/%d (%s) failed: %v", e.ID, e.Total, e.Label, e.Err)
}

// Unwrap exposes the underlying failure.
func (e *ChunkError) Unwrap() error { return e.Err }

// Notice is the inline text that stands in for the chunk's output so the
// rest of the batch still reads coherently.
func (e *ChunkError) Notice() string {
	return fmt.Sprintf("[chunk %d/%d failed: %v]", e.ID, e.Total, e.Err)
}
