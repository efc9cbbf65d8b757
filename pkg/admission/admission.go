// Package admission bounds the number of simultaneous heavy operations.
//
// The pool is a fail-fast gate, not a queue: a caller that cannot acquire a
// slot immediately gets an error so backpressure reaches the caller instead
// of building an invisible wait line.
package admission

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrTooManyConcurrent is the sentinel matched by [errors.Is] when the pool
// is full.
var ErrTooManyConcurrent = errors.New("too many concurrent operations")

// LimitError reports a rejected acquisition.
type LimitError struct {
	// Name identifies the pool.
	Name string

	// Max is the configured concurrency limit.
	Max int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("maximum concurrent operations reached (%d) for %s - wait for running operations to complete", e.Max, e.Name)
}

// Unwrap makes errors.Is(err, ErrTooManyConcurrent) match.
func (e *LimitError) Unwrap() error { return ErrTooManyConcurrent }

// Pool is a mutex-guarded concurrency counter with a fixed limit.
type Pool struct {
	logger *slog.Logger

	mu     sync.Mutex
	name   string
	max    int
	active int
}

// NewPool creates a pool admitting at most maxConcurrent simultaneous
// operations. A nil logger uses slog.Default.
func NewPool(name string, maxConcurrent int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{name: name, max: maxConcurrent, logger: logger}
}

// Lease represents one admitted operation. Release is idempotent so deferred
// release on every exit path (including panic and timeout unwinds) cannot
// decrement twice.
type Lease struct {
	pool *Pool
	once sync.Once
}

// Release returns the slot to the pool. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.mu.Lock()
		defer l.pool.mu.Unlock()

		if l.pool.active > 0 {
			l.pool.active--
		}

		l.pool.logger.Debug("admission slot released",
			"pool", l.pool.name,
			"active", l.pool.active,
			"max", l.pool.max)
	})
}

// TryAcquire admits the caller or fails immediately with a *LimitError.
func (p *Pool) TryAcquire() (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active >= p.max {
		return nil, &LimitError{Name: p.name, Max: p.max}
	}

	p.active++
	p.logger.Debug("admission slot acquired", "pool", p.name, "active", p.active, "max", p.max)

	return &Lease{pool: p}, nil
}

// Active returns the number of currently admitted operations.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.active
}

// Max returns the configured concurrency limit.
func (p *Pool) Max() int { return p.max }
