// Package breaker provides a per-operation circuit breaker that blocks access
// to a protected operation after repeated failures and self-heals after a
// cooldown period.
package breaker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is the sentinel matched by [errors.Is] for open-breaker errors.
var ErrCircuitOpen = errors.New("circuit breaker open")

// OpenError reports that a protected operation is blocked until the breaker
// self-heals.
type OpenError struct {
	// Name identifies the breaker scope (e.g. "service", "delivery").
	Name string

	// RetryAfter is the remaining time until the breaker closes again.
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s circuit breaker open - retry in %.0fs", e.Name, e.RetryAfter.Seconds())
}

// Unwrap makes errors.Is(err, ErrCircuitOpen) match.
func (e *OpenError) Unwrap() error { return ErrCircuitOpen }

// Breaker tracks consecutive failures for one protected operation.
//
// State machine: closed (normal) until failures reach the threshold, then
// open with a reset deadline. While open, Allow fails. Once the deadline
// passes, the next Allow call closes the breaker and resets the count; there
// is no half-open probe state; that call's outcome drives the next
// transition like any other attempt.
type Breaker struct {
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	name          string
	threshold     int
	timeout       time.Duration
	failureCount  int
	open          bool
	resetDeadline time.Time
}

// Snapshot is a point-in-time view of breaker state for status reporting.
type Snapshot struct {
	Name          string    `json:"name"`
	Open          bool      `json:"open"`
	FailureCount  int       `json:"failure_count"`
	ResetDeadline time.Time `json:"reset_deadline,omitzero"`
}

// New creates a closed breaker. A nil logger uses slog.Default.
func New(name string, threshold int, timeout time.Duration, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Breaker{
		name:      name,
		threshold: threshold,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// Allow reports whether a new attempt may proceed. It returns nil when the
// breaker is closed, or an *OpenError carrying the remaining cooldown.
// A breaker whose reset deadline has passed heals to closed here.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}

	if b.now().After(b.resetDeadline) {
		b.open = false
		b.failureCount = 0
		b.resetDeadline = time.Time{}
		b.logger.Info("circuit breaker reset", "breaker", b.name)

		return nil
	}

	return &OpenError{Name: b.name, RetryAfter: b.resetDeadline.Sub(b.now())}
}

// RecordSuccess resets the failure count so isolated blips never accumulate
// into an open breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failureCount > 0 {
		b.logger.Debug("circuit breaker failure count reset", "breaker", b.name)
		b.failureCount = 0
	}
}

// RecordFailure increments the failure count and opens the breaker once the
// threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++

	if b.failureCount >= b.threshold && !b.open {
		b.open = true
		b.resetDeadline = b.now().Add(b.timeout)
		b.logger.Error("circuit breaker opened",
			"breaker", b.name,
			"failures", b.failureCount,
			"cooldown", b.timeout)
	}
}

// Snapshot returns the current state for status reporting.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Name:          b.name,
		Open:          b.open,
		FailureCount:  b.failureCount,
		ResetDeadline: b.resetDeadline,
	}
}

// SetClock overrides the time source. Intended for tests.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.now = now
}
