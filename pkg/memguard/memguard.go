// Package memguard gates allocation-heavy steps against a process memory
// budget. It is a gate, not a ledger: usage is sampled from the runtime and
// the OS at each check rather than tracked incrementally.
package memguard

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/dustin/go-humanize"
)

// ErrMemoryLimit is the sentinel matched by [errors.Is] for budget violations.
var ErrMemoryLimit = errors.New("memory limit exceeded")

// DefaultNearLimitRatio is the usage fraction treated as "near the limit".
const DefaultNearLimitRatio = 0.9

// LimitError reports a projected budget violation that survived a forced
// collection pass.
type LimitError struct {
	// Current is the sampled usage in bytes after collection.
	Current int64

	// Additional is the caller's estimated extra allocation in bytes.
	Additional int64

	// Limit is the configured budget in bytes.
	Limit int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("processing would exceed memory limit: %s current + %s estimated > %s limit",
		humanize.IBytes(uint64(e.Current)),
		humanize.IBytes(uint64(e.Additional)),
		humanize.IBytes(uint64(e.Limit)))
}

// Unwrap makes errors.Is(err, ErrMemoryLimit) match.
func (e *LimitError) Unwrap() error { return ErrMemoryLimit }

// Snapshot captures process memory usage at a point in time.
type Snapshot struct {
	// HeapInuse is the Go heap in-use size in bytes.
	HeapInuse int64

	// RSS is the OS resident set size in bytes. Zero when unavailable
	// (non-Linux), in which case HeapInuse alone drives decisions.
	RSS int64

	// TakenAt is when the sample was read.
	TakenAt time.Time
}

// Effective returns the usage figure decisions are based on:
// max(HeapInuse, RSS). RSS captures native allocations the Go heap misses.
func (s Snapshot) Effective() int64 {
	return max(s.HeapInuse, s.RSS)
}

// Guard checks projected memory growth against a fixed budget.
type Guard struct {
	logger *slog.Logger
	limit  int64
	sample func() Snapshot
}

// New creates a guard with the given budget in bytes. A non-positive limit
// means unbounded: every check passes. A nil logger uses slog.Default.
func New(limitBytes int64, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}

	return &Guard{limit: limitBytes, logger: logger, sample: takeSnapshot}
}

// Check fails with a *LimitError when current usage plus the estimated
// additional bytes would exceed the budget even after a forced collection
// pass. The collection retry avoids false positives caused by collectible
// garbage rather than true live-set growth. additional <= 0 always passes:
// a zero-cost step can never be the allocation that breaks the budget.
func (g *Guard) Check(additional int64) error {
	if g.limit <= 0 || additional <= 0 {
		return nil
	}

	snap := g.sample()
	if snap.Effective()+additional <= g.limit {
		return nil
	}

	g.logger.Warn("memory budget exceeded, forcing collection",
		"current", humanize.IBytes(uint64(snap.Effective())),
		"additional", humanize.IBytes(uint64(additional)),
		"limit", humanize.IBytes(uint64(g.limit)))

	g.Collect()

	snap = g.sample()
	if snap.Effective()+additional <= g.limit {
		return nil
	}

	return &LimitError{Current: snap.Effective(), Additional: additional, Limit: g.limit}
}

// NearLimit reports whether sampled usage exceeds ratio of the budget.
// A non-positive ratio uses DefaultNearLimitRatio. Always false when
// unbounded.
func (g *Guard) NearLimit(ratio float64) bool {
	if g.limit <= 0 {
		return false
	}

	if ratio <= 0 {
		ratio = DefaultNearLimitRatio
	}

	return float64(g.sample().Effective()) > ratio*float64(g.limit)
}

// Collect forces a garbage collection pass and returns freed pages to the OS.
func (g *Guard) Collect() {
	runtime.GC()
	debug.FreeOSMemory()
}

// Usage returns the current memory sample.
func (g *Guard) Usage() Snapshot {
	return g.sample()
}

// Limit returns the configured budget in bytes (non-positive = unbounded).
func (g *Guard) Limit() int64 { return g.limit }

// SetSampler overrides the memory sampler. Intended for tests.
func (g *Guard) SetSampler(sample func() Snapshot) {
	g.sample = sample
}

// takeSnapshot reads the Go runtime heap stats and, on Linux, the process
// resident set size.
func takeSnapshot() Snapshot {
	var m runtime.MemStats

	runtime.ReadMemStats(&m)

	return Snapshot{
		HeapInuse: int64(m.HeapInuse),
		RSS:       readRSS(),
		TakenAt:   time.Now(),
	}
}
