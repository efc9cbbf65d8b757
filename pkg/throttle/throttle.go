// Package throttle provides cooperative CPU yield checkpoints for long scan
// and iteration loops.
//
// Go schedules goroutines preemptively, so the checkpoint does not suspend
// anything by itself; it bounds the wall-clock interval between explicit
// cessions of the processor so other work sharing the process stays
// responsive during tight loops over many small items. The only contract is
// "eventually yields"; there is no correctness obligation beyond that.
package throttle

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// Default throttle parameters.
const (
	// DefaultYieldInterval is the wall-clock interval after which a
	// checkpoint cedes the processor.
	DefaultYieldInterval = 100 * time.Millisecond

	// DefaultCheckEvery is how many checkpoint calls pass between clock
	// reads. Reading the clock on every call would dominate tight loops.
	DefaultCheckEvery = 10

	// DefaultScanYieldEvery is the item frequency at which scan loops
	// should call YieldIfNeeded.
	DefaultScanYieldEvery = 50

	// DefaultMaxCPUPercent is the advisory CPU ceiling. It only informs
	// how long the yield pause is, never whether work proceeds.
	DefaultMaxCPUPercent = 80

	// pressurePause is the sleep used when the advisory ceiling is low,
	// trading throughput for responsiveness.
	pressurePause = 10 * time.Millisecond

	// aggressiveCPUThreshold is the advisory percent at or below which the
	// longer pressure pause is used.
	aggressiveCPUThreshold = 50
)

// Config holds throttler tuning parameters. Zero values use defaults.
type Config struct {
	YieldInterval  time.Duration
	CheckEvery     int
	ScanYieldEvery int
	MaxCPUPercent  int
}

// Throttler is a rate-limited yield checkpoint shared by scan loops.
type Throttler struct {
	logger *slog.Logger
	now    func() time.Time

	interval       time.Duration
	checkEvery     int
	scanYieldEvery int
	pause          time.Duration

	mu        sync.Mutex
	calls     int
	lastYield time.Time
}

// New creates a throttler. A nil logger uses slog.Default.
func New(cfg Config, logger *slog.Logger) *Throttler {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.YieldInterval <= 0 {
		cfg.YieldInterval = DefaultYieldInterval
	}

	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = DefaultCheckEvery
	}

	if cfg.ScanYieldEvery <= 0 {
		cfg.ScanYieldEvery = DefaultScanYieldEvery
	}

	if cfg.MaxCPUPercent <= 0 {
		cfg.MaxCPUPercent = DefaultMaxCPUPercent
	}

	pause := time.Duration(0)
	if cfg.MaxCPUPercent <= aggressiveCPUThreshold {
		pause = pressurePause
	}

	return &Throttler{
		logger:         logger,
		now:            time.Now,
		interval:       cfg.YieldInterval,
		checkEvery:     cfg.CheckEvery,
		scanYieldEvery: cfg.ScanYieldEvery,
		pause:          pause,
		lastYield:      time.Now(),
	}
}

// YieldIfNeeded is the cheap checkpoint for hot loops. Most calls only bump
// a counter; every checkEvery-th call reads the clock and yields when the
// configured interval has elapsed since the last yield.
func (t *Throttler) YieldIfNeeded() {
	t.mu.Lock()

	t.calls++
	if t.calls < t.checkEvery {
		t.mu.Unlock()

		return
	}

	t.calls = 0
	due := t.now().Sub(t.lastYield) >= t.interval

	if due {
		t.lastYield = t.now()
	}

	t.mu.Unlock()

	if due {
		t.cede()
	}
}

// Yield unconditionally cedes the processor and resets the yield clock.
func (t *Throttler) Yield() {
	t.mu.Lock()
	t.lastYield = t.now()
	t.calls = 0
	t.mu.Unlock()

	t.cede()
}

// ScanYieldEvery returns the configured item frequency for scan loops.
func (t *Throttler) ScanYieldEvery() int { return t.scanYieldEvery }

// SinceLastYield returns the elapsed time since the last cession.
func (t *Throttler) SinceLastYield() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.now().Sub(t.lastYield)
}

// MonitorHeavyOperation logs entry to a heavy operation and returns a done
// function that logs the duration and guarantees at least one yield, so even
// short operations cede once.
func (t *Throttler) MonitorHeavyOperation(ctx context.Context, label string) func() {
	start := t.now()
	t.logger.DebugContext(ctx, "heavy operation started", "operation", label)

	return func() {
		t.Yield()
		t.logger.InfoContext(ctx, "heavy operation completed",
			"operation", label,
			"duration", t.now().Sub(start))
	}
}

// SetClock overrides the time source and re-bases the yield timer on it.
// Intended for tests.
func (t *Throttler) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.now = now
	t.lastYield = now()
}

func (t *Throttler) cede() {
	if t.pause > 0 {
		time.Sleep(t.pause)

		return
	}

	runtime.Gosched()
}
