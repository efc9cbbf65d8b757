package throttle_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ballast-dev/ballast/pkg/throttle"
)

func TestThrottler_Defaults(t *testing.T) {
	t.Parallel()

	tr := throttle.New(throttle.Config{}, nil)
	assert.Equal(t, throttle.DefaultScanYieldEvery, tr.ScanYieldEvery())
}

func TestThrottler_YieldsOnceIntervalElapses(t *testing.T) {
	t.Parallel()

	current := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	tr := throttle.New(throttle.Config{
		YieldInterval: 100 * time.Millisecond,
		CheckEvery:    1,
	}, nil)
	tr.SetClock(func() time.Time { return current })

	// Clock has not advanced: checkpoint must not reset the yield timer.
	tr.YieldIfNeeded()
	before := tr.SinceLastYield()

	// Advance past the interval; the next checkpoint cedes and resets.
	current = current.Add(150 * time.Millisecond)
	assert.GreaterOrEqual(t, tr.SinceLastYield(), 150*time.Millisecond)

	tr.YieldIfNeeded()
	assert.Equal(t, time.Duration(0), tr.SinceLastYield())
	assert.GreaterOrEqual(t, before, time.Duration(0))
}

func TestThrottler_CheckEveryBatchesClockReads(t *testing.T) {
	t.Parallel()

	current := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	tr := throttle.New(throttle.Config{
		YieldInterval: time.Millisecond,
		CheckEvery:    10,
	}, nil)
	tr.SetClock(func() time.Time { return current })

	current = current.Add(time.Second)

	// Nine calls are below the check frequency: no clock check, no yield.
	for range 9 {
		tr.YieldIfNeeded()
	}

	assert.Equal(t, time.Second, tr.SinceLastYield())

	// The tenth call checks the clock and yields.
	tr.YieldIfNeeded()
	assert.Equal(t, time.Duration(0), tr.SinceLastYield())
}

func TestThrottler_UnconditionalYieldResetsClock(t *testing.T) {
	t.Parallel()

	current := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	tr := throttle.New(throttle.Config{}, nil)
	tr.SetClock(func() time.Time { return current })

	current = current.Add(5 * time.Second)
	tr.Yield()
	assert.Equal(t, time.Duration(0), tr.SinceLastYield())
}

func TestThrottler_MonitorHeavyOperationYieldsOnDone(t *testing.T) {
	t.Parallel()

	current := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	tr := throttle.New(throttle.Config{}, nil)
	tr.SetClock(func() time.Time { return current })

	done := tr.MonitorHeavyOperation(t.Context(), "file_scan")

	current = current.Add(3 * time.Second)
	done()

	// The done callback must have yielded even though the operation body
	// never called YieldIfNeeded.
	assert.Equal(t, time.Duration(0), tr.SinceLastYield())
}

func TestThrottler_BoundedTimeBetweenYields(t *testing.T) {
	t.Parallel()

	tr := throttle.New(throttle.Config{
		YieldInterval: time.Millisecond,
		CheckEvery:    1,
	}, nil)

	// Simulate a scan loop; the gap between cessions must stay bounded by
	// the interval plus one checkpoint period.
	worst := time.Duration(0)

	for range 10000 {
		if gap := tr.SinceLastYield(); gap > worst {
			worst = gap
		}

		tr.YieldIfNeeded()
	}

	assert.Less(t, worst, 500*time.Millisecond)
}
