package admission_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ballast-dev/ballast/pkg/admission"
)

func TestPool_AcquireUpToLimit(t *testing.T) {
	t.Parallel()

	pool := admission.NewPool("execute", 2, nil)

	first, err := pool.TryAcquire()
	require.NoError(t, err)

	second, err := pool.TryAcquire()
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Active())

	_, err = pool.TryAcquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, admission.ErrTooManyConcurrent)

	var limitErr *admission.LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 2, limitErr.Max)

	first.Release()
	second.Release()
	assert.Zero(t, pool.Active())
}

func TestPool_ReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	pool := admission.NewPool("execute", 1, nil)

	lease, err := pool.TryAcquire()
	require.NoError(t, err)

	lease.Release()
	lease.Release()
	lease.Release()

	assert.Zero(t, pool.Active())

	// The slot is usable again after a single logical release.
	_, err = pool.TryAcquire()
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Active())
}

func TestPool_BoundHoldsUnderConcurrency(t *testing.T) {
	t.Parallel()

	const (
		maxConcurrent = 4
		goroutines    = 64
		iterations    = 200
	)

	pool := admission.NewPool("execute", maxConcurrent, nil)

	var wg sync.WaitGroup

	var peakMu sync.Mutex

	peak := 0

	for range goroutines {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range iterations {
				lease, err := pool.TryAcquire()
				if err != nil {
					continue
				}

				active := pool.Active()

				peakMu.Lock()
				if active > peak {
					peak = active
				}
				peakMu.Unlock()

				lease.Release()
			}
		}()
	}

	wg.Wait()

	assert.LessOrEqual(t, peak, maxConcurrent)
	assert.Zero(t, pool.Active())
}

func TestPool_ReleaseOnDeferredPanicPath(t *testing.T) {
	t.Parallel()

	pool := admission.NewPool("execute", 1, nil)

	func() {
		defer func() { _ = recover() }()

		lease, err := pool.TryAcquire()
		require.NoError(t, err)

		defer lease.Release()

		panic("operation blew up")
	}()

	assert.Zero(t, pool.Active(), "slot must be released on the panic path")
}
