package requestcache_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"miner-api/requestcache"
)

func atBlock(block int64) func() int64 {
	return func() int64 { return block }
}

func TestCheckAndRecordDeduplicates(t *testing.T) {
	cache := requestcache.New(100, 0)

	require.False(t, cache.CheckAndRecord("fp-1", atBlock(10)))
	require.True(t, cache.CheckAndRecord("fp-1", atBlock(11)))
	require.False(t, cache.CheckAndRecord("fp-2", atBlock(11)))
	require.Equal(t, 2, cache.Len())
}

func TestExpiredFingerprintAdmittedAgain(t *testing.T) {
	cache := requestcache.New(100, 0)

	require.False(t, cache.CheckAndRecord("fp-1", atBlock(100)))

	// Still within the span at exactly block + span.
	require.True(t, cache.CheckAndRecord("fp-1", atBlock(200)))

	// One block past the span the entry has aged out.
	require.False(t, cache.CheckAndRecord("fp-1", atBlock(301)))
	require.Equal(t, 1, cache.Len())
}

func TestHeightReadPerCall(t *testing.T) {
	cache := requestcache.New(100, 0)

	var height atomic.Int64
	height.Store(100)
	supplier := func() int64 { return height.Load() }

	require.False(t, cache.CheckAndRecord("fp-1", supplier))

	// The supplier is consulted on every call, so advancing the height
	// between calls ages the entry out.
	height.Store(201)
	require.False(t, cache.CheckAndRecord("fp-1", supplier))
}

func TestConcurrentSameFingerprintAdmitsOnce(t *testing.T) {
	cache := requestcache.New(100, 0)

	const workers = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.CheckAndRecord("fp-shared", atBlock(50)) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, admitted)
	require.Equal(t, 1, cache.Len())
}

func TestCapacityEvictsOldestEntries(t *testing.T) {
	cache := requestcache.New(1000, 2)

	require.False(t, cache.CheckAndRecord("fp-a", atBlock(1)))
	require.False(t, cache.CheckAndRecord("fp-b", atBlock(2)))
	require.False(t, cache.CheckAndRecord("fp-c", atBlock(3)))
	require.Equal(t, 2, cache.Len())

	// The newest entries survive; the oldest one was evicted and is
	// admitted again.
	require.True(t, cache.CheckAndRecord("fp-c", atBlock(4)))
	require.False(t, cache.CheckAndRecord("fp-a", atBlock(5)))
}

func TestZeroMaxEntriesMeansUnbounded(t *testing.T) {
	cache := requestcache.New(1000, 0)
	for i := 0; i < 500; i++ {
		require.False(t, cache.CheckAndRecord(fmt.Sprintf("fp-%d", i), atBlock(1)))
	}
	require.Equal(t, 500, cache.Len())
}
