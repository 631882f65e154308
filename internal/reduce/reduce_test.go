package reduce

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, 50, cfg.ChunkSize)

	r := New(Config{})
	assert.Positive(t, r.Workers())
}

func TestReduceCoversRangeOnce(t *testing.T) {
	for _, workers := range []int{1, 3, 8} {
		r := New(Config{Workers: workers, ChunkSize: 7})
		seen := make([]int, 103)
		perWorker := make([]int, r.Workers())
		err := r.Reduce(func(lo, hi, tid int) {
			assert.Less(t, tid, r.Workers())
			for i := lo; i < hi; i++ {
				seen[i]++
			}
			perWorker[tid] += hi - lo
		}, 3, 103)
		require.NoError(t, err)

		for i, n := range seen {
			if i < 3 {
				assert.Zero(t, n)
			} else {
				assert.Equal(t, 1, n, "index %d", i)
			}
		}
		total := 0
		for _, n := range perWorker {
			total += n
		}
		assert.Equal(t, 100, total)
	}
}

func TestReduceAssignmentIsDeterministic(t *testing.T) {
	r := New(Config{Workers: 4, ChunkSize: 10})
	owner := func() []int {
		out := make([]int, 95)
		var mu sync.Mutex
		err := r.Reduce(func(lo, hi, tid int) {
			mu.Lock()
			defer mu.Unlock()
			for i := lo; i < hi; i++ {
				out[i] = tid
			}
		}, 0, 95)
		require.NoError(t, err)
		return out
	}
	assert.Equal(t, owner(), owner())
}

func TestReduceEmptyRange(t *testing.T) {
	called := false
	err := New(DefaultConfig()).Reduce(func(int, int, int) { called = true }, 5, 5)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestReduceReturnsWorkerPanic(t *testing.T) {
	for _, workers := range []int{1, 4} {
		r := New(Config{Workers: workers, ChunkSize: 10})
		var mu sync.Mutex
		done := 0
		err := r.Reduce(func(lo, hi, tid int) {
			if lo == 30 {
				panic("bad chunk")
			}
			mu.Lock()
			done++
			mu.Unlock()
		}, 0, 100)

		require.Error(t, err, "workers=%d", workers)
		assert.Contains(t, err.Error(), "bad chunk")
		assert.Less(t, done, 10, "workers=%d", workers)
	}
}
