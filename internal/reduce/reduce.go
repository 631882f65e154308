// Package reduce distributes index ranges over a fixed set of workers. Each worker has
// a stable id so callers can keep one accumulator per worker and sum them afterwards.
package reduce

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config holds configuration for range reduction.
type Config struct {
	Workers   int // number of workers (0 = runtime.NumCPU())
	ChunkSize int // indices per work item (0 = 50)
}

// DefaultConfig returns sensible defaults for range reduction.
func DefaultConfig() Config {
	return Config{
		Workers:   runtime.NumCPU(),
		ChunkSize: 50,
	}
}

// Reducer splits [first, end) into chunks and hands them to workers.
// Chunk c always goes to worker c mod Workers, so the work assigned to each worker,
// and therefore every per-worker sum, is independent of scheduling.
type Reducer struct {
	workers   int
	chunkSize int
}

// New creates a reducer, applying defaults for non-positive fields.
func New(cfg Config) *Reducer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	return &Reducer{workers: cfg.Workers, chunkSize: cfg.ChunkSize}
}

// Workers returns the number of worker ids Reduce may pass to fn.
func (r *Reducer) Workers() int { return r.workers }

// Reduce calls fn(min, max, tid) for every chunk and returns when all chunks are done.
// fn must only write state owned by tid or by the indices in [min, max).
// A panic in fn is recovered and returned as an error; the remaining chunks of that
// worker are skipped.
func (r *Reducer) Reduce(fn func(min, max, tid int), first, end int) error {
	if end <= first {
		return nil
	}
	numChunks := (end - first + r.chunkSize - 1) / r.chunkSize

	// A single worker or a single chunk runs inline.
	if r.workers == 1 || numChunks == 1 {
		return r.run(fn, 0, 1, numChunks, first, end)
	}

	workers := min(r.workers, numChunks)
	var g errgroup.Group
	for tid := range workers {
		g.Go(func() error {
			return r.run(fn, tid, workers, numChunks, first, end)
		})
	}
	return g.Wait()
}

// run processes chunks tid, tid+stride, ... for worker tid.
func (r *Reducer) run(fn func(min, max, tid int), tid, stride, numChunks, first, end int) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reduce worker %d: panic: %v", tid, p)
		}
	}()
	for c := tid; c < numChunks; c += stride {
		lo, hi := r.bounds(c, first, end)
		fn(lo, hi, tid)
	}
	return nil
}

func (r *Reducer) bounds(chunk, first, end int) (int, int) {
	lo := first + chunk*r.chunkSize
	return lo, min(lo+r.chunkSize, end)
}
