// Package benchmark measures initializer tracking latency on synthetic sequences.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"

	"github.com/MeKo-Tech/vioinit/internal/frame"
	"github.com/MeKo-Tech/vioinit/internal/initializer"
	"github.com/MeKo-Tech/vioinit/internal/synth"
)

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64  // Currently allocated bytes
	TotalAllocBytes uint64  // Total allocated bytes (cumulative)
	SysBytes        uint64  // Total bytes from system
	NumGC           uint32  // Number of GC runs
	GCCPUFraction   float64 // Fraction of CPU time spent in GC
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		GCCPUFraction:   m.GCCPUFraction,
	}
}

// Scenario describes one synthetic tracking run.
type Scenario struct {
	Name    string
	Width   int
	Height  int
	Frames  int
	Step    r3.Vector
	Options initializer.Options
}

// DefaultScenario tracks 20 frames of a 320×240 sideways translation.
func DefaultScenario() Scenario {
	return Scenario{
		Name:    "translate-x",
		Width:   320,
		Height:  240,
		Frames:  20,
		Step:    r3.Vector{X: 0.01},
		Options: initializer.DefaultOptions(),
	}
}

// Latency summarizes per-frame TrackFrame durations.
type Latency struct {
	Mean   time.Duration
	Median time.Duration
	P90    time.Duration
	Max    time.Duration
}

// Result holds the result of a benchmark run.
type Result struct {
	Name         string
	Frames       int
	SetFirst     time.Duration
	Total        time.Duration
	Latency      Latency
	Snapped      bool
	Ready        bool
	ReadyAt      int
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
}

// String returns a formatted string representation of the benchmark result.
func (r Result) String() string {
	memDiff := int64(r.MemoryAfter.TotalAllocBytes - r.MemoryBefore.TotalAllocBytes) //nolint:gosec // display only
	return fmt.Sprintf("%s: %d frames, set_first: %v, mean: %v, median: %v, p90: %v, max: %v, alloc: +%d KB, snapped: %v, ready at: %d",
		r.Name, r.Frames, r.SetFirst, r.Latency.Mean, r.Latency.Median, r.Latency.P90, r.Latency.Max,
		memDiff/1024, r.Snapped, r.ReadyAt)
}

// Run renders the scenario and tracks every frame after the first, timing each call.
// Tracking continues past the first ready frame so that every run covers the same
// number of frames.
func Run(ctx context.Context, sc Scenario) (Result, error) {
	if sc.Frames < 2 {
		return Result{}, errors.New("benchmark needs at least 2 frames")
	}
	scene := synth.NewScene(sc.Width, sc.Height)
	poses := synth.Translations(sc.Frames, sc.Step)

	frames := make([]*frame.Frame, len(poses))
	for i, pose := range poses {
		f, err := scene.Frame(pose, sc.Options.Levels, 0)
		if err != nil {
			return Result{}, fmt.Errorf("render frame %d: %w", i, err)
		}
		frames[i] = f
	}

	in, err := initializer.New(sc.Options)
	if err != nil {
		return Result{}, err
	}

	runtime.GC()
	res := Result{Name: sc.Name, MemoryBefore: GetMemoryStats()}

	start := time.Now()
	if err := in.SetFirst(scene.Calib, frames[0]); err != nil {
		return Result{}, err
	}
	res.SetFirst = time.Since(start)

	durations := make(stats.Float64Data, 0, len(frames)-1)
	for i := 1; i < len(frames); i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		t0 := time.Now()
		ready, err := in.TrackFrame(frames[i])
		if err != nil {
			return Result{}, fmt.Errorf("track frame %d: %w", i, err)
		}
		durations = append(durations, float64(time.Since(t0)))
		if ready && !res.Ready {
			res.Ready = true
			res.ReadyAt = i
		}
	}
	res.Total = time.Since(start)
	res.MemoryAfter = GetMemoryStats()
	res.Frames = len(durations)
	res.Snapped = in.Snapped()

	res.Latency, err = summarize(durations)
	return res, err
}

func summarize(durations stats.Float64Data) (Latency, error) {
	mean, err := durations.Mean()
	if err != nil {
		return Latency{}, fmt.Errorf("latency mean: %w", err)
	}
	median, err := durations.Median()
	if err != nil {
		return Latency{}, fmt.Errorf("latency median: %w", err)
	}
	p90, err := durations.Percentile(90)
	if err != nil {
		return Latency{}, fmt.Errorf("latency p90: %w", err)
	}
	maxD, err := durations.Max()
	if err != nil {
		return Latency{}, fmt.Errorf("latency max: %w", err)
	}
	return Latency{
		Mean:   time.Duration(mean),
		Median: time.Duration(median),
		P90:    time.Duration(p90),
		Max:    time.Duration(maxD),
	}, nil
}
