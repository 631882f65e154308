package benchmark

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietScenario(frames int) Scenario {
	sc := DefaultScenario()
	sc.Frames = frames
	sc.Options.Workers = 2
	sc.Options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return sc
}

func TestRun(t *testing.T) {
	res, err := Run(context.Background(), quietScenario(4))
	require.NoError(t, err)

	assert.Equal(t, "translate-x", res.Name)
	assert.Equal(t, 3, res.Frames)
	assert.Positive(t, res.SetFirst)
	assert.GreaterOrEqual(t, res.Total, res.SetFirst)
	assert.LessOrEqual(t, res.Latency.Median, res.Latency.Max)
	assert.LessOrEqual(t, res.Latency.P90, res.Latency.Max)
	// hysteresis keeps a 3-frame run from becoming ready
	assert.False(t, res.Ready)
	assert.Contains(t, res.String(), "translate-x: 3 frames")
}

func TestRunErrors(t *testing.T) {
	_, err := Run(context.Background(), quietScenario(1))
	require.ErrorContains(t, err, "at least 2 frames")

	sc := quietScenario(3)
	sc.Options.Levels = 0
	_, err = Run(context.Background(), sc)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, quietScenario(3))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSummarize(t *testing.T) {
	ms := float64(time.Millisecond)
	lat, err := summarize(stats.Float64Data{1 * ms, 2 * ms, 3 * ms, 10 * ms})
	require.NoError(t, err)
	assert.Equal(t, 4*time.Millisecond, lat.Mean)
	assert.Equal(t, 2500*time.Microsecond, lat.Median)
	assert.Equal(t, 10*time.Millisecond, lat.Max)

	_, err = summarize(nil)
	require.Error(t, err)
}

func TestGetMemoryStats(t *testing.T) {
	m := GetMemoryStats()
	assert.Positive(t, m.SysBytes)
	assert.GreaterOrEqual(t, m.TotalAllocBytes, m.AllocBytes)
}
