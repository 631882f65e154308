package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/vioinit/internal/output"
)

func TestSynthThenRun(t *testing.T) {
	dir := t.TempDir()
	seq := filepath.Join(dir, "seq")

	out, _, err := execute(t, "synth", "--out", seq, "--frames", "4", "--tx", "0.01")
	require.NoError(t, err)

	frames, err := filepath.Glob(filepath.Join(seq, "frame_*.png"))
	require.NoError(t, err)
	require.Len(t, frames, 4)
	assert.Contains(t, out, frames[0])
	require.FileExists(t, filepath.Join(seq, "vioinit.yaml"))

	depthDir := filepath.Join(dir, "depth")
	resultFile := filepath.Join(dir, "result.json")
	args := append([]string{
		"run", "--config", filepath.Join(seq, "vioinit.yaml"),
		"--format", "json", "--output", resultFile, "--depth-dir", depthDir,
		"--workers", "2",
	}, frames...)
	_, _, err = execute(t, args...)
	require.NoError(t, err)

	data, err := os.ReadFile(resultFile)
	require.NoError(t, err)
	var res output.Result
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, 3, res.Frames)
	assert.Positive(t, res.TotalPoints)
	assert.LessOrEqual(t, res.GoodPoints, res.TotalPoints)
	assert.Equal(t, res.GoodPoints, res.Depth.Count)
	assert.Empty(t, res.Points)

	depthImages, err := filepath.Glob(filepath.Join(depthDir, "depth_*.png"))
	require.NoError(t, err)
	assert.Len(t, depthImages, 3)
}

func TestRunRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	seq := filepath.Join(dir, "seq")
	_, _, err := execute(t, "synth", "--out", seq, "--frames", "2")
	require.NoError(t, err)
	cfg := filepath.Join(seq, "vioinit.yaml")
	a := filepath.Join(seq, "frame_000000.png")
	b := filepath.Join(seq, "frame_000001.png")

	_, _, err = execute(t, "run", "--config", cfg, a)
	require.Error(t, err)

	_, _, err = execute(t, "run", "--config", cfg, "--exposure", "1,2,3", a, b)
	require.ErrorContains(t, err, "3 exposures for 2 images")

	_, _, err = execute(t, "run", "--config", cfg, a, filepath.Join(seq, "missing.png"))
	require.ErrorContains(t, err, "open image")
}

func TestSynthValidation(t *testing.T) {
	_, _, err := execute(t, "synth", "--out", t.TempDir(), "--frames", "1")
	require.ErrorContains(t, err, "at least 2 frames")
}

func TestConfigWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vioinit.yaml")
	out, _, err := execute(t, "config", "--write", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "alpha_w")
	assert.Contains(t, string(data), "calibration")
}

func TestConfigShow(t *testing.T) {
	dir := t.TempDir()
	seq := filepath.Join(dir, "seq")
	_, _, err := execute(t, "synth", "--out", seq, "--frames", "2", "--width", "160", "--height", "120")
	require.NoError(t, err)

	out, _, err := execute(t, "config", "--config", filepath.Join(seq, "vioinit.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "width: 160")
	assert.Contains(t, out, "snap_hysteresis: 5")
}

func TestBench(t *testing.T) {
	out, _, err := execute(t, "bench", "--frames", "3", "--runs", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "translate-x: 2 frames"))
}
