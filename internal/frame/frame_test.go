package frame

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rampIntensity(w, h int, gx, gy float32) []float32 {
	out := make([]float32, w*h)
	for y := range h {
		for x := range w {
			out[x+y*w] = gx*float32(x) + gy*float32(y)
		}
	}
	return out
}

func TestNewBuildsPyramid(t *testing.T) {
	f, err := New(rampIntensity(64, 48, 2, 3), 64, 48, 3, 0.01)
	require.NoError(t, err)
	require.Equal(t, 3, f.Levels())
	assert.Equal(t, 16, f.Width(2))
	assert.Equal(t, 12, f.Height(2))
	assert.InDelta(t, 0.01, f.Exposure, 1e-12)

	// Interior gradients of a ramp are its slopes; coarser levels double them.
	s := f.Level(0)[10+10*64]
	assert.InDelta(t, 2.0, s[1], 1e-5)
	assert.InDelta(t, 3.0, s[2], 1e-5)
	s1 := f.Level(1)[5+5*32]
	assert.InDelta(t, 4.0, s1[1], 1e-4)
	assert.InDelta(t, 6.0, s1[2], 1e-4)
	assert.InDelta(t, 13.0, f.AbsSquaredGrad(0)[10+10*64], 1e-4)

	// First and last rows keep zero gradient.
	assert.Zero(t, f.Level(0)[5][1])
	assert.Zero(t, f.AbsSquaredGrad(0)[5+47*64])
}

func TestDownsampleAverages(t *testing.T) {
	in := []float32{
		0, 4, 8, 8,
		4, 8, 8, 8,
		1, 1, 2, 2,
		1, 1, 2, 2,
	}
	f, err := New(in, 4, 4, 1, 0)
	require.NoError(t, err)
	out := make([]Sample, 4)
	downsample(f.Level(0), 4, out, 2, 2)
	assert.InDelta(t, 4.0, out[0][0], 1e-6)
	assert.InDelta(t, 8.0, out[1][0], 1e-6)
	assert.InDelta(t, 1.0, out[2][0], 1e-6)
	assert.InDelta(t, 2.0, out[3][0], 1e-6)
}

func TestNewErrors(t *testing.T) {
	_, err := New(make([]float32, 10), 4, 4, 1, 0)
	assert.Error(t, err)
	_, err = New(make([]float32, 16), 4, 4, 3, 0)
	assert.Error(t, err)
	_, err = New(nil, 0, 4, 1, 0)
	assert.Error(t, err)
}

func TestInterpolate(t *testing.T) {
	f, err := New(rampIntensity(16, 16, 1, 10), 16, 16, 1, 0)
	require.NoError(t, err)
	s := f.Level(0)

	v := Interpolate31(s, 3.25, 4.5, 16)
	assert.InDelta(t, 3.25+45.0, v, 1e-4)

	full := Interpolate33(s, 5.5, 6.75, 16)
	assert.InDelta(t, 5.5+67.5, full[0], 1e-4)
	assert.InDelta(t, 1.0, full[1], 1e-4)
	assert.InDelta(t, 10.0, full[2], 1e-4)

	// Integer positions return the stored sample.
	assert.Equal(t, s[3+4*16][0], Interpolate31(s, 3, 4, 16))
}

func TestFromImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			img.SetGray(x, y, color.Gray{Y: uint8(4 * x)})
		}
	}
	f, err := FromImage(img, 32, 32, 2, 0)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, f.Level(0)[10+3*32][0], 1.0)
	assert.InDelta(t, 4.0, f.Level(0)[10+3*32][1], 0.6)

	scaled, err := FromImage(img, 16, 16, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, scaled.Width(0))

	_, err = FromImage(nil, 16, 16, 1, 0)
	assert.Error(t, err)
}
