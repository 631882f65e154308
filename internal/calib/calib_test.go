package calib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCalibration() Calibration {
	return Calibration{Width: 640, Height: 480, Fx: 400, Fy: 410, Cx: 319.5, Cy: 239.5}
}

func TestMakePyramid(t *testing.T) {
	p, err := MakePyramid(testCalibration(), 5)
	require.NoError(t, err)
	require.Equal(t, 5, p.Levels())

	assert.Equal(t, 640, p[0].Width)
	assert.Equal(t, 40, p[4].Width)
	assert.Equal(t, 30, p[4].Height)
	assert.InDelta(t, 200.0, p[1].Fx, 1e-9)
	assert.InDelta(t, 25.625, p[4].Fy, 1e-9)
	assert.InDelta(t, 159.5, p[1].Cx, 1e-9)
	assert.InDelta(t, (239.5+0.5)/16-0.5, p[4].Cy, 1e-9)
}

func TestLevelInverseRoundTrip(t *testing.T) {
	p, err := MakePyramid(testCalibration(), 3)
	require.NoError(t, err)
	for _, l := range p {
		x, y := l.Unproject(12.25, 7.5)
		u, v := l.Project(x, y)
		assert.InDelta(t, 12.25, u, 1e-9)
		assert.InDelta(t, 7.5, v, 1e-9)
	}
}

func TestMakePyramidErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Calibration)
		levels int
	}{
		{"zero width", func(c *Calibration) { c.Width = 0 }, 5},
		{"negative focal", func(c *Calibration) { c.Fx = -1 }, 5},
		{"principal point outside", func(c *Calibration) { c.Cx = 2000 }, 5},
		{"too many levels", func(c *Calibration) {}, MaxLevels + 1},
		{"too small", func(c *Calibration) { c.Width, c.Height, c.Cx, c.Cy = 64, 48, 32, 24 }, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCalibration()
			tt.mutate(&c)
			_, err := MakePyramid(c, tt.levels)
			assert.Error(t, err)
		})
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	err := Calibration{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid image size")
	assert.Contains(t, err.Error(), "invalid focal length")
}
