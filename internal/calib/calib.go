// Package calib derives per-level pinhole intrinsics for an image pyramid.
package calib

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// MaxLevels bounds the number of pyramid levels any component will allocate.
const MaxLevels = 6

// Calibration holds the base-level pinhole parameters.
type Calibration struct {
	Width  int     `mapstructure:"width" yaml:"width" json:"width"`
	Height int     `mapstructure:"height" yaml:"height" json:"height"`
	Fx     float64 `mapstructure:"fx" yaml:"fx" json:"fx"`
	Fy     float64 `mapstructure:"fy" yaml:"fy" json:"fy"`
	Cx     float64 `mapstructure:"cx" yaml:"cx" json:"cx"`
	Cy     float64 `mapstructure:"cy" yaml:"cy" json:"cy"`
}

// Validate reports every problem with the calibration at once.
func (c Calibration) Validate() error {
	var err error
	if c.Width <= 0 || c.Height <= 0 {
		err = multierr.Append(err, fmt.Errorf("invalid image size %dx%d", c.Width, c.Height))
	}
	if c.Fx <= 0 || c.Fy <= 0 {
		err = multierr.Append(err, fmt.Errorf("invalid focal length fx=%.3f fy=%.3f (must be positive)", c.Fx, c.Fy))
	}
	if c.Cx < 0 || c.Cy < 0 || c.Cx > float64(c.Width) || c.Cy > float64(c.Height) {
		err = multierr.Append(err, fmt.Errorf("principal point (%.2f, %.2f) outside image", c.Cx, c.Cy))
	}
	return err
}

// Level holds the intrinsics of one pyramid level together with their inverses.
type Level struct {
	Width, Height int
	Fx, Fy        float64
	Cx, Cy        float64

	// Inverse intrinsics, i.e. the entries of K⁻¹.
	Fxi, Fyi float64
	Cxi, Cyi float64
}

// Unproject maps pixel (u, v) to the normalized image plane (K⁻¹·[u v 1]ᵀ).
func (l Level) Unproject(u, v float64) (float64, float64) {
	return l.Fxi*u + l.Cxi, l.Fyi*v + l.Cyi
}

// Project maps a normalized point to pixel coordinates.
func (l Level) Project(x, y float64) (float64, float64) {
	return l.Fx*x + l.Cx, l.Fy*y + l.Cy
}

// Pyramid is the immutable set of per-level intrinsics.
type Pyramid []Level

// MakePyramid derives numLevels levels from the base calibration. Each coarser level
// halves image size and focal lengths; the principal point follows the pixel-centre
// convention (c+0.5)/2^l − 0.5.
func MakePyramid(c Calibration, numLevels int) (Pyramid, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration: %w", err)
	}
	if numLevels < 1 || numLevels > MaxLevels {
		return nil, fmt.Errorf("invalid pyramid level count %d (must be between 1 and %d)", numLevels, MaxLevels)
	}
	if c.Width>>(numLevels-1) < 8 || c.Height>>(numLevels-1) < 8 {
		return nil, errors.New("image too small for the requested pyramid depth")
	}

	p := make(Pyramid, numLevels)
	p[0] = Level{Width: c.Width, Height: c.Height, Fx: c.Fx, Fy: c.Fy, Cx: c.Cx, Cy: c.Cy}
	for lvl := 1; lvl < numLevels; lvl++ {
		scale := float64(int(1) << lvl)
		p[lvl] = Level{
			Width:  c.Width >> lvl,
			Height: c.Height >> lvl,
			Fx:     p[lvl-1].Fx * 0.5,
			Fy:     p[lvl-1].Fy * 0.5,
			Cx:     (c.Cx+0.5)/scale - 0.5,
			Cy:     (c.Cy+0.5)/scale - 0.5,
		}
	}
	for lvl := range p {
		l := &p[lvl]
		l.Fxi = 1 / l.Fx
		l.Fyi = 1 / l.Fy
		l.Cxi = -l.Cx / l.Fx
		l.Cyi = -l.Cy / l.Fy
	}
	return p, nil
}

// Levels returns the number of pyramid levels.
func (p Pyramid) Levels() int { return len(p) }
