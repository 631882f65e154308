// Package synth renders synthetic camera sequences of a textured plane with known motion.
package synth

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r3"

	"github.com/MeKo-Tech/vioinit/internal/calib"
	"github.com/MeKo-Tech/vioinit/internal/frame"
	"github.com/MeKo-Tech/vioinit/internal/lie"
)

// Scene is a fronto-parallel textured plane at distance Depth in front of the anchor camera.
type Scene struct {
	Calib calib.Calibration
	Depth float64
	// Texture gives the intensity at an anchor-image pixel position.
	Texture func(u, v float64) float64
}

// DefaultTexture is a smooth pattern with structure at several scales, in [28, 228].
func DefaultTexture(u, v float64) float64 {
	return 128 +
		45*math.Sin(u/23+0.5)*math.Cos(v/19) +
		25*math.Sin((u+2*v)/41) +
		30*math.Sin(u/3.5)*math.Sin(v/4.5)
}

// NewScene returns a plane at depth 1 seen by a width×height camera with a horizontal
// field of view of about 64 degrees.
func NewScene(width, height int) Scene {
	f := 0.8 * float64(width)
	return Scene{
		Calib: calib.Calibration{
			Width:  width,
			Height: height,
			Fx:     f,
			Fy:     f,
			Cx:     float64(width-1) / 2,
			Cy:     float64(height-1) / 2,
		},
		Depth:   1,
		Texture: DefaultTexture,
	}
}

// Render returns the row-major intensities seen by a camera whose anchor-to-camera
// transform is pose.
func (s Scene) Render(pose lie.SE3) []float32 {
	c := s.Calib
	inv := pose.Inverse()
	out := make([]float32, c.Width*c.Height)
	for y := range c.Height {
		for x := range c.Width {
			ray := r3.Vector{X: (float64(x) - c.Cx) / c.Fx, Y: (float64(y) - c.Cy) / c.Fy, Z: 1}
			dir := inv.R.Rotate(ray)
			if dir.Z <= 0 {
				continue
			}
			depth := (s.Depth - inv.T.Z) / dir.Z
			if depth <= 0 {
				continue
			}
			p := dir.Mul(depth).Add(inv.T)
			u := c.Fx*p.X/p.Z + c.Cx
			v := c.Fy*p.Y/p.Z + c.Cy
			out[x+y*c.Width] = float32(min(max(s.Texture(u, v), 0), 255))
		}
	}
	return out
}

// Frame renders pose into an image pyramid.
func (s Scene) Frame(pose lie.SE3, levels int, exposure float64) (*frame.Frame, error) {
	return frame.New(s.Render(pose), s.Calib.Width, s.Calib.Height, levels, exposure)
}

// Image renders pose into an 8-bit grayscale image.
func (s Scene) Image(pose lie.SE3) *image.Gray {
	c := s.Calib
	img := image.NewGray(image.Rect(0, 0, c.Width, c.Height))
	for i, v := range s.Render(pose) {
		img.Pix[i] = uint8(v + 0.5)
	}
	return img
}

// Translations returns n poses translating linearly by step per frame; the first is the
// identity.
func Translations(n int, step r3.Vector) []lie.SE3 {
	poses := make([]lie.SE3, n)
	for i := range poses {
		poses[i] = lie.Identity()
		poses[i].T = step.Mul(float64(i))
	}
	return poses
}

// WriteSequence renders each pose to dir/frame_NNNNNN.png and returns the file paths.
func (s Scene) WriteSequence(dir string, poses []lie.SE3) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	paths := make([]string, 0, len(poses))
	for i, pose := range poses {
		path := filepath.Join(dir, fmt.Sprintf("frame_%06d.png", i))
		if err := imaging.Save(s.Image(pose), path); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
