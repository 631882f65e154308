// Package frame holds the per-level intensity and gradient pyramid of a camera image.
package frame

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Sample is one pyramid pixel: intensity, horizontal gradient, vertical gradient.
type Sample [3]float32

// Frame is an immutable intensity+gradient pyramid with its exposure time.
// Photometric calibration is assumed to be applied already.
type Frame struct {
	// Exposure is the exposure duration; values <= 0 mean unknown.
	Exposure float64

	widths  []int
	heights []int
	samples [][]Sample
	absGrad [][]float32
}

// New builds a pyramid from a row-major level-0 intensity buffer.
func New(intensity []float32, width, height, numLevels int, exposure float64) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if len(intensity) != width*height {
		return nil, fmt.Errorf("intensity buffer has %d entries, expected %d", len(intensity), width*height)
	}
	if numLevels < 1 {
		return nil, fmt.Errorf("invalid pyramid level count %d", numLevels)
	}
	if width>>(numLevels-1) < 3 || height>>(numLevels-1) < 3 {
		return nil, errors.New("image too small for the requested pyramid depth")
	}

	f := &Frame{
		Exposure: exposure,
		widths:   make([]int, numLevels),
		heights:  make([]int, numLevels),
		samples:  make([][]Sample, numLevels),
		absGrad:  make([][]float32, numLevels),
	}
	for lvl := range numLevels {
		f.widths[lvl] = width >> lvl
		f.heights[lvl] = height >> lvl
		f.samples[lvl] = make([]Sample, f.widths[lvl]*f.heights[lvl])
		f.absGrad[lvl] = make([]float32, f.widths[lvl]*f.heights[lvl])
	}

	base := f.samples[0]
	for i, v := range intensity {
		base[i][0] = v
	}
	for lvl := 1; lvl < numLevels; lvl++ {
		downsample(f.samples[lvl-1], f.widths[lvl-1], f.samples[lvl], f.widths[lvl], f.heights[lvl])
	}
	for lvl := range numLevels {
		makeGradients(f.samples[lvl], f.absGrad[lvl], f.widths[lvl], f.heights[lvl])
	}
	return f, nil
}

// FromImage converts img to grayscale, rescales it to width×height if needed and
// builds the pyramid. Intensities are in [0, 255].
func FromImage(img image.Image, width, height, numLevels int, exposure float64) (*Frame, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		dst := image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}
	gray := imaging.Grayscale(img)
	intensity := make([]float32, width*height)
	for y := range height {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+4*width]
		for x := range width {
			intensity[x+y*width] = float32(row[4*x])
		}
	}
	return New(intensity, width, height, numLevels, exposure)
}

// downsample writes the 2×2 box average of src into dst.
func downsample(src []Sample, srcWidth int, dst []Sample, w, h int) {
	for y := range h {
		for x := range w {
			i := 2*x + 2*y*srcWidth
			dst[x+y*w][0] = 0.25 * (src[i][0] + src[i+1][0] + src[i+srcWidth][0] + src[i+srcWidth+1][0])
		}
	}
}

// makeGradients fills central-difference gradients for every pixel except the first and
// last row; those keep a zero gradient.
func makeGradients(s []Sample, absGrad []float32, w, h int) {
	for idx := w; idx < w*(h-1); idx++ {
		dx := 0.5 * (s[idx+1][0] - s[idx-1][0])
		dy := 0.5 * (s[idx+w][0] - s[idx-w][0])
		s[idx][1] = dx
		s[idx][2] = dy
		absGrad[idx] = dx*dx + dy*dy
	}
}

// Levels returns the number of pyramid levels.
func (f *Frame) Levels() int { return len(f.samples) }

// Width returns the width of level lvl.
func (f *Frame) Width(lvl int) int { return f.widths[lvl] }

// Height returns the height of level lvl.
func (f *Frame) Height(lvl int) int { return f.heights[lvl] }

// Level returns the read-only sample buffer of level lvl.
func (f *Frame) Level(lvl int) []Sample { return f.samples[lvl] }

// AbsSquaredGrad returns ∂x²+∂y² for each pixel of level lvl.
func (f *Frame) AbsSquaredGrad(lvl int) []float32 { return f.absGrad[lvl] }
