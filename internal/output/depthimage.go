package output

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/MeKo-Tech/vioinit/internal/frame"
)

// DepthPoint is a point to draw in the debug depth image.
type DepthPoint struct {
	U, V float32
	IR   float32
	Good bool
}

// Rainbow maps a normalized inverse depth to a colour cycling through red, green and
// blue with period 3. Non-positive or non-finite values are white.
func Rainbow(id float64) color.NRGBA {
	if !(id > 0) || math.IsInf(id, 0) {
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	hue := math.Mod(id, 3) / 3 * 360
	r, g, b := colorful.Hsv(hue, 1, 1).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// RenderDepthImage draws the level-0 intensity of ref in gray and each point as a 3×3
// patch: bad points black, good points coloured by IR scaled with the inverse of the
// mean IR of all good points.
func RenderDepthImage(ref *frame.Frame, pts []DepthPoint) *image.NRGBA {
	w, h := ref.Width(0), ref.Height(0)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, s := range ref.Level(0) {
		v := uint8(min(max(s[0], 0), 255))
		o := 4 * i
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = v, v, v, 255
	}

	var n, sum float64
	for _, p := range pts {
		if p.Good {
			n++
			sum += float64(p.IR)
		}
	}
	fac := 0.0
	if sum != 0 {
		fac = n / sum
	}

	black := color.NRGBA{A: 255}
	for _, p := range pts {
		c := black
		if p.Good {
			c = Rainbow(float64(p.IR) * fac)
		}
		setPixel9(img, int(p.U+0.5), int(p.V+0.5), c)
	}
	return img
}

func setPixel9(img *image.NRGBA, u, v int, c color.NRGBA) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			x, y := u+dx, v+dy
			if image.Pt(x, y).In(img.Rect) {
				img.SetNRGBA(x, y, c)
			}
		}
	}
}
