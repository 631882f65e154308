package selector

import (
	"math"

	"github.com/MeKo-Tech/vioinit/internal/frame"
)

// GridSelector picks pixels on coarser pyramid levels: in each sparsity×sparsity cell it
// keeps the strongest responses along the x, y and both diagonal gradient directions.
// The sparsity adapts between calls toward the requested density.
type GridSelector struct {
	MinUseGrad float32
	sparsity   int
}

// NewGridSelector returns a selector with the default starting sparsity of 5.
func NewGridSelector() *GridSelector {
	return &GridSelector{MinUseGrad: 10, sparsity: 5}
}

// Sparsity returns the cell size the next call will start from.
func (g *GridSelector) Sparsity() int { return g.sparsity }

// MakeStatus marks selected pixels of a width×height level in mapOut and returns how many
// were selected. It retries with an adjusted cell size up to recursionsLeft times.
func (g *GridSelector) MakeStatus(samples []frame.Sample, mapOut []bool, width, height int, desiredDensity float32, recursionsLeft int, thFactor float32) int {
	if g.sparsity < 1 {
		g.sparsity = 1
	}

	numGood := g.gridMaxSelection(samples, mapOut, width, height, g.sparsity, thFactor)

	quotia := float32(numGood) / desiredDensity
	newSparsity := int(float32(g.sparsity)*float32(math.Sqrt(float64(quotia))) + 0.7)
	if newSparsity < 1 {
		newSparsity = 1
	}

	oldTHFactor := thFactor
	if newSparsity == 1 && g.sparsity == 1 {
		thFactor = 0.5
	}

	converged := (newSparsity == g.sparsity && thFactor == oldTHFactor) ||
		(quotia > 0.8 && 1/quotia > 0.8) ||
		recursionsLeft == 0
	g.sparsity = newSparsity
	if converged {
		return numGood
	}
	return g.MakeStatus(samples, mapOut, width, height, desiredDensity, recursionsLeft-1, thFactor)
}

func (g *GridSelector) gridMaxSelection(samples []frame.Sample, mapOut []bool, w, h, pot int, thFactor float32) int {
	clear(mapOut)
	th := thFactor * g.MinUseGrad * 0.75
	th2 := th * th

	numGood := 0
	for y := 1; y < h-pot; y += pot {
		for x := 1; x < w-pot; x += pot {
			base := x + y*w
			best := [4]int{-1, -1, -1, -1}
			var bestVal [4]float32

			for dx := range pot {
				for dy := range pot {
					idx := base + dx + dy*w
					s := samples[idx]
					if s[1]*s[1]+s[2]*s[2] <= th2 {
						continue
					}
					resp := [4]float32{
						abs32(s[1]),
						abs32(s[2]),
						abs32(s[1] - s[2]),
						abs32(s[1] + s[2]),
					}
					for k, v := range resp {
						if v > bestVal[k] {
							bestVal[k] = v
							best[k] = idx
						}
					}
				}
			}

			for _, idx := range best {
				if idx < 0 {
					continue
				}
				if !mapOut[idx] {
					numGood++
				}
				mapOut[idx] = true
			}
		}
	}
	return numGood
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
