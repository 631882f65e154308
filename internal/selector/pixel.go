// Package selector chooses candidate pixels with strong, well-distributed gradients.
package selector

import (
	"math"
	"math/rand/v2"

	"github.com/MeKo-Tech/vioinit/internal/frame"
)

// Tier tags which block size selected a level-0 pixel.
type Tier float32

const (
	TierNone Tier = 0
	Tier1    Tier = 1 // best in a pot×pot block at level 0
	Tier2    Tier = 2 // best in a 2pot×2pot block using level-1 gradients
	Tier4    Tier = 4 // best in a 4pot×4pot block using level-2 gradients
)

const (
	histBlock      = 32
	histBins       = 50
	maxHistGrad    = 48
	randomSeed     = 3141592
	borderMargin   = 4
	initialPotency = 3
)

// directions are the sampling directions used to spread selections over edge orientations.
var directions = [16][2]float32{
	{0, 1.0000},
	{0.3827, 0.9239},
	{0.1951, 0.9808},
	{0.9239, 0.3827},
	{0.7071, 0.7071},
	{0.3827, -0.9239},
	{0.8315, 0.5556},
	{0.8315, -0.5556},
	{0.5556, -0.8315},
	{0.9808, 0.1951},
	{0.9239, -0.3827},
	{0.7071, -0.7071},
	{0.5556, 0.8315},
	{0.9808, -0.1951},
	{1.0000, 0.0000},
	{0.1951, -0.9808},
}

// PixelConfig holds the tuning of the level-0 selector.
type PixelConfig struct {
	MinGradHistCut         float32 // histogram quantile used as the block threshold
	MinGradHistAdd         float32 // constant added to the block threshold
	GradDownweightPerLevel float32 // threshold factor applied per coarser level
	DirectionDistribution  bool    // rank by projection onto a random direction instead of magnitude
}

// DefaultPixelConfig returns the standard selector tuning.
func DefaultPixelConfig() PixelConfig {
	return PixelConfig{
		MinGradHistCut:         0.5,
		MinGradHistAdd:         7,
		GradDownweightPerLevel: 0.75,
		DirectionDistribution:  true,
	}
}

// PixelSelector picks level-0 pixels from per-block gradient statistics, adapting its
// block size ("potential") to reach a requested point count.
type PixelSelector struct {
	// CurrentPotential is the smallest block size; it carries over between calls.
	CurrentPotential int

	cfg           PixelConfig
	width, height int
	randomPattern []uint8

	w32, h32    int
	ths         []float32
	thsSmoothed []float32
	histFrame   *frame.Frame
}

// NewPixelSelector creates a selector for width×height level-0 images.
func NewPixelSelector(width, height int, cfg PixelConfig) *PixelSelector {
	rng := rand.New(rand.NewPCG(randomSeed, 0))
	pattern := make([]uint8, width*height)
	for i := range pattern {
		pattern[i] = uint8(rng.Uint32() & 0xFF)
	}
	w32 := max(1, width/histBlock)
	h32 := max(1, height/histBlock)
	return &PixelSelector{
		CurrentPotential: initialPotency,
		cfg:              cfg,
		width:            width,
		height:           height,
		randomPattern:    pattern,
		w32:              w32,
		h32:              h32,
		ths:              make([]float32, w32*h32),
		thsSmoothed:      make([]float32, w32*h32),
	}
}

// computeHistQuantile returns the bin below which the given fraction of samples fall.
func computeHistQuantile(hist []int, below float32) int {
	th := int(float32(hist[0])*below + 0.5)
	for i := range 90 {
		if i+1 >= len(hist) {
			return i
		}
		th -= hist[i+1]
		if th < 0 {
			return i
		}
	}
	return 90
}

// makeHists computes a gradient threshold per 32×32 block and its 3×3 smoothed square.
func (s *PixelSelector) makeHists(f *frame.Frame) {
	s.histFrame = f
	absGrad := f.AbsSquaredGrad(0)
	w, h := s.width, s.height
	hist := make([]int, histBins)

	for y := range s.h32 {
		for x := range s.w32 {
			clear(hist)
			for j := range histBlock {
				for i := range histBlock {
					it := i + histBlock*x
					jt := j + histBlock*y
					if it > w-2 || jt > h-2 || it < 1 || jt < 1 {
						continue
					}
					g := int(math.Sqrt(float64(absGrad[it+jt*w])))
					if g > maxHistGrad {
						g = maxHistGrad
					}
					hist[g+1]++
					hist[0]++
				}
			}
			s.ths[x+y*s.w32] = float32(computeHistQuantile(hist, s.cfg.MinGradHistCut)) + s.cfg.MinGradHistAdd
		}
	}

	for y := range s.h32 {
		for x := range s.w32 {
			var sum, num float32
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					xx, yy := x+dx, y+dy
					if xx < 0 || yy < 0 || xx >= s.w32 || yy >= s.h32 {
						continue
					}
					sum += s.ths[xx+yy*s.w32]
					num++
				}
			}
			mean := sum / num
			s.thsSmoothed[x+y*s.w32] = mean * mean
		}
	}
}

// MakeMaps writes a Tier per pixel into mapOut (length width·height) and returns the
// number of selected pixels. density is the wanted number of points.
func (s *PixelSelector) MakeMaps(f *frame.Frame, mapOut []float32, density float32, recursionsLeft int, thFactor float32) int {
	if f != s.histFrame {
		s.makeHists(f)
	}

	n2, n3, n4 := s.selectPixels(f, mapOut, s.CurrentPotential, thFactor)
	numHave := float32(n2 + n3 + n4)
	numWant := density
	var quotia float32
	if numHave > 0 {
		quotia = numWant / numHave
	} else {
		quotia = float32(math.Inf(1))
	}

	pot := float32(s.CurrentPotential + 1)
	k := numHave * pot * pot
	idealPotential := int(float32(math.Sqrt(float64(k/numWant))) - 1)
	if idealPotential < 1 {
		idealPotential = 1
	}

	if recursionsLeft > 0 && quotia > 1.25 && s.CurrentPotential > 1 {
		if idealPotential >= s.CurrentPotential {
			idealPotential = s.CurrentPotential - 1
		}
		s.CurrentPotential = idealPotential
		return s.MakeMaps(f, mapOut, density, recursionsLeft-1, thFactor)
	} else if recursionsLeft > 0 && quotia < 0.25 {
		if idealPotential <= s.CurrentPotential {
			idealPotential = s.CurrentPotential + 1
		}
		s.CurrentPotential = idealPotential
		return s.MakeMaps(f, mapOut, density, recursionsLeft-1, thFactor)
	}

	numHaveSub := int(numHave)
	if quotia < 0.95 {
		charTH := uint8(255 * quotia)
		rn := 0
		for i := range mapOut {
			if mapOut[i] == 0 {
				continue
			}
			if s.randomPattern[rn] > charTH {
				mapOut[i] = 0
				numHaveSub--
			}
			rn++
		}
	}

	s.CurrentPotential = idealPotential
	return numHaveSub
}

// levelGrad returns the squared gradient at level-0 pixel (xf, yf) looked up at level lvl,
// falling back to the finest available level for shallow pyramids.
func levelGrad(f *frame.Frame, lvl, xf, yf int) float32 {
	lvl = min(lvl, f.Levels()-1)
	scale := float32(1) / float32(int(1)<<lvl)
	offset := 0.5 * scale
	x := int(float32(xf)*scale + offset)
	y := int(float32(yf)*scale + offset)
	x = min(x, f.Width(lvl)-1)
	y = min(y, f.Height(lvl)-1)
	return f.AbsSquaredGrad(lvl)[x+y*f.Width(lvl)]
}

// selectPixels runs one selection pass with block size pot and returns the count per tier.
func (s *PixelSelector) selectPixels(f *frame.Frame, mapOut []float32, pot int, thFactor float32) (n2, n3, n4 int) {
	samples := f.Level(0)
	absGrad0 := f.AbsSquaredGrad(0)
	w, h := s.width, s.height

	clear(mapOut)
	dw1 := s.cfg.GradDownweightPerLevel
	dw2 := dw1 * dw1

	dot := func(idx int, dir [2]float32, fallback float32) float32 {
		if !s.cfg.DirectionDistribution {
			return fallback
		}
		g := samples[idx]
		return float32(math.Abs(float64(g[1]*dir[0] + g[2]*dir[1])))
	}

	for y4 := 0; y4 < h; y4 += 4 * pot {
		for x4 := 0; x4 < w; x4 += 4 * pot {
			my3 := min(4*pot, h-y4)
			mx3 := min(4*pot, w-x4)
			bestIdx4 := -1
			var bestVal4 float32
			dir4 := directions[s.randomPattern[n2]&0xF]

			for y3 := 0; y3 < my3; y3 += 2 * pot {
				for x3 := 0; x3 < mx3; x3 += 2 * pot {
					x34 := x3 + x4
					y34 := y3 + y4
					my2 := min(2*pot, h-y34)
					mx2 := min(2*pot, w-x34)
					bestIdx3 := -1
					var bestVal3 float32
					dir3 := directions[s.randomPattern[n2]&0xF]

					for y2 := 0; y2 < my2; y2 += pot {
						for x2 := 0; x2 < mx2; x2 += pot {
							x234 := x2 + x34
							y234 := y2 + y34
							my1 := min(pot, h-y234)
							mx1 := min(pot, w-x234)
							bestIdx2 := -1
							var bestVal2 float32
							dir2 := directions[s.randomPattern[n2]&0xF]

							for y1 := range my1 {
								for x1 := range mx1 {
									xf := x1 + x234
									yf := y1 + y234
									if xf < borderMargin || xf >= w-borderMargin-1 || yf < borderMargin || yf > h-borderMargin {
										continue
									}
									idx := xf + w*yf
									pixelTH0 := s.thsSmoothed[min(xf>>5, s.w32-1)+min(yf>>5, s.h32-1)*s.w32]
									pixelTH1 := pixelTH0 * dw1
									pixelTH2 := pixelTH1 * dw2

									ag0 := absGrad0[idx]
									if ag0 > pixelTH0*thFactor {
										if v := dot(idx, dir2, ag0); v > bestVal2 {
											bestVal2 = v
											bestIdx2 = idx
											bestIdx3 = -2
											bestIdx4 = -2
										}
									}
									if bestIdx3 == -2 {
										continue
									}

									ag1 := levelGrad(f, 1, xf, yf)
									if ag1 > pixelTH1*thFactor {
										if v := dot(idx, dir3, ag1); v > bestVal3 {
											bestVal3 = v
											bestIdx3 = idx
											bestIdx4 = -2
										}
									}
									if bestIdx4 == -2 {
										continue
									}

									ag2 := levelGrad(f, 2, xf, yf)
									if ag2 > pixelTH2*thFactor {
										if v := dot(idx, dir4, ag2); v > bestVal4 {
											bestVal4 = v
											bestIdx4 = idx
										}
									}
								}
							}

							if bestIdx2 > 0 {
								mapOut[bestIdx2] = float32(Tier1)
								bestVal3 = 1e10
								n2++
							}
						}
					}

					if bestIdx3 > 0 {
						mapOut[bestIdx3] = float32(Tier2)
						bestVal4 = 1e10
						n3++
					}
				}
			}

			if bestIdx4 > 0 {
				mapOut[bestIdx4] = float32(Tier4)
				n4++
			}
		}
	}
	return n2, n3, n4
}
