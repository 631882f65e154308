package initializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/vioinit/internal/frame"
	"github.com/MeKo-Tech/vioinit/internal/lie"
)

func calcRes(t *testing.T, in *Initializer, lvl int, refToNew lie.SE3, aff lie.AffLight, sys *system) energies {
	t.Helper()
	e, err := in.calcResAndGS(lvl, refToNew, aff, sys)
	require.NoError(t, err)
	return e
}

func TestResidualVanishesAtIdentity(t *testing.T) {
	in, scene := newAnchored(t, testOptions())
	f, err := scene.Frame(lie.Identity(), in.Levels(), 0)
	require.NoError(t, err)
	in.newFrame = f

	for _, d := range []float32{minIDepth, 1, 7.5, maxIDepth} {
		for lvl := range in.Levels() {
			pts := in.points[lvl]
			for i := range pts {
				pts[i].idepthNew = d
			}
			var sys system
			e := calcRes(t, in, lvl, lie.Identity(), lie.AffLight{}, &sys)
			for i := range pts {
				require.True(t, pts[i].isGoodNew, "level %d point %d depth %v", lvl, i, d)
			}
			assert.Less(t, e.Photometric/float64(len(pts)), 1e-2, "level %d depth %v", lvl, d)
		}
	}
}

func TestResidualIsHitMinusReference(t *testing.T) {
	in, scene := newAnchored(t, testOptions())
	img := scene.Render(lie.Identity())
	for i := range img {
		img[i] += 5
	}
	f, err := frame.New(img, sceneWidth, sceneHeight, in.Levels(), 0)
	require.NoError(t, err)
	in.newFrame = f

	const lvl = 1
	pts := in.points[lvl]
	var sys system
	e := calcRes(t, in, lvl, lie.Identity(), lie.AffLight{}, &sys)

	n := float64(len(pts))
	// every pattern pixel has residual +5, below the Huber threshold
	assert.InDelta(t, 200*n, e.Photometric, 200*n*1e-3)
	// ∂r/∂b = -1, so Σ J_b·r = -5 per pattern pixel
	assert.InDelta(t, -40*n, sys.B[7], 40*n*1e-3)
	for i := range pts {
		assert.InDelta(t, 200, pts[i].energyNew[0], 0.5)
	}

	// compensating the offset removes the residual
	e = calcRes(t, in, lvl, lie.Identity(), lie.AffLight{B: 5}, &sys)
	assert.Less(t, e.Photometric/n, 1e-2)
}

func TestResidualMarksOutOfImagePointsBad(t *testing.T) {
	in, scene := newAnchored(t, testOptions())
	f, err := scene.Frame(lie.Identity(), in.Levels(), 0)
	require.NoError(t, err)
	in.newFrame = f

	const lvl = 2
	pts := in.points[lvl]
	for i := range pts {
		pts[i].idepthNew = 1
		pts[i].Energy = [2]float32{3, 0}
	}
	var sys system
	// a sideways translation of 2 at unit depth moves every point far out of view
	e := calcRes(t, in, lvl, translated(2, 0, 0), lie.AffLight{}, &sys)
	for i := range pts {
		assert.False(t, pts[i].isGoodNew)
		assert.Equal(t, pts[i].Energy, pts[i].energyNew)
	}
	// bad points keep contributing their previous energy
	assert.InDelta(t, 3*float64(len(pts)), e.Photometric, 1e-3)
	for r := range 8 {
		assert.Zero(t, sys.Hsc[r][r])
	}
}

// The alpha terms are pushed into a finished energy accumulator: the returned count is
// twice the number of points and the depth part of the alpha energy is always zero.
func TestAlphaEnergyAccumulatorQuirk(t *testing.T) {
	in, scene := newAnchored(t, testOptions())
	f, err := scene.Frame(lie.Identity(), in.Levels(), 0)
	require.NoError(t, err)
	in.newFrame = f

	const lvl = 2
	pts := in.points[lvl]
	n := len(pts)
	for i := range pts {
		pts[i].idepthNew = 2
	}

	var sys system
	e := calcRes(t, in, lvl, lie.Identity(), lie.AffLight{}, &sys)
	assert.Equal(t, 2*n, e.Num)
	assert.Zero(t, e.Alpha)
	for i := range pts {
		assert.Equal(t, float32(1), pts[i].energyNew[1])
	}

	e = calcRes(t, in, lvl, translated(0.01, 0, 0), lie.AffLight{}, &sys)
	assert.InDelta(t, 2.25*float64(n), float64(e.Alpha), 1e-3*float64(n))

	e = calcRes(t, in, lvl, translated(0.05, 0, 0), lie.AffLight{}, &sys)
	assert.Equal(t, in.opts.AlphaK*float32(n), e.Alpha)
}

func TestCalcECZeroUntilSnapped(t *testing.T) {
	in := bareInitializer([]Point{
		{IDepth: 2, IR: 1, idepthNew: 3, isGoodNew: true},
		{IDepth: 5, IR: 1, idepthNew: 5, isGoodNew: false},
	})
	old, trial, num := in.calcEC(0)
	assert.Zero(t, old)
	assert.Zero(t, trial)
	assert.Equal(t, 2, num)

	in.snapped = true
	old, trial, num = in.calcEC(0)
	assert.InDelta(t, 1, old, 1e-9)
	assert.InDelta(t, 4, trial, 1e-9)
	assert.Equal(t, 1, num)
}
