package initializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/vioinit/internal/calib"
	"github.com/MeKo-Tech/vioinit/internal/nngraph"
)

func bareInitializer(levels ...[]Point) *Initializer {
	return &Initializer{
		opts:   DefaultOptions(),
		pyr:    make(calib.Pyramid, len(levels)),
		points: levels,
	}
}

// link fills the neighbour sets of pts from their positions.
func link(t *testing.T, pts []Point) {
	t.Helper()
	pos := make([]nngraph.Pos, len(pts))
	for i := range pts {
		pos[i] = nngraph.Pos{U: pts[i].U, V: pts[i].V}
	}
	graph, err := nngraph.Build([][]nngraph.Pos{pos}, nngraph.DefaultConfig())
	require.NoError(t, err)
	for i := range pts {
		pts[i].neighbours = graph[0][i].Neighbours
	}
}

func TestPropagateUpHessianWeightedMean(t *testing.T) {
	fine := []Point{
		{IsGood: true, IR: 3, LastHessian: 2, parent: nngraph.At(0)},
		{IsGood: true, IR: 6, LastHessian: 1, parent: nngraph.At(0)},
		{IsGood: false, IR: 40, LastHessian: 9, parent: nngraph.At(0)},
	}
	coarse := []Point{
		{IR: 1, IDepth: 1},
		{IR: 7, IDepth: 7},
	}
	in := bareInitializer(fine, coarse)

	in.propagateUp(0)

	assert.InDelta(t, 4.0, coarse[0].IR, 1e-6)
	assert.InDelta(t, 4.0, coarse[0].IDepth, 1e-6)
	assert.True(t, coarse[0].IsGood)

	// no children: target reset, depth untouched
	assert.Zero(t, coarse[1].IR)
	assert.InDelta(t, 7.0, coarse[1].IDepth, 1e-6)
	assert.False(t, coarse[1].IsGood)
}

func TestPropagateDown(t *testing.T) {
	coarse := []Point{
		{IsGood: true, IR: 2, LastHessian: 3},
		{IsGood: true, IR: 9, LastHessian: 0.05},
		{IsGood: false, IR: 9, LastHessian: 3},
	}
	fine := []Point{
		{IsGood: false, IR: 1, IDepth: 1, LastHessian: 4, parent: nngraph.At(0)},
		{IsGood: true, IR: 1, IDepth: 1, LastHessian: 1.5, parent: nngraph.At(0)},
		{IsGood: true, IR: 1, IDepth: 1, LastHessian: 1, parent: nngraph.At(1)},
		{IsGood: false, IR: 1, IDepth: 1, LastHessian: 1, parent: nngraph.At(2)},
	}
	in := bareInitializer(fine, coarse)

	in.propagateDown(1)

	// bad child inherits its parent
	assert.True(t, fine[0].IsGood)
	assert.InDelta(t, 2.0, fine[0].IR, 1e-6)
	assert.InDelta(t, 2.0, fine[0].IDepth, 1e-6)
	assert.InDelta(t, 2.0, fine[0].idepthNew, 1e-6)
	assert.Zero(t, fine[0].LastHessian)

	// good child blends: (1·1.5·2 + 2·3) / (1.5·2 + 3)
	assert.InDelta(t, 1.5, fine[1].IR, 1e-6)
	assert.InDelta(t, 1.5, fine[1].IDepth, 1e-6)

	// unconfident or bad parents are ignored
	assert.InDelta(t, 1.0, fine[2].IR, 1e-6)
	assert.False(t, fine[3].IsGood)
}

func TestOptRegNoopBeforeSnap(t *testing.T) {
	pts := []Point{
		{U: 0, V: 0, IsGood: true, IDepth: 1, IR: 1},
		{U: 1, V: 0, IsGood: true, IDepth: 2, IR: 2},
		{U: 0, V: 1, IsGood: true, IDepth: 3, IR: 3},
		{U: 1, V: 1, IsGood: true, IDepth: 4, IR: 4},
	}
	link(t, pts)
	in := bareInitializer(pts)

	in.optReg(0)
	for i := range pts {
		assert.Equal(t, float32(i+1), pts[i].IR)
	}
}

func TestOptRegMedianBlend(t *testing.T) {
	pts := []Point{
		{U: 0, V: 0, IsGood: true, IDepth: 1, IR: 1},
		{U: 1, V: 0, IsGood: true, IDepth: 2, IR: 2},
		{U: 0, V: 1, IsGood: true, IDepth: 3, IR: 3},
		{U: 1, V: 1, IsGood: true, IDepth: 4, IR: 4},
		{U: 2, V: 2, IsGood: true, IDepth: 5, IR: 5},
		{U: 3, V: 3, IsGood: false, IDepth: 40, IR: 40},
	}
	link(t, pts)
	in := bareInitializer(pts)
	in.snapped = true

	in.optReg(0)

	// good neighbours of point 0 (itself included) have IR 1..5, median 3
	assert.InDelta(t, 0.2*1+0.8*3, pts[0].IR, 1e-5)
	assert.InDelta(t, 40, pts[5].IR, 1e-6)
}

func TestOptRegNeedsThreeGoodNeighbours(t *testing.T) {
	pts := []Point{
		{U: 0, V: 0, IsGood: true, IDepth: 1, IR: 5},
		{U: 1, V: 0, IsGood: true, IDepth: 2, IR: 2},
		{U: 9, V: 9, IsGood: false, IDepth: 3, IR: 3},
	}
	link(t, pts)
	in := bareInitializer(pts)
	in.snapped = true

	in.optReg(0)
	assert.Equal(t, float32(5), pts[0].IR)
	assert.Equal(t, float32(2), pts[1].IR)
}

func TestOptRegIdempotentOnConsistentField(t *testing.T) {
	var pts []Point
	for y := range 6 {
		for x := range 6 {
			pts = append(pts, Point{U: float32(3 * x), V: float32(3 * y), IsGood: true, IDepth: 2.5, IR: 2.5})
		}
	}
	link(t, pts)
	in := bareInitializer(pts)
	in.snapped = true

	in.optReg(0)
	first := make([]float32, len(pts))
	for i := range pts {
		first[i] = pts[i].IR
		assert.InDelta(t, 2.5, pts[i].IR, 1e-6)
	}

	in.optReg(0)
	for i := range pts {
		assert.InDelta(t, first[i], pts[i].IR, 1e-6)
	}
}

func TestOptRegRepeatedCallsKeepBlending(t *testing.T) {
	var pts []Point
	for y := range 6 {
		for x := range 6 {
			d := 1 + float32((7*x+3*y)%5)*0.5
			pts = append(pts, Point{U: float32(3 * x), V: float32(3 * y), IsGood: true, IDepth: d, IR: d})
		}
	}
	link(t, pts)
	in := bareInitializer(pts)
	in.snapped = true

	snapshot := func() (ir, depth []float32) {
		for _, p := range pts {
			ir = append(ir, p.IR)
			depth = append(depth, p.IDepth)
		}
		return ir, depth
	}

	in.optReg(0)
	firstIR, firstDepth := snapshot()
	in.optReg(0)
	secondIR, secondDepth := snapshot()

	// IDepth is blended in again on every call, so a varied field keeps moving.
	assert.NotEqual(t, firstIR, secondIR)
	assert.Equal(t, firstDepth, secondDepth)
	for i, ir := range secondIR {
		assert.GreaterOrEqual(t, ir, float32(1), "point %d", i)
		assert.LessOrEqual(t, ir, float32(3), "point %d", i)
	}
}
