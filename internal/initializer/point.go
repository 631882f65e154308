package initializer

import "github.com/MeKo-Tech/vioinit/internal/nngraph"

const (
	patternNum     = 8
	patternPadding = 2
	jbStride       = 10

	minIDepth = 1e-3
	maxIDepth = 50
)

// pattern holds the pixel offsets summed into each point's residual.
var pattern = [patternNum][2]int{
	{0, -2}, {-1, -1}, {1, -1}, {-2, 0}, {0, 0}, {2, 0}, {-1, 1}, {0, 2},
}

// Point is a candidate pixel of the anchor frame with its inverse-depth state.
type Point struct {
	U, V float32 // position in the level's pixel grid

	IDepth      float32
	IR          float32 // regularization target
	LastHessian float32 // curvature of the loss w.r.t. the point's own depth
	IsGood      bool
	Energy      [2]float32 // photometric, alpha
	Type        float32    // selector tier on level 0, 1 elsewhere
	OutlierTH   float32

	idepthNew      float32
	isGoodNew      bool
	energyNew      [2]float32
	lastHessianNew float32
	maxStep        float32
	irSum          float32

	neighbours   nngraph.Neighbours
	parent       nngraph.Ref
	parentWeight float32
}

// Neighbours returns the same-level neighbour set.
func (p *Point) Neighbours() *nngraph.Neighbours { return &p.neighbours }

// Parent returns the nearest point on the next coarser level.
func (p *Point) Parent() nngraph.Ref { return p.parent }

// ParentWeight returns exp(-d*f) for the squared distance d to the parent, 0 without one.
func (p *Point) ParentWeight() float32 { return p.parentWeight }
