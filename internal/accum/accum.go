// Package accum provides fixed-width batched accumulators for normal equations and
// energies. Values are summed into Lanes float32 lanes that are folded into float64
// every foldEvery updates; the summation order is fixed so results are reproducible.
package accum

// Lanes is the batch width of UpdateBatch.
const Lanes = 4

// Dim is the size of the accumulated vector: 8 parameters plus one residual.
const Dim = 9

const (
	triSize   = Dim * (Dim + 1) / 2
	foldEvery = 1000
)

// Accumulator9 accumulates the upper triangle of v·vᵀ for v = [J₀ … J₇, r].
// H holds the symmetric result after Finish.
type Accumulator9 struct {
	H   [Dim][Dim]float64
	Num int

	lanes  [triSize][Lanes]float32
	folded [triSize]float64
	numIn  int
}

// Initialize clears all state.
func (a *Accumulator9) Initialize() {
	*a = Accumulator9{}
}

// UpdateBatch adds Lanes residual rows at once. j[k][l] is ∂r_l/∂p_k.
func (a *Accumulator9) UpdateBatch(j *[8][Lanes]float32, r *[Lanes]float32) {
	var v [Dim]*[Lanes]float32
	for k := range 8 {
		v[k] = &j[k]
	}
	v[8] = r

	idx := 0
	for row := range Dim {
		for col := row; col < Dim; col++ {
			acc := &a.lanes[idx]
			for l := range Lanes {
				acc[l] += v[row][l] * v[col][l]
			}
			idx++
		}
	}
	a.Num += Lanes
	a.numIn++
	a.shiftUp(false)
}

// UpdateSingle adds one residual row into the first lane.
func (a *Accumulator9) UpdateSingle(j [8]float32, r float32) {
	a.UpdateSingleWeighted(j, r, 1)
}

// UpdateSingleWeighted adds w·v·vᵀ for v = [j, r] into the first lane.
func (a *Accumulator9) UpdateSingleWeighted(j [8]float32, r, w float32) {
	var v [Dim]float32
	copy(v[:8], j[:])
	v[8] = r

	idx := 0
	for row := range Dim {
		wr := w * v[row]
		for col := row; col < Dim; col++ {
			a.lanes[idx][0] += wr * v[col]
			idx++
		}
	}
	a.Num++
	a.numIn++
	a.shiftUp(false)
}

func (a *Accumulator9) shiftUp(force bool) {
	if a.numIn < foldEvery && !force {
		return
	}
	for i := range a.lanes {
		for l := range Lanes {
			a.folded[i] += float64(a.lanes[i][l])
		}
		a.lanes[i] = [Lanes]float32{}
	}
	a.numIn = 0
}

// Finish folds the remaining lanes and fills the symmetric H.
func (a *Accumulator9) Finish() {
	a.shiftUp(true)
	idx := 0
	for row := range Dim {
		for col := row; col < Dim; col++ {
			a.H[row][col] = a.folded[idx]
			a.H[col][row] = a.folded[idx]
			idx++
		}
	}
}

// Normal returns the 8×8 parameter block and the 8-vector Σ J·r of H.
func (a *Accumulator9) Normal() (h [8][8]float64, b [8]float64) {
	for row := range 8 {
		for col := range 8 {
			h[row][col] = a.H[row][col]
		}
		b[row] = a.H[row][8]
	}
	return h, b
}

// Energy accumulates a scalar sum and a count. Updates made after Finish change
// Num but not A until Finish is called again.
type Energy struct {
	A   float64
	Num int

	pending float32
	folded  float64
	numIn   int
}

// Initialize clears all state.
func (e *Energy) Initialize() { *e = Energy{} }

// UpdateSingle adds one value.
func (e *Energy) UpdateSingle(v float32) {
	e.pending += v
	e.Num++
	e.numIn++
	if e.numIn >= foldEvery {
		e.folded += float64(e.pending)
		e.pending = 0
		e.numIn = 0
	}
}

// Finish publishes the sum in A.
func (e *Energy) Finish() {
	e.folded += float64(e.pending)
	e.pending = 0
	e.numIn = 0
	e.A = e.folded
}
