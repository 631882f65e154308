package accum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulator9BatchMatchesSingle(t *testing.T) {
	var batched, single Accumulator9
	batched.Initialize()
	single.Initialize()

	var j [8][Lanes]float32
	var r [Lanes]float32
	for l := range Lanes {
		var row [8]float32
		for k := range 8 {
			j[k][l] = float32(k+1) * float32(l+1) * 0.5
			row[k] = j[k][l]
		}
		r[l] = float32(l) - 1.5
		single.UpdateSingle(row, r[l])
	}
	batched.UpdateBatch(&j, &r)
	batched.Finish()
	single.Finish()

	assert.Equal(t, 4, batched.Num)
	assert.Equal(t, 4, single.Num)
	for row := range Dim {
		for col := range Dim {
			assert.InDelta(t, single.H[row][col], batched.H[row][col], 1e-3)
		}
	}
	h, b := batched.Normal()
	assert.InDelta(t, batched.H[2][5], h[2][5], 0)
	assert.InDelta(t, batched.H[5][2], h[5][2], 0)
	assert.InDelta(t, batched.H[3][8], b[3], 0)
}

func TestAccumulator9Weighted(t *testing.T) {
	var a Accumulator9
	a.Initialize()
	a.UpdateSingleWeighted([8]float32{1, 2, 0, 0, 0, 0, 0, 0}, 3, 0.5)
	a.Finish()
	assert.InDelta(t, 0.5, a.H[0][0], 1e-9)
	assert.InDelta(t, 1.0, a.H[0][1], 1e-9)
	assert.InDelta(t, 1.0, a.H[1][0], 1e-9)
	assert.InDelta(t, 2.0, a.H[1][1], 1e-9)
	assert.InDelta(t, 3.0, a.H[1][8], 1e-9)
	assert.InDelta(t, 4.5, a.H[8][8], 1e-9)
}

func TestAccumulator9FoldsLongRuns(t *testing.T) {
	var a Accumulator9
	a.Initialize()
	for range 5000 {
		a.UpdateSingle([8]float32{1}, 0)
	}
	a.Finish()
	assert.InDelta(t, 5000.0, a.H[0][0], 1e-9)
	assert.Equal(t, 5000, a.Num)
}

func TestEnergyUpdatesAfterFinish(t *testing.T) {
	var e Energy
	e.Initialize()
	e.UpdateSingle(2)
	e.UpdateSingle(3)
	e.Finish()
	assert.InDelta(t, 5.0, e.A, 1e-9)

	e.UpdateSingle(100)
	assert.InDelta(t, 5.0, e.A, 1e-9)
	assert.Equal(t, 3, e.Num)
}
