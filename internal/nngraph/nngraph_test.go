package nngraph

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomLevel(rng *rand.Rand, n int, w, h float32) []Pos {
	pts := make([]Pos, n)
	for i := range pts {
		pts[i] = Pos{U: rng.Float32() * w, V: rng.Float32() * h}
	}
	return pts
}

func TestBuildNeighbourWeightsSumToConstant(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	levels := [][]Pos{
		randomLevel(rng, 400, 320, 240),
		randomLevel(rng, 150, 160, 120),
	}
	cfg := DefaultConfig()

	graph, err := Build(levels, cfg)
	require.NoError(t, err)
	require.Len(t, graph, 2)

	for lvl, links := range graph {
		require.Len(t, links, len(levels[lvl]))
		for i, l := range links {
			require.Equal(t, cfg.K, l.Neighbours.Len())
			var sum float32
			for k := range l.Neighbours.Len() {
				idx, w := l.Neighbours.At(k)
				assert.GreaterOrEqual(t, idx, 0)
				assert.Less(t, idx, len(levels[lvl]))
				assert.Positive(t, w)
				sum += w
			}
			assert.InDelta(t, cfg.WeightSum, sum, 1e-4)

			// the point itself is its own nearest neighbour
			self, _ := l.Neighbours.At(0)
			assert.Equal(t, i, self)
		}
	}
}

func TestBuildNeighboursSortedByDistance(t *testing.T) {
	pts := []Pos{{0, 0}, {1, 0}, {3, 0}, {6, 0}, {10, 0}}
	graph, err := Build([][]Pos{pts}, Config{K: 3, WeightSum: 10, DistFactor: 0.05})
	require.NoError(t, err)

	nb := graph[0][0].Neighbours
	require.Equal(t, 3, nb.Len())
	want := []int{0, 1, 2}
	prev := float32(100)
	for k := range nb.Len() {
		idx, w := nb.At(k)
		assert.Equal(t, want[k], idx)
		assert.LessOrEqual(t, w, prev)
		prev = w
	}
}

func TestBuildSmallLevelKeepsOnlyExistingPoints(t *testing.T) {
	graph, err := Build([][]Pos{{{1, 1}, {2, 2}, {5, 1}}}, DefaultConfig())
	require.NoError(t, err)
	for _, l := range graph[0] {
		assert.Equal(t, 3, l.Neighbours.Len())
	}
}

func TestBuildParentRemapsCoordinates(t *testing.T) {
	fine := []Pos{{4.5, 6.5}, {20.5, 20.5}}
	coarse := []Pos{{2, 3}, {10, 10}, {30, 2}}
	graph, err := Build([][]Pos{fine, coarse}, DefaultConfig())
	require.NoError(t, err)

	p, ok := graph[0][0].Parent.Index()
	require.True(t, ok)
	assert.Equal(t, 0, p)
	assert.InDelta(t, 1.0, graph[0][0].ParentWeight, 1e-6)

	p, ok = graph[0][1].Parent.Index()
	require.True(t, ok)
	assert.Equal(t, 1, p)

	for _, l := range graph[1] {
		assert.False(t, l.Parent.Valid())
	}
}

func TestBuildEmptyCoarserLevel(t *testing.T) {
	graph, err := Build([][]Pos{{{1, 1}, {4, 4}}, nil}, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, graph[1])
	assert.False(t, graph[0][0].Parent.Valid())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{K: 0, WeightSum: 10}.Validate())
	assert.Error(t, Config{K: 11, WeightSum: 10}.Validate())
	assert.Error(t, Config{K: 5, WeightSum: 0}.Validate())
	_, err := Build(nil, Config{})
	assert.Error(t, err)
}

// gridLevel places points on an integer lattice shifted by 0.1, the way the selectors
// do, so most points have several equidistant neighbours.
func gridLevel(w, h int) []Pos {
	pts := make([]Pos, 0, w*h)
	for y := range h {
		for x := range w {
			pts = append(pts, Pos{U: float32(x) + 0.1, V: float32(y) + 0.1})
		}
	}
	return pts
}

func TestBuildIsReproducibleOnLattice(t *testing.T) {
	levels := [][]Pos{gridLevel(20, 20), gridLevel(10, 10), gridLevel(5, 5)}

	first, err := Build(levels, DefaultConfig())
	require.NoError(t, err)
	for run := range 10 {
		again, err := Build(levels, DefaultConfig())
		require.NoError(t, err)
		require.Equal(t, first, again, "rebuild %d", run)
	}
}

func TestBuildBreaksTiesByIndex(t *testing.T) {
	pts := gridLevel(5, 5)

	tests := []struct {
		k    int
		want []int
	}{
		{k: 2, want: []int{0, 1}},
		{k: 3, want: []int{0, 1, 5}},
		{k: 5, want: []int{0, 1, 5, 6, 2}},
	}
	for _, tt := range tests {
		graph, err := Build([][]Pos{pts}, Config{K: tt.k, WeightSum: 10, DistFactor: 0.05})
		require.NoError(t, err)

		nb := graph[0][0].Neighbours
		got := make([]int, nb.Len())
		for k := range got {
			got[k], _ = nb.At(k)
		}
		assert.Equal(t, tt.want, got, "k=%d", tt.k)
	}
}

func TestBuildParentTieTakesLowestIndex(t *testing.T) {
	// (4.5, 4.5) maps to (2, 2) on the coarser level.
	fine := []Pos{{4.5, 4.5}}

	tests := []struct {
		name   string
		coarse []Pos
		want   int
	}{
		{name: "first of two", coarse: []Pos{{3, 2}, {1, 2}}, want: 0},
		{name: "after a far point", coarse: []Pos{{9, 9}, {2, 3}, {3, 2}, {1, 2}}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 5 {
				graph, err := Build([][]Pos{fine, tt.coarse}, DefaultConfig())
				require.NoError(t, err)
				p, ok := graph[0][0].Parent.Index()
				require.True(t, ok)
				assert.Equal(t, tt.want, p)
			}
		})
	}
}
