// Package nngraph links selected points to their nearest same-level neighbours and to
// their nearest point on the next coarser pyramid level.
package nngraph

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// MaxNeighbours is the capacity of a Neighbours set.
const MaxNeighbours = 10

// Ref is an optional point index within one pyramid level.
type Ref struct {
	idx   int32
	valid bool
}

// None is the absent reference.
var None = Ref{}

// At returns a reference to point i.
func At(i int) Ref { return Ref{idx: int32(i), valid: true} }

// Index returns the referenced point and whether the reference is present.
func (r Ref) Index() (int, bool) { return int(r.idx), r.valid }

// Valid reports whether the reference is present.
func (r Ref) Valid() bool { return r.valid }

// Neighbours is a fixed-capacity set of same-level point indices with their weights,
// ordered nearest first.
type Neighbours struct {
	n       uint8
	idx     [MaxNeighbours]int32
	weights [MaxNeighbours]float32
}

// Len returns the number of stored neighbours.
func (n *Neighbours) Len() int { return int(n.n) }

// At returns the k-th neighbour index and its weight.
func (n *Neighbours) At(k int) (int, float32) { return int(n.idx[k]), n.weights[k] }

func (n *Neighbours) add(idx int, weight float32) {
	n.idx[n.n] = int32(idx)
	n.weights[n.n] = weight
	n.n++
}

// Pos is a point position in its level's pixel grid.
type Pos struct{ U, V float32 }

// Link is the graph entry of one point.
type Link struct {
	Neighbours Neighbours
	// Parent is the nearest point on the next coarser level; None on the coarsest level.
	Parent       Ref
	ParentWeight float32
}

// Config controls neighbour count and weighting.
type Config struct {
	K          int     // neighbours per point, the point itself included
	WeightSum  float32 // neighbour weights of each point sum to this value
	DistFactor float32 // weight = exp(-squaredDistance * DistFactor)
}

// DefaultConfig returns 10 neighbours with weights summing to 10.
func DefaultConfig() Config {
	return Config{K: 10, WeightSum: 10, DistFactor: 0.05}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.K < 1 || c.K > MaxNeighbours {
		return fmt.Errorf("neighbour count %d out of range [1, %d]", c.K, MaxNeighbours)
	}
	if c.WeightSum <= 0 {
		return errors.New("neighbour weight sum must be positive")
	}
	if c.DistFactor < 0 {
		return errors.New("neighbour distance factor must not be negative")
	}
	return nil
}

// Build returns one Link per point for each level; levels are ordered finest first.
func Build(levels [][]Pos, cfg Config) ([][]Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	trees := make([]*kdtree.Tree, len(levels))
	for lvl, pts := range levels {
		trees[lvl] = newTree(pts)
	}

	out := make([][]Link, len(levels))
	for lvl, pts := range levels {
		links := make([]Link, len(pts))
		for i, p := range pts {
			q := node{p: [2]float64{float64(p.U), float64(p.V)}}
			links[i].Neighbours = nearest(trees[lvl], q, cfg)

			if lvl+1 < len(levels) && len(levels[lvl+1]) > 0 {
				parentQuery := node{p: [2]float64{q.p[0]*0.5 - 0.25, q.p[1]*0.5 - 0.25}}
				if found := nearestK(trees[lvl+1], parentQuery, 1); len(found) == 1 {
					links[i].Parent = At(found[0].Comparable.(node).idx)
					links[i].ParentWeight = float32(math.Exp(-found[0].Dist * float64(cfg.DistFactor)))
				}
			}
		}
		out[lvl] = links
	}
	return out, nil
}

// nearestK returns the k points closest to q ordered by (distance, index). Points tied
// with the k-th distance are all gathered first, so the result does not depend on the
// shape of the tree or on the order its search visits equidistant points.
func nearestK(tree *kdtree.Tree, q node, k int) []kdtree.ComparableDist {
	if tree.Root == nil || k < 1 {
		return nil
	}
	keeper := kdtree.NewNKeeper(k)
	tree.NearestSet(keeper, q)

	var radius float64
	n := 0
	for _, cd := range keeper.Heap {
		if cd.Comparable != nil {
			radius = max(radius, cd.Dist)
			n++
		}
	}
	if n == 0 {
		return nil
	}

	ties := kdtree.NewDistKeeper(radius)
	tree.NearestSet(ties, q)
	found := make([]kdtree.ComparableDist, 0, len(ties.Heap))
	for _, cd := range ties.Heap {
		if cd.Comparable != nil {
			found = append(found, cd)
		}
	}
	sort.Slice(found, func(a, b int) bool {
		if found[a].Dist != found[b].Dist {
			return found[a].Dist < found[b].Dist
		}
		return found[a].Comparable.(node).idx < found[b].Comparable.(node).idx
	})
	if len(found) > k {
		found = found[:k]
	}
	return found
}

func nearest(tree *kdtree.Tree, q node, cfg Config) Neighbours {
	var nb Neighbours
	found := nearestK(tree, q, cfg.K)

	var sum float64
	dfs := make([]float64, len(found))
	for k, cd := range found {
		dfs[k] = math.Exp(-cd.Dist * float64(cfg.DistFactor))
		sum += dfs[k]
	}
	for k, cd := range found {
		nb.add(cd.Comparable.(node).idx, float32(dfs[k]*float64(cfg.WeightSum)/sum))
	}
	return nb
}

// node is a kd-tree entry carrying the point's index.
type node struct {
	p   [2]float64
	idx int
}

func (n node) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return n.p[d] - c.(node).p[d]
}

func (n node) Dims() int { return 2 }

// Distance returns the squared Euclidean distance.
func (n node) Distance(c kdtree.Comparable) float64 {
	o := c.(node)
	dx := n.p[0] - o.p[0]
	dy := n.p[1] - o.p[1]
	return dx*dx + dy*dy
}

type nodes []node

func newTree(pts []Pos) *kdtree.Tree {
	ns := make(nodes, len(pts))
	for i, p := range pts {
		ns[i] = node{p: [2]float64{float64(p.U), float64(p.V)}, idx: i}
	}
	return kdtree.New(ns, false)
}

func (s nodes) Index(i int) kdtree.Comparable         { return s[i] }
func (s nodes) Len() int                              { return len(s) }
func (s nodes) Pivot(d kdtree.Dim) int                { return plane{nodes: s, dim: d}.Pivot() }
func (s nodes) Slice(start, end int) kdtree.Interface { return s[start:end] }

// plane orders nodes along one dimension, then by index, for median partitioning.
type plane struct {
	nodes
	dim kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	a, b := p.nodes[i], p.nodes[j]
	if a.p[p.dim] != b.p[p.dim] {
		return a.p[p.dim] < b.p[p.dim]
	}
	return a.idx < b.idx
}

func (p plane) Swap(i, j int) { p.nodes[i], p.nodes[j] = p.nodes[j], p.nodes[i] }

// Pivot sorts the nodes along the plane and returns the median index.
func (p plane) Pivot() int {
	sort.Sort(p)
	return p.Len() / 2
}

