package initializer

import (
	"slices"

	"github.com/MeKo-Tech/vioinit/internal/nngraph"
)

// optReg pulls each good point's IR toward the median IR of its good neighbours.
// Points are updated in order, so later points see earlier results. It does nothing
// before the initializer has snapped. A second call only leaves IR unchanged where each
// point's IDepth already agrees with the median of its neighbours.
func (in *Initializer) optReg(lvl int) {
	if !in.snapped {
		return
	}
	pts := in.points[lvl]
	regWeight := in.opts.RegWeight

	var idnn [nngraph.MaxNeighbours]float32
	for i := range pts {
		p := &pts[i]
		if !p.IsGood {
			continue
		}
		nnn := 0
		for k := range p.neighbours.Len() {
			j, _ := p.neighbours.At(k)
			if !pts[j].IsGood {
				continue
			}
			idnn[nnn] = pts[j].IR
			nnn++
		}
		if nnn > 2 {
			slices.Sort(idnn[:nnn])
			p.IR = (1-regWeight)*p.IDepth + regWeight*idnn[nnn/2]
		}
	}
}

// propagateUp replaces the depths of level srcLvl+1 with the Hessian-weighted mean of
// their good children on srcLvl.
func (in *Initializer) propagateUp(srcLvl int) {
	src := in.points[srcLvl]
	dst := in.points[srcLvl+1]

	for i := range dst {
		dst[i].IR = 0
		dst[i].irSum = 0
	}

	for i := range src {
		p := &src[i]
		if !p.IsGood {
			continue
		}
		j, ok := p.parent.Index()
		if !ok {
			continue
		}
		parent := &dst[j]
		parent.IR += p.IR * p.LastHessian
		parent.irSum += p.LastHessian
	}

	for i := range dst {
		parent := &dst[i]
		if parent.irSum > 0 {
			parent.IR /= parent.irSum
			parent.IDepth = parent.IR
			parent.IsGood = true
		}
	}

	in.optReg(srcLvl + 1)
}

// propagateDown seeds level srcLvl-1 from the confident good points of srcLvl: bad
// points inherit their parent's IR, good points blend with it.
func (in *Initializer) propagateDown(srcLvl int) {
	src := in.points[srcLvl]
	dst := in.points[srcLvl-1]
	floor := in.opts.ParentHessianFloor

	for i := range dst {
		p := &dst[i]
		j, ok := p.parent.Index()
		if !ok {
			continue
		}
		parent := &src[j]
		if !parent.IsGood || parent.LastHessian < floor {
			continue
		}

		if !p.IsGood {
			p.IR = parent.IR
			p.IDepth = parent.IR
			p.idepthNew = parent.IR
			p.IsGood = true
			p.LastHessian = 0
			continue
		}
		newIR := (p.IR*p.LastHessian*2 + parent.IR*parent.LastHessian) /
			(p.LastHessian*2 + parent.LastHessian)
		p.IR = newIR
		p.IDepth = newIR
		p.idepthNew = newIR
	}

	in.optReg(srcLvl - 1)
}
