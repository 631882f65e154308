package initializer

import (
	"math"

	"github.com/MeKo-Tech/vioinit/internal/lie"
	"github.com/MeKo-Tech/vioinit/internal/metrics"
)

const (
	initialLambda = 0.1
	minLambda     = 1e-4
	maxLambda     = 1e4
	incrementEps  = 1e-4
	maxFails      = 2
	idMaxStep     = 1e10
)

// optimizeLevel runs damped Gauss-Newton on one level, updating refToNew and aff in place.
func (in *Initializer) optimizeLevel(lvl int, refToNew *lie.SE3, aff *lie.AffLight) (LevelStats, error) {
	stats := LevelStats{Level: lvl}
	npts := len(in.points[lvl])

	in.resetPoints(lvl)
	var sys system
	resOld, err := in.calcResAndGS(lvl, *refToNew, *aff, &sys)
	if err != nil {
		return stats, err
	}
	in.applyStep(lvl)

	lambda := initialLambda
	fails := 0
	for iteration := 0; ; iteration++ {
		inc := in.solveStep(lvl, &sys, lambda)
		incNorm := 0.0
		for _, v := range inc {
			incNorm += v * v
		}
		incNorm = math.Sqrt(incNorm)

		refToNewNew := lie.Exp(lie.Tangent(inc[:6])).Mul(*refToNew)
		affNew := *aff
		affNew.A += inc[6]
		affNew.B += inc[7]
		in.doStep(lvl, float32(lambda), inc)

		var sysNew system
		resNew, err := in.calcResAndGS(lvl, refToNewNew, affNew, &sysNew)
		if err != nil {
			return stats, err
		}
		regOld, regNew, _ := in.calcEC(lvl)

		eTotalNew := resNew.Photometric + float64(resNew.Alpha) + regNew
		eTotalOld := resOld.Photometric + float64(resOld.Alpha) + regOld
		accept := eTotalOld > eTotalNew

		if in.opts.PrintDebug {
			num := float64(max(resNew.Num, 1))
			in.logger.Debug("initializer iteration",
				"level", lvl,
				"iteration", iteration,
				"lambda", lambda,
				"accept", accept,
				"photometric_old", math.Sqrt(resOld.Photometric/num),
				"alpha_old", math.Sqrt(float64(resOld.Alpha)/num),
				"photometric_new", math.Sqrt(resNew.Photometric/num),
				"alpha_new", math.Sqrt(float64(resNew.Alpha)/num),
				"total_old", eTotalOld/num,
				"total_new", eTotalNew/num,
				"inc_norm", incNorm,
				"pose", refToNewNew.String())
		}
		metrics.ObserveIteration(lvl, accept)

		if accept {
			if resNew.Alpha == in.opts.AlphaK*float32(npts) {
				in.snapped = true
			}
			sys = sysNew
			resOld = resNew
			*aff = affNew
			*refToNew = refToNewNew
			in.applyStep(lvl)
			in.optReg(lvl)
			lambda = max(lambda*0.5, minLambda)
			fails = 0
			stats.Accepted++
		} else {
			fails++
			lambda = min(lambda*4, maxLambda)
			stats.Rejected++
		}
		stats.Iterations = iteration + 1

		if !(incNorm > incrementEps) || iteration >= in.opts.MaxIterations[lvl] || fails >= maxFails {
			break
		}
	}

	stats.Lambda = lambda
	if resOld.Num > 0 {
		stats.Energy = resOld.Photometric / float64(resOld.Num)
	}
	stats.Alpha = float64(resOld.Alpha)
	stats.GoodPoints = in.goodPoints(lvl)
	return stats, nil
}

// solveStep solves the damped, Schur-reduced system for the parameter increment.
func (in *Initializer) solveStep(lvl int, sys *system, lambda float64) [8]float64 {
	wM := in.opts.paramScale()
	scale := 0.01 / float64(in.pyr[lvl].Width*in.pyr[lvl].Height)
	damp := 1 + lambda

	var hl [8][8]float64
	var bl [8]float64
	for r := range 8 {
		for c := range 8 {
			v := sys.H[r][c]
			if r == c {
				v *= damp
			}
			v -= sys.Hsc[r][c] / damp
			hl[r][c] = wM[r] * v * wM[c] * scale
		}
		bl[r] = wM[r] * (sys.B[r] - sys.Bsc[r]/damp) * scale
	}

	n := 8
	if in.opts.FixAffine {
		n = 6
	}
	a := make([]float64, n*n)
	for r := range n {
		copy(a[r*n:(r+1)*n], hl[r][:n])
	}
	x, ok := solveLinear(n, a, bl[:n])

	var inc [8]float64
	if !ok {
		return inc
	}
	for k := range n {
		inc[k] = -wM[k] * x[k]
	}
	return inc
}

// doStep back-substitutes the trial depth of every good point from its Jacobian buffer.
func (in *Initializer) doStep(lvl int, lambda float32, inc [8]float64) {
	pts := in.points[lvl]
	maxPixelStep := in.opts.MaxPixelStep
	for i := range pts {
		p := &pts[i]
		if !p.IsGood {
			continue
		}
		jb := in.jb[i*jbStride : (i+1)*jbStride]
		b := jb[8]
		for k := range 8 {
			b += jb[k] * float32(inc[k])
		}
		step := -b * jb[9] / (1 + lambda)

		maxStep := min(maxPixelStep*p.maxStep, idMaxStep)
		step = min(max(step, -maxStep), maxStep)

		p.idepthNew = min(max(p.IDepth+step, minIDepth), maxIDepth)
	}
}

// applyStep commits the trial state of a level and swaps the Jacobian buffers.
func (in *Initializer) applyStep(lvl int) {
	pts := in.points[lvl]
	for i := range pts {
		p := &pts[i]
		if !p.IsGood {
			p.IDepth = p.IR
			p.idepthNew = p.IR
			continue
		}
		p.Energy = p.energyNew
		p.IsGood = p.isGoodNew
		p.IDepth = p.idepthNew
		p.LastHessian = p.lastHessianNew
	}
	in.jb, in.jbNew = in.jbNew, in.jb
}

// resetPoints clears point energies and trial depths at the start of a level. On the
// coarsest level a bad point with good neighbours is revived at their mean IR.
func (in *Initializer) resetPoints(lvl int) {
	pts := in.points[lvl]
	coarsest := lvl == in.pyr.Levels()-1
	for i := range pts {
		p := &pts[i]
		p.Energy = [2]float32{}
		p.idepthNew = p.IDepth

		if !coarsest || p.IsGood {
			continue
		}
		var snd, sn float32
		for k := range p.neighbours.Len() {
			j, _ := p.neighbours.At(k)
			if !pts[j].IsGood {
				continue
			}
			snd += pts[j].IR
			sn++
		}
		if sn > 0 {
			p.IsGood = true
			p.IR = snd / sn
			p.IDepth = p.IR
			p.idepthNew = p.IR
		}
	}
}
