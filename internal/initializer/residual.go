package initializer

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/vioinit/internal/accum"
	"github.com/MeKo-Tech/vioinit/internal/frame"
	"github.com/MeKo-Tech/vioinit/internal/lie"
)

const patternBatches = patternNum / accum.Lanes

// system is the reduced pose+affine normal equation and its Schur-complement correction.
type system struct {
	H, Hsc [8][8]float64
	B, Bsc [8]float64
}

// energies is the result of one residual pass.
type energies struct {
	Photometric float64
	Alpha       float32
	Num         int
}

func finite32(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// calcResAndGS evaluates all points of a level at the trial depths idepthNew under
// refToNew/aff, fills the trial Jacobian buffers and returns the normal equations in sys.
func (in *Initializer) calcResAndGS(lvl int, refToNew lie.SE3, aff lie.AffLight, sys *system) (energies, error) {
	l := in.pyr[lvl]
	wl, hl := l.Width, l.Height
	colorRef := in.first.Level(lvl)
	colorNew := in.newFrame.Level(lvl)

	rot := refToNew.R.Matrix()
	var rki [3][3]float32
	for r := range 3 {
		rki[r][0] = float32(rot[r][0] * l.Fxi)
		rki[r][1] = float32(rot[r][1] * l.Fyi)
		rki[r][2] = float32(rot[r][0]*l.Cxi + rot[r][1]*l.Cyi + rot[r][2])
	}
	t := [3]float32{float32(refToNew.T.X), float32(refToNew.T.Y), float32(refToNew.T.Z)}
	gain := float32(aff.Gain())
	offset := float32(aff.B)
	fxl, fyl := float32(l.Fx), float32(l.Fy)
	cxl, cyl := float32(l.Cx), float32(l.Cy)
	huberTH := in.opts.HuberTH

	for tid := range in.acc9s {
		in.acc9s[tid].Initialize()
		in.accE[tid].Initialize()
	}

	pts := in.points[lvl]
	err := in.reducer.Reduce(func(lo, hi, tid int) {
		acc9 := &in.acc9s[tid]
		accE := &in.accE[tid]

		for i := lo; i < hi; i++ {
			p := &pts[i]
			p.maxStep = 1e10

			if !p.IsGood {
				accE.UpdateSingle(p.Energy[0])
				p.energyNew = p.Energy
				p.isGoodNew = false
				continue
			}

			var dp [patternBatches][8][accum.Lanes]float32
			var res [patternBatches][accum.Lanes]float32
			jb := in.jbNew[i*jbStride : (i+1)*jbStride]
			clear(jb)

			good := true
			var energy float32
			for idx, off := range pattern {
				px := p.U + float32(off[0])
				py := p.V + float32(off[1])

				ptX := rki[0][0]*px + rki[0][1]*py + rki[0][2] + t[0]*p.idepthNew
				ptY := rki[1][0]*px + rki[1][1]*py + rki[1][2] + t[1]*p.idepthNew
				ptZ := rki[2][0]*px + rki[2][1]*py + rki[2][2] + t[2]*p.idepthNew

				u := ptX / ptZ
				v := ptY / ptZ
				ku := fxl*u + cxl
				kv := fyl*v + cyl
				newIdepth := p.idepthNew / ptZ

				if !(ku > 1 && kv > 1 && ku < float32(wl-2) && kv < float32(hl-2) && newIdepth > 0) {
					good = false
					break
				}

				hit := frame.Interpolate33(colorNew, ku, kv, wl)
				rlR := frame.Interpolate31(colorRef, px, py, wl)
				if !finite32(rlR) || !finite32(hit[0]) {
					good = false
					break
				}

				residual := hit[0] - gain*rlR - offset
				absRes := float32(math.Abs(float64(residual)))
				hw := float32(1)
				if absRes >= huberTH {
					hw = huberTH / absRes
				}
				energy += hw * residual * residual * (2 - hw)

				dxdd := (t[0] - t[2]*u) / ptZ
				dydd := (t[1] - t[2]*v) / ptZ

				if hw < 1 {
					hw = float32(math.Sqrt(float64(hw)))
				}
				dxInterp := hw * hit[1] * fxl
				dyInterp := hw * hit[2] * fyl

				b, lane := idx/accum.Lanes, idx%accum.Lanes
				j := &dp[b]
				j[0][lane] = newIdepth * dxInterp
				j[1][lane] = newIdepth * dyInterp
				j[2][lane] = -newIdepth * (u*dxInterp + v*dyInterp)
				j[3][lane] = -u*v*dxInterp - (1+v*v)*dyInterp
				j[4][lane] = (1+u*u)*dxInterp + u*v*dyInterp
				j[5][lane] = -v*dxInterp + u*dyInterp
				j[6][lane] = -hw * gain * rlR
				j[7][lane] = -hw

				dd := dxInterp*dxdd + dyInterp*dydd
				r := hw * residual
				res[b][lane] = r

				maxStep := 1 / float32(math.Hypot(float64(dxdd*fxl), float64(dydd*fyl)))
				if maxStep < p.maxStep {
					p.maxStep = maxStep
				}

				for k := range 8 {
					jb[k] += j[k][lane] * dd
				}
				jb[8] += r * dd
				jb[9] += dd * dd
			}

			if !good || energy > p.OutlierTH*20 {
				accE.UpdateSingle(p.Energy[0])
				p.isGoodNew = false
				p.energyNew = p.Energy
				continue
			}

			accE.UpdateSingle(energy)
			p.isGoodNew = true
			p.energyNew[0] = energy

			for b := range patternBatches {
				acc9.UpdateBatch(&dp[b], &res[b])
			}
		}
	}, 0, len(pts))
	if err != nil {
		return energies{}, fmt.Errorf("level %d residuals: %w", lvl, err)
	}

	for tid := range in.acc9s {
		in.acc9s[tid].Finish()
		in.accE[tid].Finish()
	}

	// The alpha terms go into the first worker's energy accumulator after it was
	// finished, so they only raise its count; eAlpha itself stays empty.
	var eAlpha accum.Energy
	eAlpha.Initialize()
	for i := range pts {
		p := &pts[i]
		if !p.isGoodNew {
			in.accE[0].UpdateSingle(p.Energy[1])
		} else {
			p.energyNew[1] = (p.idepthNew - 1) * (p.idepthNew - 1)
			in.accE[0].UpdateSingle(p.energyNew[1])
		}
	}
	eAlpha.Finish()

	npts := float32(len(pts))
	alphaK, alphaW := in.opts.AlphaK, in.opts.AlphaW
	alphaEnergy := alphaW * (float32(eAlpha.A) + float32(refToNew.T.Norm2())*npts)

	var alphaOpt float32
	if alphaEnergy > alphaK*npts {
		alphaOpt = 0
		alphaEnergy = alphaK * npts
	} else {
		alphaOpt = alphaW
	}

	coupling := in.opts.CouplingWeight
	in.acc9SC.Initialize()
	for i := range pts {
		p := &pts[i]
		if !p.isGoodNew {
			continue
		}
		jb := in.jbNew[i*jbStride : (i+1)*jbStride]
		p.lastHessianNew = jb[9]

		jb[8] += alphaOpt * (p.idepthNew - 1)
		jb[9] += alphaOpt
		if alphaOpt == 0 {
			jb[8] += coupling * (p.idepthNew - p.IR)
			jb[9] += coupling
		}
		jb[9] = 1 / (1 + jb[9])
		in.acc9SC.UpdateSingleWeighted([8]float32(jb[:8]), jb[8], jb[9])
	}
	in.acc9SC.Finish()

	*sys = system{}
	for tid := range in.acc9s {
		h, b := in.acc9s[tid].Normal()
		for r := range 8 {
			for c := range 8 {
				sys.H[r][c] += h[r][c]
			}
			sys.B[r] += b[r]
		}
	}
	sys.Hsc, sys.Bsc = in.acc9SC.Normal()

	prior := float64(alphaOpt) * float64(len(pts))
	tlog := refToNew.Log()
	for k := range 3 {
		sys.H[k][k] += prior
		sys.B[k] += tlog[k] * prior
	}

	sys.H[1][1] += in.opts.ZeroPriorY
	sys.B[1] += in.opts.ZeroPriorY * refToNew.T.Y
	sys.H[0][0] += in.opts.ZeroPriorX
	sys.B[0] += in.opts.ZeroPriorX * refToNew.T.X

	var e energies
	for tid := range in.accE {
		e.Photometric += in.accE[tid].A
		e.Num += in.accE[tid].Num
	}
	e.Alpha = alphaEnergy
	return e, nil
}

// calcEC returns the regularizer energy of the current and the trial depths of a level.
// It is zero until the initializer has snapped.
func (in *Initializer) calcEC(lvl int) (old, trial float64, num int) {
	pts := in.points[lvl]
	if !in.snapped {
		return 0, 0, len(pts)
	}
	var sumOld, sumNew float64
	for i := range pts {
		p := &pts[i]
		if !p.isGoodNew {
			continue
		}
		rOld := p.IDepth - p.IR
		rNew := p.idepthNew - p.IR
		sumOld += float64(rOld * rOld)
		sumNew += float64(rNew * rNew)
		num++
	}
	w := float64(in.opts.CouplingWeight)
	return w * sumOld, w * sumNew, num
}
