package initializer

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// solveLinear solves the symmetric n×n system a·x = b (a row-major). It uses a Cholesky
// factorization and falls back to Gaussian elimination with partial pivoting when a is
// not positive definite.
func solveLinear(n int, a, b []float64) ([]float64, bool) {
	var chol mat.Cholesky
	if chol.Factorize(mat.NewSymDense(n, append([]float64(nil), a...))) {
		var x mat.VecDense
		if err := chol.SolveVecTo(&x, mat.NewVecDense(n, append([]float64(nil), b...))); err == nil {
			out := make([]float64, n)
			for i := range n {
				out[i] = x.AtVec(i)
			}
			if allFinite(out) {
				return out, true
			}
		}
	}
	return solveGauss(n, a, b)
}

func solveGauss(n int, a, b []float64) ([]float64, bool) {
	m := append([]float64(nil), a...)
	v := append([]float64(nil), b...)

	for col := range n {
		pivot := col
		maxAbs := math.Abs(m[col*n+col])
		for r := col + 1; r < n; r++ {
			if abs := math.Abs(m[r*n+col]); abs > maxAbs {
				maxAbs = abs
				pivot = r
			}
		}
		if maxAbs == 0 {
			return nil, false
		}
		if pivot != col {
			for c := range n {
				m[col*n+c], m[pivot*n+c] = m[pivot*n+c], m[col*n+c]
			}
			v[col], v[pivot] = v[pivot], v[col]
		}

		div := m[col*n+col]
		for c := col; c < n; c++ {
			m[col*n+c] /= div
		}
		v[col] /= div

		for r := range n {
			if r == col {
				continue
			}
			f := m[r*n+col]
			if f == 0 {
				continue
			}
			for c := col; c < n; c++ {
				m[r*n+c] -= f * m[col*n+c]
			}
			v[r] -= f * v[col]
		}
	}
	if !allFinite(v) {
		return nil, false
	}
	return v, true
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
