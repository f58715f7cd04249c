package numeric

import (
	"math"

	"github.com/aaasdream/akingspice/pkg/simerr"
)

// singularThreshold is the pivot-magnitude floor below which a column is
// declared singular (spec §4.2 step 1).
const singularThreshold = 1e-14

// LU holds an in-place LU factorization of a square matrix with partial
// pivoting: after Factor, the matrix stores L (unit lower, implicit
// diagonal) and U (upper) interleaved, and perm records the row
// permutation applied during factorization.
type LU struct {
	a    *Matrix
	n    int
	perm []int
}

// Factor performs in-place LU decomposition of a with partial pivoting.
// a is mutated; callers that need the original should Clone it first.
func Factor(a *Matrix) (*LU, error) {
	n := a.Rows
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}

	for k := 0; k < n; k++ {
		pivotRow := k
		maxVal := math.Abs(a.Get(k, k))
		for i := k + 1; i < n; i++ {
			if v := math.Abs(a.Get(i, k)); v > maxVal {
				maxVal = v
				pivotRow = i
			}
		}

		if maxVal < singularThreshold {
			return nil, simerr.NewSingular(k)
		}

		if pivotRow != k {
			a.SwapRows(pivotRow, k)
			perm[pivotRow], perm[k] = perm[k], perm[pivotRow]
		}

		pivot := a.Get(k, k)
		for i := k + 1; i < n; i++ {
			mult := a.Get(i, k) / pivot
			a.Set(i, k, mult)
			if mult == 0 {
				continue
			}
			for j := k + 1; j < n; j++ {
				a.AddAt(i, j, -mult*a.Get(k, j))
			}
		}
	}

	return &LU{a: a, n: n, perm: perm}, nil
}

// Solve returns x such that the originally-factored matrix times x
// equals b, via permutation + forward + back substitution.
func (lu *LU) Solve(b *Vector) (*Vector, error) {
	n := lu.n
	if b.Len() != n {
		return nil, simerr.NewSingular(-1)
	}

	y := NewVector(n)
	for i := 0; i < n; i++ {
		y.Set(i, b.Get(lu.perm[i]))
	}

	// Forward substitution: L is unit lower triangular.
	for i := 1; i < n; i++ {
		sum := y.Get(i)
		for j := 0; j < i; j++ {
			sum -= lu.a.Get(i, j) * y.Get(j)
		}
		y.Set(i, sum)
	}

	// Back substitution on U.
	x := NewVector(n)
	for i := n - 1; i >= 0; i-- {
		sum := y.Get(i)
		for j := i + 1; j < n; j++ {
			sum -= lu.a.Get(i, j) * x.Get(j)
		}
		diag := lu.a.Get(i, i)
		x.Set(i, sum/diag)
	}

	return x, nil
}

// ConditionEstimate returns max|diag|/min|diag| of the factored U, or
// +Inf if any diagonal entry is below the singularity threshold. This is
// a cheap proxy, not a true condition number, per spec §4.2.
func (lu *LU) ConditionEstimate() float64 {
	maxAbs, minAbs := 0.0, math.Inf(1)
	for i := 0; i < lu.n; i++ {
		v := math.Abs(lu.a.Get(i, i))
		if v < singularThreshold {
			return math.Inf(1)
		}
		if v > maxAbs {
			maxAbs = v
		}
		if v < minAbs {
			minAbs = v
		}
	}
	if minAbs == 0 {
		return math.Inf(1)
	}
	return maxAbs / minAbs
}

// Solve is the one-shot convenience entry point from spec §4.2:
// solve(A, b) -> x. a is mutated in place by the factorization.
func Solve(a *Matrix, b *Vector) (*Vector, error) {
	lu, err := Factor(a)
	if err != nil {
		return nil, err
	}
	return lu.Solve(b)
}
