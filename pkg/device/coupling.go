package device

import (
	"fmt"
	"math"

	"github.com/aaasdream/akingspice/pkg/simerr"
)

// CoupledInductors stamps the mutual-inductance cross terms between the
// branch rows of a set of inductors sharing a K×K coupling-coefficient
// matrix: each ordered pair (i, j) contributes −M_ij/h at (branch_i,
// branch_j) and −(M_ij/h)·I_j,prev to RHS row branch_i, where M_ij =
// k_ij·√(L_i·L_j) (spec §4.3, §GLOSSARY "Mutual inductance").
//
// It never owns the inductors: it holds plain references into a shared
// slice assembled once by the Transformer meta-device at expansion time,
// matching spec §10's "indices into a central inductor vector... not
// owning pointers, avoiding ownership cycles" guidance (a direct slice
// of pointers, Go's idiomatic equivalent of an index list, since the
// inductors themselves are never reallocated after construction).
//
// Grounded on the teacher's pkg/device/mutual.go pairwise Mij stamp,
// generalized from a single coefficient to a full K×K matrix.
type CoupledInductors struct {
	Base
	inductors []*Inductor
	k         [][]float64 // K×K coupling coefficients, clamped to [-1, 1], k[i][i] unused
}

// NewCoupledInductors builds a coupling device over the given inductors
// and coefficient matrix. k must be K×K; each entry is clamped to
// [-1, 1] (spec §4.3 invariant), and an off-diagonal pair whose clamped
// values differ is replaced by their average.
func NewCoupledInductors(name string, inductors []*Inductor, k [][]float64) (*CoupledInductors, error) {
	n := len(inductors)
	if n < 2 {
		return nil, fmt.Errorf("%w: coupled inductor set %s requires at least two windings", simerr.ErrValidation, name)
	}
	if len(k) != n {
		return nil, fmt.Errorf("%w: coupled inductor set %s coupling matrix must be %d×%d", simerr.ErrValidation, name, n, n)
	}
	clamped := make([][]float64, n)
	for i := range k {
		if len(k[i]) != n {
			return nil, fmt.Errorf("%w: coupled inductor set %s coupling matrix must be %d×%d", simerr.ErrValidation, name, n, n)
		}
		clamped[i] = make([]float64, n)
		for j, kij := range k[i] {
			clamped[i][j] = clamp(kij, -1, 1)
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if clamped[i][j] != clamped[j][i] {
				avg := (clamped[i][j] + clamped[j][i]) / 2
				clamped[i][j], clamped[j][i] = avg, avg
			}
		}
	}
	return &CoupledInductors{Base: NewBase(name, nil), inductors: inductors, k: clamped}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// mutualInductance returns M_ij = k_ij·√(L_i·L_j).
func (c *CoupledInductors) mutualInductance(i, j int) float64 {
	return c.k[i][j] * math.Sqrt(c.inductors[i].Henries*c.inductors[j].Henries)
}

func (c *CoupledInductors) Stamp(sys *System, st *Status) error {
	if st.Mode != ModeTransient || st.TimeStep <= 0 {
		return nil
	}
	h := st.TimeStep

	for i := range c.inductors {
		for j := range c.inductors {
			if i == j {
				continue
			}
			mij := c.mutualInductance(i, j)
			if mij == 0 {
				continue
			}
			bi, bj := c.inductors[i].BranchIndex(), c.inductors[j].BranchIndex()
			sys.A.AddAt(bi, bj, -mij/h)
			sys.B.AddAt(bi, -mij/h*c.inductors[j].PreviousCurrent())
		}
	}
	return nil
}
