package device

import (
	"fmt"

	"github.com/aaasdream/akingspice/pkg/simerr"
)

// dcShortResistance is the small numerical resistance an inductor's
// branch equation uses in DC mode to short it (spec §4.3: "In DC, R_eq
// is replaced by a small numerical conductance to short the inductor").
const dcShortResistance = 1e-9

// Inductor introduces its own branch-current unknown and stamps the
// backward-Euler or trapezoidal companion model of spec §4.3: Req = L/h
// (BE) or 2L/h (TR), with a history voltage source carrying the
// previous current (and, for TR, the previous terminal voltage too).
//
// Grounded on the teacher's pkg/device/inductor.go branch-stamp shape
// (+1/-1 KCL entries, -Req diagonal on the branch row); the teacher's
// Gear/BDF coefficient table is replaced with the BE/TR pair spec §4.6
// names, and the DC short uses a fixed small resistance rather than the
// teacher's always-1e-9-regardless-of-mode shortcut.
type Inductor struct {
	Base
	Henries float64

	branchIdx   int
	prevCurrent float64
	prevVoltage float64
	lastH       float64

	req   float64
	vhist float64
}

// NewInductor builds a two-terminal inductor with the given initial
// condition (initial inductor current, spec GLOSSARY "IC").
func NewInductor(name string, nodeNames []string, henries, initialCurrent float64) (*Inductor, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("%w: inductor %s requires exactly 2 nodes", simerr.ErrValidation, name)
	}
	if nodeNames[0] == nodeNames[1] {
		return nil, fmt.Errorf("%w: inductor %s has duplicate terminal %q", simerr.ErrValidation, name, nodeNames[0])
	}
	return &Inductor{Base: NewBase(name, nodeNames), Henries: henries, prevCurrent: initialCurrent}, nil
}

func (l *Inductor) BranchIndex() int         { return l.branchIdx }
func (l *Inductor) SetBranchIndex(i int)     { l.branchIdx = i }
func (l *Inductor) PreviousCurrent() float64 { return l.prevCurrent }

func (l *Inductor) InitTransient(h float64, method IntegrationMethod) {
	l.lastH = h
	l.prevVoltage = 0
	l.recomputeCompanion(h, method)
}

func (l *Inductor) UpdateCompanionModel(st *Status) {
	if st.Mode != ModeTransient || st.TimeStep <= 0 {
		return
	}
	l.lastH = st.TimeStep
	l.recomputeCompanion(st.TimeStep, st.Method)
}

func (l *Inductor) recomputeCompanion(h float64, method IntegrationMethod) {
	if method == Trapezoidal {
		l.req = 2 * l.Henries / h
		l.vhist = l.req*l.prevCurrent + l.prevVoltage
	} else {
		l.req = l.Henries / h
		l.vhist = l.req * l.prevCurrent
	}
}

func (l *Inductor) Stamp(sys *System, st *Status) error {
	n1, n2 := l.Nodes()[0], l.Nodes()[1]
	bIdx := l.branchIdx

	req, vhist := l.req, l.vhist
	if st.Mode == ModeDC {
		req, vhist = dcShortResistance, 0
	}

	if n1 != Ground {
		sys.A.AddAt(n1, bIdx, 1)
		sys.A.AddAt(bIdx, n1, 1)
	}
	if n2 != Ground {
		sys.A.AddAt(n2, bIdx, -1)
		sys.A.AddAt(bIdx, n2, -1)
	}
	sys.A.AddAt(bIdx, bIdx, -req)
	sys.B.AddAt(bIdx, -vhist)
	return nil
}

func (l *Inductor) UpdateHistory(nodeVoltages []float64, branchCurrents map[string]float64) {
	n1, n2 := l.Nodes()[0], l.Nodes()[1]
	v1, v2 := 0.0, 0.0
	if n1 != Ground {
		v1 = nodeVoltages[n1]
	}
	if n2 != Ground {
		v2 = nodeVoltages[n2]
	}
	l.prevVoltage = v1 - v2
	if i, ok := branchCurrents[l.Name()]; ok {
		l.prevCurrent = i
	}
}
