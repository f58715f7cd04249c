// Package device implements the per-type stamping contracts of spec §3
// and §4.3: passive two-terminal devices, independent and controlled
// sources, switch-level and voltage-controlled MOSFETs, the ideal
// diode, coupled inductors / multi-winding transformers, and the
// three-phase source meta-device.
package device

import (
	"github.com/aaasdream/akingspice/pkg/numeric"
)

// Ground is the sentinel node index meaning "ground" — it never
// receives a row/column in the MNA system (spec §3 invariants).
const Ground = -1

// Mode selects which analysis a Stamp call is being made for.
type Mode int

const (
	ModeDC Mode = iota
	ModeTransient
)

// IntegrationMethod selects the companion-model discretization used by
// reactive elements (spec §4.3, §4.6).
type IntegrationMethod int

const (
	BackwardEuler IntegrationMethod = iota
	Trapezoidal
)

// Status carries the context every Stamp call receives: the current
// time, the time step (zero during DC), which analysis mode is active,
// which integration method reactive elements should use, and the
// minimum conductance applied across the board to aid convergence.
type Status struct {
	Time     float64
	TimeStep float64
	Mode     Mode
	Method   IntegrationMethod
	Gmin     float64
}

// System is the linear system a device stamps its contribution into:
// a dense matrix A and right-hand-side vector b, both sized N+M where N
// is the node count and M is the branch-current count (spec §3 "System
// size").
type System struct {
	A *numeric.Matrix
	B *numeric.Vector
}

// StampConductance adds the standard four-corner resistor pattern for a
// conductance g between nodes n1 and n2 (spec §4.3, resistor stamp).
// Ground terminals (Device.Ground) are skipped, matching "ground never
// enters (A, b)".
func (s *System) StampConductance(n1, n2 int, g float64) {
	if n1 != Ground {
		s.A.AddAt(n1, n1, g)
		if n2 != Ground {
			s.A.AddAt(n1, n2, -g)
		}
	}
	if n2 != Ground {
		if n1 != Ground {
			s.A.AddAt(n2, n1, -g)
		}
		s.A.AddAt(n2, n2, g)
	}
}

// StampCurrentInto adds a current i flowing from n1 to n2 to the RHS
// (spec §4.3, independent current source stamp).
func (s *System) StampCurrentInto(n1, n2 int, i float64) {
	if n1 != Ground {
		s.B.AddAt(n1, -i)
	}
	if n2 != Ground {
		s.B.AddAt(n2, i)
	}
}

// Device is the minimal contract every circuit element implements: a
// name, its resolved terminal nodes, and a Stamp method. Parsing raw
// values and declaring the need for a branch-current variable are
// properties of the concrete constructor and the NeedsBranch interface
// respectively — never a string match on type (spec §9).
type Device interface {
	Name() string
	Nodes() []int
	SetNodes(nodes []int)
	TerminalNames() []string
	Stamp(sys *System, st *Status) error
}

// NeedsBranch is implemented by devices that introduce an extra
// branch-current unknown (independent voltage source, inductor, VCVS,
// CCVS). The assembler queries it once during the analysis pass (spec
// §4.4, §9).
type NeedsBranch interface {
	BranchIndex() int
	SetBranchIndex(idx int)
}

// HistoryUpdater is implemented by devices that carry state across time
// steps (reactive elements, nonlinear devices tracking an operating
// point). UpdateHistory is called once per accepted time point, after
// the step's solution has been extracted (spec §4.6 step 4).
type HistoryUpdater interface {
	UpdateHistory(nodeVoltages []float64, branchCurrents map[string]float64)
}

// CompanionModel is implemented by reactive elements whose equivalent
// conductance/resistance and history source must be refreshed before
// each build pass from the previously accepted state (spec §4.6 step 1,
// §3 "companion coefficients").
type CompanionModel interface {
	UpdateCompanionModel(st *Status)
}

// Nonlinear is implemented by switch-like devices (MOSFETs, diodes)
// whose stamp depends on an internal operating-point estimate that must
// be refreshed from the previous outer iterate before each build pass
// (spec §4.3, §4.5).
type Nonlinear interface {
	UpdateOperatingPoint(nodeVoltages []float64)
}

// MetaDevice is implemented by devices that expand into primitives at
// construction time (transformer, three-phase source) and never
// participate in stamp dispatch directly (spec §3 Lifecycle, §4.8).
type MetaDevice interface {
	Device
	Components() []Device
}

// Initializer is implemented by devices needing one-time setup when a
// transient run begins: clearing history and precomputing companion
// coefficients from initial conditions (spec §4.6 step 2).
type Initializer interface {
	InitTransient(h float64, method IntegrationMethod)
}

// Base holds the fields common to every concrete device: its name, the
// terminal names it was constructed with, and the resolved node indices
// assigned once by the assembler's analysis pass.
type Base struct {
	DeviceName string
	Terminals  []string
	nodes      []int
}

func NewBase(name string, terminals []string) Base {
	return Base{DeviceName: name, Terminals: terminals, nodes: make([]int, len(terminals))}
}

func (b *Base) Name() string            { return b.DeviceName }
func (b *Base) Nodes() []int            { return b.nodes }
func (b *Base) SetNodes(nodes []int)    { b.nodes = nodes }
func (b *Base) TerminalNames() []string { return b.Terminals }
