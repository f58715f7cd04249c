package device

import (
	"fmt"

	"github.com/aaasdream/akingspice/pkg/simerr"
)

// BranchCurrentProvider is implemented by any device that owns a branch
// current (independent voltage source, inductor, VCVS, CCVS). CCCS and
// CCVS hold one of these as their controlling device, resolved once at
// circuit-construction time rather than re-resolved by name on every
// stamp (spec §4.3: "its branch index is resolved at assembly time").
type BranchCurrentProvider interface {
	Device
	BranchIndex() int
}

// VCVS is a voltage-controlled voltage source: it introduces a branch
// current and constrains v(out+) - v(out-) = gain * (v(ctrl+) - v(ctrl-))
// (spec §4.3).
type VCVS struct {
	Base
	Gain float64

	branchIdx int
	ctrlPos   int
	ctrlNeg   int
}

// NewVCVS builds a VCVS. nodeNames is [out+, out-, ctrl+, ctrl-].
func NewVCVS(name string, nodeNames []string, gain float64) (*VCVS, error) {
	if len(nodeNames) != 4 {
		return nil, fmt.Errorf("%w: VCVS %s requires exactly 4 nodes (out+, out-, ctrl+, ctrl-)", simerr.ErrValidation, name)
	}
	return &VCVS{Base: NewBase(name, nodeNames), Gain: gain}, nil
}

func (e *VCVS) BranchIndex() int     { return e.branchIdx }
func (e *VCVS) SetBranchIndex(i int) { e.branchIdx = i }

func (e *VCVS) Stamp(sys *System, st *Status) error {
	outP, outN, ctrlP, ctrlN := e.Nodes()[0], e.Nodes()[1], e.Nodes()[2], e.Nodes()[3]
	bIdx := e.branchIdx

	if outP != Ground {
		sys.A.AddAt(bIdx, outP, 1)
		sys.A.AddAt(outP, bIdx, 1)
	}
	if outN != Ground {
		sys.A.AddAt(bIdx, outN, -1)
		sys.A.AddAt(outN, bIdx, -1)
	}
	if ctrlP != Ground {
		sys.A.AddAt(bIdx, ctrlP, -e.Gain)
	}
	if ctrlN != Ground {
		sys.A.AddAt(bIdx, ctrlN, e.Gain)
	}
	return nil
}

// VCCS is a voltage-controlled current source: current gm*(v(ctrl+) -
// v(ctrl-)) flows from out+ to out- with no branch variable (spec §4.3).
type VCCS struct {
	Base
	Transconductance float64
}

// NewVCCS builds a VCCS. nodeNames is [out+, out-, ctrl+, ctrl-].
func NewVCCS(name string, nodeNames []string, gm float64) (*VCCS, error) {
	if len(nodeNames) != 4 {
		return nil, fmt.Errorf("%w: VCCS %s requires exactly 4 nodes (out+, out-, ctrl+, ctrl-)", simerr.ErrValidation, name)
	}
	return &VCCS{Base: NewBase(name, nodeNames), Transconductance: gm}, nil
}

func (g *VCCS) Stamp(sys *System, _ *Status) error {
	outP, outN, ctrlP, ctrlN := g.Nodes()[0], g.Nodes()[1], g.Nodes()[2], g.Nodes()[3]
	gm := g.Transconductance

	if outP != Ground {
		if ctrlP != Ground {
			sys.A.AddAt(outP, ctrlP, gm)
		}
		if ctrlN != Ground {
			sys.A.AddAt(outP, ctrlN, -gm)
		}
	}
	if outN != Ground {
		if ctrlP != Ground {
			sys.A.AddAt(outN, ctrlP, -gm)
		}
		if ctrlN != Ground {
			sys.A.AddAt(outN, ctrlN, gm)
		}
	}
	return nil
}

// CCCS is a current-controlled current source: output current
// gain*I(control) flows from out+ to out-, where I(control) is the
// latest solved current of a named branch-current device (spec §4.3).
type CCCS struct {
	Base
	Gain    float64
	Control BranchCurrentProvider
}

// NewCCCS builds a CCCS. nodeNames is [out+, out-]. control must be the
// device (voltage source or inductor) whose current gates this source;
// an unresolved/nil control is a validation error the caller (netlist
// layer or programmatic builder) must catch before construction.
func NewCCCS(name string, nodeNames []string, gain float64, control BranchCurrentProvider) (*CCCS, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("%w: CCCS %s requires exactly 2 nodes", simerr.ErrValidation, name)
	}
	if control == nil {
		return nil, fmt.Errorf("%w: CCCS %s has no controlling device", simerr.ErrValidation, name)
	}
	return &CCCS{Base: NewBase(name, nodeNames), Gain: gain, Control: control}, nil
}

func (f *CCCS) Stamp(sys *System, _ *Status) error {
	outP, outN := f.Nodes()[0], f.Nodes()[1]
	ctrlBranch := f.Control.BranchIndex()

	if outP != Ground {
		sys.A.AddAt(outP, ctrlBranch, f.Gain)
	}
	if outN != Ground {
		sys.A.AddAt(outN, ctrlBranch, -f.Gain)
	}
	return nil
}

// CCVS is a current-controlled voltage source: it introduces a branch
// current and constrains v(out+) - v(out-) = gain * I(control) (spec
// §4.3), gain carrying units of ohms (transresistance).
type CCVS struct {
	Base
	Gain    float64
	Control BranchCurrentProvider

	branchIdx int
}

// NewCCVS builds a CCVS. nodeNames is [out+, out-].
func NewCCVS(name string, nodeNames []string, gain float64, control BranchCurrentProvider) (*CCVS, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("%w: CCVS %s requires exactly 2 nodes", simerr.ErrValidation, name)
	}
	if control == nil {
		return nil, fmt.Errorf("%w: CCVS %s has no controlling device", simerr.ErrValidation, name)
	}
	return &CCVS{Base: NewBase(name, nodeNames), Gain: gain, Control: control}, nil
}

func (h *CCVS) BranchIndex() int     { return h.branchIdx }
func (h *CCVS) SetBranchIndex(i int) { h.branchIdx = i }

func (h *CCVS) Stamp(sys *System, _ *Status) error {
	outP, outN := h.Nodes()[0], h.Nodes()[1]
	bIdx := h.branchIdx
	ctrlBranch := h.Control.BranchIndex()

	if outP != Ground {
		sys.A.AddAt(bIdx, outP, 1)
		sys.A.AddAt(outP, bIdx, 1)
	}
	if outN != Ground {
		sys.A.AddAt(bIdx, outN, -1)
		sys.A.AddAt(outN, bIdx, -1)
	}
	sys.A.AddAt(bIdx, ctrlBranch, -h.Gain)
	return nil
}
