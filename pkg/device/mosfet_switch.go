package device

import (
	"fmt"

	"github.com/aaasdream/akingspice/pkg/simerr"
)

// SwitchMOSFET is a gate-state-driven switch between drain and source:
// conductance is 1/Ron when the externally-owned gate state is ON, else
// 1/Roff, in parallel with an anti-parallel body diode that conducts
// (1/RonBody) when the previous iterate's Vds falls below -Vf, else
// presents 1/RoffBody (spec §4.3). It is Nonlinear: its effective
// conductance depends on state carried over from the previous outer
// iteration, never on the current one.
//
// Grounded on the teacher's pkg/device/mosfet.go region/conductance
// bookkeeping, collapsed from a level 1-3 physical model down to the
// two-state switch-level model spec's data model names.
type SwitchMOSFET struct {
	Base
	Ron, Roff         float64
	RonBody, RoffBody float64
	Vf                float64

	gateState bool
	prevVds   float64
}

// NewSwitchMOSFET builds a two-terminal (drain, source) switch MOSFET.
// Gate state is owned by the caller (a PWM driver, a stepped-mode
// control-input map) via SetGateState, never parsed from a value string.
func NewSwitchMOSFET(name string, nodeNames []string, ron, roff, ronBody, roffBody, vf float64) (*SwitchMOSFET, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("%w: switch MOSFET %s requires exactly 2 nodes (drain, source)", simerr.ErrValidation, name)
	}
	return &SwitchMOSFET{Base: NewBase(name, nodeNames), Ron: ron, Roff: roff, RonBody: ronBody, RoffBody: roffBody, Vf: vf}, nil
}

// SetGateState sets the externally-driven boolean gate state (spec
// GLOSSARY "Gate state").
func (m *SwitchMOSFET) SetGateState(on bool) { m.gateState = on }

func (m *SwitchMOSFET) GateState() bool { return m.gateState }

func (m *SwitchMOSFET) UpdateOperatingPoint(nodeVoltages []float64) {
	d, s := m.Nodes()[0], m.Nodes()[1]
	vd, vs := 0.0, 0.0
	if d != Ground {
		vd = nodeVoltages[d]
	}
	if s != Ground {
		vs = nodeVoltages[s]
	}
	m.prevVds = vd - vs
}

func (m *SwitchMOSFET) Stamp(sys *System, _ *Status) error {
	channel := 1.0 / m.Roff
	if m.gateState {
		channel = 1.0 / m.Ron
	}

	body := 1.0 / m.RoffBody
	if m.prevVds < -m.Vf {
		body = 1.0 / m.RonBody
	}

	d, s := m.Nodes()[0], m.Nodes()[1]
	sys.StampConductance(d, s, channel+body)
	return nil
}
