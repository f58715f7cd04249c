package device

import (
	"fmt"

	"github.com/aaasdream/akingspice/pkg/simerr"
)

// IdealDiode is a two-state conductance between anode and cathode: 1/Ron
// when forward-biased (previous-iterate V_ak >= Vf), else 1/Roff. When
// conducting, it also injects an equivalent current Vf/Ron at the anode
// (negative) and cathode (positive) to represent the forward voltage
// drop (spec §4.3). Nonlinear: state comes from the previous outer
// iteration, never the current one.
//
// Grounded on the teacher's pkg/device/diode.go calculateCurrent /
// calculateConductance split, collapsed from the Shockley exponential
// model to the two-state switch-level model spec's data model names.
type IdealDiode struct {
	Base
	Ron, Roff float64
	Vf        float64

	prevVak float64
}

// NewIdealDiode builds a two-terminal (anode, cathode) ideal diode.
func NewIdealDiode(name string, nodeNames []string, ron, roff, vf float64) (*IdealDiode, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("%w: diode %s requires exactly 2 nodes (anode, cathode)", simerr.ErrValidation, name)
	}
	return &IdealDiode{Base: NewBase(name, nodeNames), Ron: ron, Roff: roff, Vf: vf}, nil
}

func (d *IdealDiode) UpdateOperatingPoint(nodeVoltages []float64) {
	a, k := d.Nodes()[0], d.Nodes()[1]
	va, vk := 0.0, 0.0
	if a != Ground {
		va = nodeVoltages[a]
	}
	if k != Ground {
		vk = nodeVoltages[k]
	}
	d.prevVak = va - vk
}

func (d *IdealDiode) forward() bool { return d.prevVak >= d.Vf }

func (d *IdealDiode) Stamp(sys *System, _ *Status) error {
	a, k := d.Nodes()[0], d.Nodes()[1]

	g := 1.0 / d.Roff
	if d.forward() {
		g = 1.0 / d.Ron
	}
	sys.StampConductance(a, k, g)

	if d.forward() {
		ieq := d.Vf / d.Ron
		if a != Ground {
			sys.B.AddAt(a, -ieq)
		}
		if k != Ground {
			sys.B.AddAt(k, ieq)
		}
	}
	return nil
}
