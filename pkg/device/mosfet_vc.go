package device

import (
	"fmt"
	"math"

	"github.com/aaasdream/akingspice/pkg/simerr"
)

// MOSFET operating regions (spec §4.3), collapsed from the teacher's
// CUTOFF/LINEAR/SATURATION level 1-3 model down to level 1 only.
const (
	RegionOff = iota
	RegionLinear
	RegionSaturation
)

// minChannelVds guards the Id/Vds secant-conductance division against a
// near-zero operating-point Vds.
const minChannelVds = 1e-6

// offConductance is the small leakage conductance stamped in place of a
// true open circuit (cutoff region, or a channel conductance estimate
// that would otherwise collapse to zero), keeping the MNA matrix
// nonsingular regardless of the per-call Gmin a driver may also apply.
const offConductance = 1e-12

// VControlledMOSFET is a level-1-like square-law NMOS: from the previous
// iterate's node voltages it computes V_gs, V_ds, selects an operating
// region, and presents the channel to MNA as an equivalent drain-source
// conductance for that region (Id/Vds at the previous operating point),
// plus an anti-parallel body diode that injects Vf*Gbody when forward
// biased (spec §4.3). Nonlinear: all of this is evaluated from the
// previous outer iteration, never the current one.
//
// Grounded on the teacher's pkg/device/mosfet.go field and region
// naming, trimmed from levels 1-3 with full capacitance/noise modeling
// down to level 1 DC/transient only.
type VControlledMOSFET struct {
	Base
	VTO    float64 // threshold voltage
	KP     float64 // transconductance parameter, already folded with W/L
	LAMBDA float64 // channel-length modulation

	RonBody, RoffBody float64
	Vf                float64

	region   int
	prevVgs  float64
	prevVds  float64
	channelG float64
	bodyG    float64
}

// NewVControlledMOSFET builds a three-terminal (drain, gate, source)
// voltage-controlled MOSFET with its anti-parallel body diode folded in.
func NewVControlledMOSFET(name string, nodeNames []string, vto, kp, lambda, ronBody, roffBody, vf float64) (*VControlledMOSFET, error) {
	if len(nodeNames) != 3 {
		return nil, fmt.Errorf("%w: voltage-controlled MOSFET %s requires exactly 3 nodes (drain, gate, source)", simerr.ErrValidation, name)
	}
	return &VControlledMOSFET{
		Base: NewBase(name, nodeNames),
		VTO: vto, KP: kp, LAMBDA: lambda,
		RonBody: ronBody, RoffBody: roffBody, Vf: vf,
	}, nil
}

func (m *VControlledMOSFET) Region() int { return m.region }

func (m *VControlledMOSFET) UpdateOperatingPoint(nodeVoltages []float64) {
	d, g, s := m.Nodes()[0], m.Nodes()[1], m.Nodes()[2]
	vd, vg, vs := 0.0, 0.0, 0.0
	if d != Ground {
		vd = nodeVoltages[d]
	}
	if g != Ground {
		vg = nodeVoltages[g]
	}
	if s != Ground {
		vs = nodeVoltages[s]
	}
	m.prevVgs = vg - vs
	m.prevVds = vd - vs

	m.channelG = m.computeChannelConductance()

	bodyG := 1.0 / m.RoffBody
	if m.prevVds < -m.Vf {
		bodyG = 1.0 / m.RonBody
	}
	m.bodyG = bodyG
}

// computeChannelConductance selects the operating region from the last
// recorded Vgs/Vds and returns the secant conductance Id/Vds at that
// point (spec §4.3: "stamp an equivalent conductance").
func (m *VControlledMOSFET) computeChannelConductance() float64 {
	vgs, vds := m.prevVgs, m.prevVds
	vov := vgs - m.VTO

	if vov <= 0 {
		m.region = RegionOff
		return offConductance
	}

	var id float64
	if vds < vov {
		m.region = RegionLinear
		id = m.KP * (vov*vds - 0.5*vds*vds)
	} else {
		m.region = RegionSaturation
		id = 0.5 * m.KP * vov * vov * (1 + m.LAMBDA*vds)
	}

	denom := vds
	if math.Abs(denom) < minChannelVds {
		if denom >= 0 {
			denom = minChannelVds
		} else {
			denom = -minChannelVds
		}
	}
	g := id / denom
	if g < offConductance {
		return offConductance
	}
	return g
}

func (m *VControlledMOSFET) Stamp(sys *System, _ *Status) error {
	d, _, s := m.Nodes()[0], m.Nodes()[1], m.Nodes()[2]
	sys.StampConductance(d, s, m.channelG+m.bodyG)

	// Anti-parallel body diode, anode=source/cathode=drain: when forward
	// (Vds < -Vf) inject the equivalent current source Vf*Gbody spec
	// §4.3 names, mirroring IdealDiode.Stamp's Vf/Ron injection.
	if m.prevVds < -m.Vf {
		ieq := m.Vf * m.bodyG
		sys.StampCurrentInto(s, d, ieq)
	}
	return nil
}
