package device

import (
	"fmt"

	"github.com/aaasdream/akingspice/pkg/simerr"
)

// Capacitor stamps the backward-Euler or trapezoidal companion model of
// spec §4.3: Geq = C/h (BE) or 2C/h (TR), with a history current source
// carrying the previous voltage (and, for TR, the previous current too).
// In DC mode the capacitor is open and stamps nothing.
//
// Grounded on the teacher's pkg/device/capacitor.go Geq/history-current
// shape; the trapezoidal path (the teacher only has an OP gmin-shunt
// and a BE transient path) and the explicit open-in-DC behavior are
// added per spec.
//
// Resolves spec §9 Open Question #1: UpdateCompanionModel always reads
// the previous-step's voltage/current to compute this step's Geq/history
// source (called once per build pass, before Stamp); UpdateHistory always
// overwrites those previous-step fields only after the step's solution
// has been extracted. The two responsibilities are distinct interface
// methods precisely so this ordering can never be ambiguous.
type Capacitor struct {
	Base
	Farads float64

	prevVoltage float64
	prevCurrent float64
	lastH       float64

	geq   float64
	ihist float64
}

// NewCapacitor builds a two-terminal capacitor with the given initial
// condition (initial capacitor voltage, spec GLOSSARY "IC").
func NewCapacitor(name string, nodeNames []string, farads, initialVoltage float64) (*Capacitor, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("%w: capacitor %s requires exactly 2 nodes", simerr.ErrValidation, name)
	}
	if nodeNames[0] == nodeNames[1] {
		return nil, fmt.Errorf("%w: capacitor %s has duplicate terminal %q", simerr.ErrValidation, name, nodeNames[0])
	}
	return &Capacitor{Base: NewBase(name, nodeNames), Farads: farads, prevVoltage: initialVoltage}, nil
}

func (c *Capacitor) InitTransient(h float64, method IntegrationMethod) {
	c.lastH = h
	c.prevCurrent = 0
	c.recomputeCompanion(h, method)
}

func (c *Capacitor) UpdateCompanionModel(st *Status) {
	if st.Mode != ModeTransient || st.TimeStep <= 0 {
		return
	}
	c.lastH = st.TimeStep
	c.recomputeCompanion(st.TimeStep, st.Method)
}

func (c *Capacitor) recomputeCompanion(h float64, method IntegrationMethod) {
	if method == Trapezoidal {
		c.geq = 2 * c.Farads / h
		c.ihist = -(c.geq*c.prevVoltage + c.prevCurrent)
	} else {
		c.geq = c.Farads / h
		c.ihist = -c.geq * c.prevVoltage
	}
}

func (c *Capacitor) Stamp(sys *System, st *Status) error {
	if st.Mode == ModeDC {
		return nil // open in DC, per spec
	}

	n1, n2 := c.Nodes()[0], c.Nodes()[1]
	sys.StampConductance(n1, n2, c.geq)

	if n1 != Ground {
		sys.B.AddAt(n1, c.ihist)
	}
	if n2 != Ground {
		sys.B.AddAt(n2, -c.ihist)
	}
	return nil
}

func (c *Capacitor) UpdateHistory(nodeVoltages []float64, _ map[string]float64) {
	n1, n2 := c.Nodes()[0], c.Nodes()[1]
	v1, v2 := 0.0, 0.0
	if n1 != Ground {
		v1 = nodeVoltages[n1]
	}
	if n2 != Ground {
		v2 = nodeVoltages[n2]
	}
	vNew := v1 - v2

	if c.lastH > 0 {
		c.prevCurrent = c.Farads * (vNew - c.prevVoltage) / c.lastH
	}
	c.prevVoltage = vNew
}

// Voltage returns the capacitor's most recently accepted terminal voltage.
func (c *Capacitor) Voltage() float64 { return c.prevVoltage }
