package device

import (
	"fmt"

	"github.com/aaasdream/akingspice/pkg/simerr"
)

// Resistor stamps a fixed conductance between two nodes (spec §4.3).
// Grounded on the teacher's pkg/device/resistor.go stamp pattern; the
// temperature-coefficient model there is dropped — spec's data model
// has no thermal parameters for R.
type Resistor struct {
	Base
	Ohms float64
}

// NewResistor builds a two-terminal resistor. ohms must be non-zero
// (spec §4.3: "Fails if R = 0" — enforced at Stamp time so construction
// stays uniform with other devices, but callers validating up front
// should treat a zero value as a validation error).
func NewResistor(name string, nodeNames []string, ohms float64) (*Resistor, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("%w: resistor %s requires exactly 2 nodes", simerr.ErrValidation, name)
	}
	if nodeNames[0] == nodeNames[1] {
		return nil, fmt.Errorf("%w: resistor %s has duplicate terminal %q", simerr.ErrValidation, name, nodeNames[0])
	}
	return &Resistor{Base: NewBase(name, nodeNames), Ohms: ohms}, nil
}

func (r *Resistor) Stamp(sys *System, st *Status) error {
	if r.Ohms == 0 {
		return fmt.Errorf("%w: resistor %s has zero resistance", simerr.ErrValidation, r.Name())
	}
	n1, n2 := r.Nodes()[0], r.Nodes()[1]
	sys.StampConductance(n1, n2, 1.0/r.Ohms)
	return nil
}
