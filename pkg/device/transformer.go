package device

import (
	"fmt"

	"github.com/aaasdream/akingspice/pkg/simerr"
)

// Transformer is a multi-winding transformer meta-device: it owns K
// windings, each an independent Inductor between its own pair of nodes,
// coupled through a K×K coefficient matrix. Components() expands it
// into the K inductors plus one CoupledInductors device exactly once,
// at construction time, and it never stamps directly itself (spec §3
// Lifecycle, §4.3 "Multi-winding transformer").
//
// No teacher equivalent exists (toy-spice has no transformer primitive);
// grounded on the teacher's pkg/device/mutual.go coupling-stamp pattern,
// wrapped in a meta-device shape mirroring spec §4.8's expansion rule.
type Transformer struct {
	Base
	windings []*Inductor
	coupling *CoupledInductors
}

// WindingSpec describes one winding's terminal nodes, inductance, and
// initial current.
type WindingSpec struct {
	NodeNames      [2]string
	Henries        float64
	InitialCurrent float64
}

// NewTransformer builds a K-winding transformer. k is the K×K coupling
// matrix (symmetrized and clamped to [-1, 1] by NewCoupledInductors).
func NewTransformer(name string, windings []WindingSpec, k [][]float64) (*Transformer, error) {
	if len(windings) < 2 {
		return nil, fmt.Errorf("%w: transformer %s requires at least two windings", simerr.ErrValidation, name)
	}

	inductors := make([]*Inductor, len(windings))
	for i, w := range windings {
		indName := fmt.Sprintf("%s.L%d", name, i+1)
		ind, err := NewInductor(indName, w.NodeNames[:], w.Henries, w.InitialCurrent)
		if err != nil {
			return nil, fmt.Errorf("transformer %s winding %d: %w", name, i+1, err)
		}
		inductors[i] = ind
	}

	coupling, err := NewCoupledInductors(name+".K", inductors, k)
	if err != nil {
		return nil, err
	}

	return &Transformer{Base: NewBase(name, nil), windings: inductors, coupling: coupling}, nil
}

// Windings exposes the constituent inductors (e.g. for reading winding
// currents from a solved result).
func (t *Transformer) Windings() []*Inductor { return t.windings }

// Components implements MetaDevice: the assembler splices these in
// place of the Transformer itself (spec §4.8).
func (t *Transformer) Components() []Device {
	comps := make([]Device, 0, len(t.windings)+1)
	for _, w := range t.windings {
		comps = append(comps, w)
	}
	comps = append(comps, t.coupling)
	return comps
}

// Stamp is never called by the assembler; it exists only to satisfy
// Device so Transformer can sit in a builder's device list before
// expansion.
func (t *Transformer) Stamp(*System, *Status) error { return nil }
