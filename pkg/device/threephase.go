package device

import (
	"fmt"
	"math"

	"github.com/aaasdream/akingspice/pkg/simerr"
	"github.com/aaasdream/akingspice/pkg/waveform"
)

// Topology selects how a ThreePhaseSource's three windings are wired.
type Topology int

const (
	Wye Topology = iota
	Delta
)

// Sequence selects the 120° phase spacing direction.
type Sequence int

const (
	ABC Sequence = iota
	ACB
)

// ThreePhaseSource is a meta-device that expands, at construction, into
// three internal SINE VoltageSources spaced 120° apart, wired wye (each
// phase to a shared neutral) or delta (each phase to the next, line-to-
// line) (spec §4.3 "Three-phase source", §8 scenario 6).
//
// No teacher equivalent exists (toy-spice has no polyphase source);
// grounded on the teacher's pkg/device/vsource.go SIN stamp, reused
// three times with the 120°-spacing construction rule spec §4.3 names.
type ThreePhaseSource struct {
	Base
	phases []*VoltageSource
}

// NewThreePhaseSource builds a balanced three-phase source. lineNodes is
// [A, B, C]; neutralNode is only used (and must be non-empty) for Wye.
// vLine is the RMS line voltage (line-to-line for Delta, the implied
// line-to-line magnitude for Wye); freq is in Hz.
func NewThreePhaseSource(name string, lineNodes [3]string, neutralNode string, topology Topology, seq Sequence, vLine, freq float64) (*ThreePhaseSource, error) {
	if vLine <= 0 {
		return nil, fmt.Errorf("%w: three-phase source %s requires vLine > 0", simerr.ErrValidation, name)
	}
	if freq <= 0 {
		return nil, fmt.Errorf("%w: three-phase source %s requires freq > 0", simerr.ErrValidation, name)
	}
	if topology == Wye && neutralNode == "" {
		return nil, fmt.Errorf("%w: three-phase source %s (wye) requires a neutral node", simerr.ErrValidation, name)
	}

	var amplitude float64
	switch topology {
	case Wye:
		amplitude = math.Sqrt2 * (vLine / math.Sqrt(3))
	case Delta:
		amplitude = math.Sqrt2 * vLine
	default:
		return nil, fmt.Errorf("%w: three-phase source %s has unknown topology", simerr.ErrValidation, name)
	}

	dir := -1.0
	if seq == ACB {
		dir = 1.0
	}

	phases := make([]*VoltageSource, 3)
	for i := 0; i < 3; i++ {
		// The shift is wrapped into [0, 2π) so the delay is never positive:
		// a SINE waveform holds its offset for t < delay.
		phaseOffset := math.Mod(dir*float64(i)*(2*math.Pi/3)+2*math.Pi, 2*math.Pi)
		delay := -phaseOffset / (2 * math.Pi * freq)
		w := waveform.NewSine(0, amplitude, freq, delay, 0)

		var nodes []string
		switch topology {
		case Wye:
			nodes = []string{lineNodes[i], neutralNode}
		case Delta:
			nodes = []string{lineNodes[i], lineNodes[(i+1)%3]}
		}

		vs, err := NewVoltageSource(fmt.Sprintf("%s.V%d", name, i+1), nodes, w)
		if err != nil {
			return nil, fmt.Errorf("three-phase source %s phase %d: %w", name, i+1, err)
		}
		phases[i] = vs
	}

	return &ThreePhaseSource{Base: NewBase(name, nil), phases: phases}, nil
}

// Phases exposes the constituent per-phase voltage sources.
func (p *ThreePhaseSource) Phases() []*VoltageSource { return p.phases }

// Components implements MetaDevice: the assembler splices these in
// place of the ThreePhaseSource itself (spec §4.8).
func (p *ThreePhaseSource) Components() []Device {
	comps := make([]Device, len(p.phases))
	for i, ph := range p.phases {
		comps[i] = ph
	}
	return comps
}

// Stamp is never called by the assembler; it exists only to satisfy
// Device so ThreePhaseSource can sit in a builder's device list before
// expansion.
func (p *ThreePhaseSource) Stamp(*System, *Status) error { return nil }
