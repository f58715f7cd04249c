package device

import (
	"fmt"

	"github.com/aaasdream/akingspice/pkg/simerr"
	"github.com/aaasdream/akingspice/pkg/waveform"
)

// CurrentSource is an independent current source: no branch variable,
// current flows through the source from n1 to n2, so it is drawn out of
// n1 and injected into n2 (spec §4.3). Grounded on the teacher's pkg/device/isource.go RHS
// stamp and PULSE/PWL evaluation, now delegated to pkg/waveform.
type CurrentSource struct {
	Base
	Waveform waveform.Descriptor
}

func NewCurrentSource(name string, nodeNames []string, w waveform.Descriptor) (*CurrentSource, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("%w: current source %s requires exactly 2 nodes", simerr.ErrValidation, name)
	}
	return &CurrentSource{Base: NewBase(name, nodeNames), Waveform: w}, nil
}

// SetValue overrides the waveform with a constant (spec §4.7 control
// input map).
func (i *CurrentSource) SetValue(value float64) { i.Waveform = waveform.NewDC(value) }

func (i *CurrentSource) Stamp(sys *System, st *Status) error {
	n1, n2 := i.Nodes()[0], i.Nodes()[1]
	current := i.Waveform.Value(st.Time)

	if n1 != Ground {
		sys.B.AddAt(n1, -current)
	}
	if n2 != Ground {
		sys.B.AddAt(n2, current)
	}
	return nil
}
