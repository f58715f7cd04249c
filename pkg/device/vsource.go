package device

import (
	"fmt"

	"github.com/aaasdream/akingspice/pkg/simerr"
	"github.com/aaasdream/akingspice/pkg/waveform"
)

// VoltageSource is an independent voltage source: it introduces a
// branch-current unknown and constrains v(+) - v(-) = descriptor(t)
// (spec §4.3). Grounded on the teacher's pkg/device/vsource.go branch
// stamp; waveform evaluation is factored out into pkg/waveform so both
// source kinds share one descriptor type (spec §9 Open Question #3).
type VoltageSource struct {
	Base
	Waveform waveform.Descriptor

	branchIdx int
}

func NewVoltageSource(name string, nodeNames []string, w waveform.Descriptor) (*VoltageSource, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("%w: voltage source %s requires exactly 2 nodes", simerr.ErrValidation, name)
	}
	return &VoltageSource{Base: NewBase(name, nodeNames), Waveform: w}, nil
}

func (v *VoltageSource) BranchIndex() int     { return v.branchIdx }
func (v *VoltageSource) SetBranchIndex(i int) { v.branchIdx = i }

// SetValue overrides the waveform with a constant, used by the stepped
// driver's control-input map (spec §4.7, §6) to drive a source value
// externally between steps.
func (v *VoltageSource) SetValue(value float64) { v.Waveform = waveform.NewDC(value) }

func (v *VoltageSource) Stamp(sys *System, st *Status) error {
	n1, n2 := v.Nodes()[0], v.Nodes()[1]
	bIdx := v.branchIdx

	if n1 != Ground {
		sys.A.AddAt(bIdx, n1, 1)
		sys.A.AddAt(n1, bIdx, 1)
	}
	if n2 != Ground {
		sys.A.AddAt(bIdx, n2, -1)
		sys.A.AddAt(n2, bIdx, -1)
	}

	sys.B.AddAt(bIdx, v.Waveform.Value(st.Time))
	return nil
}
