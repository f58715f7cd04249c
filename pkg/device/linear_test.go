package device

import (
	"testing"

	"github.com/aaasdream/akingspice/pkg/numeric"
	"github.com/aaasdream/akingspice/pkg/waveform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDCSystem(n int) *System {
	return &System{A: numeric.NewMatrix(n, n), B: numeric.NewVector(n)}
}

func TestResistorStampsConductance(t *testing.T) {
	r, err := NewResistor("R1", []string{"1", "0"}, 1000)
	require.NoError(t, err)
	r.SetNodes([]int{0, Ground})

	sys := newDCSystem(1)
	st := &Status{Mode: ModeDC}
	require.NoError(t, r.Stamp(sys, st))

	assert.InDelta(t, 1.0/1000, sys.A.Get(0, 0), 1e-15)
}

func TestResistorZeroOhmsRejected(t *testing.T) {
	r, err := NewResistor("R1", []string{"1", "0"}, 0)
	require.NoError(t, err)
	r.SetNodes([]int{0, Ground})

	sys := newDCSystem(1)
	err = r.Stamp(sys, &Status{Mode: ModeDC})
	assert.Error(t, err)
}

func TestCapacitorOpenInDC(t *testing.T) {
	c, err := NewCapacitor("C1", []string{"1", "0"}, 1e-6, 0)
	require.NoError(t, err)
	c.SetNodes([]int{0, Ground})

	sys := newDCSystem(1)
	require.NoError(t, c.Stamp(sys, &Status{Mode: ModeDC}))
	assert.Equal(t, 0.0, sys.A.Get(0, 0))
}

func TestCapacitorBackwardEulerCompanion(t *testing.T) {
	c, err := NewCapacitor("C1", []string{"1", "0"}, 1e-6, 2.0)
	require.NoError(t, err)
	c.SetNodes([]int{0, Ground})
	c.InitTransient(1e-6, BackwardEuler)

	sys := newDCSystem(1)
	st := &Status{Mode: ModeTransient, TimeStep: 1e-6, Method: BackwardEuler}
	require.NoError(t, c.Stamp(sys, st))

	geq := 1e-6 / 1e-6
	assert.InDelta(t, geq, sys.A.Get(0, 0), 1e-12)
	assert.InDelta(t, -geq*2.0, sys.B.Get(0), 1e-12)
}

func TestInductorDCShortsToSmallResistance(t *testing.T) {
	l, err := NewInductor("L1", []string{"1", "0"}, 1e-3, 0)
	require.NoError(t, err)
	l.SetNodes([]int{0, Ground})
	l.SetBranchIndex(1)

	sys := newDCSystem(2)
	require.NoError(t, l.Stamp(sys, &Status{Mode: ModeDC}))
	assert.InDelta(t, -dcShortResistance, sys.A.Get(1, 1), 1e-20)
}

func TestInductorTransientHistory(t *testing.T) {
	l, err := NewInductor("L1", []string{"1", "0"}, 1e-3, 1.5)
	require.NoError(t, err)
	l.SetNodes([]int{0, Ground})
	l.SetBranchIndex(1)
	l.InitTransient(1e-6, BackwardEuler)

	sys := newDCSystem(2)
	st := &Status{Mode: ModeTransient, TimeStep: 1e-6, Method: BackwardEuler}
	require.NoError(t, l.Stamp(sys, st))

	req := 1e-3 / 1e-6
	assert.InDelta(t, -req, sys.A.Get(1, 1), 1e-6)
	assert.InDelta(t, -req*1.5, sys.B.Get(1), 1e-6)
}

func TestVoltageSourceStampsBranchConstraint(t *testing.T) {
	vs, err := NewVoltageSource("V1", []string{"1", "0"}, waveform.NewDC(5))
	require.NoError(t, err)
	vs.SetNodes([]int{0, Ground})
	vs.SetBranchIndex(1)

	sys := newDCSystem(2)
	require.NoError(t, vs.Stamp(sys, &Status{Mode: ModeDC}))

	assert.Equal(t, 1.0, sys.A.Get(1, 0))
	assert.Equal(t, 1.0, sys.A.Get(0, 1))
	assert.Equal(t, 5.0, sys.B.Get(1))
}

func TestCurrentSourceStampsRHS(t *testing.T) {
	is, err := NewCurrentSource("I1", []string{"1", "0"}, waveform.NewDC(0.002))
	require.NoError(t, err)
	is.SetNodes([]int{0, Ground})

	sys := newDCSystem(1)
	require.NoError(t, is.Stamp(sys, &Status{Mode: ModeDC}))
	assert.InDelta(t, -0.002, sys.B.Get(0), 1e-15)
}

func TestVCVSCouplesControlNodes(t *testing.T) {
	e, err := NewVCVS("E1", []string{"2", "0", "1", "0"}, 10)
	require.NoError(t, err)
	e.SetNodes([]int{1, Ground, 0, Ground})
	e.SetBranchIndex(2)

	sys := newDCSystem(3)
	require.NoError(t, e.Stamp(sys, &Status{Mode: ModeDC}))

	assert.Equal(t, 1.0, sys.A.Get(2, 1))
	assert.Equal(t, -10.0, sys.A.Get(2, 0))
}

func TestVCCSCrossTerms(t *testing.T) {
	g, err := NewVCCS("G1", []string{"2", "0", "1", "0"}, 0.5)
	require.NoError(t, err)
	g.SetNodes([]int{1, Ground, 0, Ground})

	sys := newDCSystem(2)
	require.NoError(t, g.Stamp(sys, &Status{Mode: ModeDC}))

	assert.Equal(t, 0.5, sys.A.Get(1, 0))
}

func TestCCCSUsesControlBranch(t *testing.T) {
	vCtrl, err := NewVoltageSource("Vsense", []string{"1", "0"}, waveform.NewDC(0))
	require.NoError(t, err)
	vCtrl.SetBranchIndex(2)

	f, err := NewCCCS("F1", []string{"3", "0"}, 2.0, vCtrl)
	require.NoError(t, err)
	f.SetNodes([]int{1, Ground})

	sys := newDCSystem(3)
	require.NoError(t, f.Stamp(sys, &Status{Mode: ModeDC}))
	assert.Equal(t, 2.0, sys.A.Get(1, 2))
}

func TestCCVSRejectsNilControl(t *testing.T) {
	_, err := NewCCVS("H1", []string{"1", "0"}, 1.0, nil)
	assert.Error(t, err)
}
