package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdealDiodeOffConducts(t *testing.T) {
	d, err := NewIdealDiode("D1", []string{"a", "k"}, 1.0, 1e6, 0.7)
	require.NoError(t, err)
	d.SetNodes([]int{0, Ground})

	d.UpdateOperatingPoint([]float64{0.0}) // Vak = 0 < Vf
	sys := newDCSystem(1)
	require.NoError(t, d.Stamp(sys, &Status{Mode: ModeDC}))

	assert.InDelta(t, 1.0/1e6, sys.A.Get(0, 0), 1e-12)
	assert.Equal(t, 0.0, sys.B.Get(0))
}

func TestIdealDiodeForwardInjectsEquivalentCurrent(t *testing.T) {
	d, err := NewIdealDiode("D1", []string{"a", "k"}, 1.0, 1e6, 0.7)
	require.NoError(t, err)
	d.SetNodes([]int{0, Ground})

	d.UpdateOperatingPoint([]float64{1.0}) // Vak = 1.0 >= Vf
	sys := newDCSystem(1)
	require.NoError(t, d.Stamp(sys, &Status{Mode: ModeDC}))

	assert.InDelta(t, 1.0, sys.A.Get(0, 0), 1e-12)
	assert.InDelta(t, -0.7, sys.B.Get(0), 1e-12)
}

func TestSwitchMOSFETGateOnUsesRon(t *testing.T) {
	m, err := NewSwitchMOSFET("M1", []string{"d", "s"}, 0.01, 1e6, 0.01, 1e6, 0.7)
	require.NoError(t, err)
	m.SetNodes([]int{0, Ground})
	m.SetGateState(true)
	m.UpdateOperatingPoint([]float64{0.0})

	sys := newDCSystem(1)
	require.NoError(t, m.Stamp(sys, &Status{Mode: ModeDC}))
	assert.InDelta(t, 1.0/0.01, sys.A.Get(0, 0), 1e-6)
}

func TestSwitchMOSFETGateOffBodyDiodeConducts(t *testing.T) {
	m, err := NewSwitchMOSFET("M1", []string{"d", "s"}, 0.01, 1e6, 0.01, 1e6, 0.7)
	require.NoError(t, err)
	m.SetNodes([]int{0, Ground})
	m.SetGateState(false)
	m.UpdateOperatingPoint([]float64{-5.0}) // Vds << -Vf, body diode conducts

	sys := newDCSystem(1)
	require.NoError(t, m.Stamp(sys, &Status{Mode: ModeDC}))

	expected := 1.0/1e6 + 1.0/0.01
	assert.InDelta(t, expected, sys.A.Get(0, 0), 1e-3)
}

func TestVControlledMOSFETCutoffIsHighImpedance(t *testing.T) {
	m, err := NewVControlledMOSFET("M1", []string{"d", "g", "s"}, 2.0, 0.2, 0.02, 0.01, 1e6, 0.7)
	require.NoError(t, err)
	m.SetNodes([]int{0, 1, Ground})

	m.UpdateOperatingPoint([]float64{5.0, 1.0}) // Vgs=1 < Vto=2 -> cutoff
	assert.Equal(t, RegionOff, m.Region())

	sys := newDCSystem(2)
	require.NoError(t, m.Stamp(sys, &Status{Mode: ModeDC}))
	// Channel leakage plus the non-conducting body diode's 1/RoffBody.
	assert.InDelta(t, offConductance+1.0/1e6, sys.A.Get(0, 0), 1e-20)
}

func TestVControlledMOSFETSelectsSaturation(t *testing.T) {
	m, err := NewVControlledMOSFET("M1", []string{"d", "g", "s"}, 2.0, 0.2, 0.02, 0.01, 1e6, 0.7)
	require.NoError(t, err)
	m.SetNodes([]int{0, 1, Ground})

	// Vgs=5 (vov=3), Vds=10 > vov -> saturation
	m.UpdateOperatingPoint([]float64{10.0, 5.0})
	assert.Equal(t, RegionSaturation, m.Region())
}

func TestVControlledMOSFETBodyDiodeInjectsEquivalentCurrent(t *testing.T) {
	m, err := NewVControlledMOSFET("M1", []string{"d", "g", "s"}, 2.0, 0.2, 0.02, 0.01, 1e6, 0.7)
	require.NoError(t, err)
	m.SetNodes([]int{0, 1, 2})

	// Vgs=1 (cutoff, channel irrelevant), Vds = 0-5 = -5 << -Vf -> body conducts.
	m.UpdateOperatingPoint([]float64{0.0, 1.0, 5.0})
	require.Equal(t, RegionOff, m.Region())

	sys := newDCSystem(3)
	require.NoError(t, m.Stamp(sys, &Status{Mode: ModeDC}))

	bodyG := 1.0 / 0.01
	ieq := 0.7 * bodyG
	assert.InDelta(t, -ieq, sys.B.Get(2), 1e-9) // anode (source)
	assert.InDelta(t, ieq, sys.B.Get(0), 1e-9)  // cathode (drain)
}

func TestVControlledMOSFETSelectsLinear(t *testing.T) {
	m, err := NewVControlledMOSFET("M1", []string{"d", "g", "s"}, 2.0, 0.2, 0.02, 0.01, 1e6, 0.7)
	require.NoError(t, err)
	m.SetNodes([]int{0, 1, Ground})

	// Vgs=5 (vov=3), Vds=0.5 < vov -> linear/triode
	m.UpdateOperatingPoint([]float64{0.5, 5.0})
	assert.Equal(t, RegionLinear, m.Region())
}
