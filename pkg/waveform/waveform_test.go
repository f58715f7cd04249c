package waveform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDCConstant(t *testing.T) {
	d := NewDC(5)
	assert.Equal(t, 5.0, d.Value(0))
	assert.Equal(t, 5.0, d.Value(100))
}

func TestSineBeforeDelayHoldsOffset(t *testing.T) {
	d := NewSine(1, 2, 1000, 1e-3, 0)
	assert.Equal(t, 1.0, d.Value(0))
}

func TestPulseShape(t *testing.T) {
	d := NewPulse(0, 5, 0, 1e-6, 1e-6, 2e-6, 5e-6)
	assert.InDelta(t, 0, d.Value(0), 1e-12)
	assert.InDelta(t, 5, d.Value(2e-6), 1e-12)
	assert.InDelta(t, 2.5, d.Value(0.5e-6), 1e-9)
}

func TestPWLInterpolatesAndClampsFlat(t *testing.T) {
	d, err := NewPWL([]float64{0, 1, 2}, []float64{0, 10, 10})
	require.NoError(t, err)
	assert.InDelta(t, 5, d.Value(0.5), 1e-12)
	assert.Equal(t, 0.0, d.Value(-1))
	assert.Equal(t, 10.0, d.Value(5))
}

func TestPWLRejectsNonIncreasingTimes(t *testing.T) {
	_, err := NewPWL([]float64{0, 1, 1}, []float64{0, 1, 2})
	assert.Error(t, err)
}

func TestExpHoldsV1BeforeTd1(t *testing.T) {
	d := NewExp(0, 5, 0, 1e-3, 2e-3, 1e-3)
	assert.Equal(t, 0.0, d.Value(-1e-3))
}

// TestExpAdditiveFormulaAtTau1ComparableToTd2MinusTd1 pins the standard
// SPICE EXP formula (the rising term keeps evolving past td2 and is
// additively combined with the falling term) for a case where tau1 is
// comparable to (td2-td1), where that additive formula and a "freeze
// the rise at td2, then relax" approximation diverge.
func TestExpAdditiveFormulaAtTau1ComparableToTd2MinusTd1(t *testing.T) {
	d := NewExp(0, 5, 0, 1e-3, 2e-3, 1e-3)
	v := d.Value(3e-3)
	assert.InDelta(t, 1.590462, v, 1e-4)
}
