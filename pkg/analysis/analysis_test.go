package analysis

import (
	"math"
	"testing"

	"github.com/aaasdream/akingspice/pkg/device"
	"github.com/aaasdream/akingspice/pkg/mna"
	"github.com/aaasdream/akingspice/pkg/waveform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoltageDividerDC(t *testing.T) {
	vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(10))
	require.NoError(t, err)
	r1, err := device.NewResistor("R1", []string{"in", "mid"}, 1000)
	require.NoError(t, err)
	r2, err := device.NewResistor("R2", []string{"mid", "0"}, 1000)
	require.NoError(t, err)

	asm, err := mna.NewAssembler([]device.Device{vs, r1, r2})
	require.NoError(t, err)

	result, err := RunDC(asm, DefaultDCOptions())
	require.NoError(t, err)
	require.True(t, result.Converged)

	assert.InDelta(t, 10.0, result.NodeVoltages["in"], 1e-6)
	assert.InDelta(t, 5.0, result.NodeVoltages["mid"], 1e-6)
	assert.InDelta(t, -0.005, result.BranchCurrents["V1"], 1e-6)
}

func TestRCChargingTransient(t *testing.T) {
	vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(5))
	require.NoError(t, err)
	r, err := device.NewResistor("R1", []string{"in", "cap"}, 1000)
	require.NoError(t, err)
	c, err := device.NewCapacitor("C1", []string{"cap", "0"}, 1e-6, 0)
	require.NoError(t, err)

	asm, err := mna.NewAssembler([]device.Device{vs, r, c})
	require.NoError(t, err)

	result, err := RunTransient(asm, TransientOptions{
		TStart: 0, TStop: 5e-3, H: 10e-6, Method: device.BackwardEuler,
		UseInitialConditions: true,
	})
	require.NoError(t, err)

	v := valueNear(t, result, "cap", 1e-3)
	assert.InDelta(t, 3.161, v, 0.05)

	v = valueNear(t, result, "cap", 2e-3)
	assert.InDelta(t, 4.323, v, 0.05)

	v = valueNear(t, result, "cap", 5e-3)
	assert.InDelta(t, 4.966, v, 0.05)
}

func TestRLCurrentRiseTransient(t *testing.T) {
	vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(1))
	require.NoError(t, err)
	r, err := device.NewResistor("R1", []string{"in", "mid"}, 1)
	require.NoError(t, err)
	l, err := device.NewInductor("L1", []string{"mid", "0"}, 1e-3, 0)
	require.NoError(t, err)

	asm, err := mna.NewAssembler([]device.Device{vs, r, l})
	require.NoError(t, err)

	result, err := RunTransient(asm, TransientOptions{
		TStart: 0, TStop: 5e-3, H: 1e-6, Method: device.BackwardEuler,
		UseInitialConditions: true,
	})
	require.NoError(t, err)

	i := currentNear(t, result, "L1", 3e-3)
	assert.InDelta(t, 0.9502, i, 0.02)
}

func TestLCResonatorOscillates(t *testing.T) {
	l, err := device.NewInductor("L1", []string{"v", "0"}, 1e-3, 0)
	require.NoError(t, err)
	c, err := device.NewCapacitor("C1", []string{"v", "0"}, 1e-6, 1.0)
	require.NoError(t, err)

	asm, err := mna.NewAssembler([]device.Device{l, c})
	require.NoError(t, err)

	result, err := RunTransient(asm, TransientOptions{
		TStart: 0, TStop: 2e-3, H: 1e-6, Method: device.Trapezoidal,
		UseInitialConditions: true,
	})
	require.NoError(t, err)

	series := result.NodeVoltages["v"]
	require.NotEmpty(t, series)

	maxV, minV := series[0], series[0]
	for _, v := range series {
		if v > maxV {
			maxV = v
		}
		if v < minV {
			minV = v
		}
	}
	assert.InDelta(t, 2.0, maxV-minV, 0.3)
}

func TestKCLHoldsAtEveryNonGroundNode(t *testing.T) {
	vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(10))
	require.NoError(t, err)
	r1, err := device.NewResistor("R1", []string{"in", "mid"}, 1000)
	require.NoError(t, err)
	r2, err := device.NewResistor("R2", []string{"mid", "0"}, 2000)
	require.NoError(t, err)

	asm, err := mna.NewAssembler([]device.Device{vs, r1, r2})
	require.NoError(t, err)

	result, err := RunDC(asm, DefaultDCOptions())
	require.NoError(t, err)

	iInto := (result.NodeVoltages["in"] - result.NodeVoltages["mid"]) / 1000
	iOut := result.NodeVoltages["mid"] / 2000
	assert.InDelta(t, iInto, iOut, 1e-6)
}

func TestDCDampingFactorDoesNotChangeConvergedAnswer(t *testing.T) {
	vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(10))
	require.NoError(t, err)
	r1, err := device.NewResistor("R1", []string{"in", "mid"}, 1000)
	require.NoError(t, err)
	r2, err := device.NewResistor("R2", []string{"mid", "0"}, 1000)
	require.NoError(t, err)

	asm, err := mna.NewAssembler([]device.Device{vs, r1, r2})
	require.NoError(t, err)

	opts := DefaultDCOptions()
	opts.DampingFactor = 0.5
	result, err := RunDC(asm, opts)
	require.NoError(t, err)
	require.True(t, result.Converged)
	assert.InDelta(t, 5.0, result.NodeVoltages["mid"], 1e-6)
}

func TestDevicePowerReportsCurrentSourceInjection(t *testing.T) {
	is, err := device.NewCurrentSource("I1", []string{"0", "out"}, waveform.NewDC(2e-3))
	require.NoError(t, err)
	r, err := device.NewResistor("R1", []string{"out", "0"}, 1000)
	require.NoError(t, err)

	asm, err := mna.NewAssembler([]device.Device{is, r})
	require.NoError(t, err)

	result, err := RunDC(asm, DefaultDCOptions())
	require.NoError(t, err)

	// I1 pushes 2mA into "out" through a 1k resistor: V(out) = 2V,
	// P = V*I = 4mW. A zeroed lookup (the pre-fix bug) would report 0.
	assert.InDelta(t, 4e-3, result.DevicePower["I1"], 1e-9)
}

func TestSourceSteppingContinuationRampsFromTrueOriginal(t *testing.T) {
	vs1, err := device.NewVoltageSource("V1", []string{"a", "0"}, waveform.NewDC(10))
	require.NoError(t, err)
	vs2, err := device.NewVoltageSource("V2", []string{"b", "0"}, waveform.NewDC(5))
	require.NoError(t, err)
	r, err := device.NewResistor("R1", []string{"a", "b"}, 1000)
	require.NoError(t, err)

	asm, err := mna.NewAssembler([]device.Device{vs1, vs2, r})
	require.NoError(t, err)

	// Exercise the source-stepping ladder directly: each factor in
	// sourceSteppingFactors should scale from V1/V2's true original
	// values, not from whatever the previous factor left behind.
	orig := snapshotVoltageSources(asm)
	scaleVoltageSources(asm, orig, 0.5)
	for _, d := range asm.Devices() {
		if vs, ok := d.(*device.VoltageSource); ok && vs.Name() == "V1" {
			assert.InDelta(t, 5.0, vs.Waveform.Offset, 1e-9)
		}
	}
	scaleVoltageSources(asm, orig, 1.0)
	for _, d := range asm.Devices() {
		if vs, ok := d.(*device.VoltageSource); ok && vs.Name() == "V1" {
			assert.InDelta(t, 10.0, vs.Waveform.Offset, 1e-9)
		}
	}
}

func TestDCResultValueQuerySyntax(t *testing.T) {
	vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(10))
	require.NoError(t, err)
	r1, err := device.NewResistor("R1", []string{"in", "mid"}, 1000)
	require.NoError(t, err)
	r2, err := device.NewResistor("R2", []string{"mid", "0"}, 1000)
	require.NoError(t, err)

	asm, err := mna.NewAssembler([]device.Device{vs, r1, r2})
	require.NoError(t, err)

	result, err := RunDC(asm, DefaultDCOptions())
	require.NoError(t, err)

	v, ok := result.Value("mid")
	require.True(t, ok)
	assert.InDelta(t, 5.0, v, 1e-6)

	v, ok = result.Value("V(mid)")
	require.True(t, ok)
	assert.InDelta(t, 5.0, v, 1e-6)

	i, ok := result.Value("I(V1)")
	require.True(t, ok)
	assert.InDelta(t, -0.005, i, 1e-6)

	_, ok = result.Value("V(nope)")
	assert.False(t, ok)
}

func TestTransientResultValueQuerySyntax(t *testing.T) {
	vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(5))
	require.NoError(t, err)
	r, err := device.NewResistor("R1", []string{"in", "cap"}, 1000)
	require.NoError(t, err)
	c, err := device.NewCapacitor("C1", []string{"cap", "0"}, 1e-6, 0)
	require.NoError(t, err)

	asm, err := mna.NewAssembler([]device.Device{vs, r, c})
	require.NoError(t, err)

	result, err := RunTransient(asm, TransientOptions{
		TStart: 0, TStop: 5e-3, H: 10e-6, Method: device.BackwardEuler,
	})
	require.NoError(t, err)

	series, ok := result.Value("TIME")
	require.True(t, ok)
	assert.Equal(t, result.Time, series)

	series, ok = result.Value("V(cap)")
	require.True(t, ok)
	assert.Equal(t, result.NodeVoltages["cap"], series)

	series, ok = result.Value("I(V1)")
	require.True(t, ok)
	assert.Equal(t, result.BranchCurrents["V1"], series)
}

func TestDCReportsGroundZero(t *testing.T) {
	vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(10))
	require.NoError(t, err)
	r, err := device.NewResistor("R1", []string{"in", "0"}, 1000)
	require.NoError(t, err)

	asm, err := mna.NewAssembler([]device.Device{vs, r})
	require.NoError(t, err)

	result, err := RunDC(asm, DefaultDCOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.NodeVoltages["0"])
}

func valueNear(t *testing.T, result *TransientResult, node string, target float64) float64 {
	t.Helper()
	best := 0
	bestDiff := math.Inf(1)
	for i, tm := range result.Time {
		d := math.Abs(tm - target)
		if d < bestDiff {
			bestDiff = d
			best = i
		}
	}
	return result.NodeVoltages[node][best]
}

func currentNear(t *testing.T, result *TransientResult, branch string, target float64) float64 {
	t.Helper()
	best := 0
	bestDiff := math.Inf(1)
	for i, tm := range result.Time {
		d := math.Abs(tm - target)
		if d < bestDiff {
			bestDiff = d
			best = i
		}
	}
	return result.BranchCurrents[branch][best]
}
