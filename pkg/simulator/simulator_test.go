package simulator

import (
	"testing"

	"github.com/aaasdream/akingspice/pkg/analysis"
	"github.com/aaasdream/akingspice/pkg/device"
	"github.com/aaasdream/akingspice/pkg/stepped"
	"github.com/aaasdream/akingspice/pkg/waveform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dividerDevices(t *testing.T) []device.Device {
	t.Helper()
	vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(10))
	require.NoError(t, err)
	r1, err := device.NewResistor("R1", []string{"in", "mid"}, 1000)
	require.NoError(t, err)
	r2, err := device.NewResistor("R2", []string{"mid", "0"}, 1000)
	require.NoError(t, err)
	return []device.Device{vs, r1, r2}
}

func TestSimulatorRunDC(t *testing.T) {
	sim := New()
	require.NoError(t, sim.AddComponents(dividerDevices(t)))

	result, err := sim.RunDC(analysis.DefaultDCOptions())
	require.NoError(t, err)
	assert.InDelta(t, 5.0, result.NodeVoltages["mid"], 1e-6)

	cached, err := sim.GetResult(ResultDC)
	require.NoError(t, err)
	assert.Same(t, result, cached)
}

func TestSimulatorRunAnalysisDefaultsToDC(t *testing.T) {
	sim := New()
	require.NoError(t, sim.AddComponents(dividerDevices(t)))

	result, err := sim.RunAnalysis("")
	require.NoError(t, err)
	dc, ok := result.(*analysis.DCResult)
	require.True(t, ok)
	assert.InDelta(t, 5.0, dc.NodeVoltages["mid"], 1e-6)
}

func TestSimulatorGetCircuitInfo(t *testing.T) {
	sim := New()
	require.NoError(t, sim.AddComponents(dividerDevices(t)))

	info, err := sim.GetCircuitInfo()
	require.NoError(t, err)
	assert.Equal(t, 3, info.DeviceCount)
	assert.Equal(t, 2, info.NodeCount)
	assert.Equal(t, 1, info.BranchCount)
	assert.Equal(t, 3, info.MatrixSize)
}

func TestSimulatorExpandsMetaTransformer(t *testing.T) {
	sim := New()
	xfmr, err := device.NewTransformer("T1", []device.WindingSpec{
		{NodeNames: [2]string{"p1", "p2"}, Henries: 1e-3},
		{NodeNames: [2]string{"s1", "s2"}, Henries: 1e-3},
	}, [][]float64{{1, 0.9}, {0.9, 1}})
	require.NoError(t, err)

	sim.AddComponent(xfmr)

	devices := sim.Devices()
	require.Len(t, devices, 3)
	for _, d := range devices {
		_, isMeta := d.(device.MetaDevice)
		assert.False(t, isMeta, "meta-device %s should have been expanded away", d.Name())
	}
}

func TestSimulatorValidateCircuitReportsFloatingNodesAndMissingGround(t *testing.T) {
	sim := New()
	r, err := device.NewResistor("R1", []string{"a", "b"}, 1000)
	require.NoError(t, err)
	sim.AddComponent(r)

	advisories, err := sim.ValidateCircuit()
	require.NoError(t, err)
	// The circuit has no ground reference and "a" and "b" each have only
	// one connection, so the validator reports the missing ground and
	// both floating nodes as advisories without failing the circuit.
	assert.Len(t, advisories, 3)
}

func TestSimulatorValidateCircuitCleanOnWellFormedDivider(t *testing.T) {
	sim := New()
	require.NoError(t, sim.AddComponents(dividerDevices(t)))

	advisories, err := sim.ValidateCircuit()
	require.NoError(t, err)
	assert.Empty(t, advisories)
}

func TestSimulatorResetClearsState(t *testing.T) {
	sim := New()
	require.NoError(t, sim.AddComponents(dividerDevices(t)))
	_, err := sim.RunDC(analysis.DefaultDCOptions())
	require.NoError(t, err)

	sim.Reset()
	assert.Empty(t, sim.Devices())
	_, err = sim.GetResult(ResultDC)
	assert.Error(t, err)
	_, err = sim.GetCircuitInfo()
	assert.Error(t, err)
}

func TestSimulatorSteppedDriverLifecycle(t *testing.T) {
	sim := New()
	require.NoError(t, sim.AddComponents(dividerDevices(t)))

	_, err := sim.InitSteppedTransient(stepped.Params{
		TStart: 0, TStop: 2e-6, H: 1e-6, Method: device.BackwardEuler,
		DCOptions: analysis.DefaultDCOptions(),
	})
	require.NoError(t, err)

	assert.False(t, sim.SteppedFinished())
	_, err = sim.Step(nil)
	require.NoError(t, err)
	_, err = sim.Step(nil)
	require.NoError(t, err)
	assert.True(t, sim.SteppedFinished())
}

func TestSimulatorStepBeforeInitErrors(t *testing.T) {
	sim := New()
	_, err := sim.Step(nil)
	assert.Error(t, err)
}
