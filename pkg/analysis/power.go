package analysis

import (
	"github.com/aaasdream/akingspice/pkg/device"
	"github.com/aaasdream/akingspice/pkg/mna"
)

// devicePower computes dissipated/delivered power per device from a
// solved operating point (SPEC_FULL supplemented feature, spec §4.5
// step 5 "Compute per-device power from the final solution"). No
// teacher equivalent exists; this is a direct P = V*I / V^2/R
// computation from the already-extracted voltages and currents, kept
// deliberately narrow — devices without an obvious power figure (meta-
// devices, already expanded away) are simply omitted.
func devicePower(asm *mna.Assembler, voltages, currents map[string]float64) map[string]float64 {
	power := make(map[string]float64)
	for _, d := range asm.Devices() {
		switch dv := d.(type) {
		case *device.Resistor:
			v := terminalVoltage(dv, voltages)
			power[dv.Name()] = v * v / dv.Ohms
		case *device.VoltageSource:
			v := terminalVoltage(dv, voltages)
			power[dv.Name()] = v * currents[dv.Name()]
		case *device.CurrentSource:
			// CurrentSource has no branch variable (spec §4.3 "no branch
			// variable"), so it never appears in the extracted branch-
			// current map; its current is its own waveform evaluated at
			// the DC operating point (t=0), the same value its Stamp
			// injects into the RHS.
			v := terminalVoltage(dv, voltages)
			power[dv.Name()] = v * -dv.Waveform.Value(0)
		case *device.Inductor:
			i := currents[dv.Name()]
			power[dv.Name()] = i * i * 0 // ideal inductor dissipates nothing; current is the reportable quantity
		}
	}
	return power
}

func terminalVoltage(d device.Device, voltages map[string]float64) float64 {
	names := d.TerminalNames()
	if len(names) != 2 {
		return 0
	}
	return voltages[names[0]] - voltages[names[1]]
}
