// Package stepped implements the externally-controlled, one-time-point-
// at-a-time driver of spec §4.7: it mirrors the batch transient
// analyzer's init sequence and per-step update_companion_model -> build
// -> solve -> update_history order, but returns control to the caller
// between steps so gate signals (e.g. PWM duty cycle) can be injected
// before the next step builds.
//
// Grounded on the teacher's pkg/analysis/tran.go main-loop shape,
// generalized from the teacher's single Execute-to-completion loop into
// a Step()-at-a-time state machine, and on the teacher's doNRiter for
// the inner fixed-point mini-loop nonlinear steps need.
package stepped

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/aaasdream/akingspice/pkg/analysis"
	"github.com/aaasdream/akingspice/pkg/device"
	"github.com/aaasdream/akingspice/pkg/mna"
	"github.com/aaasdream/akingspice/pkg/numeric"
)

// resolveLogger returns l, or slog.Default() if l is nil (spec §9
// logging requirement).
func resolveLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// GateSetter is implemented by switch-like devices whose gate state is
// externally driven (spec §4.7 control-input map: "boolean values
// address switches' gate state").
type GateSetter interface {
	SetGateState(on bool)
}

// ValueSetter is implemented by independent sources whose value can be
// overridden between steps (spec §4.7 control-input map: "numeric
// values address independent-source set_value").
type ValueSetter interface {
	SetValue(v float64)
}

// Params configures a stepped run (spec §4.7 init_stepped(params)).
type Params struct {
	TStart, TStop, H float64
	Method           device.IntegrationMethod

	UseInitialConditions bool
	DCOptions            analysis.DCOptions

	// Logger receives per-step inner-loop non-convergence warnings (spec
	// §9 logging requirement). A nil Logger falls back to slog.Default().
	Logger *slog.Logger
}

// ControlInputs is the string-keyed control-input map of spec §6:
// booleans address a GateSetter, float64s address a ValueSetter.
type ControlInputs map[string]any

// Record is one step's result (spec §4.7 "per-step record"): node
// voltages, branch currents, whether the inner fixed-point loop
// converged, and the time this record was produced for.
type Record struct {
	Time           float64
	NodeVoltages   map[string]float64
	BranchCurrents map[string]float64
	Converged      bool
	Iterations     int
}

// Driver is the stepped-mode state machine.
type Driver struct {
	asm    *mna.Assembler
	params Params

	sys  *device.System
	time float64
	done bool
	log  *slog.Logger
}

// NewDriver runs the stepped init sequence (spec §4.7, mirroring §4.6's
// init): InitTransient on every device, then either a DC operating
// point or a direct IC-seeded solve becomes the history for the first
// step.
func NewDriver(asm *mna.Assembler, params Params) (*Driver, *Record, error) {
	for _, d := range asm.Devices() {
		if init, ok := d.(device.Initializer); ok {
			init.InitTransient(params.H, params.Method)
		}
	}

	log := resolveLogger(params.Logger)
	d := &Driver{asm: asm, params: params, sys: asm.NewSystem(), time: params.TStart, log: log}

	var voltages, currents map[string]float64
	if params.UseInitialConditions {
		st0 := &device.Status{Mode: device.ModeTransient, Time: params.TStart, TimeStep: params.H, Method: params.Method}
		if err := asm.Build(d.sys, st0); err != nil {
			return nil, nil, fmt.Errorf("initial condition build: %w", err)
		}
		x, err := numeric.Solve(d.sys.A.Clone(), d.sys.B)
		if err != nil {
			return nil, nil, fmt.Errorf("initial condition solve: %w", err)
		}
		voltages = asm.ExtractNodeVoltages(x)
		currents = asm.ExtractBranchCurrents(x)
	} else {
		dcOpts := params.DCOptions
		if dcOpts.Logger == nil {
			dcOpts.Logger = log
		}
		dcResult, err := analysis.RunDC(asm, dcOpts)
		if err != nil {
			return nil, nil, fmt.Errorf("initial operating point: %w", err)
		}
		voltages, currents = dcResult.NodeVoltages, dcResult.BranchCurrents
	}

	updateHistory(asm, voltages, currents)

	rec := &Record{Time: params.TStart, NodeVoltages: voltages, BranchCurrents: currents, Converged: true}
	return d, rec, nil
}

// CurrentTime returns the time of the most recently accepted step.
func (d *Driver) CurrentTime() float64 { return d.time }

// IsFinished reports whether TStop has been reached.
func (d *Driver) IsFinished() bool { return d.done }

// applyControlInputs dispatches each entry to SetGateState or SetValue
// per the receiving device's kind (spec §4.7 "update_control_inputs").
func (d *Driver) applyControlInputs(inputs ControlInputs) error {
	byName := make(map[string]device.Device, len(d.asm.Devices()))
	for _, dev := range d.asm.Devices() {
		byName[dev.Name()] = dev
	}

	for name, raw := range inputs {
		dev, ok := byName[name]
		if !ok {
			return fmt.Errorf("stepped driver: control input references unknown device %q", name)
		}
		switch v := raw.(type) {
		case bool:
			gs, ok := dev.(GateSetter)
			if !ok {
				return fmt.Errorf("stepped driver: device %q has no gate state to set", name)
			}
			gs.SetGateState(v)
		case float64:
			vs, ok := dev.(ValueSetter)
			if !ok {
				return fmt.Errorf("stepped driver: device %q has no value to set", name)
			}
			vs.SetValue(v)
		default:
			return fmt.Errorf("stepped driver: control input for %q must be bool or float64", name)
		}
	}
	return nil
}

// Step advances one time step of size H, applying control inputs before
// the build pass, running an inner fixed-point mini-loop for nonlinear
// assemblies (spec §4.7: "the same 10⁻⁹ / 20-iteration limits apply"),
// and accepting the result as the new history.
func (d *Driver) Step(inputs ControlInputs) (*Record, error) {
	if d.done {
		return nil, fmt.Errorf("stepped driver: already finished at t=%g", d.time)
	}
	if err := d.applyControlInputs(inputs); err != nil {
		return nil, err
	}

	h := d.params.H
	next := d.time + h
	if next > d.params.TStop {
		next, h = d.params.TStop, d.params.TStop-d.time
	}

	st := &device.Status{Mode: device.ModeTransient, Time: next, TimeStep: h, Method: d.params.Method}
	for _, dv := range d.asm.Devices() {
		if cm, ok := dv.(device.CompanionModel); ok {
			cm.UpdateCompanionModel(st)
		}
	}

	voltages, currents, iterations, converged, err := innerFixedPointLoop(d.asm, d.sys, st, d.params.DCOptions)
	if err != nil {
		return nil, fmt.Errorf("stepped solve at t=%g: %w", next, err)
	}

	if !converged {
		d.log.Warn("stepped inner fixed-point loop failed to converge", "t", next, "iterations", iterations)
	}

	updateHistory(d.asm, voltages, currents)
	d.time = next
	if d.time >= d.params.TStop-1e-15 {
		d.done = true
	}

	return &Record{Time: next, NodeVoltages: voltages, BranchCurrents: currents, Converged: converged, Iterations: iterations}, nil
}

// innerFixedPointLoop runs the damped-Picard mini-loop spec §4.7 calls
// for nonlinear assemblies; a purely-linear assembly converges on its
// first solve ("Convergence status is always true for linear
// assemblies").
func innerFixedPointLoop(asm *mna.Assembler, sys *device.System, st *device.Status, opts analysis.DCOptions) (map[string]float64, map[string]float64, int, bool, error) {
	opts = normalizeOptions(opts)

	var prevX *numeric.Vector
	for iter := 0; iter < opts.MaxIterations; iter++ {
		if err := asm.Build(sys, st); err != nil {
			return nil, nil, iter, false, err
		}
		x, err := numeric.Solve(sys.A.Clone(), sys.B)
		if err != nil {
			return nil, nil, iter, false, err
		}

		converged := true
		if prevX != nil {
			converged = maxAbsDelta(x, prevX) < opts.Tolerance
		} else if !hasNonlinearDevice(asm) {
			converged = true
		} else {
			converged = false
		}

		voltages := asm.ExtractNodeVoltages(x)
		for _, dv := range asm.Devices() {
			if nl, ok := dv.(device.Nonlinear); ok {
				nl.UpdateOperatingPoint(voltages2indexed(asm, voltages))
			}
		}

		if converged {
			return voltages, asm.ExtractBranchCurrents(x), iter + 1, true, nil
		}
		prevX = x
	}

	// Max iterations reached: still return the last solution found, per
	// spec's "report a status either way" philosophy carried over from
	// the DC analyzer (spec §4.5 step 5).
	voltages := asm.ExtractNodeVoltages(prevX)
	return voltages, asm.ExtractBranchCurrents(prevX), opts.MaxIterations, false, nil
}

func hasNonlinearDevice(asm *mna.Assembler) bool {
	for _, d := range asm.Devices() {
		if _, ok := d.(device.Nonlinear); ok {
			return true
		}
	}
	return false
}

func normalizeOptions(o analysis.DCOptions) analysis.DCOptions {
	if o.MaxIterations <= 0 {
		o.MaxIterations = analysis.DefaultMaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = analysis.DefaultTolerance
	}
	return o
}

func maxAbsDelta(a, b *numeric.Vector) float64 {
	maxDelta := 0.0
	for i := 0; i < a.Len(); i++ {
		d := math.Abs(a.Get(i) - b.Get(i))
		if d > maxDelta {
			maxDelta = d
		}
	}
	return maxDelta
}

func voltages2indexed(asm *mna.Assembler, voltages map[string]float64) []float64 {
	out := make([]float64, asm.NumNodes())
	for name, v := range voltages {
		if name == "0" {
			continue
		}
		if idx, ok := asm.NodeIndex(name); ok && idx != device.Ground {
			out[idx] = v
		}
	}
	return out
}

func updateHistory(asm *mna.Assembler, voltages, currents map[string]float64) {
	indexed := voltages2indexed(asm, voltages)
	for _, d := range asm.Devices() {
		if hu, ok := d.(device.HistoryUpdater); ok {
			hu.UpdateHistory(indexed, currents)
		}
		if nl, ok := d.(device.Nonlinear); ok {
			nl.UpdateOperatingPoint(indexed)
		}
	}
}
