package analysis

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/aaasdream/akingspice/pkg/device"
	"github.com/aaasdream/akingspice/pkg/mna"
	"github.com/aaasdream/akingspice/pkg/numeric"
)

// TransientOptions parametrizes a batch transient run (spec §4.6).
type TransientOptions struct {
	TStart, TStop, H float64
	Method           device.IntegrationMethod

	// UseInitialConditions skips the DC-operating-point init step and
	// starts the first time point directly from each reactive device's
	// constructed IC (spec §3 GLOSSARY "IC"), grounded on the teacher's
	// Transient.useUIC (tran.go Setup). Without it, the DC analyzer's
	// result becomes the history for the first step (spec §4.6 init
	// step 3) — which, for an unforced reactive loop (no independent
	// source), would discard a nonzero IC, since a capacitor is open and
	// an inductor is a near-short in DC and so carries no IC information
	// into that solve.
	UseInitialConditions bool

	DCOptions DCOptions

	// Progress is called after each accepted time point; returning true
	// cancels the run (spec §5 "Cancellation": the current step
	// completes, no partial point is recorded).
	Progress func(t float64, voltages, currents map[string]float64) (cancel bool)

	// Logger receives init/cancellation diagnostics (spec §9 logging
	// requirement). A nil Logger falls back to slog.Default().
	Logger *slog.Logger
}

// TransientResult is the batch result series of spec §4.6: the time
// vector plus per-node/per-branch series, keyed the way result access
// (spec §6) expects, plus an analysis-info summary.
type TransientResult struct {
	Time           []float64
	NodeVoltages   map[string][]float64
	BranchCurrents map[string][]float64
	Info           AnalysisInfo
}

// AnalysisInfo summarizes a completed transient run (spec §4.6 "method,
// matrix size, node/source counts, average/min/max step"). Since the
// driver is fixed-step (no adaptive control, a Non-goal), average/min/
// max step all equal H except for a possible shorter final step.
type AnalysisInfo struct {
	Method       device.IntegrationMethod
	MatrixSize   int
	NumNodes     int
	NumBranches  int
	AverageStep  float64
	MinStep      float64
	MaxStep      float64
	StepCount    int
	Cancelled    bool
}

// RunTransient runs the batch transient driver of spec §4.6: DC init,
// then a fixed-step main loop of update_companion_model -> build ->
// solve -> update_history, recording every accepted time point.
func RunTransient(asm *mna.Assembler, opts TransientOptions) (*TransientResult, error) {
	if opts.H <= 0 {
		return nil, fmt.Errorf("transient analysis requires h > 0")
	}
	log := resolveLogger(opts.Logger)
	log.Debug("starting transient run", "tstart", opts.TStart, "tstop", opts.TStop, "h", opts.H, "method", opts.Method)

	initTransient(asm, opts.H, opts.Method)

	result := &TransientResult{
		NodeVoltages:   make(map[string][]float64),
		BranchCurrents: make(map[string][]float64),
	}
	sys := asm.NewSystem()

	var initVoltages, initCurrents map[string]float64
	if opts.UseInitialConditions {
		// Skip the DC operating point entirely and solve once at
		// t_start directly from the IC-seeded companion models (spec §9
		// Open Question, resolved: a DC solve would treat every
		// capacitor as open and every inductor as a near-short,
		// discarding any IC on an unforced reactive loop — see the
		// teacher's Transient.useUIC, tran.go Setup).
		st0 := &device.Status{Mode: device.ModeTransient, Time: opts.TStart, TimeStep: opts.H, Method: opts.Method}
		if err := asm.Build(sys, st0); err != nil {
			return nil, fmt.Errorf("initial condition build: %w", err)
		}
		x, err := numeric.Solve(sys.A.Clone(), sys.B)
		if err != nil {
			return nil, fmt.Errorf("initial condition solve: %w", err)
		}
		initVoltages = asm.ExtractNodeVoltages(x)
		initCurrents = asm.ExtractBranchCurrents(x)
	} else {
		dcOpts := opts.DCOptions.normalized()
		if dcOpts.Logger == nil {
			dcOpts.Logger = log
		}
		dcResult, err := RunDC(asm, dcOpts)
		if err != nil {
			return nil, fmt.Errorf("initial operating point: %w", err)
		}
		initVoltages, initCurrents = dcResult.NodeVoltages, dcResult.BranchCurrents
	}
	seedHistory(asm, initVoltages, initCurrents)
	appendTimePoint(result, opts.TStart, initVoltages, initCurrents)

	st := &device.Status{Mode: device.ModeTransient, TimeStep: opts.H, Method: opts.Method}

	steps := 0
	minStep, maxStep := math.Inf(1), 0.0
	cancelled := false

	t := opts.TStart
	for t < opts.TStop-1e-15 {
		h := opts.H
		next := t + h
		if next > opts.TStop {
			next, h = opts.TStop, opts.TStop-t
		}
		st.Time, st.TimeStep = next, h

		updateCompanionModels(asm, st)

		if err := asm.Build(sys, st); err != nil {
			return nil, fmt.Errorf("build at t=%g: %w", next, err)
		}
		x, err := numeric.Solve(sys.A.Clone(), sys.B)
		if err != nil {
			return nil, fmt.Errorf("solve at t=%g: %w", next, err)
		}

		voltages := asm.ExtractNodeVoltages(x)
		currents := asm.ExtractBranchCurrents(x)
		updateHistory(asm, voltages, currents)

		appendTimePoint(result, next, voltages, currents)
		steps++
		if h < minStep {
			minStep = h
		}
		if h > maxStep {
			maxStep = h
		}

		if opts.Progress != nil && opts.Progress(next, voltages, currents) {
			log.Info("transient run cancelled by progress callback", "t", next, "steps", steps)
			cancelled = true
			t = next
			break
		}
		t = next
	}

	avg := opts.H
	if steps > 0 {
		avg = (result.Time[len(result.Time)-1] - opts.TStart) / float64(steps)
	}
	result.Info = AnalysisInfo{
		Method:      opts.Method,
		MatrixSize:  asm.Size(),
		NumNodes:    asm.NumNodes(),
		NumBranches: asm.NumBranches(),
		AverageStep: avg,
		MinStep:     minStep,
		MaxStep:     maxStep,
		StepCount:   steps,
		Cancelled:   cancelled,
	}
	return result, nil
}

// initTransient calls InitTransient on every device that implements it
// (spec §4.6 init step 2).
func initTransient(asm *mna.Assembler, h float64, method device.IntegrationMethod) {
	for _, d := range asm.Devices() {
		if init, ok := d.(device.Initializer); ok {
			init.InitTransient(h, method)
		}
	}
}

// seedHistory treats the DC result as the first step's history (spec
// §4.6 init step 3): every HistoryUpdater device records it directly.
func seedHistory(asm *mna.Assembler, voltages, currents map[string]float64) {
	updateHistory(asm, voltages, currents)
	updateNonlinearFromNamed(asm, voltages)
}

func updateCompanionModels(asm *mna.Assembler, st *device.Status) {
	for _, d := range asm.Devices() {
		if cm, ok := d.(device.CompanionModel); ok {
			cm.UpdateCompanionModel(st)
		}
	}
}

func updateHistory(asm *mna.Assembler, voltages, currents map[string]float64) {
	for _, d := range asm.Devices() {
		if hu, ok := d.(device.HistoryUpdater); ok {
			hu.UpdateHistory(namedVoltagesToIndexed(asm, voltages), currents)
		}
	}
	updateNonlinearFromNamed(asm, voltages)
}

// updateNonlinearFromNamed refreshes Nonlinear devices' operating point
// after a transient step is accepted, so the next step's build pass
// (and the next outer DC-style pass, if any) sees the latest state.
func updateNonlinearFromNamed(asm *mna.Assembler, voltages map[string]float64) {
	indexed := namedVoltagesToIndexed(asm, voltages)
	for _, d := range asm.Devices() {
		if nl, ok := d.(device.Nonlinear); ok {
			nl.UpdateOperatingPoint(indexed)
		}
	}
}

// namedVoltagesToIndexed rebuilds the node-index-addressed slice every
// device's UpdateOperatingPoint/UpdateHistory expects, from the name-
// addressed map extraction returns. Ground is never indexed, so index 0
// refers to the first sorted non-ground node name, matching the
// assembler's own indexing.
func namedVoltagesToIndexed(asm *mna.Assembler, voltages map[string]float64) []float64 {
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

func appendTimePoint(result *TransientResult, t float64, voltages, currents map[string]float64) {
	result.Time = append(result.Time, t)
	for name, v := range voltages {
		result.NodeVoltages[name] = append(result.NodeVoltages[name], v)
	}
	for name, i := range currents {
		result.BranchCurrents[name] = append(result.BranchCurrents[name], i)
	}
}
