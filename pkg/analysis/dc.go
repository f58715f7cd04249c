// Package analysis implements the DC operating-point analyzer and the
// batch transient driver of spec §4.5 / §4.6: damped-Picard iteration
// over nonlinear stamps, companion-model-driven time stepping, and
// result series keyed the way spec §6 names ("time", node names,
// device names).
//
// Grounded on the teacher's pkg/analysis/op.go (doNRiter convergence
// loop, gmin/source-stepping continuation) and pkg/analysis/tran.go
// (main loop shape), generalized from the teacher's Newton-Raphson
// device model to the spec's fixed damped-Picard outer loop and
// stripped of the teacher's adaptive step-size control (Non-goal).
package analysis

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/aaasdream/akingspice/pkg/device"
	"github.com/aaasdream/akingspice/pkg/mna"
	"github.com/aaasdream/akingspice/pkg/numeric"
	"github.com/aaasdream/akingspice/pkg/simerr"
	"github.com/aaasdream/akingspice/pkg/waveform"
)

// resolveLogger returns l, or slog.Default() if l is nil (spec §9 "no
// hidden globals... route diagnostics through an injected logger"; a
// nil logger is the zero-value default, not an error).
func resolveLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Default convergence parameters (spec §4.5 step 4).
const (
	DefaultMaxIterations = 20
	DefaultTolerance     = 1e-9
)

// gminSteps is the descending continuation ladder tried when the plain
// damped-Picard loop fails to converge (SPEC_FULL supplemented
// feature), grounded on the teacher's op.go Execute gmin ladder.
var gminSteps = []float64{1e-2, 1e-3, 1e-4, 1e-5, 1e-6, 1e-7, 1e-8, 1e-9, 1e-10, 1e-11}

// sourceSteppingFactors ramps every independent voltage source from 10%
// to 100% of its nominal value, grounded on the teacher's op.go
// performSourceStepping.
var sourceSteppingFactors = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}

// DCOptions parametrizes the DC analyzer (spec §4.5, SPEC_FULL
// supplements).
type DCOptions struct {
	MaxIterations int
	Tolerance     float64

	// EnableContinuation turns on gmin stepping then source stepping as
	// a convergence fallback when the plain Picard loop fails.
	EnableContinuation bool

	// DampingFactor blends each new Picard iterate with the previous one
	// (x_next = x_prev + DampingFactor*(x_solved - x_prev)) to help
	// stiff switch networks converge (spec §9 Open Question: "implementers
	// may add a fixed damping factor (e.g. 0.5) behind a flag, but must
	// ... keep the default undamped for regression"). Zero (the default)
	// means undamped, matching spec §4.5's literal fixed-point iteration.
	DampingFactor float64

	// Logger receives gmin/source-stepping continuation progress and
	// non-convergence warnings (spec §9 logging requirement). A nil
	// Logger falls back to slog.Default().
	Logger *slog.Logger
}

// DefaultDCOptions returns spec §4.5's fixed 20-iteration / 1e-9 limits
// with continuation disabled.
func DefaultDCOptions() DCOptions {
	return DCOptions{MaxIterations: DefaultMaxIterations, Tolerance: DefaultTolerance}
}

func (o DCOptions) normalized() DCOptions {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	return o
}

// DCResult is the outcome of a DC operating-point analysis (spec §4.5
// step 5: "report a converged or max-iterations-reached status either
// way").
type DCResult struct {
	NodeVoltages      map[string]float64
	BranchCurrents    map[string]float64
	DevicePower       map[string]float64
	Converged         bool
	Iterations        int
	ConditionEstimate float64
}

// RunDC finds the DC operating point of an assembled circuit by damped
// Picard iteration (spec §4.5). A Go error is returned only for a fatal
// problem (a singular system); failure to converge is reported via
// DCResult.Converged, never as an error, matching spec's "report a
// status either way".
func RunDC(asm *mna.Assembler, opts DCOptions) (*DCResult, error) {
	opts = opts.normalized()
	log := resolveLogger(opts.Logger)

	x, iterations, converged, err := picardLoop(asm, opts, 0)
	if err != nil && !opts.EnableContinuation {
		return nil, err
	}

	if !converged && opts.EnableContinuation {
		log.Warn("DC Picard loop failed to converge, falling back to continuation", "iterations", iterations)
		x, iterations, converged, err = runContinuation(asm, opts)
		if err != nil {
			return nil, err
		}
	}

	if !converged {
		log.Warn("DC analysis finished without convergence", "iterations", iterations)
	}

	cond := math.NaN()
	if x != nil {
		cond = lastConditionEstimate(asm, x)
	}
	if x == nil {
		return nil, fmt.Errorf("%w: DC analysis produced no solution", simerr.ErrConvergence)
	}

	voltages := asm.ExtractNodeVoltages(x)
	currents := asm.ExtractBranchCurrents(x)

	return &DCResult{
		NodeVoltages:      voltages,
		BranchCurrents:    currents,
		DevicePower:       devicePower(asm, voltages, currents),
		Converged:         converged,
		Iterations:        iterations,
		ConditionEstimate: cond,
	}, nil
}

// picardLoop runs spec §4.5 steps 1-4 at a fixed gmin shunt value,
// returning the last solution found (even if not converged) so callers
// can still report a best-effort operating point.
func picardLoop(asm *mna.Assembler, opts DCOptions, gmin float64) (*numeric.Vector, int, bool, error) {
	st := &device.Status{Mode: device.ModeDC, Gmin: gmin}
	sys := asm.NewSystem()

	var prev *numeric.Vector
	for iter := 0; iter < opts.MaxIterations; iter++ {
		if err := asm.Build(sys, st); err != nil {
			return nil, iter, false, err
		}
		if gmin > 0 {
			applyGmin(sys, asm.NumNodes(), gmin)
		}

		aCopy := sys.A.Clone()
		x, err := numeric.Solve(aCopy, sys.B)
		if err != nil {
			return prev, iter, false, err
		}
		if prev != nil && opts.DampingFactor > 0 {
			x = damp(x, prev, opts.DampingFactor)
		}

		if prev != nil && maxAbsDelta(x, prev) < opts.Tolerance {
			return x, iter + 1, true, nil
		}
		prev = x
		updateNonlinear(asm, x)
	}
	return prev, opts.MaxIterations, false, nil
}

// runContinuation tries the gmin-stepping ladder, then one zero-gmin
// solve, then (if that solve does not converge) source stepping,
// mirroring the teacher's op.go Execute fallback chain.
func runContinuation(asm *mna.Assembler, opts DCOptions) (*numeric.Vector, int, bool, error) {
	log := resolveLogger(opts.Logger)
	totalIters := 0

	for _, g := range gminSteps {
		x, iters, converged, err := picardLoop(asm, opts, g)
		totalIters += iters
		log.Debug("gmin stepping attempt", "gmin", g, "converged", converged, "iterations", iters)
		if err != nil || !converged {
			_ = x
			break
		}
	}

	x, iters, converged, err := picardLoop(asm, opts, 0)
	totalIters += iters
	if err == nil && converged {
		return x, totalIters, true, nil
	}

	log.Warn("gmin-stepping continuation failed to converge at gmin=0, falling back to source stepping")

	origValues := snapshotVoltageSources(asm)
	defer restoreVoltageSources(asm, origValues)

	for _, factor := range sourceSteppingFactors {
		scaleVoltageSources(asm, origValues, factor)
		sx, siters, sconverged, serr := picardLoop(asm, opts, 0)
		totalIters += siters
		log.Debug("source stepping attempt", "factor", factor, "converged", sconverged, "iterations", siters)
		if serr != nil || !sconverged {
			x, converged, err = sx, sconverged, serr
			break
		}
		x, converged, err = sx, sconverged, serr
	}

	if !converged {
		log.Warn("source-stepping continuation exhausted without convergence")
	}
	return x, totalIters, converged, err
}

// snapshotVoltageSources captures each DC voltage source's present offset
// once, before any scaling, so scaleVoltageSources always ramps from the
// true original value instead of from a previous call's already-scaled one.
func snapshotVoltageSources(asm *mna.Assembler) map[string]float64 {
	orig := make(map[string]float64)
	for _, d := range asm.Devices() {
		vs, ok := d.(*device.VoltageSource)
		if !ok || vs.Waveform.Shape != waveform.DC {
			continue
		}
		orig[d.Name()] = vs.Waveform.Offset
	}
	return orig
}

func scaleVoltageSources(asm *mna.Assembler, orig map[string]float64, factor float64) {
	for _, d := range asm.Devices() {
		vs, ok := d.(*device.VoltageSource)
		if !ok || vs.Waveform.Shape != waveform.DC {
			continue
		}
		vs.SetValue(orig[d.Name()] * factor)
	}
}

func restoreVoltageSources(asm *mna.Assembler, orig map[string]float64) {
	for _, d := range asm.Devices() {
		vs, ok := d.(*device.VoltageSource)
		if !ok {
			continue
		}
		if v, ok := orig[d.Name()]; ok {
			vs.SetValue(v)
		}
	}
}

// damp blends a freshly-solved iterate with the previous one: x_prev +
// factor*(x_solved - x_prev). factor=1 is the undamped update spec
// §4.5 describes by default; factor<1 slows convergence to help stiff
// switch networks (spec §9 Open Question, see DCOptions.DampingFactor).
func damp(solved, prev *numeric.Vector, factor float64) *numeric.Vector {
	out := numeric.NewVector(solved.Len())
	for i := 0; i < solved.Len(); i++ {
		out.Set(i, prev.Get(i)+factor*(solved.Get(i)-prev.Get(i)))
	}
	return out
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

// updateNonlinear refreshes every Nonlinear device's operating-point
// estimate from the latest iterate (spec §4.5 step 3).
func updateNonlinear(asm *mna.Assembler, x *numeric.Vector) {
	voltages := x.Slice()
	for _, d := range asm.Devices() {
		if nl, ok := d.(device.Nonlinear); ok {
			nl.UpdateOperatingPoint(voltages)
		}
	}
}

// applyGmin shunts every non-ground node to ground with a small
// conductance, the classic convergence aid grounded on the teacher's
// mat.LoadGmin(gmin) (op.go).
func applyGmin(sys *device.System, numNodes int, gmin float64) {
	for i := 0; i < numNodes; i++ {
		sys.A.AddAt(i, i, gmin)
	}
}

func lastConditionEstimate(asm *mna.Assembler, _ *numeric.Vector) float64 {
	sys := asm.NewSystem()
	st := &device.Status{Mode: device.ModeDC}
	if err := asm.Build(sys, st); err != nil {
		return math.NaN()
	}
	lu, err := numeric.Factor(sys.A)
	if err != nil {
		return math.Inf(1)
	}
	return lu.ConditionEstimate()
}
