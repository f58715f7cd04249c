// Package simulator implements the facade/orchestrator of spec §4.8:
// it owns the flat device list (after meta-device expansion), a result
// cache keyed by analysis kind, and sequences DC, batch transient, and
// stepped runs through pkg/mna, pkg/analysis, and pkg/stepped.
//
// Grounded on the teacher's cmd/main.go and examples/rr, examples/diode1
// programmatic-construction call sequence (AssignNodeBranchMaps ->
// CreateMatrix -> SetupDevices -> analyzer.Setup -> analyzer.Execute),
// folded into one facade method set. The textual netlist parser itself
// is out of core scope (spec §1) — LoadNetlist takes an already-parsed
// callback so an external parser can be wired in without this package
// depending on one.
package simulator

import (
	"fmt"
	"log/slog"

	"github.com/aaasdream/akingspice/pkg/analysis"
	"github.com/aaasdream/akingspice/pkg/device"
	"github.com/aaasdream/akingspice/pkg/mna"
	"github.com/aaasdream/akingspice/pkg/simerr"
	"github.com/aaasdream/akingspice/pkg/stepped"
)

// NetlistParser is the external collaborator spec §1 places out of
// core scope: given netlist text, it returns a device list. LoadNetlist
// delegates to one instead of this package owning any text parsing.
type NetlistParser func(text string) ([]device.Device, error)

// CircuitInfo summarizes the assembled topology (spec §4.8
// get_circuit_info): device/node/branch counts and matrix size.
type CircuitInfo struct {
	DeviceCount int
	NodeCount   int
	BranchCount int
	MatrixSize  int
}

// Simulator is the facade: device list, parameter dictionaries, and the
// last result per analysis kind (spec §4.8 "last-result cache by
// analysis kind").
type Simulator struct {
	devices []device.Device
	params  map[string]string

	asm *mna.Assembler

	lastDC   *analysis.DCResult
	lastTran *analysis.TransientResult

	steppedDriver *stepped.Driver

	log *slog.Logger
}

// New returns an empty simulator ready for AddComponent calls.
func New() *Simulator {
	return &Simulator{params: make(map[string]string)}
}

// SetLogger injects the logger every RunDC/RunTransient/InitSteppedTransient
// call routes its diagnostics through, unless the caller's own options
// already carry one (spec §9 "route diagnostics through an injected
// logger"). A nil logger (the default) falls back to slog.Default().
func (s *Simulator) SetLogger(l *slog.Logger) { s.log = l }

func (s *Simulator) logger() *slog.Logger {
	if s.log == nil {
		return slog.Default()
	}
	return s.log
}

// SetParam stores a passthrough model/parameter value (spec §4.8
// "model/parameter dictionaries (passthroughs)") — never interpreted by
// the facade itself, only carried for an external parser or report
// layer to read back.
func (s *Simulator) SetParam(key, value string) { s.params[key] = value }

// Param reads back a passthrough parameter.
func (s *Simulator) Param(key string) (string, bool) {
	v, ok := s.params[key]
	return v, ok
}

// LoadNetlist delegates netlist text to an external parser and adds the
// devices it returns (spec §4.8 load_netlist: "delegates to external
// parser").
func (s *Simulator) LoadNetlist(text string, parse NetlistParser) error {
	devices, err := parse(text)
	if err != nil {
		return fmt.Errorf("load netlist: %w", err)
	}
	return s.AddComponents(devices)
}

// AddComponent adds one device, expanding it first if it is a meta-
// device (spec §4.8 expansion rule: "if a device reports type meta-
// transformer or meta-three-phase, call get_components() and splice the
// returned primitives into the list instead of the meta-device
// itself"). Invalidates the analysis pass — the next RunDC/RunTransient
// call reassembles node/branch indices.
func (s *Simulator) AddComponent(d device.Device) {
	if meta, ok := d.(device.MetaDevice); ok {
		s.devices = append(s.devices, meta.Components()...)
	} else {
		s.devices = append(s.devices, d)
	}
	s.asm = nil
}

// AddComponents adds a list of devices in order (spec §4.8
// add_components).
func (s *Simulator) AddComponents(devices []device.Device) error {
	for _, d := range devices {
		s.AddComponent(d)
	}
	return nil
}

// ValidateCircuit runs the MNA analysis pass (node/branch indexing) to
// surface validation errors (unknown node references, degenerate
// devices) before any analysis is run, and additionally collects
// non-fatal numerical advisories (spec §7 kind 5: floating nodes,
// missing ground) into the returned slice rather than failing the
// circuit over them (spec §4.8 validate_circuit, §9 logging
// requirement: advisories are also logged so callers needn't parse
// log lines to act on them).
func (s *Simulator) ValidateCircuit() ([]simerr.Advisory, error) {
	asm, err := s.assembler()
	if err != nil {
		return nil, err
	}
	advisories := collectAdvisories(asm)
	log := s.logger()
	for _, a := range advisories {
		if a.Severity == simerr.SeverityWarning {
			log.Warn(a.Message)
		} else {
			log.Info(a.Message)
		}
	}
	return advisories, nil
}

// assembler lazily (re)builds the MNA assembler from the current device
// list, memoizing it until the next AddComponent/Reset invalidates it.
func (s *Simulator) assembler() (*mna.Assembler, error) {
	if s.asm != nil {
		return s.asm, nil
	}
	if len(s.devices) == 0 {
		return nil, fmt.Errorf("simulator: no devices to analyze")
	}
	asm, err := mna.NewAssembler(s.devices)
	if err != nil {
		return nil, err
	}
	s.asm = asm
	return asm, nil
}

// GetCircuitInfo reports the assembled topology's sizes (spec §4.8
// get_circuit_info).
func (s *Simulator) GetCircuitInfo() (CircuitInfo, error) {
	asm, err := s.assembler()
	if err != nil {
		return CircuitInfo{}, err
	}
	return CircuitInfo{
		DeviceCount: len(s.devices),
		NodeCount:   asm.NumNodes(),
		BranchCount: asm.NumBranches(),
		MatrixSize:  asm.Size(),
	}, nil
}

// RunDC runs a DC operating-point analysis and caches the result under
// the "dc" analysis kind (spec §4.8 run_dc).
func (s *Simulator) RunDC(opts analysis.DCOptions) (*analysis.DCResult, error) {
	asm, err := s.assembler()
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = s.logger()
	}
	result, err := analysis.RunDC(asm, opts)
	if err != nil {
		return nil, err
	}
	s.lastDC = result
	return result, nil
}

// RunTransient runs a batch transient analysis and caches the result
// under the "tran" analysis kind (spec §4.8 run_transient(cmd)).
func (s *Simulator) RunTransient(opts analysis.TransientOptions) (*analysis.TransientResult, error) {
	asm, err := s.assembler()
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = s.logger()
	}
	result, err := analysis.RunTransient(asm, opts)
	if err != nil {
		return nil, err
	}
	s.lastTran = result
	return result, nil
}

// RunAnalysis dispatches to RunDC or RunTransient by name (spec §4.8
// run_analysis(cmd_or_default)): "dc" runs a DC analysis with
// analysis.DefaultDCOptions(); "tran" and any other kind return an
// error directing the caller to RunTransient, since the fixed-step
// parameters (TStart/TStop/H) have no sensible default.
func (s *Simulator) RunAnalysis(kind string) (any, error) {
	switch kind {
	case "", "dc":
		return s.RunDC(analysis.DefaultDCOptions())
	default:
		return nil, fmt.Errorf("simulator: run_analysis %q requires explicit options — call RunTransient directly", kind)
	}
}

// InitSteppedTransient starts a stepped-mode run (spec §4.8
// init_stepped_transient(params)). The driver replaces the facade's
// batch-mode assembler state machine; Step advances it one time point
// at a time.
func (s *Simulator) InitSteppedTransient(params stepped.Params) (*stepped.Record, error) {
	asm, err := s.assembler()
	if err != nil {
		return nil, err
	}
	if params.Logger == nil {
		params.Logger = s.logger()
	}
	driver, first, err := stepped.NewDriver(asm, params)
	if err != nil {
		return nil, err
	}
	s.steppedDriver = driver
	return first, nil
}

// Step advances the stepped driver by one time point under the given
// control inputs (spec §4.8 step(control)).
func (s *Simulator) Step(inputs stepped.ControlInputs) (*stepped.Record, error) {
	if s.steppedDriver == nil {
		return nil, fmt.Errorf("simulator: stepped transient not initialized — call InitSteppedTransient first")
	}
	return s.steppedDriver.Step(inputs)
}

// SteppedFinished reports whether the stepped driver has reached
// t_stop.
func (s *Simulator) SteppedFinished() bool {
	return s.steppedDriver != nil && s.steppedDriver.IsFinished()
}

// ResultKind names a cached analysis result for GetResult.
type ResultKind string

const (
	ResultDC   ResultKind = "dc"
	ResultTran ResultKind = "tran"
)

// GetResult returns the last-cached result for the given analysis kind
// (spec §4.8 get_result).
func (s *Simulator) GetResult(kind ResultKind) (any, error) {
	switch kind {
	case ResultDC:
		if s.lastDC == nil {
			return nil, fmt.Errorf("simulator: no DC result cached")
		}
		return s.lastDC, nil
	case ResultTran:
		if s.lastTran == nil {
			return nil, fmt.Errorf("simulator: no transient result cached")
		}
		return s.lastTran, nil
	default:
		return nil, fmt.Errorf("simulator: unknown result kind %q", kind)
	}
}

// Reset discards the device list, cached results, and stepped driver
// (spec §4.8 reset), returning the facade to its New() state.
func (s *Simulator) Reset() {
	s.devices = nil
	s.asm = nil
	s.lastDC = nil
	s.lastTran = nil
	s.steppedDriver = nil
	s.params = make(map[string]string)
}

// Devices exposes the current flat device list (post meta-expansion),
// e.g. for a report layer that needs to enumerate components.
func (s *Simulator) Devices() []device.Device {
	return s.devices
}
