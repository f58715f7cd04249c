// Package mna implements the assembler of spec §4.4: an analysis pass
// that assigns node and branch indices once per simulation, a build
// pass that zeroes and re-stamps the system every iteration/time point,
// and extraction helpers that turn a solved vector back into named
// node voltages and branch currents.
//
// Grounded on the teacher's pkg/circuit/circuit.go (AssignNodeBranchMaps
// / SetupDevices / Stamp), generalized to take a flat []device.Device
// instead of a netlist.Element list — meta-device expansion is the
// simulator facade's job (spec §4.8), not the assembler's.
package mna

import (
	"fmt"
	"sort"

	"github.com/aaasdream/akingspice/pkg/device"
	"github.com/aaasdream/akingspice/pkg/numeric"
	"github.com/aaasdream/akingspice/pkg/simerr"
)

// groundAliases are every input spelling that maps to ground (spec §9
// "Ground alias").
var groundAliases = map[string]bool{"0": true, "gnd": true, "GND": true}

func isGround(name string) bool { return groundAliases[name] }

// Assembler holds the node/branch index maps built once per simulation
// (spec §4.4 "Analysis pass (once)") and the flat device list they were
// built from.
type Assembler struct {
	devices     []device.Device
	nodeIndex   map[string]int
	nodeNames   []string // index -> name, for extraction
	branchIndex map[string]int
	branchNames []string // index (0-based within branches) -> name
	numNodes    int
	numBranches int
}

// NewAssembler runs the analysis pass over devices: collects every
// non-ground node name, assigns indices 0..N-1 in sorted order, then
// assigns every NeedsBranch device an index starting at N in device-
// list order (spec §4.4).
func NewAssembler(devices []device.Device) (*Assembler, error) {
	nodeSet := make(map[string]bool)
	for _, d := range devices {
		for _, n := range d.TerminalNames() {
			if isGround(n) {
				continue
			}
			nodeSet[n] = true
		}
	}

	names := make([]string, 0, len(nodeSet))
	for n := range nodeSet {
		names = append(names, n)
	}
	sort.Strings(names)

	nodeIndex := make(map[string]int, len(names))
	for i, n := range names {
		nodeIndex[n] = i
	}

	branchIndex := make(map[string]int)
	branchNames := make([]string, 0)
	n := len(names)
	for _, d := range devices {
		if _, ok := d.(device.NeedsBranch); ok {
			branchIndex[d.Name()] = n + len(branchNames)
			branchNames = append(branchNames, d.Name())
		}
	}

	a := &Assembler{
		devices:     devices,
		nodeIndex:   nodeIndex,
		nodeNames:   names,
		branchIndex: branchIndex,
		branchNames: branchNames,
		numNodes:    len(names),
		numBranches: len(branchNames),
	}

	if err := a.resolveNodes(); err != nil {
		return nil, err
	}
	return a, nil
}

// resolveNodes assigns each device its resolved node indices (and, for
// NeedsBranch devices, its branch index) from the maps built above.
func (a *Assembler) resolveNodes() error {
	for _, d := range a.devices {
		terms := d.TerminalNames()
		nodes := make([]int, len(terms))
		for i, t := range terms {
			if isGround(t) {
				nodes[i] = device.Ground
				continue
			}
			idx, ok := a.nodeIndex[t]
			if !ok {
				return fmt.Errorf("%w: device %s references unknown node %q", simerr.ErrValidation, d.Name(), t)
			}
			nodes[i] = idx
		}
		d.SetNodes(nodes)

		if nb, ok := d.(device.NeedsBranch); ok {
			idx, ok := a.branchIndex[d.Name()]
			if !ok {
				return fmt.Errorf("%w: device %s needs a branch index but none was assigned", simerr.ErrValidation, d.Name())
			}
			nb.SetBranchIndex(idx)
		}
	}
	return nil
}

// Size returns matrix_size = N + M (spec §4.4).
func (a *Assembler) Size() int { return a.numNodes + a.numBranches }

// NumNodes returns N, the node count.
func (a *Assembler) NumNodes() int { return a.numNodes }

// NumBranches returns M, the branch-current count.
func (a *Assembler) NumBranches() int { return a.numBranches }

// NewSystem allocates a zeroed (A, b) of the assembled size.
func (a *Assembler) NewSystem() *device.System {
	size := a.Size()
	return &device.System{A: numeric.NewMatrix(size, size), B: numeric.NewVector(size)}
}

// Build zeroes sys and dispatches Stamp to every device in list order
// (spec §4.4 "build pass"). CompanionModel and Nonlinear devices must
// already have had UpdateCompanionModel/UpdateOperatingPoint called
// this iteration by the caller (the transient driver / DC solver),
// since those depend on which outer loop is driving the build.
func (a *Assembler) Build(sys *device.System, st *device.Status) error {
	sys.A.Zero()
	sys.B.Zero()
	for _, d := range a.devices {
		if err := d.Stamp(sys, st); err != nil {
			return fmt.Errorf("stamping device %s: %w", d.Name(), err)
		}
	}
	return nil
}

// ExtractNodeVoltages returns a name->voltage map including ground->0
// (spec §4.4 "Extraction").
func (a *Assembler) ExtractNodeVoltages(x *numeric.Vector) map[string]float64 {
	out := make(map[string]float64, a.numNodes+1)
	out["0"] = 0
	for i, name := range a.nodeNames {
		out[name] = x.Get(i)
	}
	return out
}

// ExtractBranchCurrents returns a name->current map for every branch-
// current device (spec §4.4 "Extraction").
func (a *Assembler) ExtractBranchCurrents(x *numeric.Vector) map[string]float64 {
	out := make(map[string]float64, a.numBranches)
	for i, name := range a.branchNames {
		out[name] = x.Get(a.numNodes + i)
	}
	return out
}

// Devices exposes the flat device list the assembler was built from.
func (a *Assembler) Devices() []device.Device { return a.devices }

// NodeIndex looks up a resolved node's matrix row, for callers (e.g. the
// stepped driver reading a single node voltage) that don't want to walk
// the full extraction map. Returns device.Ground, true for any ground
// alias.
func (a *Assembler) NodeIndex(name string) (int, bool) {
	if isGround(name) {
		return device.Ground, true
	}
	idx, ok := a.nodeIndex[name]
	return idx, ok
}
