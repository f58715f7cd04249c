// Command akingspice is a thin demonstration front end over
// pkg/simulator: it is not the netlist parser or report layer spec §1
// places out of core scope, only a programmatic-construction harness
// for the spec §8 end-to-end scenarios, wired the same way the
// teacher's examples/rr and examples/diode1 build a circuit in code.
//
// Grounded on the teacher's cmd/main.go report-printing style, rewired
// onto Cobra subcommands instead of the teacher's stdlib flag parsing.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/aaasdream/akingspice/pkg/analysis"
	"github.com/aaasdream/akingspice/pkg/device"
	"github.com/aaasdream/akingspice/pkg/engvalue"
	"github.com/aaasdream/akingspice/pkg/simulator"
	"github.com/aaasdream/akingspice/pkg/stepped"
	"github.com/aaasdream/akingspice/pkg/util"
	"github.com/aaasdream/akingspice/pkg/waveform"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "akingspice",
		Short: "time-domain circuit simulator demonstration CLI",
	}
	root.AddCommand(newScenarioCmd())
	root.AddCommand(newDCCmd())
	root.AddCommand(newTranCmd())
	root.AddCommand(newStepCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newScenarioCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "run one of the spec §8 worked example circuits",
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, ok := scenarios[name]
			if !ok {
				return fmt.Errorf("unknown scenario %q (choose one of %v)", name, scenarioNames())
			}
			return fn(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&name, "name", "divider", "scenario to run: "+fmt.Sprint(scenarioNames()))
	return cmd
}

func scenarioNames() []string {
	return []string{"divider", "rc", "rl", "lc", "switch", "threephase"}
}

var scenarios = map[string]func(out io.Writer) error{
	"divider":    runDivider,
	"rc":         runRCCharging,
	"rl":         runRLRise,
	"lc":         runLCResonator,
	"switch":     runSwitchBodyDiode,
	"threephase": runThreePhase,
}

func printf(out io.Writer, format string, args ...any) {
	fmt.Fprintf(out, format, args...)
}

// runDivider is spec §8 scenario 1.
func runDivider(out io.Writer) error {
	sim := simulator.New()
	vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(10))
	if err != nil {
		return err
	}
	r1, err := device.NewResistor("R1", []string{"in", "mid"}, 1000)
	if err != nil {
		return err
	}
	r2, err := device.NewResistor("R2", []string{"mid", "0"}, 1000)
	if err != nil {
		return err
	}
	if err := sim.AddComponents([]device.Device{vs, r1, r2}); err != nil {
		return err
	}

	result, err := sim.RunDC(analysis.DefaultDCOptions())
	if err != nil {
		return err
	}

	printf(out, "Voltage divider DC operating point:\n")
	printf(out, "  V(in)  = %s\n", util.FormatValueFactor(result.NodeVoltages["in"], "V"))
	printf(out, "  V(mid) = %s\n", util.FormatValueFactor(result.NodeVoltages["mid"], "V"))
	printf(out, "  I(V1)  = %s\n", util.FormatValueFactor(result.BranchCurrents["V1"], "A"))
	return nil
}

// runRCCharging is spec §8 scenario 2.
func runRCCharging(out io.Writer) error {
	sim := simulator.New()
	vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(5))
	if err != nil {
		return err
	}
	r, err := device.NewResistor("R1", []string{"in", "cap"}, 1000)
	if err != nil {
		return err
	}
	c, err := device.NewCapacitor("C1", []string{"cap", "0"}, 1e-6, 0)
	if err != nil {
		return err
	}
	if err := sim.AddComponents([]device.Device{vs, r, c}); err != nil {
		return err
	}

	result, err := sim.RunTransient(analysis.TransientOptions{
		TStart: 0, TStop: 5e-3, H: 10e-6, Method: device.BackwardEuler,
		UseInitialConditions: true,
	})
	if err != nil {
		return err
	}

	printf(out, "RC charging transient (R=1k, C=1u, V=5V step):\n")
	for _, target := range []float64{1e-3, 2e-3, 5e-3} {
		v := nearestValue(result.Time, result.NodeVoltages["cap"], target)
		printf(out, "  V(cap) @ t=%s : %s\n", util.FormatValueFactor(target, "s"), util.FormatValueFactor(v, "V"))
	}
	return nil
}

// runRLRise is spec §8 scenario 3.
func runRLRise(out io.Writer) error {
	sim := simulator.New()
	vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(1))
	if err != nil {
		return err
	}
	r, err := device.NewResistor("R1", []string{"in", "mid"}, 1)
	if err != nil {
		return err
	}
	l, err := device.NewInductor("L1", []string{"mid", "0"}, 1e-3, 0)
	if err != nil {
		return err
	}
	if err := sim.AddComponents([]device.Device{vs, r, l}); err != nil {
		return err
	}

	result, err := sim.RunTransient(analysis.TransientOptions{
		TStart: 0, TStop: 5e-3, H: 1e-6, Method: device.BackwardEuler,
		UseInitialConditions: true,
	})
	if err != nil {
		return err
	}

	i := nearestValue(result.Time, result.BranchCurrents["L1"], 3e-3)
	printf(out, "RL current rise transient (R=1, L=1m, V=1V step):\n")
	printf(out, "  I(L1) @ t=3ms : %s\n", util.FormatValueFactor(i, "A"))
	return nil
}

// runLCResonator is spec §8 scenario 4.
func runLCResonator(out io.Writer) error {
	sim := simulator.New()
	l, err := device.NewInductor("L1", []string{"v", "0"}, 1e-3, 0)
	if err != nil {
		return err
	}
	c, err := device.NewCapacitor("C1", []string{"v", "0"}, 1e-6, 1.0)
	if err != nil {
		return err
	}
	if err := sim.AddComponents([]device.Device{l, c}); err != nil {
		return err
	}

	result, err := sim.RunTransient(analysis.TransientOptions{
		TStart: 0, TStop: 2e-3, H: 1e-6, Method: device.Trapezoidal,
		UseInitialConditions: true,
	})
	if err != nil {
		return err
	}

	series := result.NodeVoltages["v"]
	maxV, minV := series[0], series[0]
	for _, v := range series {
		if v > maxV {
			maxV = v
		}
		if v < minV {
			minV = v
		}
	}
	printf(out, "LC resonator (L=1m, C=1u, V_C0=1V), trapezoidal:\n")
	printf(out, "  peak-to-peak V(v) = %s\n", util.FormatValueFactor(maxV-minV, "V"))
	return nil
}

// runSwitchBodyDiode is spec §8 scenario 5: gate OFF, body diode
// conducting through a 1 ohm series resistor to cap the current at a
// measurable value. The switch-level MOSFET's body diode is a pure
// two-state conductance (spec §4.3 "Switch MOSFET" — no V_f current
// injection, unlike IdealDiode/VControlledMOSFET), so the reported
// current reflects that conductance-only model rather than the
// spec §8 narrative's Vf-subtracted arithmetic (see DESIGN.md Open
// Question decisions).
func runSwitchBodyDiode(out io.Writer) error {
	sim := simulator.New()
	vs, err := device.NewVoltageSource("V1", []string{"d0", "0"}, waveform.NewDC(-1))
	if err != nil {
		return err
	}
	r, err := device.NewResistor("R1", []string{"d0", "d"}, 1)
	if err != nil {
		return err
	}
	m1, err := device.NewSwitchMOSFET("M1", []string{"d", "0"}, 1e-3, 1e6, 1e-3, 1e6, 0.7)
	if err != nil {
		return err
	}
	if err := sim.AddComponents([]device.Device{vs, r, m1}); err != nil {
		return err
	}
	m1.SetGateState(false)

	result, err := sim.RunDC(analysis.DefaultDCOptions())
	if err != nil {
		return err
	}

	printf(out, "Switch MOSFET with body diode (gate OFF, V_d=-1V, R=1 series):\n")
	printf(out, "  I(M1) = %s\n", util.FormatValueFactor(-result.BranchCurrents["V1"], "A"))
	return nil
}

// runThreePhase is spec §8 scenario 6.
func runThreePhase(out io.Writer) error {
	sim := simulator.New()
	src, err := device.NewThreePhaseSource("G1", [3]string{"a", "b", "c"}, "n", device.Wye, device.ABC, 230, 50)
	if err != nil {
		return err
	}
	rA, err := device.NewResistor("RA", []string{"a", "n"}, 1000)
	if err != nil {
		return err
	}
	rB, err := device.NewResistor("RB", []string{"b", "n"}, 1000)
	if err != nil {
		return err
	}
	rC, err := device.NewResistor("RC", []string{"c", "n"}, 1000)
	if err != nil {
		return err
	}
	rN, err := device.NewResistor("RN", []string{"n", "0"}, 1e9)
	if err != nil {
		return err
	}
	sim.AddComponent(src)
	if err := sim.AddComponents([]device.Device{rA, rB, rC, rN}); err != nil {
		return err
	}

	result, err := sim.RunDC(analysis.DefaultDCOptions())
	if err != nil {
		return err
	}

	va, vb, vc := result.NodeVoltages["a"], result.NodeVoltages["b"], result.NodeVoltages["c"]
	printf(out, "Three-phase wye source (230V line, 50Hz, ABC) at t=0:\n")
	printf(out, "  V_A = %s\n", util.FormatValueFactor(va, "V"))
	printf(out, "  V_B = %s\n", util.FormatValueFactor(vb, "V"))
	printf(out, "  V_C = %s\n", util.FormatValueFactor(vc, "V"))
	printf(out, "  sum = %s\n", util.FormatValueFactor(va+vb+vc, "V"))
	return nil
}

// circuitNames lists the demonstration circuits the dc/tran/step
// subcommands can build by name — a subset of the scenario set whose
// behavior is meaningful under an arbitrary analysis (the switch and
// three-phase scenarios are fixed worked examples, not general-purpose
// demonstration circuits, so they stay under `scenario` only).
func circuitNames() []string {
	return []string{"divider", "rc", "rl", "lc"}
}

// buildNamedCircuit constructs one of circuitNames()'s circuits without
// running any analysis, so the dc/tran/step subcommands can drive it
// with their own flag-supplied parameters instead of the fixed spec §8
// worked-example parameters `scenario` uses.
func buildNamedCircuit(name string) (*simulator.Simulator, error) {
	sim := simulator.New()
	var devices []device.Device

	switch name {
	case "divider":
		vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(10))
		if err != nil {
			return nil, err
		}
		r1, err := device.NewResistor("R1", []string{"in", "mid"}, 1000)
		if err != nil {
			return nil, err
		}
		r2, err := device.NewResistor("R2", []string{"mid", "0"}, 1000)
		if err != nil {
			return nil, err
		}
		devices = []device.Device{vs, r1, r2}
	case "rc":
		vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(5))
		if err != nil {
			return nil, err
		}
		r, err := device.NewResistor("R1", []string{"in", "cap"}, 1000)
		if err != nil {
			return nil, err
		}
		c, err := device.NewCapacitor("C1", []string{"cap", "0"}, 1e-6, 0)
		if err != nil {
			return nil, err
		}
		devices = []device.Device{vs, r, c}
	case "rl":
		vs, err := device.NewVoltageSource("V1", []string{"in", "0"}, waveform.NewDC(1))
		if err != nil {
			return nil, err
		}
		r, err := device.NewResistor("R1", []string{"in", "mid"}, 1)
		if err != nil {
			return nil, err
		}
		l, err := device.NewInductor("L1", []string{"mid", "0"}, 1e-3, 0)
		if err != nil {
			return nil, err
		}
		devices = []device.Device{vs, r, l}
	case "lc":
		l, err := device.NewInductor("L1", []string{"v", "0"}, 1e-3, 0)
		if err != nil {
			return nil, err
		}
		c, err := device.NewCapacitor("C1", []string{"v", "0"}, 1e-6, 1.0)
		if err != nil {
			return nil, err
		}
		devices = []device.Device{l, c}
	default:
		return nil, fmt.Errorf("unknown circuit %q (choose one of %v)", name, circuitNames())
	}

	if err := sim.AddComponents(devices); err != nil {
		return nil, err
	}
	return sim, nil
}

// newDCCmd is spec §4.8's run_dc, exposed directly instead of through
// one of the fixed scenario() worked examples.
func newDCCmd() *cobra.Command {
	var name string
	var damping float64
	var continuation bool
	cmd := &cobra.Command{
		Use:   "dc",
		Short: "run a DC operating-point analysis on a named demonstration circuit",
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, err := buildNamedCircuit(name)
			if err != nil {
				return err
			}
			opts := analysis.DefaultDCOptions()
			opts.DampingFactor = damping
			opts.EnableContinuation = continuation
			result, err := sim.RunDC(opts)
			if err != nil {
				return err
			}
			printDCResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "divider", "circuit to analyze: "+fmt.Sprint(circuitNames()))
	cmd.Flags().Float64Var(&damping, "damping", 0, "Picard damping factor applied after the first iterate (0 = undamped)")
	cmd.Flags().BoolVar(&continuation, "continuation", false, "enable gmin/source-stepping continuation fallback")
	return cmd
}

// newTranCmd is spec §4.8's run_transient(cmd), with the `tran <step>
// <stop> [tstart]` command string (spec §6) exposed as flags parsed
// through pkg/engvalue so "10us"/"5ms"-style suffixes work from the
// shell the same way they would in a netlist.
func newTranCmd() *cobra.Command {
	var name, step, stop, tstart, method string
	cmd := &cobra.Command{
		Use:   "tran",
		Short: "run a batch transient analysis on a named demonstration circuit",
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, err := buildNamedCircuit(name)
			if err != nil {
				return err
			}
			h, err := engvalue.Parse(step)
			if err != nil {
				return fmt.Errorf("--step: %w", err)
			}
			tStop, err := engvalue.Parse(stop)
			if err != nil {
				return fmt.Errorf("--stop: %w", err)
			}
			tStart, err := engvalue.Parse(tstart)
			if err != nil {
				return fmt.Errorf("--tstart: %w", err)
			}
			m, err := parseMethod(method)
			if err != nil {
				return err
			}

			result, err := sim.RunTransient(analysis.TransientOptions{
				TStart: tStart, TStop: tStop, H: h, Method: m,
			})
			if err != nil {
				return err
			}
			printTransientTail(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "rc", "circuit to analyze: "+fmt.Sprint(circuitNames()))
	cmd.Flags().StringVar(&step, "step", "10us", "fixed time step, engineering-suffixed (spec §6 tran command string)")
	cmd.Flags().StringVar(&stop, "stop", "5ms", "stop time, engineering-suffixed")
	cmd.Flags().StringVar(&tstart, "tstart", "0", "start time, engineering-suffixed")
	cmd.Flags().StringVar(&method, "method", "be", "integration method: be (backward Euler) or tr (trapezoidal)")
	return cmd
}

// newStepCmd is spec §4.7's stepped driver exposed directly: it calls
// init_stepped_transient once, then step() with no control inputs in a
// loop until is_finished(), printing each record as it is produced —
// the CLI equivalent of an external controller driving the simulator
// one PWM period at a time.
func newStepCmd() *cobra.Command {
	var name, step, stop string
	cmd := &cobra.Command{
		Use:   "step",
		Short: "drive a named demonstration circuit through the stepped transient interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, err := buildNamedCircuit(name)
			if err != nil {
				return err
			}
			h, err := engvalue.Parse(step)
			if err != nil {
				return fmt.Errorf("--step: %w", err)
			}
			tStop, err := engvalue.Parse(stop)
			if err != nil {
				return fmt.Errorf("--stop: %w", err)
			}

			first, err := sim.InitSteppedTransient(steppedParams(h, tStop))
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "t=%s converged=%v\n", util.FormatValueFactor(first.Time, "s"), first.Converged)

			for !sim.SteppedFinished() {
				rec, err := sim.Step(nil)
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "t=%s converged=%v iterations=%d\n", util.FormatValueFactor(rec.Time, "s"), rec.Converged, rec.Iterations)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "rc", "circuit to analyze: "+fmt.Sprint(circuitNames()))
	cmd.Flags().StringVar(&step, "step", "10us", "fixed time step, engineering-suffixed")
	cmd.Flags().StringVar(&stop, "stop", "5ms", "stop time, engineering-suffixed")
	return cmd
}

func steppedParams(h, tStop float64) stepped.Params {
	return stepped.Params{
		TStart: 0, TStop: tStop, H: h, Method: device.BackwardEuler,
		DCOptions: analysis.DefaultDCOptions(),
	}
}

func parseMethod(s string) (device.IntegrationMethod, error) {
	switch s {
	case "be", "":
		return device.BackwardEuler, nil
	case "tr":
		return device.Trapezoidal, nil
	default:
		return 0, fmt.Errorf("unknown integration method %q (choose be or tr)", s)
	}
}

func printDCResult(out io.Writer, result *analysis.DCResult) {
	printf(out, "converged=%v iterations=%d\n", result.Converged, result.Iterations)
	for _, n := range sortedKeys(result.NodeVoltages) {
		printf(out, "  V(%s) = %s\n", n, util.FormatValueFactor(result.NodeVoltages[n], "V"))
	}
	for _, b := range sortedKeys(result.BranchCurrents) {
		printf(out, "  I(%s) = %s\n", b, util.FormatValueFactor(result.BranchCurrents[b], "A"))
	}
}

func printTransientTail(out io.Writer, result *analysis.TransientResult) {
	last := len(result.Time) - 1
	printf(out, "steps=%d t_final=%s\n", result.Info.StepCount, util.FormatValueFactor(result.Time[last], "s"))
	for _, n := range sortedKeys(result.NodeVoltages) {
		printf(out, "  V(%s) @ t_final = %s\n", n, util.FormatValueFactor(result.NodeVoltages[n][last], "V"))
	}
	for _, b := range sortedKeys(result.BranchCurrents) {
		printf(out, "  I(%s) @ t_final = %s\n", b, util.FormatValueFactor(result.BranchCurrents[b][last], "A"))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nearestValue(times []float64, values []float64, target float64) float64 {
	best, bestDiff := 0, -1.0
	for i, t := range times {
		d := t - target
		if d < 0 {
			d = -d
		}
		if bestDiff < 0 || d < bestDiff {
			bestDiff, best = d, i
		}
	}
	return values[best]
}
