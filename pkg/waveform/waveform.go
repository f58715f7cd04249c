// Package waveform implements the independent-source time functions
// shared by voltage and current sources (spec §4.3, §6): DC, SINE,
// PULSE, EXP, and PWL. Both device kinds hold one Descriptor and call
// Value(t) — there is no incidental delegation from one source kind to
// the other (spec §9 Open Question #3).
package waveform

import (
	"fmt"
	"math"
	"sort"

	"github.com/aaasdream/akingspice/pkg/simerr"
)

type Shape int

const (
	DC Shape = iota
	SINE
	PULSE
	EXP
	PWL
)

// Descriptor fully parametrizes one of the five waveform shapes. Only the
// fields relevant to Shape are meaningful; the rest are zero.
type Descriptor struct {
	Shape Shape

	// DC
	Offset float64

	// SINE: offset + amplitude*sin(2*pi*freq*(t-delay))*exp(-damping*(t-delay))
	Amplitude float64
	Freq      float64
	Delay     float64
	Damping   float64

	// PULSE
	V1, V2              float64
	PulseDelay          float64
	RiseTime, FallTime  float64
	PulseWidth, Period  float64

	// EXP: v1 before td1; rises towards v2 with time constant tau1 starting
	// at td1; falls back towards v1 with time constant tau2 starting at td2.
	ExpV1, ExpV2   float64
	Td1, Tau1      float64
	Td2, Tau2      float64

	// PWL, strictly increasing in Times.
	Times  []float64
	Values []float64
}

// NewDC builds a constant descriptor.
func NewDC(value float64) Descriptor {
	return Descriptor{Shape: DC, Offset: value}
}

// NewSine builds a SINE descriptor, delay and damping optional (zero value
// means "from t=0, undamped").
func NewSine(offset, amplitude, freq, delay, damping float64) Descriptor {
	return Descriptor{Shape: SINE, Offset: offset, Amplitude: amplitude, Freq: freq, Delay: delay, Damping: damping}
}

// NewPulse builds a PULSE descriptor with the SPICE-standard defaults
// (td=0, tr=tf=1e-9, pw=1e-6, per=2e-6) applied by the caller beforehand
// when a parameter is omitted.
func NewPulse(v1, v2, td, tr, tf, pw, per float64) Descriptor {
	return Descriptor{
		Shape: PULSE, V1: v1, V2: v2, PulseDelay: td,
		RiseTime: tr, FallTime: tf, PulseWidth: pw, Period: per,
	}
}

// NewExp builds an EXP descriptor.
func NewExp(v1, v2, td1, tau1, td2, tau2 float64) Descriptor {
	return Descriptor{Shape: EXP, ExpV1: v1, ExpV2: v2, Td1: td1, Tau1: tau1, Td2: td2, Tau2: tau2}
}

// NewPWL builds a PWL descriptor. times must be strictly increasing and the
// same length as values.
func NewPWL(times, values []float64) (Descriptor, error) {
	if len(times) != len(values) {
		return Descriptor{}, fmt.Errorf("%w: pwl times/values length mismatch", simerr.ErrValidation)
	}
	if len(times) == 0 {
		return Descriptor{}, fmt.Errorf("%w: pwl requires at least one point", simerr.ErrValidation)
	}
	if !sort.IsSorted(sort.Float64Slice(times)) {
		return Descriptor{}, fmt.Errorf("%w: pwl times must be strictly increasing", simerr.ErrValidation)
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return Descriptor{}, fmt.Errorf("%w: pwl times must be strictly increasing", simerr.ErrValidation)
		}
	}
	return Descriptor{Shape: PWL, Times: times, Values: values}, nil
}

// Value evaluates the descriptor at time t.
func (d Descriptor) Value(t float64) float64 {
	switch d.Shape {
	case DC:
		return d.Offset
	case SINE:
		return d.sine(t)
	case PULSE:
		return d.pulse(t)
	case EXP:
		return d.exp(t)
	case PWL:
		return d.pwl(t)
	default:
		return 0
	}
}

func (d Descriptor) sine(t float64) float64 {
	if t < d.Delay {
		return d.Offset
	}
	dt := t - d.Delay
	envelope := math.Exp(-d.Damping * dt)
	return d.Offset + d.Amplitude*math.Sin(2*math.Pi*d.Freq*dt)*envelope
}

func (d Descriptor) pulse(t float64) float64 {
	if t < d.PulseDelay {
		return d.V1
	}

	tau := t - d.PulseDelay
	if d.Period > 0 {
		tau = math.Mod(tau, d.Period)
	}

	switch {
	case tau <= d.RiseTime:
		if d.RiseTime == 0 {
			return d.V2
		}
		return d.V1 + (d.V2-d.V1)*tau/d.RiseTime
	case tau <= d.RiseTime+d.PulseWidth:
		return d.V2
	case tau <= d.RiseTime+d.PulseWidth+d.FallTime:
		if d.FallTime == 0 {
			return d.V1
		}
		fallStart := d.RiseTime + d.PulseWidth
		return d.V2 - (d.V2-d.V1)*(tau-fallStart)/d.FallTime
	default:
		return d.V1
	}
}

// exp implements the standard SPICE EXP formula: a rising exponential
// term active for all t >= td1, additively combined (not chained from a
// frozen value) with a falling term active for all t >= td2.
func (d Descriptor) exp(t float64) float64 {
	if t < d.Td1 {
		return d.ExpV1
	}
	rise := d.ExpV1 + (d.ExpV2-d.ExpV1)*(1-math.Exp(-(t-d.Td1)/d.Tau1))
	if t < d.Td2 {
		return rise
	}
	fall := (d.ExpV1 - d.ExpV2) * (1 - math.Exp(-(t-d.Td2)/d.Tau2))
	return rise + fall
}

func (d Descriptor) pwl(t float64) float64 {
	n := len(d.Times)
	if t <= d.Times[0] {
		return d.Values[0]
	}
	if t >= d.Times[n-1] {
		return d.Values[n-1]
	}
	for i := 1; i < n; i++ {
		if t <= d.Times[i] {
			t0, t1 := d.Times[i-1], d.Times[i]
			v0, v1 := d.Values[i-1], d.Values[i]
			frac := (t - t0) / (t1 - t0)
			return v0 + frac*(v1-v0)
		}
	}
	return d.Values[n-1]
}
