package detector

import (
	"math"

	"github.com/linuxmatters/pulsetrace/internal/pipeline"
)

// Polarity maps the sign convention of the digitiser onto the detector's
// positive-excursion convention.
type Polarity int

const (
	// Positive means physical pulses already register as positive signals.
	Positive Polarity = iota
	// Negative means physical pulses register as negative signals and the
	// trace is flipped before detection.
	Negative
)

// Sign returns the multiplier applied to baseline-corrected samples.
func (p Polarity) Sign() float64 {
	if p == Negative {
		return -1
	}
	return 1
}

// PeakHeightBasis determines what the reported intensity of a differential
// event is measured against.
type PeakHeightBasis int

const (
	// TraceBaseline reports the peak relative to the trace's baseline.
	TraceBaseline PeakHeightBasis = iota
	// PulseBaseline reports the peak relative to the trace value at the
	// time the pulse was first detected.
	PulseBaseline
)

// Mode is one configured event-formation strategy. FindEvents runs the
// strategy's full pipeline over one channel's voltages and returns the
// event times (in integer ticks) and intensities.
type Mode interface {
	FindEvents(voltages []uint16, sampleTime, sign, baseline float64) (times []uint32, intensities []uint16)
}

// FindChannelEvents extracts the events of a single channel trace using the
// given strategy, polarity and baseline.
func FindChannelEvents(voltages []uint16, sampleTime float64, mode Mode, polarity Polarity, baseline float64) ([]uint32, []uint16) {
	return mode.FindEvents(voltages, sampleTime, polarity.Sign(), baseline)
}

// FixedThresholdMode runs the fixed-threshold discriminator.
type FixedThresholdMode struct {
	Params ThresholdParams
}

// FindEvents implements Mode.
func (m FixedThresholdMode) FindEvents(voltages []uint16, sampleTime, sign, baseline float64) ([]uint32, []uint16) {
	raw := pipeline.RawTrace(voltages, sampleTime, sign, baseline)
	events := pipeline.DetectEvents(raw, NewThresholdDetector(m.Params))

	var times []uint32
	var intensities []uint16
	for ev := range events {
		times = append(times, timeTick(ev.Time))
		intensities = append(intensities, intensityOf(ev.Data.PulseHeight))
	}
	return times, intensities
}

// DifferentialMode runs the differential-threshold discriminator behind a
// two-tap finite-difference window.
type DifferentialMode struct {
	Params DifferentialParams
	Mode   PeakHeightMode
	Basis  PeakHeightBasis
}

// FindEvents implements Mode.
func (m DifferentialMode) FindEvents(voltages []uint16, sampleTime, sign, baseline float64) ([]uint32, []uint16) {
	raw := pipeline.RawTrace(voltages, sampleTime, sign, baseline)
	diffed := pipeline.ApplyWindow(raw, pipeline.NewFiniteDiff2())
	events := pipeline.DetectEvents(diffed, NewDifferentialDetector(m.Params, m.Mode))

	var times []uint32
	var intensities []uint16
	for ev := range events {
		times = append(times, timeTick(ev.Time))
		height := ev.Data.PeakHeight
		if m.Basis == PulseBaseline {
			height -= ev.Data.BaseHeight
		}
		intensities = append(intensities, intensityOf(height))
	}
	return times, intensities
}

// AdvancedMuonMode runs the multi-stage muon detector behind baseline
// estimation, smoothing and a three-tap finite-difference window, then
// assembles its events into pulses and filters them by peak amplitude.
type AdvancedMuonMode struct {
	Params MuonParams
	// BaselineLength is the size of the event-free initial portion of the
	// trace used for baseline estimation. Zero disables estimation.
	BaselineLength int
	// SmoothingWindowSize is the length of the moving-average window.
	// Zero or one disables smoothing.
	SmoothingWindowSize int
	// MinAmplitude, when non-nil, drops pulses whose peak is below it.
	MinAmplitude *float64
	// MaxAmplitude, when non-nil, drops pulses whose peak is above it.
	MaxAmplitude *float64
}

// baselineBias is the relaxation factor for the running baseline estimate.
const baselineBias = 0.1

// FindEvents implements Mode.
func (m AdvancedMuonMode) FindEvents(voltages []uint16, sampleTime, sign, baseline float64) ([]uint32, []uint16) {
	raw := pipeline.RawTrace(voltages, sampleTime, sign, baseline)
	rebased := pipeline.ApplyWindow(raw, pipeline.NewBaseline(m.BaselineLength, baselineBias))
	smoothed := pipeline.MapValues(
		pipeline.ApplyWindow(rebased, pipeline.NewSmoothing(m.SmoothingWindowSize)),
		func(s pipeline.Stats) float64 { return s.Mean },
	)
	diffed := pipeline.ApplyWindow(smoothed, pipeline.NewFiniteDiff3())
	events := pipeline.DetectEvents(diffed, NewMuonDetector(m.Params))
	pulses := AssemblePulses(events, NewMuonAssembler())

	var times []uint32
	var intensities []uint16
	for pulse := range pulses {
		if !m.amplitudeInRange(pulse) {
			continue
		}
		var t float64
		if pulse.SteepestRise != nil {
			t = pulse.SteepestRise.Time
		}
		var peak float64
		if pulse.Peak != nil {
			peak = pulse.Peak.Value
		}
		times = append(times, timeTick(t))
		intensities = append(intensities, intensityOf(peak))
	}
	return times, intensities
}

func (m AdvancedMuonMode) amplitudeInRange(pulse Pulse) bool {
	if pulse.Peak == nil {
		return true
	}
	if m.MinAmplitude != nil && pulse.Peak.Value < *m.MinAmplitude {
		return false
	}
	if m.MaxAmplitude != nil && pulse.Peak.Value > *m.MaxAmplitude {
		return false
	}
	return true
}

// timeTick saturates a sample time into an unsigned 32-bit tick count.
func timeTick(t float64) uint32 {
	if t <= 0 || math.IsNaN(t) {
		return 0
	}
	if t >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(t)
}

// intensityOf saturates a trace value into the 16-bit non-negative
// intensity used on the wire.
func intensityOf(v float64) uint16 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}
