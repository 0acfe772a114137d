// Package detector implements the event-formation strategies that reduce a
// trace sample stream to a list of discrete pulse events: a fixed-threshold
// discriminator, a differential-threshold discriminator driven by an explicit
// state machine, and a multi-stage differential detector for muon pulses with
// an assembler that folds its classed events into full pulse records.
package detector

import "github.com/linuxmatters/pulsetrace/internal/pipeline"

// ThresholdParams configures the fixed-threshold discriminator.
type ThresholdParams struct {
	// Threshold is the level the corrected trace must exceed for an event
	// to register.
	Threshold float64
	// Duration is how many consecutive samples the trace must stay above
	// the threshold before the event is emitted.
	Duration int
	// CoolOff is how many samples the detector stays disarmed after
	// emitting an event.
	CoolOff int
}

// ThresholdData is the payload of a fixed-threshold event: the maximum trace
// value observed while the detector was armed.
type ThresholdData struct {
	PulseHeight float64
}

// ThresholdDetector arms on the first sample above the threshold and emits
// an event once the trace has stayed above it for the configured duration.
// After the cool-off it re-arms on the next sample above the threshold, so a
// long excursion can yield more than one event. The event time is the arming
// time.
type ThresholdDetector struct {
	params ThresholdParams

	armed         bool
	armTime       float64
	aboveFor      int
	maxValue      float64
	coolRemaining int
}

// NewThresholdDetector returns a fixed-threshold discriminator with the
// given parameters. A duration below one is treated as one.
func NewThresholdDetector(params ThresholdParams) pipeline.Detector[float64, ThresholdData] {
	if params.Duration < 1 {
		params.Duration = 1
	}
	return &ThresholdDetector{params: params}
}

// Signal consumes one corrected sample and emits an event once the trace has
// stayed above the threshold for the configured duration.
func (d *ThresholdDetector) Signal(time float64, value float64) (pipeline.Event[ThresholdData], bool) {
	if d.coolRemaining > 0 {
		d.coolRemaining--
		return pipeline.Event[ThresholdData]{}, false
	}

	if !d.armed {
		if value > d.params.Threshold {
			d.armed = true
			d.armTime = time
			d.aboveFor = 1
			d.maxValue = value
			if d.aboveFor >= d.params.Duration {
				return d.emit(), true
			}
		}
		return pipeline.Event[ThresholdData]{}, false
	}

	if value <= d.params.Threshold {
		d.armed = false
		return pipeline.Event[ThresholdData]{}, false
	}
	d.aboveFor++
	if value > d.maxValue {
		d.maxValue = value
	}
	if d.aboveFor >= d.params.Duration {
		return d.emit(), true
	}
	return pipeline.Event[ThresholdData]{}, false
}

func (d *ThresholdDetector) emit() pipeline.Event[ThresholdData] {
	d.armed = false
	d.coolRemaining = d.params.CoolOff
	return pipeline.Event[ThresholdData]{
		Time: d.armTime,
		Data: ThresholdData{PulseHeight: d.maxValue},
	}
}

// Finish discards any armed-but-unconfirmed excursion: an event that never
// met its duration is not an event.
func (d *ThresholdDetector) Finish() (pipeline.Event[ThresholdData], bool) {
	d.armed = false
	return pipeline.Event[ThresholdData]{}, false
}
