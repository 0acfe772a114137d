package detector

import "github.com/linuxmatters/pulsetrace/internal/pipeline"

// PeakHeightMode determines how the differential detector computes the peak
// height of an event.
type PeakHeightMode int

const (
	// MaxValue takes the maximum trace value between the begin trigger and
	// the end trigger.
	MaxValue PeakHeightMode = iota
	// ValueAtEndTrigger takes v − Δv at the end trigger sample, that is the
	// trace value one sample before the end trigger time.
	ValueAtEndTrigger
)

// DifferentialParams configures the differential-threshold discriminator.
// Durations and the cool-off are expressed in the same time units as the
// sample stream.
type DifferentialParams struct {
	// BeginThreshold is the derivative level at which a detection begins.
	BeginThreshold float64
	// BeginDuration is how long the derivative must stay above the begin
	// threshold before the detection is confirmed.
	BeginDuration float64
	// EndThreshold is the derivative level below which a detection ends.
	EndThreshold float64
	// EndDuration is how long the derivative must stay below the end
	// threshold before the detection is concluded.
	EndDuration float64
	// CoolOff is the minimum time between the end of one detection and the
	// beginning of the next.
	CoolOff float64
}

// DifferentialData is the payload of a differential-threshold event.
type DifferentialData struct {
	// BaseHeight is the trace value at the start of the detection, with
	// the contribution of the rising edge removed.
	BaseHeight float64
	// PeakHeight is the peak of the detection, computed per the detector's
	// PeakHeightMode.
	PeakHeight float64
}

type diffState int

const (
	// diffWaiting: no detection in progress.
	diffWaiting diffState = iota
	// diffBeginning: the derivative has been above the begin threshold for
	// less than the begin duration.
	diffBeginning
	// diffDetected: a detection is confirmed and in progress.
	diffDetected
	// diffEnding: the derivative has been below the end threshold for less
	// than the end duration.
	diffEnding
	// diffCoolingDown: a detection concluded; new detections are held off.
	diffCoolingDown
)

// partialEvent accumulates an in-progress detection.
type partialEvent struct {
	// baseHeight is v - Δv at the sample that left the waiting state.
	baseHeight float64
	// timeOfEvent is the time of the maximum derivative seen so far.
	timeOfEvent float64
	// peakHeight is the running peak per the configured mode.
	peakHeight float64
	// atMaxDeriv is the [v, Δv] pair at the maximum derivative.
	atMaxDeriv pipeline.Pair
}

func (p *partialEvent) update(mode PeakHeightMode, time float64, value pipeline.Pair) {
	if p.atMaxDeriv[1] < value[1] {
		p.atMaxDeriv = value
		p.timeOfEvent = time
	}
	switch mode {
	case ValueAtEndTrigger:
		p.peakHeight = value[0] - value[1]
	case MaxValue:
		if p.peakHeight < value[0] {
			p.peakHeight = value[0]
		}
	}
}

func (p *partialEvent) intoEvent() pipeline.Event[DifferentialData] {
	return pipeline.Event[DifferentialData]{
		Time: p.timeOfEvent,
		Data: DifferentialData{BaseHeight: p.baseHeight, PeakHeight: p.peakHeight},
	}
}

// DifferentialDetector registers an event whenever the first derivative of
// the trace rises above the begin threshold and later falls back below the
// end threshold, subject to the configured durations and cool-off. It
// consumes [v, Δv] pairs, so a two-tap finite-difference window must be
// applied upstream.
type DifferentialDetector struct {
	params DifferentialParams
	mode   PeakHeightMode

	state     diffState
	stateTime float64
	partial   *partialEvent
}

// NewDifferentialDetector returns a differential-threshold discriminator
// with the given parameters and peak-height mode.
func NewDifferentialDetector(params DifferentialParams, mode PeakHeightMode) pipeline.Detector[pipeline.Pair, DifferentialData] {
	return &DifferentialDetector{params: params, mode: mode}
}

// modifyState advances the state machine by one sample.
//
//	Waiting     => Beginning or Detected
//	Beginning   => Waiting or Detected
//	Detected    => Ending, CoolingDown or Waiting
//	Ending      => Detected, CoolingDown or Waiting
//	CoolingDown => Waiting
func (d *DifferentialDetector) modifyState(time float64, value pipeline.Pair) {
	switch d.state {
	case diffWaiting:
		if value[1] >= d.params.BeginThreshold {
			d.partial = &partialEvent{
				baseHeight:  value[0] - value[1],
				timeOfEvent: time,
				peakHeight:  value[0],
				atMaxDeriv:  value,
			}
			if d.params.BeginDuration == 0 {
				d.state = diffDetected
			} else {
				d.state = diffBeginning
				d.stateTime = time
			}
		}
	case diffBeginning:
		if time >= d.stateTime+d.params.BeginDuration {
			d.state = diffDetected
		} else if value[1] < d.params.BeginThreshold {
			d.partial = nil
			d.state = diffWaiting
		}
	case diffDetected:
		if value[1] <= d.params.EndThreshold {
			switch {
			case d.params.EndDuration != 0:
				d.state = diffEnding
				d.stateTime = time
			case d.params.CoolOff != 0:
				d.state = diffCoolingDown
				d.stateTime = time
			default:
				d.state = diffWaiting
			}
		}
	case diffEnding:
		if time >= d.stateTime+d.params.EndDuration {
			if d.params.CoolOff != 0 {
				d.state = diffCoolingDown
				d.stateTime = time
			} else {
				d.state = diffWaiting
			}
		} else if value[1] > d.params.EndThreshold {
			d.state = diffDetected
		}
	case diffCoolingDown:
		if time >= d.stateTime+d.params.CoolOff {
			d.state = diffWaiting
		}
	}
}

// takeCompleted removes and returns the in-progress detection if the state
// machine has just concluded it.
func (d *DifferentialDetector) takeCompleted() *partialEvent {
	switch d.state {
	case diffEnding, diffCoolingDown, diffWaiting:
		p := d.partial
		d.partial = nil
		return p
	default:
		return nil
	}
}

// Signal consumes one [v, Δv] sample and emits an event when a detection
// concludes.
func (d *DifferentialDetector) Signal(time float64, value pipeline.Pair) (pipeline.Event[DifferentialData], bool) {
	d.modifyState(time, value)

	if completed := d.takeCompleted(); completed != nil {
		completed.update(d.mode, time, value)
		return completed.intoEvent(), true
	}
	if d.partial != nil {
		d.partial.update(d.mode, time, value)
	}
	return pipeline.Event[DifferentialData]{}, false
}

// Finish discards any in-progress detection: a pulse that never concluded
// before the trace ended is not reported.
func (d *DifferentialDetector) Finish() (pipeline.Event[DifferentialData], bool) {
	d.partial = nil
	return pipeline.Event[DifferentialData]{}, false
}
