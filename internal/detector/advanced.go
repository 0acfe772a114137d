package detector

import "github.com/linuxmatters/pulsetrace/internal/pipeline"

// MuonParams configures the advanced muon detector: a three-threshold
// differential detector. All thresholds apply to the first derivative of
// the (smoothed) trace.
type MuonParams struct {
	// Onset is the derivative level above which a candidate rise begins.
	Onset float64
	// Fall is the derivative level below which the candidate is considered
	// past its peak.
	Fall float64
	// Termination is the derivative level, approaching zero from below,
	// above which the pulse is considered over.
	Termination float64
	// Duration is the minimum dwell time for each threshold condition.
	Duration float64
}

// MuonEventClass labels the stage of a muon pulse an event marks.
type MuonEventClass int

const (
	// MuonOnset marks the confirmed start of a rise.
	MuonOnset MuonEventClass = iota
	// MuonPeak marks the transition past the pulse peak.
	MuonPeak
	// MuonTermination marks the confirmed end of the pulse.
	MuonTermination
)

// MuonData is the payload of an advanced-muon event. At carries the [v, Δv]
// pair at the threshold crossing. Peak events additionally report the
// absolute peak and the steepest rise observed during the rising stage;
// termination events report the sharpest fall observed while falling.
type MuonData struct {
	Class        MuonEventClass
	At           pipeline.Pair
	Peak         TimeValue[float64]
	SteepestRise TimeValue[pipeline.Pair]
	SharpestFall TimeValue[pipeline.Pair]
}

type muonState int

const (
	muonWaiting muonState = iota
	muonArmingOnset
	muonRising
	muonArmingFall
	muonFalling
	muonArmingTerm
)

// MuonDetector walks a pulse through onset, peak and termination using
// three derivative thresholds, each gated by a dwell duration. It consumes
// [v, Δv, Δ²v] triples, so a three-tap finite-difference window must be
// applied upstream.
type MuonDetector struct {
	params MuonParams

	state    muonState
	armTime  float64
	crossing pipeline.Pair

	peak         TimeValue[float64]
	steepestRise TimeValue[pipeline.Pair]
	sharpestFall TimeValue[pipeline.Pair]
}

// NewMuonDetector returns an advanced muon detector with the given
// parameters.
func NewMuonDetector(params MuonParams) pipeline.Detector[pipeline.Triple, MuonData] {
	return &MuonDetector{params: params}
}

func (d *MuonDetector) beginRise(time float64, pair pipeline.Pair) {
	d.peak = TimeValue[float64]{Time: time, Value: pair[0]}
	d.steepestRise = TimeValue[pipeline.Pair]{Time: time, Value: pair}
}

func (d *MuonDetector) trackRise(time float64, pair pipeline.Pair) {
	if pair[0] > d.peak.Value {
		d.peak = TimeValue[float64]{Time: time, Value: pair[0]}
	}
	if pair[1] > d.steepestRise.Value[1] {
		d.steepestRise = TimeValue[pipeline.Pair]{Time: time, Value: pair}
	}
}

func (d *MuonDetector) trackFall(time float64, pair pipeline.Pair) {
	if pair[1] < d.sharpestFall.Value[1] {
		d.sharpestFall = TimeValue[pipeline.Pair]{Time: time, Value: pair}
	}
}

// Signal consumes one [v, Δv, Δ²v] sample and emits a classed event each
// time a threshold condition is confirmed.
func (d *MuonDetector) Signal(time float64, value pipeline.Triple) (pipeline.Event[MuonData], bool) {
	pair := pipeline.Pair{value[0], value[1]}
	dv := value[1]

	switch d.state {
	case muonWaiting:
		if dv >= d.params.Onset {
			d.crossing = pair
			d.armTime = time
			d.beginRise(time, pair)
			if d.params.Duration == 0 {
				d.state = muonRising
				return d.onsetEvent(), true
			}
			d.state = muonArmingOnset
		}

	case muonArmingOnset:
		if dv < d.params.Onset {
			d.state = muonWaiting
			return pipeline.Event[MuonData]{}, false
		}
		d.trackRise(time, pair)
		if time >= d.armTime+d.params.Duration {
			d.state = muonRising
			return d.onsetEvent(), true
		}

	case muonRising:
		d.trackRise(time, pair)
		if dv <= d.params.Fall {
			d.crossing = pair
			d.armTime = time
			d.sharpestFall = TimeValue[pipeline.Pair]{Time: time, Value: pair}
			if d.params.Duration == 0 {
				d.state = muonFalling
				return d.peakEvent(), true
			}
			d.state = muonArmingFall
		}

	case muonArmingFall:
		if dv > d.params.Fall {
			d.state = muonRising
			d.trackRise(time, pair)
			return pipeline.Event[MuonData]{}, false
		}
		d.trackFall(time, pair)
		if time >= d.armTime+d.params.Duration {
			d.state = muonFalling
			return d.peakEvent(), true
		}

	case muonFalling:
		d.trackFall(time, pair)
		if dv >= d.params.Termination {
			d.crossing = pair
			d.armTime = time
			if d.params.Duration == 0 {
				d.state = muonWaiting
				return d.terminationEvent(), true
			}
			d.state = muonArmingTerm
		}

	case muonArmingTerm:
		if dv < d.params.Termination {
			d.state = muonFalling
			d.trackFall(time, pair)
			return pipeline.Event[MuonData]{}, false
		}
		if time >= d.armTime+d.params.Duration {
			d.state = muonWaiting
			return d.terminationEvent(), true
		}
	}
	return pipeline.Event[MuonData]{}, false
}

func (d *MuonDetector) onsetEvent() pipeline.Event[MuonData] {
	return pipeline.Event[MuonData]{
		Time: d.armTime,
		Data: MuonData{Class: MuonOnset, At: d.crossing},
	}
}

func (d *MuonDetector) peakEvent() pipeline.Event[MuonData] {
	return pipeline.Event[MuonData]{
		Time: d.armTime,
		Data: MuonData{
			Class:        MuonPeak,
			At:           d.crossing,
			Peak:         d.peak,
			SteepestRise: d.steepestRise,
		},
	}
}

func (d *MuonDetector) terminationEvent() pipeline.Event[MuonData] {
	return pipeline.Event[MuonData]{
		Time: d.armTime,
		Data: MuonData{
			Class:        MuonTermination,
			At:           d.crossing,
			SharpestFall: d.sharpestFall,
		},
	}
}

// Finish discards a pulse still in progress when the trace ends.
func (d *MuonDetector) Finish() (pipeline.Event[MuonData], bool) {
	d.state = muonWaiting
	return pipeline.Event[MuonData]{}, false
}

// MuonAssembler folds the onset/peak/termination event sequence of the muon
// detector into Pulse records. Events arriving out of sequence (a peak with
// no onset, say) are dropped rather than guessed at.
type MuonAssembler struct {
	partial *Pulse
}

// NewMuonAssembler returns an empty assembler.
func NewMuonAssembler() Assembler[MuonData] { return &MuonAssembler{} }

// Assemble consumes one classed event and emits a pulse when a termination
// completes the onset/peak/termination sequence.
func (a *MuonAssembler) Assemble(ev pipeline.Event[MuonData]) (Pulse, bool) {
	switch ev.Data.Class {
	case MuonOnset:
		a.partial = &Pulse{
			Start: &TimeValue[float64]{Time: ev.Time, Value: ev.Data.At[0]},
		}
	case MuonPeak:
		if a.partial == nil {
			break
		}
		peak := ev.Data.Peak
		rise := ev.Data.SteepestRise
		a.partial.Peak = &peak
		a.partial.SteepestRise = &rise
	case MuonTermination:
		if a.partial == nil {
			break
		}
		fall := ev.Data.SharpestFall
		a.partial.End = &TimeValue[float64]{Time: ev.Time, Value: ev.Data.At[0]}
		a.partial.SharpestFall = &fall
		pulse := *a.partial
		a.partial = nil
		return pulse, true
	}
	return Pulse{}, false
}
