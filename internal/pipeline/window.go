package pipeline

import "iter"

// Window is a stateful per-sample transform over a sliding region of the
// trace. Push consumes one input value and reports whether an output is
// ready; Output returns the current transformed value; TimeShift corrects a
// sample time for the latency the window introduces, so that output times
// line up with the centre of the region they were computed from.
type Window[I, O any] interface {
	Push(value I) bool
	Output() O
	TimeShift(time float64) float64
}

// ApplyWindow lazily applies a window to a stream of samples. Samples pushed
// while the window is priming produce no output.
func ApplyWindow[I, O any](src iter.Seq[Point[I]], w Window[I, O]) iter.Seq[Point[O]] {
	return func(yield func(Point[O]) bool) {
		for p := range src {
			if !w.Push(p.Value) {
				continue
			}
			if !yield(Point[O]{Time: w.TimeShift(p.Time), Value: w.Output()}) {
				return
			}
		}
	}
}

// Detector is a state machine that consumes trace samples and emits zero or
// more events. Signal consumes one sample; Finish is called once the
// upstream ends, giving the detector a chance to flush an in-progress event.
// Detectors are total: they never fail, they only decline to emit.
type Detector[V, D any] interface {
	Signal(time float64, value V) (Event[D], bool)
	Finish() (Event[D], bool)
}

// DetectEvents lazily applies a detector to a stream of samples, producing
// the stream of events it emits.
func DetectEvents[V, D any](src iter.Seq[Point[V]], d Detector[V, D]) iter.Seq[Event[D]] {
	return func(yield func(Event[D]) bool) {
		for p := range src {
			if ev, ok := d.Signal(p.Time, p.Value); ok {
				if !yield(ev) {
					return
				}
			}
		}
		if ev, ok := d.Finish(); ok {
			yield(ev)
		}
	}
}

// RawTrace adapts a digitised voltage array into the pipeline's sample
// stream. Sample i maps to (i*sampleTime, sign*(v-baseline)): polarity is
// folded in so that pulses always register as positive excursions, and the
// quiescent level is removed before any window sees the data.
func RawTrace(voltages []uint16, sampleTime, sign, baseline float64) iter.Seq[Point[float64]] {
	return func(yield func(Point[float64]) bool) {
		for i, v := range voltages {
			p := Point[float64]{
				Time:  float64(i) * sampleTime,
				Value: sign * (float64(v) - baseline),
			}
			if !yield(p) {
				return
			}
		}
	}
}

// Collect drains a sample stream into a slice. Intended for tests and for
// consumers that need more than one pass over a non-restartable pipeline.
func Collect[T any](src iter.Seq[T]) []T {
	var out []T
	for v := range src {
		out = append(out, v)
	}
	return out
}
