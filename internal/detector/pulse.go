package detector

import (
	"iter"

	"github.com/linuxmatters/pulsetrace/internal/pipeline"
)

// TimeValue is a value observed at a particular time in the trace.
type TimeValue[T any] struct {
	Time  float64
	Value T
}

// Pulse is an assembled multi-feature record summarising one detected
// excursion. Fields are nil when the detector that produced the events did
// not observe the corresponding feature.
type Pulse struct {
	// Start is the time the pulse began, and the trace value there.
	Start *TimeValue[float64]
	// End is the time the pulse terminated, and the trace value there.
	End *TimeValue[float64]
	// Peak is the time of the pulse's maximum, and the value there.
	Peak *TimeValue[float64]
	// SteepestRise is the [v, Δv] pair at the steepest point of the rising
	// edge.
	SteepestRise *TimeValue[pipeline.Pair]
	// SharpestFall is the [v, Δv] pair at the sharpest point of the
	// falling edge.
	SharpestFall *TimeValue[pipeline.Pair]
}

// Assembler reduces a stream of detector events into higher-level pulse
// records.
type Assembler[D any] interface {
	Assemble(event pipeline.Event[D]) (Pulse, bool)
}

// AssemblePulses lazily applies an assembler to an event stream.
func AssemblePulses[D any](src iter.Seq[pipeline.Event[D]], a Assembler[D]) iter.Seq[Pulse] {
	return func(yield func(Pulse) bool) {
		for ev := range src {
			if pulse, ok := a.Assemble(ev); ok {
				if !yield(pulse) {
					return
				}
			}
		}
	}
}
