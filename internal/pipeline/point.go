// Package pipeline provides the lazy, single-pass stream abstraction that the
// detectors are built on. A trace is a sequence of timestamped samples; window
// stages transform the sample values while shifting times to keep the output
// centred, and detector stages reduce the sample stream to a sparse event
// stream. Stages are composed with iterator adaptors and hold their own state
// between samples, so a composed pipeline is not restartable: consumers must
// collect results if they need more than one pass.
package pipeline

// Point is a single timestamped sample flowing through the pipeline. The
// value type varies by stage: raw traces carry float64, smoothing windows
// carry Stats, finite-difference windows carry Pair or Triple.
type Point[V any] struct {
	Time  float64
	Value V
}

// Event is a timestamped detector output. The data payload depends on the
// detector that produced it.
type Event[D any] struct {
	Time float64
	Data D
}

// Stats carries a sample value together with the running statistics of the
// window it was observed in.
type Stats struct {
	Value    float64
	Mean     float64
	Variance float64
}

// Pair holds a sample value and its first backward difference.
type Pair [2]float64

// Triple holds a sample value and its first and second backward differences.
type Triple [3]float64
