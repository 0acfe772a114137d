package pipeline

import "iter"

// MapValues lazily transforms the value of each sample, leaving times
// untouched. Used to project a Stats stream back down to its mean before
// further windowing.
func MapValues[I, O any](src iter.Seq[Point[I]], f func(I) O) iter.Seq[Point[O]] {
	return func(yield func(Point[O]) bool) {
		for p := range src {
			if !yield(Point[O]{Time: p.Time, Value: f(p.Value)}) {
				return
			}
		}
	}
}
