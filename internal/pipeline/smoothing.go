package pipeline

// Smoothing is a moving-average window of fixed size. Once primed it emits
// Stats carrying the latest raw value alongside the window mean and
// variance. Output times are shifted back by (size-1)/2 samples so the
// statistics line up with the centre of the window they were computed over.
type Smoothing struct {
	size   int
	values []float64
	next   int
	sum    float64
	sumSq  float64
	latest float64
}

// NewSmoothing returns a moving window of the given size. A size below one
// is treated as one, which makes the window a pass-through.
func NewSmoothing(size int) Window[float64, Stats] {
	if size < 1 {
		size = 1
	}
	return &Smoothing{size: size, values: make([]float64, 0, size)}
}

// Push consumes one sample. Returns false until the window holds size
// samples.
func (s *Smoothing) Push(value float64) bool {
	s.latest = value
	if len(s.values) < s.size {
		s.values = append(s.values, value)
		s.sum += value
		s.sumSq += value * value
		return len(s.values) == s.size
	}
	old := s.values[s.next]
	s.values[s.next] = value
	s.next = (s.next + 1) % s.size
	s.sum += value - old
	s.sumSq += value*value - old*old
	return true
}

// Output returns the current window statistics.
func (s *Smoothing) Output() Stats {
	n := float64(s.size)
	mean := s.sum / n
	variance := s.sumSq/n - mean*mean
	if variance < 0 {
		// Rounding in the running sums can push a near-zero variance
		// fractionally negative.
		variance = 0
	}
	return Stats{Value: s.latest, Mean: mean, Variance: variance}
}

// TimeShift centres the output on the window: (size−1)/2 whole samples,
// with integer division.
func (s *Smoothing) TimeShift(time float64) float64 {
	return time - float64((s.size-1)/2)
}
