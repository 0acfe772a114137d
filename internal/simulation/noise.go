// Package simulation implements the configuration-driven trace synthesiser:
// a validated configuration tree of pulse templates, event-list recipes,
// noise sources, a digitiser map and an action schedule, plus the runtime
// that samples event lists and rasterises them into channel traces on a
// frame-parallel worker pool.
package simulation

import (
	"encoding/json"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/linuxmatters/pulsetrace/internal/distrib"
)

// NoiseBounds is the time interval, in ticks, outside which a noise source
// contributes nothing.
type NoiseBounds struct {
	Min distrib.IntExpr `json:"min"`
	Max distrib.IntExpr `json:"max"`
}

// Contains reports whether the tick lies inside the bounds for the given
// frame.
func (b NoiseBounds) Contains(time uint32, frame int) (bool, error) {
	lo, err := b.Min.Value(frame)
	if err != nil {
		return false, err
	}
	hi, err := b.Max.Value(frame)
	if err != nil {
		return false, err
	}
	t := int(time)
	return lo <= t && t <= hi, nil
}

// Noise attribute tags as they appear in configuration files.
const (
	noiseUniform  = "uniform"
	noiseGaussian = "gaussian"
)

// NoiseAttributes selects the per-sample draw of a noise source.
//
// JSON forms, tagged by "noise-type":
//
//	{ "noise-type": "uniform", "min": {...}, "max": {...} }
//	{ "noise-type": "gaussian", "mean": {...}, "sd": {...} }
type NoiseAttributes struct {
	kind     string
	min, max distrib.FloatExpr
	mean, sd distrib.FloatExpr
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *NoiseAttributes) UnmarshalJSON(data []byte) error {
	var raw struct {
		NoiseType string             `json:"noise-type"`
		Min       *distrib.FloatExpr `json:"min"`
		Max       *distrib.FloatExpr `json:"max"`
		Mean      *distrib.FloatExpr `json:"mean"`
		SD        *distrib.FloatExpr `json:"sd"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("noise attributes: %w", err)
	}
	switch raw.NoiseType {
	case noiseUniform:
		if raw.Min == nil || raw.Max == nil {
			return fmt.Errorf("%w: uniform noise requires min and max", distrib.ErrBadDistribution)
		}
		*a = NoiseAttributes{kind: raw.NoiseType, min: *raw.Min, max: *raw.Max}
	case noiseGaussian:
		if raw.Mean == nil || raw.SD == nil {
			return fmt.Errorf("%w: gaussian noise requires mean and sd", distrib.ErrBadDistribution)
		}
		*a = NoiseAttributes{kind: raw.NoiseType, mean: *raw.Mean, sd: *raw.SD}
	default:
		return fmt.Errorf("%w: unknown noise-type %q", distrib.ErrBadDistribution, raw.NoiseType)
	}
	return nil
}

// NoiseSource is a stateless noise generator with bounded support.
type NoiseSource struct {
	Bounds     NoiseBounds     `json:"bounds"`
	Attributes NoiseAttributes `json:"attributes"`
	// SmoothingWindowLength is the length of the moving average applied to
	// consecutive draws. One means no smoothing.
	SmoothingWindowLength distrib.IntExpr `json:"smoothing-window-length"`
}

// SampleAt draws one noise value at the given tick, or zero outside the
// source's bounds.
func (s *NoiseSource) SampleAt(rng *rand.Rand, time uint32, frame int) (float64, error) {
	in, err := s.Bounds.Contains(time, frame)
	if err != nil || !in {
		return 0, err
	}
	switch s.Attributes.kind {
	case noiseUniform:
		lo, err := s.Attributes.min.Value(frame)
		if err != nil {
			return 0, err
		}
		hi, err := s.Attributes.max.Value(frame)
		if err != nil {
			return 0, err
		}
		return (hi-lo)*rng.Float64() + lo, nil
	case noiseGaussian:
		mean, err := s.Attributes.mean.Value(frame)
		if err != nil {
			return 0, err
		}
		sd, err := s.Attributes.sd.Value(frame)
		if err != nil {
			return 0, err
		}
		if sd <= 0 {
			return 0, fmt.Errorf("%w: gaussian noise sd %v must be positive", distrib.ErrBadDistribution, sd)
		}
		return distuv.Normal{Mu: mean, Sigma: sd, Src: rng}.Rand(), nil
	default:
		return 0, nil
	}
}

// Noise wraps a source with the ring buffer of its most recent draws, so
// the injected noise is the moving average of the last window of samples.
type Noise struct {
	source *NoiseSource
	prev   []float64
}

// NewNoise returns the runtime state for one noise source.
func NewNoise(source *NoiseSource) *Noise {
	return &Noise{source: source}
}

// Noisify pushes a fresh draw into the buffer, evicting the oldest once the
// configured window length is reached, and returns the value with the
// buffer mean added.
func (n *Noise) Noisify(rng *rand.Rand, value float64, time uint32, frame int) (float64, error) {
	windowLen, err := n.source.SmoothingWindowLength.Value(frame)
	if err != nil {
		return 0, err
	}
	if windowLen < 1 {
		windowLen = 1
	}
	if len(n.prev) >= windowLen {
		n.prev = n.prev[len(n.prev)-windowLen+1:]
	}
	sample, err := n.source.SampleAt(rng, time, frame)
	if err != nil {
		return 0, err
	}
	n.prev = append(n.prev, sample)

	var sum float64
	for _, v := range n.prev {
		sum += v
	}
	return value + sum/float64(len(n.prev)), nil
}
