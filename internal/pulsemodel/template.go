// Package pulsemodel provides the analytic pulse shapes shared by the
// simulation engine: flat, triangular, gaussian, and back-to-back
// exponential. A Template describes a shape whose parameters are random
// distributions; sampling a template under a frame index produces an Event
// with concrete numeric parameters that can be evaluated anywhere on the
// time axis.
package pulsemodel

import (
	"encoding/json"
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/linuxmatters/pulsetrace/internal/distrib"
)

// Pulse shape tags as they appear in configuration files.
const (
	TypeFlat          = "flat"
	TypeTriangular    = "triangular"
	TypeGaussian      = "gaussian"
	TypeBackToBackExp = "back-to-back-exp"
)

// Template is a parametric pulse generator. Sampling draws every parameter
// from its distribution under the given frame index.
type Template interface {
	Sample(rng *rand.Rand, frame int) (Event, error)
}

// UnmarshalTemplate decodes one pulse template from its JSON form, tagged
// by "pulse-type".
func UnmarshalTemplate(data []byte) (Template, error) {
	var tag struct {
		PulseType string `json:"pulse-type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("pulse template: %w", err)
	}
	switch tag.PulseType {
	case TypeFlat:
		var t FlatTemplate
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("flat pulse template: %w", err)
		}
		return t, nil
	case TypeTriangular:
		var t TriangularTemplate
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("triangular pulse template: %w", err)
		}
		return t, nil
	case TypeGaussian:
		var t GaussianTemplate
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("gaussian pulse template: %w", err)
		}
		return t, nil
	case TypeBackToBackExp:
		var t BackToBackExpTemplate
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("back-to-back-exp pulse template: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("pulse template: unknown pulse-type %q", tag.PulseType)
	}
}

// FlatTemplate describes a rectangular pulse.
type FlatTemplate struct {
	Start  distrib.FloatDist `json:"start"`
	Width  distrib.FloatDist `json:"width"`
	Height distrib.FloatDist `json:"height"`
}

// Sample implements Template.
func (t FlatTemplate) Sample(rng *rand.Rand, frame int) (Event, error) {
	start, err := t.Start.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	width, err := t.Width.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	height, err := t.Height.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	return &Flat{start: start, stop: start + width, amplitude: height}, nil
}

// TriangularTemplate describes a piecewise-linear pulse. PeakTime is the
// fraction of the width at which the peak sits.
type TriangularTemplate struct {
	Start    distrib.FloatDist `json:"start"`
	PeakTime distrib.FloatDist `json:"peak_time"`
	Width    distrib.FloatDist `json:"width"`
	Height   distrib.FloatDist `json:"height"`
}

// Sample implements Template.
func (t TriangularTemplate) Sample(rng *rand.Rand, frame int) (Event, error) {
	start, err := t.Start.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	width, err := t.Width.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	peakFraction, err := t.PeakTime.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	height, err := t.Height.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	return &Triangular{
		start:     start,
		peakTime:  start + peakFraction*width,
		stop:      start + width,
		amplitude: height,
	}, nil
}

// GaussianTemplate describes a gaussian pulse.
type GaussianTemplate struct {
	Height   distrib.FloatDist `json:"height"`
	PeakTime distrib.FloatDist `json:"peak_time"`
	SD       distrib.FloatDist `json:"sd"`
}

// gaussianFallbackSigmas bounds the support of a gaussian pulse whose
// amplitude is too small for the amplitude-derived bound to be defined.
const gaussianFallbackSigmas = 4.0

// Sample implements Template.
func (t GaussianTemplate) Sample(rng *rand.Rand, frame int) (Event, error) {
	mean, err := t.PeakTime.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	sd, err := t.SD.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	if sd <= 0 {
		return nil, fmt.Errorf("%w: gaussian pulse sd %v must be positive", distrib.ErrBadDistribution, sd)
	}
	amplitude, err := t.Height.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	return newGaussian(mean, sd, amplitude), nil
}

// BackToBackExpTemplate describes a pulse made of two exponential tails
// sharing a peak, each convolved with a gaussian spread.
type BackToBackExpTemplate struct {
	PeakHeight distrib.FloatDist `json:"peak_height"`
	PeakTime   distrib.FloatDist `json:"peak_time"`
	Spread     distrib.FloatDist `json:"spread"`
	Falling    distrib.FloatDist `json:"falling"`
	Rising     distrib.FloatDist `json:"rising"`
}

// Sample implements Template.
func (t BackToBackExpTemplate) Sample(rng *rand.Rand, frame int) (Event, error) {
	rising, err := t.Rising.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	falling, err := t.Falling.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	peakHeight, err := t.PeakHeight.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	spread, err := t.Spread.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	peakTime, err := t.PeakTime.Sample(rng, frame)
	if err != nil {
		return nil, err
	}
	return newBackToBackExp(peakHeight, peakTime, spread, rising, falling), nil
}
