package simulation

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/linuxmatters/pulsetrace/internal/distrib"
	"github.com/linuxmatters/pulsetrace/internal/pulsemodel"
)

// WeightedPulse refers to one entry of the top-level pulse template array,
// with the weight it is drawn at.
type WeightedPulse struct {
	Weight     float64 `json:"weight"`
	PulseIndex int     `json:"pulse-index"`
}

// EventListTemplate is the recipe for one frame's events: a weighted choice
// of pulse templates, the noise sources laid over the resulting trace, and
// the distribution of how many pulses each frame carries.
type EventListTemplate struct {
	Pulses    []WeightedPulse `json:"pulses"`
	Noises    []NoiseSource   `json:"noises"`
	NumPulses distrib.IntDist `json:"num-pulses"`
}

// weights returns the draw weights in pulse order.
func (t *EventListTemplate) weights() []float64 {
	w := make([]float64, len(t.Pulses))
	for i, p := range t.Pulses {
		w[i] = p.Weight
	}
	return w
}

// EventList is one sampled frame's worth of pulses together with the noise
// runtime state for its trace. It lives for a single frame.
type EventList struct {
	Pulses []pulsemodel.Event
	Noises []*Noise
}

// sampleEventList draws one event list from the template under the given
// generator and frame index. Pulse template indices were validated at load
// time, so lookups here cannot miss.
func (s *Simulation) sampleEventList(rng *rand.Rand, template *EventListTemplate, frame int) (*EventList, error) {
	numPulses, err := template.NumPulses.Sample(rng, frame)
	if err != nil {
		return nil, err
	}

	choice := distuv.NewCategorical(template.weights(), rng)
	pulses := make([]pulsemodel.Event, 0, numPulses)
	for i := 0; i < numPulses; i++ {
		entry := template.Pulses[int(choice.Rand())]
		pulse, err := s.Pulses[entry.PulseIndex].Sample(rng, frame)
		if err != nil {
			return nil, err
		}
		pulses = append(pulses, pulse)
	}

	noises := make([]*Noise, 0, len(template.Noises))
	for i := range template.Noises {
		noises = append(noises, NewNoise(&template.Noises[i]))
	}
	return &EventList{Pulses: pulses, Noises: noises}, nil
}
