package simulation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/exp/rand"

	"github.com/linuxmatters/pulsetrace/internal/distrib"
	"github.com/linuxmatters/pulsetrace/internal/pulsemodel"
)

// ErrConfig tags configuration errors: unparsable JSON, unknown tags, and
// cross-references that do not resolve. Configuration errors are fatal to a
// simulation run.
var ErrConfig = errors.New("invalid simulation configuration")

// PulseTemplate wraps a pulse template so the tagged JSON form decodes
// through the pulse-model registry.
type PulseTemplate struct {
	pulsemodel.Template
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PulseTemplate) UnmarshalJSON(data []byte) error {
	template, err := pulsemodel.UnmarshalTemplate(data)
	if err != nil {
		return err
	}
	p.Template = template
	return nil
}

// Simulation is the top-level configuration tree. It owns the pulse
// templates and event-list recipes; both are immutable once loaded and are
// shared read-only across worker tasks.
type Simulation struct {
	// VoltageTransformation is applied to every trace value after pulses
	// are rasterised.
	VoltageTransformation distrib.Transformation `json:"voltage-transformation"`
	// TimeBins is the number of samples in each trace.
	TimeBins distrib.IntExpr `json:"time-bins"`
	// SampleRate is the number of samples per second.
	SampleRate distrib.IntExpr `json:"sample-rate"`
	// DigitiserConfig lays out channels and digitisers.
	DigitiserConfig DigitiserConfig `json:"digitiser-config"`
	// EventLists are the frame recipes the schedule draws from.
	EventLists []EventListTemplate `json:"event-lists"`
	// Pulses is the template pool that event lists index into.
	Pulses []PulseTemplate `json:"pulses"`
	// Schedule is the action sequence executed by the engine.
	Schedule []Action `json:"schedule"`
}

// Load decodes and validates a simulation configuration.
func Load(r io.Reader) (*Simulation, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var sim Simulation
	if err := dec.Decode(&sim); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := sim.validate(); err != nil {
		return nil, err
	}
	return &sim, nil
}

// validate resolves every cross-reference once, so per-sample lookups never
// have to revalidate.
func (s *Simulation) validate() error {
	for i, list := range s.EventLists {
		if len(list.Pulses) == 0 {
			return fmt.Errorf("%w: event list %d has no pulses", ErrConfig, i)
		}
		positive := false
		for j, entry := range list.Pulses {
			if entry.PulseIndex < 0 || entry.PulseIndex >= len(s.Pulses) {
				return fmt.Errorf("%w: event list %d pulse %d: pulse-index %d out of range %d",
					ErrConfig, i, j, entry.PulseIndex, len(s.Pulses))
			}
			if entry.Weight < 0 {
				return fmt.Errorf("%w: event list %d pulse %d: negative weight %v",
					ErrConfig, i, j, entry.Weight)
			}
			if entry.Weight > 0 {
				positive = true
			}
		}
		if !positive {
			return fmt.Errorf("%w: event list %d has no positive pulse weight", ErrConfig, i)
		}
	}
	return s.validateSchedule(s.Schedule)
}

func (s *Simulation) validateSchedule(actions []Action) error {
	for _, action := range actions {
		switch {
		case action.SendDigitiserTrace != nil:
			if idx := action.SendDigitiserTrace.EventListIndex; idx < 0 || idx >= len(s.EventLists) {
				return fmt.Errorf("%w: send-digitiser-trace event-list-index %d out of range %d",
					ErrConfig, idx, len(s.EventLists))
			}
		case action.SendDigitiserEventList != nil:
			if idx := action.SendDigitiserEventList.EventListIndex; idx < 0 || idx >= len(s.EventLists) {
				return fmt.Errorf("%w: send-digitiser-event-list event-list-index %d out of range %d",
					ErrConfig, idx, len(s.EventLists))
			}
		case action.FrameLoop != nil:
			if err := s.validateSchedule(action.FrameLoop.Schedule); err != nil {
				return err
			}
		}
	}
	return nil
}

// samplePulse draws one pulse event from the template pool for tests and
// ad-hoc tooling.
func (s *Simulation) samplePulse(rng *rand.Rand, index, frame int) (pulsemodel.Event, error) {
	if index < 0 || index >= len(s.Pulses) {
		return nil, fmt.Errorf("%w: pulse index %d out of range %d", ErrConfig, index, len(s.Pulses))
	}
	return s.Pulses[index].Sample(rng, frame)
}
