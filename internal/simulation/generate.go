package simulation

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/linuxmatters/pulsetrace/internal/distrib"
)

// traceSeedSalt separates the generator streams used for trace noise from
// those used for event-list sampling of the same (frame, repeat) task.
const traceSeedSalt = 0x74726163 // "trac"

// GenerateEventLists samples `repeat` event lists from the indexed template
// for one frame, in parallel. Results are returned in repetition order;
// each repetition draws from its own generator derived from
// (masterSeed, frameNumber, repetition), so the output is reproducible
// regardless of scheduling.
func (s *Simulation) GenerateEventLists(index int, frameNumber uint32, repeat int, masterSeed uint64) ([]*EventList, error) {
	if index < 0 || index >= len(s.EventLists) {
		return nil, fmt.Errorf("%w: event list index %d out of range %d", ErrConfig, index, len(s.EventLists))
	}
	template := &s.EventLists[index]

	lists := make([]*EventList, repeat)
	var group errgroup.Group
	group.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < repeat; i++ {
		group.Go(func() error {
			rng := distrib.NewRand(masterSeed, int(frameNumber), i)
			list, err := s.sampleEventList(rng, template, int(frameNumber))
			if err != nil {
				return err
			}
			lists[i] = list
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return lists, nil
}

// GenerateTraces rasterises each event list into a digitised trace of
// time-bins samples, in parallel. Every pulse contributes its value across
// its own support, the voltage transformation is applied, each configured
// noise is layered on, and the result saturates into 16-bit intensities.
// Traces are returned in event-list order.
func (s *Simulation) GenerateTraces(eventLists []*EventList, frameNumber uint32, masterSeed uint64) ([][]uint16, error) {
	timeBins, err := s.TimeBins.Value(int(frameNumber))
	if err != nil {
		return nil, err
	}
	if timeBins < 0 {
		return nil, fmt.Errorf("%w: negative time-bins %d", ErrConfig, timeBins)
	}

	traces := make([][]uint16, len(eventLists))
	var group errgroup.Group
	group.SetLimit(runtime.GOMAXPROCS(0))
	for i, list := range eventLists {
		group.Go(func() error {
			rng := distrib.NewRand(masterSeed^traceSeedSalt, int(frameNumber), i)
			trace, err := s.synthesiseTrace(rng, list, int(frameNumber), timeBins)
			if err != nil {
				return err
			}
			traces[i] = trace
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return traces, nil
}

func (s *Simulation) synthesiseTrace(rng *rand.Rand, list *EventList, frame, timeBins int) ([]uint16, error) {
	voltages := make([]float64, timeBins)
	for _, pulse := range list.Pulses {
		start := int(pulse.Start())
		end := int(pulse.End())
		if end >= timeBins {
			end = timeBins - 1
		}
		for t := start; t <= end; t++ {
			voltages[t] += pulse.ValueAt(float64(t))
		}
	}

	trace := make([]uint16, timeBins)
	for t := range voltages {
		v := s.VoltageTransformation.Apply(voltages[t])
		for _, noise := range list.Noises {
			var err error
			v, err = noise.Noisify(rng, v, uint32(t), frame)
			if err != nil {
				return nil, err
			}
		}
		trace[t] = saturateIntensity(v)
	}
	return trace, nil
}

func saturateIntensity(v float64) uint16 {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 65535:
		return 65535
	default:
		return uint16(v)
	}
}
