package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/linuxmatters/pulsetrace/internal/transport"
)

// Sink is where the engine publishes its messages. transport.Publisher
// satisfies it.
type Sink interface {
	TrySend(msg any) error
}

// Stats counts what an engine run produced.
type Stats struct {
	Frames        int
	MessagesSent  int
	FrameFailures int
}

// Engine executes a simulation schedule: it tracks the current timestamp
// and frame number, and turns the send actions into transport messages.
// Sampling failures abort only the frame that raised them; send failures
// (queue overflow, closed sink) abort the run.
type Engine struct {
	sim        *Simulation
	sink       Sink
	masterSeed uint64
	logger     *log.Logger

	channels   []uint32
	digitisers []EngineDigitiser
	sampleRate uint32

	timestamp time.Time
	frame     uint32
	running   bool

	stats Stats
}

// NewEngine resolves the channel layout and returns an engine ready to run.
func NewEngine(sim *Simulation, sink Sink, masterSeed uint64, logger *log.Logger) (*Engine, error) {
	channels, err := sim.DigitiserConfig.GenerateChannels()
	if err != nil {
		return nil, fmt.Errorf("%w: channels: %v", ErrConfig, err)
	}
	digitisers, err := sim.DigitiserConfig.GenerateDigitisers()
	if err != nil {
		return nil, fmt.Errorf("%w: digitisers: %v", ErrConfig, err)
	}
	sampleRate, err := sim.SampleRate.Value(0)
	if err != nil {
		return nil, fmt.Errorf("%w: sample-rate: %v", ErrConfig, err)
	}
	return &Engine{
		sim:        sim,
		sink:       sink,
		masterSeed: masterSeed,
		logger:     logger,
		channels:   channels,
		digitisers: digitisers,
		sampleRate: uint32(sampleRate),
		timestamp:  time.Now().UTC(),
	}, nil
}

// Stats returns the counters accumulated so far.
func (e *Engine) Stats() Stats { return e.stats }

// Run executes the configured schedule. Cancellation is honoured at frame
// boundaries and during waits.
func (e *Engine) Run(ctx context.Context) error {
	return e.execute(ctx, e.sim.Schedule)
}

func (e *Engine) execute(ctx context.Context, actions []Action) error {
	for _, action := range actions {
		switch {
		case action.SendRunStart != nil:
			if err := e.sendRunStart(action.SendRunStart); err != nil {
				return err
			}
		case action.SendRunStop != nil:
			if err := e.sendRunStop(action.SendRunStop); err != nil {
				return err
			}
		case action.SetTimestamp != nil:
			e.setTimestamp(action.SetTimestamp)
		case action.WaitMs != nil:
			select {
			case <-time.After(time.Duration(*action.WaitMs) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		case action.FrameLoop != nil:
			if err := e.runFrameLoop(ctx, action.FrameLoop); err != nil {
				return err
			}
		case action.SendDigitiserTrace != nil:
			if err := e.sendTraces(action.SendDigitiserTrace.EventListIndex); err != nil {
				return err
			}
		case action.SendDigitiserEventList != nil:
			if err := e.sendEventLists(action.SendDigitiserEventList.EventListIndex); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) runFrameLoop(ctx context.Context, loop *FrameLoop) error {
	start, err := loop.Start.Value(int(e.frame))
	if err != nil {
		return fmt.Errorf("%w: frame-loop start: %v", ErrConfig, err)
	}
	end, err := loop.End.Value(int(e.frame))
	if err != nil {
		return fmt.Errorf("%w: frame-loop end: %v", ErrConfig, err)
	}
	for f := start; f <= end; f++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.frame = uint32(f)
		e.stats.Frames++
		if err := e.execute(ctx, loop.Schedule); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) setTimestamp(spec *TimestampSpec) {
	switch {
	case spec.now:
		e.timestamp = time.Now().UTC()
	case spec.advanceByMs != 0:
		e.timestamp = e.timestamp.Add(time.Duration(spec.advanceByMs) * time.Millisecond)
	case spec.rewindByMs != 0:
		e.timestamp = e.timestamp.Add(-time.Duration(spec.rewindByMs) * time.Millisecond)
	}
}

func (e *Engine) sendRunStart(action *RunStartAction) error {
	name, err := action.Name.Value()
	if err != nil {
		return fmt.Errorf("%w: run name: %v", ErrConfig, err)
	}
	filename, err := action.Filename.Value()
	if err != nil {
		return fmt.Errorf("%w: run filename: %v", ErrConfig, err)
	}
	instrument, err := action.Instrument.Value()
	if err != nil {
		return fmt.Errorf("%w: run instrument: %v", ErrConfig, err)
	}
	e.running = true
	e.logger.Info("run started", "name", name, "instrument", instrument)
	return e.send(&transport.RunStart{
		Name:       name,
		Filename:   filename,
		Instrument: instrument,
		Timestamp:  e.timestamp.UnixNano(),
	})
}

func (e *Engine) sendRunStop(action *RunStopAction) error {
	name, err := action.Name.Value()
	if err != nil {
		return fmt.Errorf("%w: run name: %v", ErrConfig, err)
	}
	e.running = false
	e.logger.Info("run stopped", "name", name)
	return e.send(&transport.RunStop{Name: name, Timestamp: e.timestamp.UnixNano()})
}

// sendTraces synthesises one trace per channel from the indexed event list
// and publishes them grouped by digitiser. A sampling failure abandons only
// the frame that raised it; a publish failure aborts the run.
func (e *Engine) sendTraces(eventListIndex int) error {
	lists, err := e.sim.GenerateEventLists(eventListIndex, e.frame, len(e.channels), e.masterSeed)
	if err != nil {
		e.frameFailure("event lists", err)
		return nil
	}
	traces, err := e.sim.GenerateTraces(lists, e.frame, e.masterSeed)
	if err != nil {
		e.frameFailure("traces", err)
		return nil
	}

	for _, digitiser := range e.digitiserGroups() {
		msg := &transport.TraceMessage{
			DigitiserID: digitiser.ID,
			SampleRate:  e.sampleRate,
			Metadata:    e.metadata(),
		}
		for _, idx := range digitiser.ChannelIndices {
			msg.Channels = append(msg.Channels, transport.ChannelTrace{
				Channel:  e.channels[idx],
				Voltages: traces[idx],
			})
		}
		if err := e.send(msg); err != nil {
			return err
		}
	}
	return nil
}

// sendEventLists samples one event list per channel and publishes the
// pulse times and intensities grouped by digitiser.
func (e *Engine) sendEventLists(eventListIndex int) error {
	lists, err := e.sim.GenerateEventLists(eventListIndex, e.frame, len(e.channels), e.masterSeed)
	if err != nil {
		e.frameFailure("event lists", err)
		return nil
	}

	for _, digitiser := range e.digitiserGroups() {
		msg := &transport.EventListMessage{
			DigitiserID: digitiser.ID,
			Metadata:    e.metadata(),
		}
		for _, idx := range digitiser.ChannelIndices {
			list := lists[idx]
			events := transport.ChannelEvents{Channel: e.channels[idx]}
			for _, pulse := range list.Pulses {
				events.Times = append(events.Times, pulse.Time())
				events.Intensities = append(events.Intensities, pulse.Intensity())
			}
			msg.Channels = append(msg.Channels, events)
		}
		if err := e.send(msg); err != nil {
			return err
		}
	}
	return nil
}

// digitiserGroups returns the configured digitisers, or a single synthetic
// aggregated digitiser covering every channel when the layout has none.
func (e *Engine) digitiserGroups() []EngineDigitiser {
	if len(e.digitisers) > 0 {
		return e.digitisers
	}
	indices := make([]int, len(e.channels))
	for i := range indices {
		indices[i] = i
	}
	return []EngineDigitiser{{ID: 0, ChannelIndices: indices}}
}

func (e *Engine) metadata() transport.FrameMetadata {
	return transport.FrameMetadata{
		Timestamp:   e.timestamp.UnixNano(),
		FrameNumber: e.frame,
		Running:     e.running,
	}
}

func (e *Engine) send(msg any) error {
	if err := e.sink.TrySend(msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	e.stats.MessagesSent++
	return nil
}

func (e *Engine) frameFailure(stage string, err error) {
	e.stats.FrameFailures++
	e.logger.Error("frame abandoned", "frame", e.frame, "stage", stage, "err", err)
}
