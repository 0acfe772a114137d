// Package transport frames the records exchanged at the pipeline boundary:
// digitiser trace messages on the way in, event-list messages on the way
// out, and the run markers the simulator emits. The broker itself is an
// external collaborator; this package only speaks length-prefixed binary
// frames over any byte stream, and provides the bounded outbound queue that
// makes backpressure visible instead of silently blocking the ingress loop.
package transport

// FrameMetadata is the accelerator-frame context propagated with every
// trace and event-list message.
type FrameMetadata struct {
	// Timestamp is nanoseconds since the Unix epoch.
	Timestamp int64
	// FrameNumber identifies the accelerator pulse cycle.
	FrameNumber uint32
	// PeriodNumber identifies the measurement period.
	PeriodNumber uint32
	// ProtonsPerPulse is the beam current figure reported by the
	// accelerator.
	ProtonsPerPulse uint32
	// VetoFlags carries the frame's veto bits.
	VetoFlags uint16
	// Running reports whether a run was in progress for this frame.
	Running bool
}

// ChannelTrace is one channel's digitised voltages.
type ChannelTrace struct {
	Channel  uint32
	Voltages []uint16
}

// TraceMessage is the ingress record: one digitiser's channels for one
// frame.
type TraceMessage struct {
	DigitiserID uint8
	// SampleRate is samples per second. Zero means the producer did not
	// say; consumers fall back to one-tick sample times.
	SampleRate uint32
	Metadata   FrameMetadata
	Channels   []ChannelTrace
}

// ChannelEvents is one channel's detected events: equal-length arrays of
// tick times and intensities.
type ChannelEvents struct {
	Channel     uint32
	Times       []uint32
	Intensities []uint16
}

// EventListMessage is the egress record: the events found in one
// digitiser's frame.
type EventListMessage struct {
	DigitiserID uint8
	Metadata    FrameMetadata
	Channels    []ChannelEvents
}

// RunStart announces a new run.
type RunStart struct {
	Name       string
	Filename   string
	Instrument string
	Timestamp  int64
}

// RunStop announces the end of a run.
type RunStop struct {
	Name      string
	Timestamp int64
}

// Hello is the stream preamble a client sends after connecting: the
// consumer group it belongs to and the topic it wants.
type Hello struct {
	ConsumerGroup string
	Topic         string
}
