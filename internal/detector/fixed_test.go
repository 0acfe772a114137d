package detector

import (
	"testing"

	"github.com/linuxmatters/pulsetrace/internal/pipeline"
)

// fixedEvents runs samples through the fixed-threshold detector at unit
// sample spacing.
func fixedEvents(t *testing.T, samples []uint16, params ThresholdParams) []pipeline.Event[ThresholdData] {
	t.Helper()
	raw := pipeline.RawTrace(samples, 1, 1, 0)
	return pipeline.Collect(pipeline.DetectEvents(raw, NewThresholdDetector(params)))
}

func TestFixedThresholdEmptyInput(t *testing.T) {
	events := fixedEvents(t, nil, ThresholdParams{Threshold: 3, Duration: 2})
	if len(events) != 0 {
		t.Fatalf("got %d events from empty input, want 0", len(events))
	}
}

func TestFixedThresholdDetection(t *testing.T) {
	data := []uint16{0, 1, 2, 5, 6, 4, 2, 7, 8, 1}
	events := fixedEvents(t, data, ThresholdParams{Threshold: 3, Duration: 2, CoolOff: 0})

	want := []pipeline.Event[ThresholdData]{
		{Time: 3, Data: ThresholdData{PulseHeight: 6}},
		{Time: 7, Data: ThresholdData{PulseHeight: 8}},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: got %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestFixedThresholdDurationOne(t *testing.T) {
	data := []uint16{0, 5, 0, 5, 0}
	events := fixedEvents(t, data, ThresholdParams{Threshold: 3, Duration: 1})
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].Time != 1 || events[1].Time != 3 {
		t.Errorf("event times: got %v and %v, want 1 and 3", events[0].Time, events[1].Time)
	}
}

func TestFixedThresholdCoolOff(t *testing.T) {
	// All three excursions exceed the threshold, but the second falls inside
	// the cool-off shadow of the first.
	data := []uint16{0, 5, 5, 0, 5, 5, 0, 0, 5, 5}
	events := fixedEvents(t, data, ThresholdParams{Threshold: 3, Duration: 2, CoolOff: 4})
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].Time != 1 || events[1].Time != 8 {
		t.Errorf("event times: got %v and %v, want 1 and 8", events[0].Time, events[1].Time)
	}
}

func TestFixedThresholdUnfinishedExcursionDiscarded(t *testing.T) {
	// The trace ends while armed but before the duration is met.
	data := []uint16{0, 0, 5}
	events := fixedEvents(t, data, ThresholdParams{Threshold: 3, Duration: 2})
	if len(events) != 0 {
		t.Fatalf("got %d events, want 0: %+v", len(events), events)
	}
}

func TestFixedThresholdNegativePolarity(t *testing.T) {
	// A downward pulse under a 100-count baseline, flipped positive by the
	// polarity sign.
	data := []uint16{100, 100, 90, 90, 100}
	raw := pipeline.RawTrace(data, 1, -1, 100)
	events := pipeline.Collect(pipeline.DetectEvents(raw,
		NewThresholdDetector(ThresholdParams{Threshold: 5, Duration: 2})))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(events), events)
	}
	if events[0].Time != 2 || events[0].Data.PulseHeight != 10 {
		t.Errorf("got %+v, want time 2 height 10", events[0])
	}
}
