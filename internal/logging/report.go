package logging

import (
	"fmt"
	"strings"
	"time"
)

// DetectorSummary is what the detector loop accumulates for its end-of-run
// report.
type DetectorSummary struct {
	Started           time.Time
	Finished          time.Time
	MessagesReceived  int
	MessagesProcessed int
	EventsFound       int
	DecodeFailures    int
	PublishFailures   int
}

// Render formats the summary as an aligned table.
func (s DetectorSummary) Render() string {
	table := &MetricTable{Headers: []string{"Count", "Rate"}}
	elapsed := s.Finished.Sub(s.Started).Seconds()
	rate := func(n int) string {
		if elapsed <= 0 {
			return MissingValue
		}
		return formatMetric(float64(n)/elapsed, 1) + "/s"
	}

	table.AddRow("Messages received", []string{formatCount(s.MessagesReceived), rate(s.MessagesReceived)}, "", "")
	table.AddRow("Messages processed", []string{formatCount(s.MessagesProcessed), rate(s.MessagesProcessed)}, "", "")
	table.AddRow("Events found", []string{formatCount(s.EventsFound), rate(s.EventsFound)}, "", interpretEvents(s))
	table.AddRow("Decode failures", []string{formatCount(s.DecodeFailures), ""}, "", "")
	table.AddRow("Publish failures", []string{formatCount(s.PublishFailures), ""}, "", "")

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run of %s\n\n", s.Finished.Sub(s.Started).Round(time.Millisecond)))
	sb.WriteString(table.String())
	return sb.String()
}

// interpretEvents flags runs whose event yield suggests a misconfigured
// detector.
func interpretEvents(s DetectorSummary) string {
	if s.MessagesProcessed == 0 {
		return ""
	}
	perMessage := float64(s.EventsFound) / float64(s.MessagesProcessed)
	switch {
	case perMessage == 0:
		return "no events - check polarity and thresholds"
	case perMessage < 1:
		return "sparse - threshold may be high"
	default:
		return ""
	}
}

// SimulationSummary is what the simulate command accumulates.
type SimulationSummary struct {
	Started       time.Time
	Finished      time.Time
	Frames        int
	MessagesSent  int
	FrameFailures int
}

// Render formats the summary as an aligned table.
func (s SimulationSummary) Render() string {
	table := &MetricTable{Headers: []string{"Count"}}
	table.AddRow("Frames simulated", []string{formatCount(s.Frames)}, "", "")
	table.AddRow("Messages sent", []string{formatCount(s.MessagesSent)}, "", "")
	interpretation := ""
	if s.FrameFailures > 0 {
		interpretation = "frames abandoned by sampling errors"
	}
	table.AddRow("Frame failures", []string{formatCount(s.FrameFailures)}, "", interpretation)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Simulation of %s\n\n", s.Finished.Sub(s.Started).Round(time.Millisecond)))
	sb.WriteString(table.String())
	return sb.String()
}
