package simulation

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/linuxmatters/pulsetrace/internal/distrib"
)

// TextConstant is a string literal or an environment-variable lookup.
//
// JSON forms:
//
//	{ "text": "MyRun" }
//	{ "text-env": "RUN_NAME" }
type TextConstant struct {
	text   string
	envVar string
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TextConstant) UnmarshalJSON(data []byte) error {
	var raw struct {
		Text    *string `json:"text"`
		TextEnv *string `json:"text-env"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("text constant: %w", err)
	}
	switch {
	case raw.Text != nil:
		*t = TextConstant{text: *raw.Text}
	case raw.TextEnv != nil:
		*t = TextConstant{envVar: *raw.TextEnv}
	default:
		return fmt.Errorf("text constant: want text or text-env: %s", data)
	}
	return nil
}

// Value resolves the constant.
func (t TextConstant) Value() (string, error) {
	if t.envVar == "" {
		return t.text, nil
	}
	v, ok := os.LookupEnv(t.envVar)
	if !ok {
		return "", fmt.Errorf("%w: %q", distrib.ErrEnvVarUnset, t.envVar)
	}
	return v, nil
}

// RunStartAction announces a new run to the downstream consumers.
type RunStartAction struct {
	Name       TextConstant `json:"name"`
	Filename   TextConstant `json:"filename"`
	Instrument TextConstant `json:"instrument"`
}

// RunStopAction announces the end of the current run.
type RunStopAction struct {
	Name TextConstant `json:"name"`
}

// TimestampSpec moves the engine's frame timestamp: to the wall clock, or
// relatively by a millisecond delta.
//
// JSON forms:
//
//	"now"
//	{ "advance-by-ms": 5 }
//	{ "rewind-by-ms": 5 }
type TimestampSpec struct {
	now         bool
	advanceByMs int
	rewindByMs  int
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TimestampSpec) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag != "now" {
			return fmt.Errorf("set-timestamp: unknown tag %q", tag)
		}
		*t = TimestampSpec{now: true}
		return nil
	}
	var raw struct {
		AdvanceByMs *int `json:"advance-by-ms"`
		RewindByMs  *int `json:"rewind-by-ms"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("set-timestamp: %w", err)
	}
	switch {
	case raw.AdvanceByMs != nil:
		*t = TimestampSpec{advanceByMs: *raw.AdvanceByMs}
	case raw.RewindByMs != nil:
		*t = TimestampSpec{rewindByMs: *raw.RewindByMs}
	default:
		return fmt.Errorf("set-timestamp: want \"now\", advance-by-ms or rewind-by-ms: %s", data)
	}
	return nil
}

// FrameLoop runs its nested schedule once per frame over an inclusive frame
// range.
type FrameLoop struct {
	Start    distrib.IntExpr `json:"start"`
	End      distrib.IntExpr `json:"end"`
	Schedule []Action        `json:"schedule"`
}

// SendTraceAction generates traces from the referenced event list and sends
// one trace message per digitiser.
type SendTraceAction struct {
	EventListIndex int `json:"event-list-index"`
}

// SendEventListAction samples the referenced event list and sends the
// resulting event list message per digitiser.
type SendEventListAction struct {
	EventListIndex int `json:"event-list-index"`
}

// Action is one step of the simulation schedule. Exactly one field is set.
//
// JSON form is externally tagged, e.g.
//
//	{ "wait-ms": 100 }
//	{ "frame-loop": { "start": {...}, "end": {...}, "schedule": [...] } }
type Action struct {
	SendRunStart           *RunStartAction      `json:"send-run-start,omitempty"`
	SendRunStop            *RunStopAction       `json:"send-run-stop,omitempty"`
	SetTimestamp           *TimestampSpec       `json:"set-timestamp,omitempty"`
	WaitMs                 *int                 `json:"wait-ms,omitempty"`
	FrameLoop              *FrameLoop           `json:"frame-loop,omitempty"`
	SendDigitiserTrace     *SendTraceAction     `json:"send-digitiser-trace,omitempty"`
	SendDigitiserEventList *SendEventListAction `json:"send-digitiser-event-list,omitempty"`
}
