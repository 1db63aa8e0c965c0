package eventlog

import (
	"context"
	"fmt"
	"time"
)

// EventType identifies the kind of row in the event log.
type EventType string

const (
	// EventTrialStart marks the beginning (or extension) of a trial.
	EventTrialStart EventType = "trial_start"

	// EventFrame records one generated stimulus frame and its seed.
	EventFrame EventType = "frame"

	// EventResponse records a classified response.
	EventResponse EventType = "response"

	// EventTrialEnd records the final classification of a trial.
	EventTrialEnd EventType = "trial_end"
)

// Validate checks if the event type is one of the defined values.
func (t EventType) Validate() error {
	switch t {
	case EventTrialStart, EventFrame, EventResponse, EventTrialEnd:
		return nil
	default:
		return fmt.Errorf("invalid event type: %q", t)
	}
}

// Response classifications written to the response column.
const (
	ResponseHit        = "hit"
	ResponseMiss       = "miss"
	ResponseFalseAlarm = "false_alarm"
)

// Event is one row of the session log. Times are seconds.
type Event struct {
	Timestamp       time.Time `json:"timestamp"`
	SessionTime     float64   `json:"sessionTime"`
	TrialTime       float64   `json:"trialTime"`
	Type            EventType `json:"eventType"`
	SessionID       string    `json:"sessionId"`
	TrialIndex      int       `json:"trialIndex"`
	Coherence       float64   `json:"coherence"`
	TargetIntensity float64   `json:"targetIntensity"`
	Quadrant        string    `json:"quadrant"`
	FrameNumber     uint64    `json:"frameNumber,omitempty"`
	Seed            uint64    `json:"seed,omitempty"`
	StimulusOn      bool      `json:"stimulusOn"`
	Response        string    `json:"response,omitempty"`
	ReactionTime    *float64  `json:"reactionTime,omitempty"`
	WithinRTWindow  bool      `json:"withinRTWindow"`
}

// Validate checks required fields.
func (e *Event) Validate() error {
	if err := e.Type.Validate(); err != nil {
		return err
	}
	if e.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if e.TrialIndex < 0 {
		return fmt.Errorf("trial index must be non-negative, got %d", e.TrialIndex)
	}

	if e.Type == EventTrialEnd {
		switch e.Response {
		case ResponseHit, ResponseMiss, ResponseFalseAlarm:
		default:
			return fmt.Errorf("trial_end requires response hit, miss or false_alarm, got %q", e.Response)
		}
	}

	return nil
}

// Recorder receives events. Implementations must not retain or mutate the
// caller's memory beyond the call; Event is passed by value.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Sink is a Recorder that owns resources.
type Sink interface {
	Recorder
	Close() error
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, ev Event) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
