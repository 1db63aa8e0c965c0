package eventlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Serialization helpers for converting events to log rows and Redis hashes.
//
// A row is the string rendering used by every sink. A Redis hash is the same
// row keyed by column name, so all sinks agree on formatting.

var header = []string{
	"timestamp",
	"sessionTime",
	"trialTime",
	"eventType",
	"sessionId",
	"trialIndex",
	"coherence",
	"targetIntensity",
	"quadrant",
	"frameNumber",
	"seed",
	"stimulusOn",
	"response",
	"reactionTime",
	"withinRTWindow",
}

// Header returns the column names in contract order.
func Header() []string {
	out := make([]string, len(header))
	copy(out, header)
	return out
}

// Row renders the event in Header order. Frame-only columns are blank on
// other rows; reactionTime is blank when absent.
func (e Event) Row() []string {
	frameNumber, seed, stimulusOn := "", "", ""
	if e.Type == EventFrame {
		frameNumber = strconv.FormatUint(e.FrameNumber, 10)
		seed = strconv.FormatUint(e.Seed, 10)
		stimulusOn = strconv.FormatBool(e.StimulusOn)
	}

	rt := ""
	if e.ReactionTime != nil {
		rt = formatSeconds(*e.ReactionTime)
	}

	return []string{
		formatTimestamp(e.Timestamp),
		formatSeconds(e.SessionTime),
		formatSeconds(e.TrialTime),
		string(e.Type),
		e.SessionID,
		strconv.Itoa(e.TrialIndex),
		strconv.FormatFloat(e.Coherence, 'f', -1, 64),
		strconv.FormatFloat(e.TargetIntensity, 'f', -1, 64),
		e.Quadrant,
		frameNumber,
		seed,
		stimulusOn,
		e.Response,
		rt,
		strconv.FormatBool(e.WithinRTWindow),
	}
}

// ParseRow converts a row in Header order back to an Event.
func ParseRow(row []string) (Event, error) {
	if len(row) != len(header) {
		return Event{}, fmt.Errorf("expected %d columns, got %d", len(header), len(row))
	}

	var (
		ev  Event
		err error
	)

	if ev.Timestamp, err = parseTimestamp(row[0]); err != nil {
		return Event{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	if ev.SessionTime, err = parseFloat(row[1]); err != nil {
		return Event{}, fmt.Errorf("invalid sessionTime: %w", err)
	}
	if ev.TrialTime, err = parseFloat(row[2]); err != nil {
		return Event{}, fmt.Errorf("invalid trialTime: %w", err)
	}
	ev.Type = EventType(row[3])
	ev.SessionID = row[4]
	if ev.TrialIndex, err = strconv.Atoi(row[5]); err != nil {
		return Event{}, fmt.Errorf("invalid trialIndex: %w", err)
	}
	if ev.Coherence, err = parseFloat(row[6]); err != nil {
		return Event{}, fmt.Errorf("invalid coherence: %w", err)
	}
	if ev.TargetIntensity, err = parseFloat(row[7]); err != nil {
		return Event{}, fmt.Errorf("invalid targetIntensity: %w", err)
	}
	ev.Quadrant = row[8]
	if row[9] != "" {
		if ev.FrameNumber, err = strconv.ParseUint(row[9], 10, 64); err != nil {
			return Event{}, fmt.Errorf("invalid frameNumber: %w", err)
		}
	}
	if row[10] != "" {
		if ev.Seed, err = strconv.ParseUint(row[10], 10, 64); err != nil {
			return Event{}, fmt.Errorf("invalid seed: %w", err)
		}
	}
	if row[11] != "" {
		if ev.StimulusOn, err = strconv.ParseBool(row[11]); err != nil {
			return Event{}, fmt.Errorf("invalid stimulusOn: %w", err)
		}
	}
	ev.Response = row[12]
	if row[13] != "" {
		rt, err := parseFloat(row[13])
		if err != nil {
			return Event{}, fmt.Errorf("invalid reactionTime: %w", err)
		}
		ev.ReactionTime = &rt
	}
	if row[14] != "" {
		if ev.WithinRTWindow, err = strconv.ParseBool(row[14]); err != nil {
			return Event{}, fmt.Errorf("invalid withinRTWindow: %w", err)
		}
	}

	return ev, nil
}

// EventToHash converts an event to the Redis hash form (column -> cell).
func EventToHash(e Event) map[string]interface{} {
	row := e.Row()
	hash := make(map[string]interface{}, len(header))
	for i, col := range header {
		hash[col] = row[i]
	}
	return hash
}

// HashToEvent converts a Redis hash back to an event. Missing columns are
// treated as blank cells.
func HashToEvent(hash map[string]string) (Event, error) {
	row := make([]string, len(header))
	for i, col := range header {
		row[i] = hash[col]
	}
	return ParseRow(row)
}

// formatTimestamp renders Unix seconds with microsecond precision.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "0.000000"
	}
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

func parseTimestamp(s string) (time.Time, error) {
	secStr, fracStr, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if sec == 0 && strings.Trim(fracStr, "0") == "" {
		return time.Time{}, nil
	}

	var micros int64
	if fracStr != "" {
		if len(fracStr) > 6 {
			fracStr = fracStr[:6]
		}
		fracStr += strings.Repeat("0", 6-len(fracStr))
		if micros, err = strconv.ParseInt(fracStr, 10, 64); err != nil {
			return time.Time{}, err
		}
	}
	return time.Unix(sec, micros*1000), nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
