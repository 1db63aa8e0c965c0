// Package eventview renders logged session events for the CLI.
package eventview

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/dyluth/glimpse/pkg/eventlog"
)

// FormatTable writes events as a formatted table to the provided writer.
// Columns: SESSION T, TRIAL, EVENT, COH, QUAD, FRAME, SEED, DETAIL.
// Returns the number of events formatted.
func FormatTable(w io.Writer, events []eventlog.Event, sessionID string) int {
	if len(events) == 0 {
		fmt.Fprintf(w, "No events found for session '%s'\n", sessionID)
		return 0
	}

	fmt.Fprintf(w, "Events for session '%s':\n\n", sessionID)

	fmt.Fprintf(w, "%-10s %-5s %-11s %-5s %-12s %-7s %-20s %s\n",
		"TIME", "TRIAL", "EVENT", "COH", "QUADRANT", "FRAME", "SEED", "DETAIL")
	fmt.Fprintf(w, "%-10s %-5s %-11s %-5s %-12s %-7s %-20s %s\n",
		"----------", "-----", "-----------", "-----", "------------", "-------", "--------------------", "--------------------")

	for _, ev := range events {
		fmt.Fprintf(w, "%-10s %-5d %-11s %-5s %-12s %-7s %-20s %s\n",
			formatSessionTime(ev.SessionTime),
			ev.TrialIndex,
			string(ev.Type),
			formatCoherence(ev.Coherence),
			formatQuadrant(ev.Quadrant),
			formatFrame(ev),
			formatSeed(ev),
			formatDetail(ev),
		)
	}

	countMsg := "event"
	if len(events) != 1 {
		countMsg = "events"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(events), countMsg)

	return len(events)
}

// FormatJSONL writes events as line-delimited JSON (JSONL) to the provided writer.
// Each event is written as a single JSON object on its own line.
func FormatJSONL(w io.Writer, events []eventlog.Event) error {
	for _, ev := range events {
		if err := writeJSONLine(w, ev); err != nil {
			return err
		}
	}
	return nil
}

// FormatCSV writes events with the log's own column contract, header first.
func FormatCSV(w io.Writer, events []eventlog.Event) error {
	if err := eventlog.WriteCSV(w, events); err != nil {
		return fmt.Errorf("failed to write CSV output: %w", err)
	}
	return nil
}

// FormatSingleJSON writes one event as pretty-printed JSON.
func FormatSingleJSON(w io.Writer, ev eventlog.Event) error {
	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// FormatLine writes one event as a compact human-readable line for live
// streaming.
func FormatLine(w io.Writer, ev eventlog.Event) {
	ts := ev.Timestamp.Format("15:04:05.000")
	switch ev.Type {
	case eventlog.EventTrialStart:
		fmt.Fprintf(w, "[%s] ▶ trial %d started: coherence=%s quadrant=%s\n",
			ts, ev.TrialIndex, formatCoherence(ev.Coherence), formatQuadrant(ev.Quadrant))
	case eventlog.EventFrame:
		marker := "·"
		if ev.StimulusOn {
			marker = "◆"
		}
		fmt.Fprintf(w, "[%s] %s frame %d seed=%d\n", ts, marker, ev.FrameNumber, ev.Seed)
	case eventlog.EventResponse:
		fmt.Fprintf(w, "[%s] ✋ trial %d response: %s\n", ts, ev.TrialIndex, formatDetail(ev))
	case eventlog.EventTrialEnd:
		fmt.Fprintf(w, "[%s] ■ trial %d ended: %s\n", ts, ev.TrialIndex, formatDetail(ev))
	default:
		fmt.Fprintf(w, "[%s] %s trial %d\n", ts, ev.Type, ev.TrialIndex)
	}
}

func writeJSONLine(w io.Writer, ev eventlog.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event to JSON: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
		return fmt.Errorf("failed to write JSONL output: %w", err)
	}
	return nil
}

// formatSessionTime shows seconds since session start with millisecond precision.
func formatSessionTime(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64) + "s"
}

func formatCoherence(c float64) string {
	return strconv.FormatFloat(c, 'f', 2, 64)
}

// formatQuadrant returns "-" for rows without a quadrant.
func formatQuadrant(q string) string {
	if q == "" {
		return "-"
	}
	return q
}

// formatFrame and formatSeed only apply to frame rows.
func formatFrame(ev eventlog.Event) string {
	if ev.Type != eventlog.EventFrame {
		return "-"
	}
	return strconv.FormatUint(ev.FrameNumber, 10)
}

func formatSeed(ev eventlog.Event) string {
	if ev.Type != eventlog.EventFrame {
		return "-"
	}
	return strconv.FormatUint(ev.Seed, 10)
}

// formatDetail summarizes the response columns: outcome, RT in ms and
// whether the response fell inside the RT window.
func formatDetail(ev eventlog.Event) string {
	switch ev.Type {
	case eventlog.EventFrame:
		if ev.StimulusOn {
			return "stimulus"
		}
		return "noise"
	case eventlog.EventResponse, eventlog.EventTrialEnd:
		detail := ev.Response
		if ev.ReactionTime != nil {
			detail += fmt.Sprintf(" rt=%.0fms", *ev.ReactionTime*1000)
		}
		if ev.WithinRTWindow {
			detail += " (in window)"
		}
		return detail
	default:
		return "-"
	}
}
