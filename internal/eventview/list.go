package eventview

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/dyluth/glimpse/pkg/eventlog"
)

// OutputFormat specifies how to format event output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table (list) or one line per event (stream)
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete events as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"

	// OutputFormatCSV outputs the log's own CSV columns
	OutputFormatCSV OutputFormat = "csv"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputFormatDefault, OutputFormatJSONL, OutputFormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format: %s", s)
	}
}

// FilterCriteria defines filtering options for event listing.
// All filters are ANDed together.
type FilterCriteria struct {
	Since    time.Time // zero = no filter
	Until    time.Time // zero = no filter
	TypeGlob string    // glob pattern for eventType, empty = no filter
	Trial    int       // exact trialIndex, 0 = no filter
	Frames   bool      // include frame rows; the table omits them by default
}

// Matches returns true if the event matches all filter criteria.
func (fc *FilterCriteria) Matches(ev eventlog.Event) bool {
	if !fc.Since.IsZero() && ev.Timestamp.Before(fc.Since) {
		return false
	}
	if !fc.Until.IsZero() && ev.Timestamp.After(fc.Until) {
		return false
	}

	if fc.TypeGlob != "" {
		matched, err := filepath.Match(fc.TypeGlob, string(ev.Type))
		if err != nil || !matched {
			return false
		}
	} else if !fc.Frames && ev.Type == eventlog.EventFrame {
		return false
	}

	if fc.Trial > 0 && ev.TrialIndex != fc.Trial {
		return false
	}

	return true
}

// Filter returns the matching events in chronological order. Events with
// equal timestamps keep their log order.
func Filter(events []eventlog.Event, filters *FilterCriteria) []eventlog.Event {
	out := make([]eventlog.Event, 0, len(events))
	for _, ev := range events {
		if filters != nil && !filters.Matches(ev) {
			continue
		}
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// ListEvents filters events and writes them in the requested format.
func ListEvents(w io.Writer, events []eventlog.Event, sessionID string, format OutputFormat, filters *FilterCriteria) error {
	selected := Filter(events, filters)

	switch format {
	case OutputFormatDefault:
		FormatTable(w, selected, sessionID)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, selected); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	case OutputFormatCSV:
		return FormatCSV(w, selected)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
