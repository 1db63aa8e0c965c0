package eventview

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dyluth/glimpse/pkg/eventlog"
)

// Source is a live event feed, such as an eventlog.Subscription.
type Source interface {
	Events() <-chan eventlog.Event
	Errors() <-chan error
}

// StreamEvents writes events from src as they arrive until ctx is cancelled
// or the source closes. Malformed messages are reported to stderr and
// skipped. CSV output is not supported for streams.
func StreamEvents(ctx context.Context, src Source, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	if format != OutputFormatDefault && format != OutputFormatJSONL {
		return fmt.Errorf("unsupported stream format: %s", format)
	}

	errs := src.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(os.Stderr, "⚠️  Skipping malformed event: %v\n", err)

		case ev, ok := <-src.Events():
			if !ok {
				return nil
			}
			if filters != nil && !filters.Matches(ev) {
				continue
			}

			if format == OutputFormatJSONL {
				if err := writeJSONLine(w, ev); err != nil {
					return err
				}
				continue
			}
			FormatLine(w, ev)
		}
	}
}
