package eventlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"
)

// CSVSink writes events as CSV rows, flushing after every row so a crashed
// session still leaves a readable file.
type CSVSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	closed bool
}

// NewCSVSink creates (or truncates) path and writes the header row.
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV log: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	return &CSVSink{file: f, writer: w}, nil
}

// Record implements Recorder.
func (s *CSVSink) Record(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("CSV sink is closed")
	}
	if err := s.writer.Write(ev.Row()); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}
	s.writer.Flush()
	return s.writer.Error()
}

// Close flushes and closes the file. Safe to call multiple times.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// WriteCSV writes the header and one row per event to w.
func WriteCSV(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, ev := range events {
		if err := cw.Write(ev.Row()); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a log written by CSVSink.
func ReadCSV(r io.Reader) ([]Event, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV log: %w", err)
	}
	return parseRows(rows)
}

// parseRows checks the header row and parses the rest.
func parseRows(rows [][]string) ([]Event, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("log is empty: missing header row")
	}
	for i, col := range header {
		if i >= len(rows[0]) || rows[0][i] != col {
			return nil, fmt.Errorf("unexpected header: column %d should be %q", i+1, col)
		}
	}

	events := make([]Event, 0, len(rows)-1)
	for i, row := range rows[1:] {
		ev, err := ParseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
