package eventlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/xuri/excelize/v2"
)

// XLSXSheet is the worksheet holding the event rows.
const XLSXSheet = "events"

// XLSXSink buffers events into a workbook and saves it on Close.
type XLSXSink struct {
	mu     sync.Mutex
	path   string
	file   *excelize.File
	next   int // next row number (1-based)
	closed bool
}

// NewXLSXSink prepares a workbook with the header row. Nothing is written to
// path until Close.
func NewXLSXSink(path string) (*XLSXSink, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", XLSXSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create worksheet: %w", err)
	}

	s := &XLSXSink{path: path, file: f, next: 1}
	if err := s.writeRow(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write XLSX header: %w", err)
	}
	return s, nil
}

// Record implements Recorder.
func (s *XLSXSink) Record(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("XLSX sink is closed")
	}
	return s.writeRow(ev.Row())
}

func (s *XLSXSink) writeRow(row []string) error {
	cell, err := excelize.CoordinatesToCellName(1, s.next)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	if err := s.file.SetSheetRow(XLSXSheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", s.next, err)
	}
	s.next++
	return nil
}

// Close saves the workbook to disk. Safe to call multiple times.
func (s *XLSXSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	defer s.file.Close()

	if err := s.file.SaveAs(s.path); err != nil {
		return fmt.Errorf("failed to save XLSX log: %w", err)
	}
	return nil
}

// ReadXLSX parses a workbook written by XLSXSink.
func ReadXLSX(path string) ([]Event, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX log: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(XLSXSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s sheet: %w", XLSXSheet, err)
	}

	// GetRows drops trailing empty cells; pad back to full width.
	for i, row := range rows {
		for len(row) < len(header) {
			row = append(row, "")
		}
		rows[i] = row
	}
	return parseRows(rows)
}
