// FILE: callwisp/src/internal/sink/csv.go
package sink

import (
	"encoding/csv"
	"fmt"
	"os"

	"callwisp/src/internal/core"
)

// CSVSink appends one row per entry, writing the column header to an empty file
type CSVSink struct {
	out *appendFile

	counters
}

// NewCSVSink creates a CSV sink writing to path
func NewCSVSink(path string) (*CSVSink, error) {
	out, err := newAppendFile(path)
	if err != nil {
		return nil, fmt.Errorf("csv sink: %w", err)
	}
	s := &CSVSink{out: out}
	s.startCounters()
	return s, nil
}

// Write appends the entry's record as a row
func (s *CSVSink) Write(entry *core.LogEntry) error {
	row := entry.Record().Strings()
	err := s.out.write(func(f *os.File, empty bool) error {
		w := csv.NewWriter(f)
		if empty {
			if err := w.Write(core.RecordColumns); err != nil {
				return err
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
		w.Flush()
		return w.Error()
	})
	if err != nil {
		s.failed()
		return fmt.Errorf("csv sink: %w", err)
	}
	s.processed()
	return nil
}

// Close closes the underlying file
func (s *CSVSink) Close() error {
	return s.out.close()
}

// GetStats returns sink statistics
func (s *CSVSink) GetStats() SinkStats {
	return s.stats("csv", map[string]any{"path": s.out.path})
}
