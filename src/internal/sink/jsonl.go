// FILE: callwisp/src/internal/sink/jsonl.go
package sink

import (
	"fmt"
	"os"

	"callwisp/src/internal/core"

	"github.com/goccy/go-json"
)

// JSONSink appends one JSON object per line (JSON Lines) for log shippers
type JSONSink struct {
	out      *appendFile
	pretty   bool
	delegate Sink

	counters
}

// NewJSONSink creates a JSON Lines sink. delegate may be nil.
func NewJSONSink(path string, pretty bool, delegate Sink) (*JSONSink, error) {
	out, err := newAppendFile(path)
	if err != nil {
		return nil, fmt.Errorf("json sink: %w", err)
	}
	s := &JSONSink{out: out, pretty: pretty, delegate: delegate}
	s.startCounters()
	return s, nil
}

type jsonLine struct {
	core.Record
	Extra map[string]any `json:"extra,omitempty"`
}

// Write appends the entry and forwards it to the delegate
func (s *JSONSink) Write(entry *core.LogEntry) error {
	line := jsonLine{Record: entry.Record(), Extra: jsonExtra(entry)}

	var data []byte
	var err error
	if s.pretty {
		data, err = json.MarshalIndent(line, "", "  ")
	} else {
		data, err = json.Marshal(line)
	}
	if err != nil {
		s.failed()
		return fmt.Errorf("json sink: %w", err)
	}

	err = s.out.write(func(f *os.File, _ bool) error {
		_, err := f.Write(append(data, '\n'))
		return err
	})
	if err != nil {
		s.failed()
		return fmt.Errorf("json sink: %w", err)
	}
	s.processed()

	if s.delegate != nil {
		return s.delegate.Write(entry)
	}
	return nil
}

// jsonExtra keeps primitives as-is and renders anything else with Repr
func jsonExtra(entry *core.LogEntry) map[string]any {
	extra := entry.Extra.Map()
	if len(extra) == 0 {
		return nil
	}
	for k, v := range extra {
		switch v.(type) {
		case nil, string, bool, int, int64, float64:
		default:
			extra[k] = core.Repr(v)
		}
	}
	return extra
}

// Close closes the file and the delegate
func (s *JSONSink) Close() error {
	err := s.out.close()
	if s.delegate != nil {
		if derr := safeClose(s.delegate); derr != nil && err == nil {
			err = derr
		}
	}
	return err
}

// GetStats returns sink statistics
func (s *JSONSink) GetStats() SinkStats {
	return s.stats("json", map[string]any{
		"path":   s.out.path,
		"pretty": s.pretty,
	})
}
