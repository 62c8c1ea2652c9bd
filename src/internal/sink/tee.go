// FILE: callwisp/src/internal/sink/tee.go
package sink

import (
	"errors"
	"fmt"

	"callwisp/src/internal/core"
)

// Tee writes every entry to each of its sinks in order. A failing sink does not stop
// delivery to the rest; failures are joined into the returned error.
type Tee struct {
	sinks []Sink
	counters
}

// NewTee creates a tee over sinks, skipping nils
func NewTee(sinks ...Sink) *Tee {
	t := &Tee{}
	for _, s := range sinks {
		if s != nil {
			t.sinks = append(t.sinks, s)
		}
	}
	t.startCounters()
	return t
}

func (t *Tee) Write(entry *core.LogEntry) error {
	var errs []error
	for i, s := range t.sinks {
		if err := safeWrite(s, entry); err != nil {
			errs = append(errs, fmt.Errorf("tee[%d]: %w", i, err))
		}
	}
	if len(errs) > 0 {
		t.failed()
		return errors.Join(errs...)
	}
	t.processed()
	return nil
}

// Sinks returns the wrapped sinks
func (t *Tee) Sinks() []Sink {
	return append([]Sink(nil), t.sinks...)
}

// Close closes every wrapped sink once
func (t *Tee) Close() error {
	return closeAll(t.sinks...)
}

func (t *Tee) GetStats() SinkStats {
	return t.stats("tee", map[string]any{
		"sinks": len(t.sinks),
	})
}
