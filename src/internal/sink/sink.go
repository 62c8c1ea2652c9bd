// FILE: callwisp/src/internal/sink/sink.go
package sink

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"callwisp/src/internal/core"
)

// Sink records or forwards log entries
type Sink interface {
	// Write records one entry. Anticipated delivery failures are contained by the sink;
	// a returned error reports a failure the caller should know about.
	Write(entry *core.LogEntry) error

	// Close flushes owned state and releases resources. Safe to call more than once.
	Close() error
}

// StatsProvider is implemented by sinks that expose runtime statistics
type StatsProvider interface {
	GetStats() SinkStats
}

// SinkStats contains statistics about a sink
type SinkStats struct {
	Type           string
	TotalProcessed uint64
	TotalFailed    uint64
	StartTime      time.Time
	LastProcessed  time.Time
	Details        map[string]any
}

// counters is the shared statistics block embedded by sinks
type counters struct {
	totalProcessed atomic.Uint64
	totalFailed    atomic.Uint64
	lastProcessed  atomic.Int64 // unix nanos
	startTime      time.Time
}

func (c *counters) startCounters() {
	c.startTime = time.Now()
}

func (c *counters) processed() {
	c.totalProcessed.Add(1)
	c.lastProcessed.Store(time.Now().UnixNano())
}

func (c *counters) failed() {
	c.totalFailed.Add(1)
}

func (c *counters) stats(kind string, details map[string]any) SinkStats {
	var lastProc time.Time
	if ns := c.lastProcessed.Load(); ns > 0 {
		lastProc = time.Unix(0, ns)
	}
	return SinkStats{
		Type:           kind,
		TotalProcessed: c.totalProcessed.Load(),
		TotalFailed:    c.totalFailed.Load(),
		StartTime:      c.startTime,
		LastProcessed:  lastProc,
		Details:        details,
	}
}

// Func adapts a function to the Sink interface. Close is a no-op.
type Func func(entry *core.LogEntry) error

func (f Func) Write(entry *core.LogEntry) error { return f(entry) }

func (f Func) Close() error { return nil }

// safeWrite calls Write and converts a panic into an error
func safeWrite(s Sink, entry *core.LogEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return s.Write(entry)
}

// safeClose calls Close and converts a panic into an error
func safeClose(s Sink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic on close: %v", r)
		}
	}()
	return s.Close()
}

// closeAll closes each distinct sink once, in order, skipping nils
func closeAll(sinks ...Sink) error {
	seen := make(map[any]bool, len(sinks))
	var errs []error
	for _, s := range sinks {
		if s == nil {
			continue
		}
		id := identity(s)
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := safeClose(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// identity returns a map key for s. Function and map sinks are keyed by pointer,
// other non-comparable values are never considered equal.
func identity(s Sink) any {
	t := reflect.TypeOf(s)
	if t.Comparable() {
		return s
	}
	switch t.Kind() {
	case reflect.Func, reflect.Map, reflect.Slice:
		return reflect.ValueOf(s).Pointer()
	}
	return new(byte)
}

// Same reports whether a and b are the same sink instance
func Same(a, b Sink) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return identity(a) == identity(b)
}

// Helper functions for option map conversion
func toInt(v any) (int64, bool) {
	return core.ToInt(v)
}

func toFloat(v any) (float64, bool) {
	return core.ToFloat(v)
}

func toBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func toStrings(v any) ([]string, bool) {
	switch val := v.(type) {
	case []string:
		return val, true
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		return []string{val}, true
	default:
		return nil, false
	}
}
