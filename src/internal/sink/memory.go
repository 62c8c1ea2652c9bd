// FILE: callwisp/src/internal/sink/memory.go
package sink

import (
	"sync"

	"callwisp/src/internal/core"
)

// MemorySink keeps the most recent entries in process memory
type MemorySink struct {
	mu      sync.RWMutex
	entries []*core.LogEntry
	limit   int
	closed  bool

	counters
}

// NewMemorySink creates a memory sink retaining at most limit entries (0 = unbounded)
func NewMemorySink(limit int) *MemorySink {
	m := &MemorySink{limit: limit}
	m.startCounters()
	return m
}

func (m *MemorySink) Write(entry *core.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.entries = append(m.entries, entry)
	if m.limit > 0 && len(m.entries) > m.limit {
		// Drop the oldest, reusing the backing array
		n := copy(m.entries, m.entries[len(m.entries)-m.limit:])
		clear(m.entries[n:])
		m.entries = m.entries[:n]
	}
	m.processed()
	return nil
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Entries returns a snapshot of retained entries, oldest first
func (m *MemorySink) Entries() []*core.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.LogEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of retained entries
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Closed reports whether Close was called
func (m *MemorySink) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Recent returns up to limit entries, newest first, optionally restricted to one level
func (m *MemorySink) Recent(level string, limit int) []*core.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if level != "" {
		level = core.NormalizeLevel(level)
	}

	var out []*core.LogEntry
	for i := len(m.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		e := m.entries[i]
		if level != "" && core.NormalizeLevel(e.Level) != level {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (m *MemorySink) GetStats() SinkStats {
	return m.stats("memory", map[string]any{
		"retained": m.Len(),
		"limit":    m.limit,
	})
}
