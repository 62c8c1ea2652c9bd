// FILE: callwisp/src/internal/sink/ring.go
package sink

import (
	"sync"

	"callwisp/src/internal/core"

	"github.com/lixenwraith/log"
)

// RingOptions configures RingBufferSink
type RingOptions struct {
	Capacity      int
	TriggerLevels []string

	// When set, a trigger flushes only the retained context, not the trigger itself
	ExcludeTrigger bool

	// When set, Close writes retained context to the delegate instead of discarding it
	FlushOnClose bool
}

// DefaultRingOptions returns the ring buffer defaults
func DefaultRingOptions() RingOptions {
	return RingOptions{
		Capacity:      1000,
		TriggerLevels: []string{core.LevelError, core.LevelCritical},
	}
}

// RingBufferSink retains the last Capacity entries and only forwards them when a trigger
// level arrives, so failures are reported with the events leading up to them.
// Entries evicted from a full ring are lost.
type RingBufferSink struct {
	delegate Sink
	opts     RingOptions
	triggers map[string]bool
	logger   *log.Logger

	// Holding mu through delivery keeps flushes in FIFO order
	mu      sync.Mutex
	ring    []*core.LogEntry
	head    int // index of the oldest entry
	size    int
	closed  bool
	flushes uint64
	evicted uint64

	counters
}

// NewRingBufferSink wraps delegate. Capacity <= 0 and empty trigger levels use the defaults.
func NewRingBufferSink(delegate Sink, opts RingOptions, logger *log.Logger) *RingBufferSink {
	defaults := DefaultRingOptions()
	if opts.Capacity <= 0 {
		opts.Capacity = defaults.Capacity
	}
	if len(opts.TriggerLevels) == 0 {
		opts.TriggerLevels = defaults.TriggerLevels
	}

	triggers := make(map[string]bool, len(opts.TriggerLevels))
	for _, l := range opts.TriggerLevels {
		triggers[core.NormalizeLevel(l)] = true
	}

	r := &RingBufferSink{
		delegate: delegate,
		opts:     opts,
		triggers: triggers,
		logger:   logger,
		ring:     make([]*core.LogEntry, opts.Capacity),
	}
	r.startCounters()
	return r
}

func (r *RingBufferSink) Write(entry *core.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.processed()

	if !r.triggers[core.NormalizeLevel(entry.Level)] {
		r.push(entry)
		return nil
	}

	r.flushLocked()
	if !r.opts.ExcludeTrigger {
		r.deliver(entry)
	}
	r.flushes++
	return nil
}

// push appends entry, overwriting the oldest when full
func (r *RingBufferSink) push(entry *core.LogEntry) {
	capacity := len(r.ring)
	if r.size < capacity {
		r.ring[(r.head+r.size)%capacity] = entry
		r.size++
		return
	}
	r.ring[r.head] = entry
	r.head = (r.head + 1) % capacity
	r.evicted++
}

// flushLocked writes buffered entries oldest first and clears the ring
func (r *RingBufferSink) flushLocked() {
	capacity := len(r.ring)
	for i := 0; i < r.size; i++ {
		idx := (r.head + i) % capacity
		r.deliver(r.ring[idx])
		r.ring[idx] = nil
	}
	r.head = 0
	r.size = 0
}

func (r *RingBufferSink) deliver(entry *core.LogEntry) {
	if err := safeWrite(r.delegate, entry); err != nil {
		r.failed()
		if r.logger != nil {
			r.logger.Warn("msg", "Ring buffer delivery failed",
				"component", "ring_sink",
				"function", entry.FunctionName,
				"error", err)
		}
	}
}

// Buffered returns the current ring depth
func (r *RingBufferSink) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// FlushCount returns the number of trigger flushes
func (r *RingBufferSink) FlushCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

// Capacity returns the ring size
func (r *RingBufferSink) Capacity() int {
	return len(r.ring)
}

// Close discards retained entries, or writes them first when FlushOnClose is set,
// then closes the delegate
func (r *RingBufferSink) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true

	if r.opts.FlushOnClose && r.size > 0 {
		r.flushLocked()
	} else {
		clear(r.ring)
		r.head = 0
		r.size = 0
	}
	r.mu.Unlock()

	return safeClose(r.delegate)
}

func (r *RingBufferSink) GetStats() SinkStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats("ring", map[string]any{
		"capacity":       len(r.ring),
		"buffered":       r.size,
		"flush_count":    r.flushes,
		"evicted":        r.evicted,
		"flush_on_close": r.opts.FlushOnClose,
	})
}
