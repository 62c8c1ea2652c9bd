// FILE: callwisp/src/internal/sink/buffered.go
package sink

import (
	"sync"
	"sync/atomic"
	"time"

	"callwisp/src/internal/core"

	"github.com/lixenwraith/log"
)

// BufferedOptions configures AsyncBufferedSink
type BufferedOptions struct {
	BufferSize    int
	FlushInterval time.Duration

	// When set, ERROR/CRITICAL entries wait for a size or interval flush
	NoFlushOnError bool
}

// DefaultBufferedOptions returns the buffering defaults
func DefaultBufferedOptions() BufferedOptions {
	return BufferedOptions{
		BufferSize:    100,
		FlushInterval: 5 * time.Second,
	}
}

// AsyncBufferedSink batches entries and hands them to its delegate when the buffer fills,
// when the flush interval elapses, or when an ERROR/CRITICAL entry arrives.
type AsyncBufferedSink struct {
	delegate Sink
	opts     BufferedOptions
	logger   *log.Logger

	// Batching
	buffer   []*core.LogEntry
	bufferMu sync.Mutex
	closed   bool

	// Serializes delivery so batches reach the delegate in order
	flushMu sync.Mutex

	// Runtime
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	// Statistics
	flushCount     atomic.Uint64
	lastFlush      atomic.Int64
	deliveryErrors atomic.Uint64
	counters
}

// NewAsyncBufferedSink wraps delegate and starts the interval flusher
func NewAsyncBufferedSink(delegate Sink, opts BufferedOptions, logger *log.Logger) *AsyncBufferedSink {
	defaults := DefaultBufferedOptions()
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaults.BufferSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaults.FlushInterval
	}

	b := &AsyncBufferedSink{
		delegate: delegate,
		opts:     opts,
		logger:   logger,
		buffer:   make([]*core.LogEntry, 0, opts.BufferSize),
		done:     make(chan struct{}),
	}
	b.startCounters()

	b.wg.Add(1)
	go b.flushTimer()

	return b
}

func (b *AsyncBufferedSink) Write(entry *core.LogEntry) error {
	b.bufferMu.Lock()
	if b.closed {
		b.bufferMu.Unlock()
		return nil
	}
	b.buffer = append(b.buffer, entry)
	full := len(b.buffer) >= b.opts.BufferSize
	b.bufferMu.Unlock()

	b.processed()

	if full || (!b.opts.NoFlushOnError && core.IsErrorLevel(entry.Level)) {
		b.Flush()
	}
	return nil
}

// Flush delivers all buffered entries to the delegate, one write per entry in order
func (b *AsyncBufferedSink) Flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.bufferMu.Lock()
	if len(b.buffer) == 0 {
		b.bufferMu.Unlock()
		return
	}
	batch := b.buffer
	b.buffer = make([]*core.LogEntry, 0, b.opts.BufferSize)
	b.bufferMu.Unlock()

	for _, entry := range batch {
		if err := safeWrite(b.delegate, entry); err != nil {
			b.deliveryErrors.Add(1)
			b.failed()
			if b.logger != nil {
				b.logger.Warn("msg", "Buffered entry delivery failed",
					"component", "buffered_sink",
					"function", entry.FunctionName,
					"error", err)
			}
		}
	}

	b.flushCount.Add(1)
	b.lastFlush.Store(time.Now().UnixNano())
}

// Pending returns the number of buffered entries
func (b *AsyncBufferedSink) Pending() int {
	b.bufferMu.Lock()
	defer b.bufferMu.Unlock()
	return len(b.buffer)
}

// FlushCount returns the number of non-empty flushes performed
func (b *AsyncBufferedSink) FlushCount() uint64 {
	return b.flushCount.Load()
}

// flushTimer periodically drains the buffer
func (b *AsyncBufferedSink) flushTimer() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Flush()
		case <-b.done:
			return
		}
	}
}

// Close stops the flusher, delivers outstanding entries and closes the delegate.
// Later writes are ignored.
func (b *AsyncBufferedSink) Close() error {
	b.closeOnce.Do(func() {
		b.bufferMu.Lock()
		b.closed = true
		b.bufferMu.Unlock()

		close(b.done)
		b.wg.Wait()

		b.Flush()
		b.closeErr = safeClose(b.delegate)
	})
	return b.closeErr
}

func (b *AsyncBufferedSink) GetStats() SinkStats {
	var last time.Time
	if ns := b.lastFlush.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return b.stats("buffered", map[string]any{
		"buffer_size":       b.opts.BufferSize,
		"flush_interval_ms": b.opts.FlushInterval.Milliseconds(),
		"flush_on_error":    !b.opts.NoFlushOnError,
		"pending":           b.Pending(),
		"flush_count":       b.flushCount.Load(),
		"delivery_errors":   b.deliveryErrors.Load(),
		"last_flush":        last,
	})
}
