// FILE: callwisp/src/internal/sink/binary.go
package sink

import (
	"fmt"
	"sync"
	"sync/atomic"

	"callwisp/src/internal/core"
)

// DefaultBinaryThreshold is the byte size at which payloads are considered heavy
const DefaultBinaryThreshold = 64 * 1024

// BinaryAwareRouter routes entries by payload weight: metadata-summarized entries go to the
// lightweight sink, entries carrying large byte payloads go to the heavy sink (or the full
// sink when no heavy sink is set), everything else goes to the full sink.
type BinaryAwareRouter struct {
	light     Sink
	full      Sink
	heavy     Sink
	threshold int

	toLight atomic.Uint64
	toFull  atomic.Uint64
	toHeavy atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// NewBinaryAwareRouter creates the router. light and full are required, heavy may be nil;
// threshold <= 0 uses the default.
func NewBinaryAwareRouter(light, full, heavy Sink, threshold int) (*BinaryAwareRouter, error) {
	if light == nil {
		return nil, fmt.Errorf("binary router: light sink is required")
	}
	if full == nil {
		return nil, fmt.Errorf("binary router: full sink is required")
	}
	if threshold <= 0 {
		threshold = DefaultBinaryThreshold
	}
	return &BinaryAwareRouter{
		light:     light,
		full:      full,
		heavy:     heavy,
		threshold: threshold,
	}, nil
}

func (b *BinaryAwareRouter) Write(entry *core.LogEntry) error {
	return b.route(entry).Write(entry)
}

func (b *BinaryAwareRouter) route(entry *core.LogEntry) Sink {
	if entry.Extra.MetaLog {
		b.toLight.Add(1)
		return b.light
	}
	if b.hasLargePayload(entry) && b.heavy != nil {
		b.toHeavy.Add(1)
		return b.heavy
	}
	b.toFull.Add(1)
	return b.full
}

// hasLargePayload inspects only byte-like values
func (b *BinaryAwareRouter) hasLargePayload(entry *core.LogEntry) bool {
	for _, arg := range entry.Args {
		if b.large(arg) {
			return true
		}
	}
	for _, v := range entry.Kwargs {
		if b.large(v) {
			return true
		}
	}
	return b.large(entry.ReturnValue)
}

func (b *BinaryAwareRouter) large(v any) bool {
	n, ok := core.ByteLen(v)
	return ok && n >= b.threshold
}

// Threshold returns the configured heavy payload size
func (b *BinaryAwareRouter) Threshold() int {
	return b.threshold
}

func (b *BinaryAwareRouter) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = closeAll(b.light, b.full, b.heavy)
	})
	return b.closeErr
}

func (b *BinaryAwareRouter) GetStats() SinkStats {
	return SinkStats{
		Type:           "binary_router",
		TotalProcessed: b.toLight.Load() + b.toFull.Load() + b.toHeavy.Load(),
		Details: map[string]any{
			"threshold": b.threshold,
			"light":     b.toLight.Load(),
			"full":      b.toFull.Load(),
			"heavy":     b.toHeavy.Load(),
		},
	}
}
