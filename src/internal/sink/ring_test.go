// FILE: callwisp/src/internal/sink/ring_test.go
package sink

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ringFor(delegate Sink, capacity int, includeTrigger, flushOnClose bool, triggers ...string) *RingBufferSink {
	return NewRingBufferSink(delegate, RingOptions{
		Capacity:       capacity,
		TriggerLevels:  triggers,
		ExcludeTrigger: !includeTrigger,
		FlushOnClose:   flushOnClose,
	}, newTestLogger())
}

func TestRingBufferSink_TriggerFlushesContextThenTrigger(t *testing.T) {
	mem := NewMemorySink(0)
	ring := ringFor(mem, 3, true, false)

	for i := 0; i < 4; i++ {
		require.NoError(t, ring.Write(entryAt("INFO", fmt.Sprintf("ctx%d", i))))
	}
	assert.Equal(t, 0, mem.Len(), "non-trigger entries are only buffered")
	assert.Equal(t, 3, ring.Buffered())

	require.NoError(t, ring.Write(entryAt("ERROR", "boom")))

	assert.Equal(t, []string{"ctx1", "ctx2", "ctx3", "boom"}, functionNames(mem.Entries()))
	assert.Equal(t, 0, ring.Buffered())
	assert.Equal(t, uint64(1), ring.FlushCount())
	assert.Equal(t, 3, ring.Capacity())
}

func TestRingBufferSink_TriggerLevels(t *testing.T) {
	t.Run("CaseInsensitive", func(t *testing.T) {
		mem := NewMemorySink(0)
		ring := ringFor(mem, 5, true, false, "warning")

		require.NoError(t, ring.Write(entryAt("INFO", "ctx")))
		require.NoError(t, ring.Write(entryAt("Warning", "warn")))
		assert.Equal(t, 2, mem.Len())
	})

	t.Run("DefaultsToErrorAndCritical", func(t *testing.T) {
		mem := NewMemorySink(0)
		ring := ringFor(mem, 5, true, false)

		require.NoError(t, ring.Write(entryAt("WARNING", "w")))
		assert.Equal(t, 0, mem.Len())
		require.NoError(t, ring.Write(entryAt("critical", "c")))
		assert.Equal(t, []string{"w", "c"}, functionNames(mem.Entries()))
	})
}

func TestRingBufferSink_ExcludeTrigger(t *testing.T) {
	mem := NewMemorySink(0)
	ring := ringFor(mem, 3, false, false)

	require.NoError(t, ring.Write(entryAt("INFO", "a")))
	require.NoError(t, ring.Write(entryAt("ERROR", "boom")))
	assert.Equal(t, []string{"a"}, functionNames(mem.Entries()))
}

func TestRingBufferSink_TriggerOnEmptyBuffer(t *testing.T) {
	mem := NewMemorySink(0)
	ring := ringFor(mem, 3, true, false)

	require.NoError(t, ring.Write(entryAt("ERROR", "first")))
	require.NoError(t, ring.Write(entryAt("ERROR", "second")))
	assert.Equal(t, []string{"first", "second"}, functionNames(mem.Entries()))
	assert.Equal(t, uint64(2), ring.FlushCount())
}

func TestRingBufferSink_BufferClearedAfterFlush(t *testing.T) {
	mem := NewMemorySink(0)
	ring := ringFor(mem, 3, true, false)

	require.NoError(t, ring.Write(entryAt("INFO", "a")))
	require.NoError(t, ring.Write(entryAt("ERROR", "e1")))
	require.NoError(t, ring.Write(entryAt("INFO", "b")))
	require.NoError(t, ring.Write(entryAt("ERROR", "e2")))

	assert.Equal(t, []string{"a", "e1", "b", "e2"}, functionNames(mem.Entries()))
}

func TestRingBufferSink_Close(t *testing.T) {
	t.Run("DiscardsContextByDefault", func(t *testing.T) {
		inner := newCloseCounter()
		ring := ringFor(inner, 3, true, false)

		require.NoError(t, ring.Write(entryAt("INFO", "a")))
		require.NoError(t, ring.Write(entryAt("INFO", "b")))
		require.NoError(t, ring.Close())

		assert.Equal(t, 0, inner.Len())
		assert.Equal(t, 0, ring.Buffered())
		assert.Equal(t, int32(1), inner.closes.Load())
	})

	t.Run("FlushOnCloseWritesContext", func(t *testing.T) {
		inner := newCloseCounter()
		ring := ringFor(inner, 3, true, true)

		for _, fn := range []string{"a", "b", "c", "d"} {
			require.NoError(t, ring.Write(entryAt("INFO", fn)))
		}
		require.NoError(t, ring.Close())

		assert.Equal(t, []string{"b", "c", "d"}, functionNames(inner.Entries()))
		assert.Equal(t, int32(1), inner.closes.Load())
	})

	t.Run("IdempotentAndIgnoresLateWrites", func(t *testing.T) {
		inner := newCloseCounter()
		ring := ringFor(inner, 3, true, true)

		require.NoError(t, ring.Close())
		require.NoError(t, ring.Close())
		require.NoError(t, ring.Write(entryAt("ERROR", "late")))

		assert.Equal(t, 0, inner.Len())
		assert.Equal(t, int32(1), inner.closes.Load())
	})
}

func TestRingBufferSink_Defaults(t *testing.T) {
	ring := NewRingBufferSink(NewMemorySink(0), RingOptions{}, nil)
	assert.Equal(t, 1000, ring.Capacity())

	opts := DefaultRingOptions()
	assert.False(t, opts.ExcludeTrigger)
	assert.False(t, opts.FlushOnClose)
}

func TestRingBufferSink_ZeroOptionsDeliverTrigger(t *testing.T) {
	mem := NewMemorySink(0)
	ring := NewRingBufferSink(mem, RingOptions{Capacity: 3}, nil)

	for i := 0; i < 4; i++ {
		require.NoError(t, ring.Write(entryAt("DEBUG", fmt.Sprintf("d%d", i))))
	}
	require.NoError(t, ring.Write(entryAt("ERROR", "boom")))

	assert.Equal(t, []string{"d1", "d2", "d3", "boom"}, functionNames(mem.Entries()))
}
