// FILE: callwisp/src/internal/sink/buffered_test.go
package sink

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"callwisp/src/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferedFor(delegate Sink, size int, interval time.Duration, onError bool) *AsyncBufferedSink {
	return NewAsyncBufferedSink(delegate, BufferedOptions{
		BufferSize:     size,
		FlushInterval:  interval,
		NoFlushOnError: !onError,
	}, newTestLogger())
}

func TestAsyncBufferedSink_FlushesWhenFull(t *testing.T) {
	mem := NewMemorySink(0)
	b := bufferedFor(mem, 3, time.Hour, true)
	defer b.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Write(entryAt("INFO", fmt.Sprintf("f%d", i))))
	}
	assert.Equal(t, 0, mem.Len())
	assert.Equal(t, 2, b.Pending())

	require.NoError(t, b.Write(entryAt("INFO", "f2")))
	assert.Equal(t, []string{"f0", "f1", "f2"}, functionNames(mem.Entries()))
	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, uint64(1), b.FlushCount())
}

func TestAsyncBufferedSink_FlushOnError(t *testing.T) {
	testCases := []struct {
		name     string
		level    string
		onError  bool
		expected int
	}{
		{"ErrorFlushes", "ERROR", true, 2},
		{"CriticalFlushes", "critical", true, 2},
		{"WarningBuffers", "WARNING", true, 0},
		{"DisabledBuffers", "ERROR", false, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mem := NewMemorySink(0)
			b := bufferedFor(mem, 100, time.Hour, tc.onError)
			defer b.Close()

			require.NoError(t, b.Write(entryAt("INFO", "context")))
			require.NoError(t, b.Write(entryAt(tc.level, "trigger")))
			assert.Equal(t, tc.expected, mem.Len())
		})
	}
}

func TestAsyncBufferedSink_IntervalFlush(t *testing.T) {
	mem := NewMemorySink(0)
	b := bufferedFor(mem, 100, 20*time.Millisecond, false)
	defer b.Close()

	require.NoError(t, b.Write(entryAt("INFO", "f")))
	assert.Eventually(t, func() bool { return mem.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestAsyncBufferedSink_ManualFlush(t *testing.T) {
	mem := NewMemorySink(0)
	b := bufferedFor(mem, 100, time.Hour, false)
	defer b.Close()

	require.NoError(t, b.Write(entryAt("INFO", "a")))
	require.NoError(t, b.Write(entryAt("INFO", "b")))
	b.Flush()
	assert.Equal(t, []string{"a", "b"}, functionNames(mem.Entries()))

	b.Flush()
	assert.Equal(t, 2, mem.Len())
}

func TestAsyncBufferedSink_CloseDeliversExactlyOnce(t *testing.T) {
	inner := newCloseCounter()
	b := bufferedFor(inner, 10, time.Hour, false)

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Write(entryAt("INFO", fmt.Sprintf("f%d", i))))
	}
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.Equal(t, []string{"f0", "f1", "f2", "f3"}, functionNames(inner.Entries()))
	assert.Equal(t, int32(1), inner.closes.Load())

	require.NoError(t, b.Write(entryAt("ERROR", "late")))
	assert.Equal(t, 4, inner.Len())
	assert.Equal(t, 0, b.Pending())
}

func TestAsyncBufferedSink_BadDelegateDoesNotLoseBatch(t *testing.T) {
	mem := NewMemorySink(0)
	var calls int
	delegate := Func(func(e *core.LogEntry) error {
		calls++
		switch e.FunctionName {
		case "fails":
			return errors.New("write failed")
		case "panics":
			panic("delegate bug")
		}
		return mem.Write(e)
	})

	b := bufferedFor(delegate, 100, time.Hour, false)
	for _, fn := range []string{"a", "fails", "panics", "b"} {
		require.NoError(t, b.Write(entryAt("INFO", fn)))
	}

	require.NotPanics(t, b.Flush)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []string{"a", "b"}, functionNames(mem.Entries()))
	assert.Equal(t, uint64(2), b.GetStats().TotalFailed)
	require.NoError(t, b.Close())
}

func TestAsyncBufferedSink_ConcurrentWriters(t *testing.T) {
	mem := NewMemorySink(0)
	b := bufferedFor(mem, 7, 5*time.Millisecond, true)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				level := core.LevelInfo
				if i%13 == 0 {
					level = core.LevelError
				}
				_ = b.Write(entryAt(level, fmt.Sprintf("w%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, b.Close())

	assert.Equal(t, 400, mem.Len())
}

func TestAsyncBufferedSink_Defaults(t *testing.T) {
	b := NewAsyncBufferedSink(NewMemorySink(0), BufferedOptions{}, nil)
	defer b.Close()

	stats := b.GetStats()
	assert.Equal(t, 100, stats.Details["buffer_size"])
	assert.Equal(t, int64(5000), stats.Details["flush_interval_ms"])
	assert.Equal(t, true, stats.Details["flush_on_error"])
	assert.False(t, DefaultBufferedOptions().NoFlushOnError)
}

func TestAsyncBufferedSink_ZeroOptionsFlushOnError(t *testing.T) {
	mem := NewMemorySink(0)
	b := NewAsyncBufferedSink(mem, BufferedOptions{BufferSize: 10}, nil)
	defer b.Close()

	require.NoError(t, b.Write(entryAt("ERROR", "boom")))

	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, 1, mem.Len())
}
