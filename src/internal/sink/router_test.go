// FILE: callwisp/src/internal/sink/router_test.go
package sink

import (
	"fmt"
	"testing"

	"callwisp/src/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDynamicRouter_FirstMatchWinsExclusively(t *testing.T) {
	errors := NewMemorySink(0)
	slow := NewMemorySink(0)
	fallback := NewMemorySink(0)

	router := NewDynamicRouter(fallback, newTestLogger()).
		AddRule("errors", LevelIn("error", "critical"), errors).
		AddRule("slow", func(e *core.LogEntry) bool {
			return e.DurationMS != nil && *e.DurationMS > 100
		}, slow)

	slowErr := entryAt("ERROR", "both")
	slowErr.DurationMS = core.Float(500)
	slowOK := entryAt("INFO", "slow")
	slowOK.DurationMS = core.Float(500)

	for _, e := range []*core.LogEntry{slowErr, slowOK, entryAt("debug", "other")} {
		require.NoError(t, router.Write(e))
	}

	assert.Equal(t, []string{"both"}, functionNames(errors.Entries()))
	assert.Equal(t, []string{"slow"}, functionNames(slow.Entries()))
	assert.Equal(t, []string{"other"}, functionNames(fallback.Entries()))
}

func TestDynamicRouter_EachEntryReachesAtMostOneSink(t *testing.T) {
	sinks := []*MemorySink{NewMemorySink(0), NewMemorySink(0), NewMemorySink(0)}
	fallback := NewMemorySink(0)

	router := NewDynamicRouter(fallback, nil).
		AddRule("info", LevelIn("INFO"), sinks[0]).
		AddRule("info-again", LevelAtLeast("DEBUG"), sinks[1]).
		AddRule("fn", FunctionIs("f3"), sinks[2])

	levels := []string{"DEBUG", "INFO", "WARNING", "ERROR"}
	total := 0
	for i := 0; i < 12; i++ {
		require.NoError(t, router.Write(entryAt(levels[i%len(levels)], fmt.Sprintf("f%d", i))))
		total++
	}

	received := fallback.Len()
	for _, s := range sinks {
		received += s.Len()
	}
	assert.Equal(t, total, received)
	assert.Equal(t, 0, sinks[2].Len(), "shadowed by an earlier catch-all rule")
}

func TestDynamicRouter_NoMatchNoDefaultDrops(t *testing.T) {
	target := NewMemorySink(0)
	router := NewDynamicRouter(nil, nil).AddRule("errors", Failed(), target)

	require.NoError(t, router.Write(entryAt("INFO", "ok")))
	assert.Equal(t, 0, target.Len())
	assert.Equal(t, uint64(1), router.GetStats().Details["dropped"])
}

func TestDynamicRouter_PanickingPredicateDoesNotMatch(t *testing.T) {
	first := NewMemorySink(0)
	second := NewMemorySink(0)

	router := NewDynamicRouter(nil, newTestLogger()).
		AddRule("broken", func(e *core.LogEntry) bool {
			var m map[string]int
			m["x"] = 1
			return true
		}, first).
		AddRule("any", func(*core.LogEntry) bool { return true }, second)

	require.NotPanics(t, func() {
		require.NoError(t, router.Write(entryAt("INFO", "f")))
	})
	assert.Equal(t, 0, first.Len())
	assert.Equal(t, 1, second.Len())
	assert.Equal(t, uint64(1), router.GetStats().Details["predicate_failures"])
}

func TestDynamicRouter_CloseClosesEachSinkOnce(t *testing.T) {
	shared := newCloseCounter()
	other := newCloseCounter()

	router := NewDynamicRouter(shared, nil).
		AddRule("a", LevelIn("ERROR"), shared).
		AddRule("b", LevelIn("INFO"), other).
		AddRule("c", LevelIn("DEBUG"), shared)

	require.NoError(t, router.Close())
	require.NoError(t, router.Close())
	assert.Equal(t, int32(1), shared.closes.Load())
	assert.Equal(t, int32(1), other.closes.Load())
}

func TestPredicateCombinators(t *testing.T) {
	failedErr := entryAt("ERROR", "f")
	failedErr.Exception = "boom"

	assert.True(t, All(LevelIn("error"), Failed())(failedErr))
	assert.False(t, All(LevelIn("error"), FunctionIs("g"))(failedErr))
	assert.True(t, Any(FunctionIs("g"), Failed())(failedErr))
	assert.False(t, Any()(failedErr))
	assert.True(t, LevelAtLeast("warning")(failedErr))
}
