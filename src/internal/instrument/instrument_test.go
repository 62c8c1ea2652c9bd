// FILE: callwisp/src/internal/instrument/instrument_test.go
package instrument

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"callwisp/src/internal/core"
	"callwisp/src/internal/logger"
	"callwisp/src/internal/redact"
	"callwisp/src/internal/sink"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	entries []*core.LogEntry
}

func (r *recorder) Emit(entry *core.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recorder) last(t *testing.T) *core.LogEntry {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.entries)
	return r.entries[len(r.entries)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func add(a, b int) (int, error) {
	return a + b, nil
}

func divide(a, b int) (int, error) {
	if b == 0 {
		return 0, fmt.Errorf("divide %d: %w", a, os.ErrInvalid)
	}
	return a / b, nil
}

func TestWrap2_LogsSuccessfulCall(t *testing.T) {
	rec := &recorder{}
	in := New(rec, WithModule("calc"), WithLevel("info"))

	wrapped := Wrap2(in, "add", add)
	got, err := wrapped(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	e := rec.last(t)
	assert.Equal(t, core.LevelInfo, e.Level)
	assert.Equal(t, "add", e.FunctionName)
	assert.Equal(t, "calc", e.Module)
	assert.Equal(t, []any{1, 2}, e.Args)
	assert.Equal(t, []string{"int", "int"}, e.ArgTypes)
	assert.Equal(t, 3, e.ReturnValue)
	assert.Equal(t, "int", e.ReturnType)
	require.NotNil(t, e.DurationMS)
	assert.GreaterOrEqual(t, *e.DurationMS, 0.0)
	assert.Empty(t, e.Exception)
}

func TestCall_PropagatesErrors(t *testing.T) {
	rec := &recorder{}
	in := New(rec)

	_, err := Wrap2(in, "divide", divide)(1, 0)
	require.ErrorIs(t, err, os.ErrInvalid)

	e := rec.last(t)
	assert.Equal(t, core.LevelError, e.Level)
	assert.Equal(t, "divide 1: invalid argument", e.Exception)
	assert.Equal(t, "errors.errorString", e.ExceptionType)
	assert.Contains(t, e.Traceback, "goroutine")
	assert.Nil(t, e.ReturnValue)
}

func TestCall_CatchModeReturnsDefault(t *testing.T) {
	rec := &recorder{}
	in := New(rec, Catch(-1))

	got, err := Wrap2(in, "divide", divide)(1, 0)
	require.NoError(t, err)
	assert.Equal(t, -1, got)
	assert.Equal(t, core.LevelError, rec.last(t).Level)

	// Default of another type falls back to the zero value
	s, err := Wrap0(in, "name", func() (string, error) { return "", errors.New("no name") })()
	require.NoError(t, err)
	assert.Equal(t, "", s)
}

func TestCall_Panics(t *testing.T) {
	t.Run("PropagateRepanics", func(t *testing.T) {
		rec := &recorder{}
		in := New(rec)
		boom := Wrap0(in, "boom", func() (int, error) { panic("kaboom") })

		assert.PanicsWithValue(t, "kaboom", func() { _, _ = boom() })
		e := rec.last(t)
		assert.Equal(t, "kaboom", e.Exception)
		assert.Equal(t, "panic", e.ExceptionType)
		assert.Contains(t, e.Traceback, "panic")
	})

	t.Run("CatchRecovers", func(t *testing.T) {
		rec := &recorder{}
		in := New(rec, WithMode(ModeCatch))
		boom := Wrap0(in, "boom", func() (int, error) { panic(os.ErrClosed) })

		var got int
		var err error
		require.NotPanics(t, func() { got, err = boom() })
		assert.NoError(t, err)
		assert.Equal(t, 0, got)
		assert.Equal(t, "errors.errorString", rec.last(t).ExceptionType)
	})
}

func TestCall_Sampling(t *testing.T) {
	rec := &recorder{}
	in := New(rec, WithSampleRate(0))

	for i := 0; i < 10; i++ {
		_, _ = Wrap2(in, "add", add)(i, i)
	}
	assert.Equal(t, 0, rec.count(), "rate 0 drops every success")

	_, _ = Wrap2(in, "divide", divide)(1, 0)
	assert.Equal(t, 1, rec.count(), "failures bypass sampling")

	half := New(rec, WithSampleRate(0.5))
	rolls := []float64{0.1, 0.9, 0.4, 0.6}
	half.random = func() float64 {
		r := rolls[0]
		rolls = rolls[1:]
		return r
	}
	for i := 0; i < 4; i++ {
		_, _ = Wrap2(half, "add", add)(i, i)
	}
	assert.Equal(t, 3, rec.count())
}

func TestCall_ParamNamesRedactPositionalSecrets(t *testing.T) {
	rec := &recorder{}
	in := New(rec, WithParamNames("user", "password"))

	login := Wrap2(in, "login", func(user, password string) (bool, error) { return true, nil })
	_, err := login("alice", "hunter2")
	require.NoError(t, err)

	assert.Equal(t, []any{"alice", redact.Placeholder}, rec.last(t).Args)
}

func TestCall_KwargsAreCopied(t *testing.T) {
	rec := &recorder{}
	in := New(rec)

	kwargs := map[string]any{"scale": 10, "blob": make([]byte, 4)}
	scale := WrapKw(in, "scale", func(kw map[string]any) (int, error) { return kw["scale"].(int) * 2, nil })
	got, err := scale(kwargs)
	require.NoError(t, err)
	assert.Equal(t, 20, got)

	e := rec.last(t)
	assert.Equal(t, map[string]string{"scale": "int", "blob": "[]uint8"}, e.KwargTypes)
	e.Kwargs["scale"] = 0
	assert.Equal(t, 10, kwargs["scale"])
}

func TestCall_SummarizeBinary(t *testing.T) {
	rec := &recorder{}
	in := New(rec, SummarizeBinary(16))

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	thumb := Wrap1(in, "thumbnail", func(img []byte) ([]byte, error) { return img[:8], nil })
	_, err := thumb(png)
	require.NoError(t, err)

	e := rec.last(t)
	assert.True(t, e.Extra.MetaLog)
	meta, ok := e.Args[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "png", meta["format"])
	assert.Equal(t, int64(40), meta["size"])
	assert.Len(t, meta["hash"], 16)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), e.ReturnValue, "small payloads are kept")
	assert.Equal(t, int64(1), e.Extra.Fields()["summarized_payloads"])
}

func TestDo(t *testing.T) {
	rec := &recorder{}
	in := New(rec)

	require.NoError(t, Do(in, "flush", nil, nil, func() error { return nil }))
	e := rec.last(t)
	assert.Nil(t, e.ReturnValue)
	assert.Empty(t, e.ReturnType)
	assert.Nil(t, e.Args)

	assert.Error(t, Do(in, "flush", nil, nil, func() error { return errors.New("disk full") }))
	assert.Equal(t, "disk full", rec.last(t).Exception)
}

func TestEvent(t *testing.T) {
	rec := &recorder{}
	in := New(rec, WithModule("pipeline"))

	require.NoError(t, in.Event("info", "ScanWindows", map[string]any{
		core.KeyPipelineRunID: "r1",
		core.KeyStepName:      "ScanWindows",
		"windows_total":       8,
	}))
	e := rec.last(t)
	assert.Equal(t, core.LevelInfo, e.Level)
	assert.Equal(t, "r1", e.Extra.PipelineRunID)
	assert.Equal(t, int64(8), e.Extra.Fields()["windows_total"])

	assert.Error(t, in.Event("info", "bad", map[string]any{"level": "x"}))
}

func TestWith_DoesNotMutateParent(t *testing.T) {
	parent := New(&recorder{}, WithModule("a"), WithParamNames("x"))
	child := parent.With(WithModule("b"), Catch(nil))

	assert.Equal(t, "a", parent.Options().Module)
	assert.Equal(t, ModePropagate, parent.Options().Mode)
	assert.Equal(t, "b", child.Options().Module)
	assert.Equal(t, ModeCatch, child.Options().Mode)
}

func TestInstrumenter_WithLogger(t *testing.T) {
	mem := sink.NewMemorySink(0)
	l := logger.New(logger.Options{Name: "test"}, mem)
	in := New(l, WithModule("auth"))

	connect := WrapKw(in, "connect", func(kw map[string]any) (string, error) { return "ok", nil })
	_, err := connect(map[string]any{"host": "db", "api_key": "sk-123"})
	require.NoError(t, err)

	require.Equal(t, 1, mem.Len())
	e := mem.Entries()[0]
	assert.Equal(t, "db", e.Kwargs["host"])
	assert.Equal(t, redact.Placeholder, e.Kwargs["api_key"])
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("CATCH")
	assert.True(t, ok)
	assert.Equal(t, ModeCatch, m)
	assert.Equal(t, "catch", m.String())

	m, ok = ParseMode("")
	assert.True(t, ok)
	assert.Equal(t, "propagate", m.String())

	_, ok = ParseMode("swallow")
	assert.False(t, ok)
}

func TestDetectFormat(t *testing.T) {
	testCases := map[string]string{
		"RIFF\x00\x00\x00\x00WAVEfmt ": "wav",
		"\xff\xd8\xff\xe0":             "jpeg",
		"%PDF-1.7":                     "pdf",
		"hello":                        "binary",
	}
	for input, expected := range testCases {
		assert.Equal(t, expected, DetectFormat([]byte(input)), strings.TrimSpace(input))
	}

	meta, ok := BinaryMeta([4]byte{'G', 'I', 'F', '8'})
	require.True(t, ok)
	assert.Equal(t, "[4]uint8", meta["type"])
	_, ok = BinaryMeta("not bytes")
	assert.False(t, ok)
}
