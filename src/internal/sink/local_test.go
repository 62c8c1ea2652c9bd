// FILE: callwisp/src/internal/sink/local_test.go
package sink

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"
	"callwisp/src/internal/format"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callEntry() *core.LogEntry {
	e := core.NewEntry(core.LevelInfo, "add", "calc")
	e.Timestamp = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	e.Args = []any{1, 2}
	e.ArgTypes = []string{"int", "int"}
	e.ReturnValue = 3
	e.ReturnType = "int"
	e.SetDuration(2 * time.Millisecond)
	return e
}

func TestCSVSink_HeaderOnceThenRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "calls.csv")

	s, err := NewCSVSink(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(callEntry()))
	require.NoError(t, s.Close())

	// Reopening an existing file does not repeat the header
	s, err = NewCSVSink(path)
	require.NoError(t, err)
	failed := callEntry()
	failed.Level = core.LevelError
	failed.Exception = "bad, \"quoted\" input"
	require.NoError(t, s.Write(failed))
	require.NoError(t, s.Close())
	require.NoError(t, s.Write(callEntry()), "writes after close are ignored")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, core.RecordColumns, rows[0])
	assert.Equal(t, "add", rows[1][2])
	assert.Equal(t, "[1,2]", rows[1][4])
	assert.Equal(t, "2", rows[1][13])
	assert.Equal(t, "ERROR", rows[2][1])
	assert.Equal(t, "bad, \"quoted\" input", rows[2][10])
}

func TestMarkdownSink_RendersSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.md")
	s, err := NewMarkdownSink(path)
	require.NoError(t, err)

	e := callEntry()
	e.Level = core.LevelError
	e.Exception = "boom"
	e.ExceptionType = "ValueError"
	e.Traceback = "frame 1\nframe 2\n"
	e.Environment = "prod"
	require.NoError(t, e.Extra.Set("request_id", "r-9"))
	require.NoError(t, s.Write(e))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasPrefix(text, "## ERROR `calc.add()`\n\n"))
	assert.Contains(t, text, "- **Args:** `[1,2]`\n")
	assert.Contains(t, text, "- **Return:** `3` (int)\n")
	assert.Contains(t, text, "- **Duration:** 2.00ms\n")
	assert.Contains(t, text, "- **Environment:** prod\n")
	assert.Contains(t, text, "- **request_id:** r-9\n")
	assert.Contains(t, text, "**ValueError:** boom\n")
	assert.Contains(t, text, "```\nframe 1\nframe 2\n```\n")
	assert.True(t, strings.HasSuffix(text, "---\n\n"))
}

func TestJSONSink_WritesLinesAndForwards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")
	inner := newCloseCounter()
	s, err := NewJSONSink(path, false, inner)
	require.NoError(t, err)

	e := callEntry()
	require.NoError(t, e.Extra.Set("hits", 4))
	e.Extra.StepName = "scan"
	require.NoError(t, s.Write(e))
	require.NoError(t, s.Write(callEntry()))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "add", first["function_name"])
	assert.Equal(t, "2026-03-04T05:06:07Z", first["timestamp"])
	assert.Equal(t, map[string]any{"hits": float64(4), "step_name": "scan"}, first["extra"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.NotContains(t, second, "extra")

	assert.Equal(t, 2, inner.Len())
	assert.Equal(t, int32(1), inner.closes.Load())
	assert.Equal(t, uint64(2), s.GetStats().TotalProcessed)
}

func TestJSONSink_Pretty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")
	s, err := NewJSONSink(path, true, nil)
	require.NoError(t, err)
	require.NoError(t, s.Write(callEntry()))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"level\": \"INFO\"")
}

func TestAppendFile_RejectsEmptyPath(t *testing.T) {
	_, err := NewCSVSink("")
	assert.Error(t, err)
}

func TestConsoleSink_Targets(t *testing.T) {
	testCases := []struct {
		name     string
		target   string
		level    string
		toStdout bool
		toStderr bool
	}{
		{"StdoutInfo", "stdout", core.LevelInfo, true, false},
		{"StdoutError", "stdout", core.LevelError, true, false},
		{"StderrInfo", "stderr", core.LevelInfo, false, true},
		{"SplitInfo", "split", core.LevelInfo, true, false},
		{"SplitWarning", "split", core.LevelWarning, false, true},
		{"SplitCritical", "split", core.LevelCritical, false, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewConsoleSink(tc.target, nil, newTestLogger())
			require.NoError(t, err)
			var stdout, stderr bytes.Buffer
			s.stdout, s.stderr = &stdout, &stderr

			e := callEntry()
			e.Level = tc.level
			require.NoError(t, s.Write(e))

			assert.Equal(t, tc.toStdout, stdout.Len() > 0)
			assert.Equal(t, tc.toStderr, stderr.Len() > 0)
		})
	}
}

func TestConsoleSink_UsesFormatter(t *testing.T) {
	formatter, err := format.NewFormatter("txt", map[string]any{"template": "{{.Call}}"}, newTestLogger())
	require.NoError(t, err)

	s, err := NewConsoleSink("", formatter, newTestLogger())
	require.NoError(t, err)
	var stdout bytes.Buffer
	s.stdout = &stdout

	require.NoError(t, s.Write(callEntry()))
	assert.Equal(t, "calc.add()\n", stdout.String())
	assert.Equal(t, "txt", s.GetStats().Details["format"])

	_, err = NewConsoleSink("printer", nil, nil)
	assert.Error(t, err)
}

func TestFileSink_WritesFormattedEntries(t *testing.T) {
	dir := t.TempDir()
	opts := config.DefaultFileSinkOptions()
	opts.Directory = dir
	opts.Name = "calls"

	s, err := NewFileSink(opts, nil, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, s.Write(callEntry()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.NoError(t, s.Write(callEntry()), "writes after close are ignored")

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var content strings.Builder
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		require.NoError(t, err)
		content.Write(data)
	}
	assert.Contains(t, content.String(), "[INFO] calc.add()")
	assert.Equal(t, uint64(1), s.GetStats().TotalProcessed)
}
