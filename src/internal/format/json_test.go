// FILE: callwisp/src/internal/format/json_test.go
package format

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"callwisp/src/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry() *core.LogEntry {
	e := core.NewEntry(core.LevelInfo, "add", "calc")
	e.Timestamp = time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	e.Args = []any{1, 2}
	e.Kwargs = map[string]any{"scale": 10}
	e.ReturnValue = 30
	e.SetDuration(1500 * time.Microsecond)
	return e
}

func TestJSONFormatter_Format(t *testing.T) {
	logger := newTestLogger()
	entry := sampleEntry()
	entry.TraceID = "abc123"
	require.NoError(t, entry.Extra.Set("request_id", "r-1"))

	t.Run("BasicFormatting", func(t *testing.T) {
		formatter, err := NewJSONFormatter(nil, logger)
		require.NoError(t, err)

		output, err := formatter.Format(entry)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(string(output), "\n"), "Output should end with a newline")

		var result map[string]any
		require.NoError(t, json.Unmarshal(output, &result), "Output should be valid JSON")

		assert.Equal(t, "2023-01-01T12:00:00Z", result["timestamp"])
		assert.Equal(t, "INFO", result["level"])
		assert.Equal(t, "add", result["function_name"])
		assert.Equal(t, "calc", result["module"])
		assert.Equal(t, "[1,2]", result["args"])
		assert.Equal(t, "30", result["return_value"])
		assert.Equal(t, "abc123", result["trace_id"])
		assert.InDelta(t, 1.5, result["duration_ms"], 1e-9)
		assert.Equal(t, map[string]any{"request_id": "r-1"}, result["extra"])
	})

	t.Run("PrettyFormatting", func(t *testing.T) {
		formatter, err := NewJSONFormatter(map[string]any{"pretty": true}, logger)
		require.NoError(t, err)

		output, err := formatter.Format(entry)
		require.NoError(t, err)
		assert.Contains(t, string(output), "\n  \"level\": \"INFO\"")
	})
}

func TestJSONFormatter_FormatBatch(t *testing.T) {
	logger := newTestLogger()
	formatter, err := NewJSONFormatter(nil, logger)
	require.NoError(t, err)

	first := sampleEntry()
	second := sampleEntry()
	second.FunctionName = "sub"
	second.Level = core.LevelError
	second.Exception = "boom"

	output, err := formatter.FormatBatch([]*core.LogEntry{first, second})
	require.NoError(t, err)

	var result []map[string]any
	require.NoError(t, json.Unmarshal(output, &result), "Batch output should be a valid JSON array")
	require.Len(t, result, 2)
	assert.Equal(t, "add", result[0]["function_name"])
	assert.Equal(t, "sub", result[1]["function_name"])
	assert.Equal(t, "boom", result[1]["exception"])
}
