// FILE: callwisp/src/internal/core/extra_test.go
package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtra_Set(t *testing.T) {
	t.Run("ReservedKeysPopulateTypedFields", func(t *testing.T) {
		var x Extra
		require.NoError(t, x.Set(KeyMetaLog, true))
		require.NoError(t, x.Set(KeyCostUSD, 0.25))
		require.NoError(t, x.Set(KeyTokensOut, 512))
		require.NoError(t, x.Set(KeyStepName, "fetch"))

		assert.True(t, x.MetaLog)
		require.NotNil(t, x.CostUSD)
		assert.Equal(t, 0.25, *x.CostUSD)
		require.NotNil(t, x.TokensOut)
		assert.Equal(t, int64(512), *x.TokensOut)
		assert.Equal(t, "fetch", x.StepName)
		assert.Nil(t, x.Fields())
	})

	t.Run("RejectsFirstClassFieldNames", func(t *testing.T) {
		var x Extra
		err := x.Set("trace_id", "abc")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "collides")
	})

	t.Run("RejectsWrongReservedType", func(t *testing.T) {
		var x Extra
		assert.Error(t, x.Set(KeyMetaLog, "yes"))
		assert.Error(t, x.Set(KeyCostUSD, "cheap"))
	})

	t.Run("CoercesOpenValuesToPrimitives", func(t *testing.T) {
		var x Extra
		require.NoError(t, x.Set("count", 3))
		require.NoError(t, x.Set("ratio", float32(0.5)))
		require.NoError(t, x.Set("when", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
		require.NoError(t, x.Set("tags", []string{"a", "b"}))

		fields := x.Fields()
		assert.Equal(t, int64(3), fields["count"])
		assert.Equal(t, 0.5, fields["ratio"])
		assert.Equal(t, "2026-01-02T03:04:05Z", fields["when"])
		assert.Equal(t, "[a b]", fields["tags"])
	})

	t.Run("RedactsStructuredValuesBeforeFlattening", func(t *testing.T) {
		var x Extra
		require.NoError(t, x.Set("db", map[string]any{"password": "hunter2", "host": "pg"}))
		require.NoError(t, x.Set("headers", map[string]string{"Authorization": "Bearer xyz"}))
		require.NoError(t, x.Set("steps", []any{map[string]any{"api_key": "k-1"}}))
		require.NoError(t, x.Set("conn", struct{ Password string }{"hunter2"}))

		for key, value := range x.Fields() {
			s, ok := value.(string)
			require.True(t, ok, key)
			assert.NotContains(t, s, "hunter2", key)
			assert.NotContains(t, s, "xyz", key)
			assert.NotContains(t, s, "k-1", key)
		}
		assert.Contains(t, x.Fields()["db"], "host:pg")
	})
}

func TestExtra_MapRoundTrip(t *testing.T) {
	var x Extra
	x.PipelineRunID = "r1"
	x.PipelineComplete = true
	x.TotalCost = Float(1.5)
	x.ContextLength = Int(2048)
	require.NoError(t, x.Set("host", "node-1"))

	m := x.Map()
	assert.Equal(t, "r1", m[KeyPipelineRunID])
	assert.Equal(t, true, m[KeyPipelineComplete])
	assert.Equal(t, 1.5, m[KeyTotalCost])
	assert.Equal(t, int64(2048), m[KeyContextLength])
	assert.Equal(t, "node-1", m["host"])
	assert.NotContains(t, m, KeyMetaLog)

	back, err := ExtraFromMap(m)
	require.NoError(t, err)
	assert.Equal(t, x.Map(), back.Map())
}

func TestExtra_GetAndDelete(t *testing.T) {
	var x Extra
	x.Decision = "retry"
	require.NoError(t, x.Set("attempt", 2))

	v, ok := x.Get(KeyDecision)
	assert.True(t, ok)
	assert.Equal(t, "retry", v)

	_, ok = x.Get(KeyDecisionReason)
	assert.False(t, ok)

	x.Delete("attempt")
	_, ok = x.Get("attempt")
	assert.False(t, ok)
	assert.Equal(t, 1, x.Len())
}

func TestExtra_SetFieldsReplacesOpenMap(t *testing.T) {
	var x Extra
	require.NoError(t, x.Set("old", 1))
	require.NoError(t, x.SetFields(map[string]any{"new": "v"}))

	fields := x.Fields()
	assert.NotContains(t, fields, "old")
	assert.Equal(t, "v", fields["new"])

	assert.Error(t, x.SetFields(map[string]any{"module": "x"}))
}
