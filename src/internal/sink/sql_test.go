// FILE: callwisp/src/internal/sink/sql_test.go
package sink

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLSink_SQLiteRoundTrip(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "calls.db")
	s, err := NewSQLSink(&config.SQLSinkOptions{Driver: "sqlite", DSN: dsn}, newTestLogger())
	require.NoError(t, err)
	defer s.Close()

	ok := callEntry()
	ok.Kwargs = map[string]any{"scale": 2}
	require.NoError(t, ok.Extra.Set("request_id", "r-1"))
	require.NoError(t, s.Write(ok))

	failed := callEntry()
	failed.FunctionName = "div"
	failed.Level = core.LevelError
	failed.ReturnValue = nil
	failed.DurationMS = nil
	failed.Exception = "division by zero"
	require.NoError(t, s.Write(failed))

	ctx := context.Background()
	all, err := s.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "div", all[0].FunctionName, "newest first")
	assert.Nil(t, all[0].DurationMS)

	assert.Equal(t, "add", all[1].FunctionName)
	assert.Equal(t, []any{int64(1), int64(2)}, all[1].Args)
	assert.Equal(t, map[string]any{"scale": int64(2)}, all[1].Kwargs)
	assert.Equal(t, "r-1", all[1].Extra.Fields()["request_id"])
	require.NotNil(t, all[1].DurationMS)
	assert.InDelta(t, 2.0, *all[1].DurationMS, 1e-9)

	errorsOnly, err := s.Recent(ctx, "error", 10)
	require.NoError(t, err)
	require.Len(t, errorsOnly, 1)
	assert.Equal(t, "division by zero", errorsOnly[0].Exception)

	assert.Equal(t, uint64(2), s.GetStats().TotalProcessed)
}

func TestSQLSink_CustomTableAndClose(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "calls.db")
	s, err := NewSQLSink(&config.SQLSinkOptions{DSN: dsn, Table: "calls"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Write(callEntry()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Error(t, s.Write(callEntry()), "closed pool reports the failure")
	assert.Equal(t, uint64(1), s.GetStats().TotalFailed)
}

func TestSQLSink_InvalidOptions(t *testing.T) {
	testCases := []struct {
		name string
		opts *config.SQLSinkOptions
		want string
	}{
		{"MissingDSN", &config.SQLSinkOptions{Driver: "sqlite"}, "dsn is required"},
		{"NilOptions", nil, "dsn is required"},
		{"UnknownDriver", &config.SQLSinkOptions{Driver: "oracle", DSN: "x"}, "unsupported driver"},
		{"BadTable", &config.SQLSinkOptions{DSN: "x.db", Table: "logs; DROP"}, "invalid table name"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSQLSink(tc.opts, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSQLStatements(t *testing.T) {
	insert := insertStatement("logs")
	assert.True(t, strings.HasPrefix(insert, "INSERT INTO logs (timestamp, level, function_name,"))
	assert.Contains(t, insert, "VALUES (:timestamp, :level, :function_name,")

	assert.Contains(t, createTableStatement("postgres", "logs"), "id BIGSERIAL PRIMARY KEY")
	assert.Contains(t, createTableStatement("postgres", "logs"), "duration_ms DOUBLE PRECISION")
	assert.Contains(t, createTableStatement("sqlite", "logs"), "duration_ms REAL")
}

func TestSQLSink_Query(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "calls.db")
	s, err := NewSQLSink(&config.SQLSinkOptions{DSN: dsn}, nil)
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []struct {
		fn, level, env, exc string
		age                 time.Duration
	}{
		{"fetch_user", core.LevelInfo, "prod", "", 3 * time.Hour},
		{"fetch_order", core.LevelError, "prod", "timeout", 2 * time.Hour},
		{"render", core.LevelWarning, "dev", "", time.Hour},
		{"fetch_user", core.LevelDebug, "dev", "cache miss", 10 * time.Minute},
	}
	for _, r := range rows {
		e := core.NewEntry(r.level, r.fn, "svc")
		e.Environment = r.env
		e.Exception = r.exc
		e.Timestamp = base.Add(-r.age)
		require.NoError(t, s.Write(e))
	}

	ctx := context.Background()
	names := func(q QueryOptions) []string {
		got, err := s.Query(ctx, q)
		require.NoError(t, err)
		out := make([]string, len(got))
		for i, e := range got {
			out[i] = e.FunctionName + "/" + e.Level
		}
		return out
	}

	assert.Equal(t, []string{"fetch_user/DEBUG", "fetch_order/ERROR", "fetch_user/INFO"},
		names(QueryOptions{Function: "fetch"}))
	assert.Equal(t, []string{"fetch_user/DEBUG"},
		names(QueryOptions{Environment: "dev", Function: "user"}))
	assert.Equal(t, []string{"fetch_order/ERROR"},
		names(QueryOptions{ErrorsOnly: true}))
	assert.Equal(t, []string{"fetch_user/DEBUG", "render/WARNING"},
		names(QueryOptions{Since: base.Add(-90 * time.Minute)}))
	assert.Equal(t, []string{"fetch_order/ERROR"},
		names(QueryOptions{Level: "error", Environment: "prod"}))
	assert.Len(t, names(QueryOptions{Limit: 1}), 1)
}
