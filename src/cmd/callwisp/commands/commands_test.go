// FILE: callwisp/src/cmd/callwisp/commands/commands_test.go
package commands

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"
	"callwisp/src/internal/service"
	"callwisp/src/internal/sink"
	"callwisp/src/internal/tls"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput routes the global output handler to buffers for one test
func captureOutput(t *testing.T) (stdout, stderr *bytes.Buffer) {
	t.Helper()
	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	SetOutput(stdout, stderr, false)
	t.Cleanup(func() { InitOutputHandler(false) })
	return stdout, stderr
}

func sqliteService(t *testing.T) (*service.Service, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "calls.db")
	cfg := config.Default()
	cfg.Logger.Sinks = []string{"sqlite:" + dbPath}
	cfg.Logger.EnvTagging = false
	svc, err := service.NewService(cfg, nil)
	require.NoError(t, err)
	return svc, dbPath
}

func queryAll(t *testing.T, dbPath string) []*core.LogEntry {
	t.Helper()
	store, err := sink.NewSQLSink(&config.SQLSinkOptions{DSN: dbPath}, nil)
	require.NoError(t, err)
	defer store.Close()
	entries, err := store.Query(context.Background(), sink.QueryOptions{Limit: 100})
	require.NoError(t, err)
	return entries
}

func TestDetectLanguage(t *testing.T) {
	testCases := map[string]string{
		"bash":            "bash",
		"./deploy.sh":     "bash",
		"zsh":             "bash",
		"python3":         "python",
		"/opt/train.py":   "python",
		"go":              "go",
		"main.go":         "go",
		"cargo":           "rust",
		"npx":             "node",
		"deno":            "node",
		"docker-compose":  "docker",
		"podman":          "docker",
		"cmake":           "make",
		"ls":              "shell",
		"/usr/bin/Python": "python",
	}
	for cmd, want := range testCases {
		assert.Equal(t, want, detectLanguage(cmd), cmd)
	}
}

func TestParseWindow(t *testing.T) {
	testCases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"24h", 24 * time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"1.5", 90 * time.Minute, false},
		{" 2H ", 2 * time.Hour, false},
		{"soon", 0, true},
		{"-3h", 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseWindow(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRunCommand_CapturesFailure(t *testing.T) {
	stdout, stderr := captureOutput(t)
	svc, dbPath := sqliteService(t)

	code := NewRunCommand().execute(svc, runOptions{
		env:     "ci",
		command: []string{"sh", "-c", "echo built; echo broken >&2; exit 3"},
	})
	require.NoError(t, svc.Shutdown())

	assert.Equal(t, 3, code)
	assert.Equal(t, "built\n", stdout.String())
	assert.Equal(t, "broken\n", stderr.String())

	entries := queryAll(t, dbPath)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, core.LevelError, e.Level)
	assert.Equal(t, "sh", e.FunctionName)
	assert.Equal(t, "cli", e.Module)
	assert.Equal(t, []any{"-c", "echo built; echo broken >&2; exit 3"}, e.Args)
	assert.Equal(t, map[string]any{"language": "bash", "env": "ci"}, e.Kwargs)
	assert.Equal(t, "built\n", e.ReturnValue)
	assert.Equal(t, "broken\n", e.Exception)
	assert.Equal(t, "ProcessError", e.ExceptionType)
	assert.Equal(t, "ci", e.Environment)
	require.NotNil(t, e.DurationMS)

	fields := e.Extra.Fields()
	assert.EqualValues(t, 3, fields["returncode"])
	assert.Equal(t, "sh -c echo built; echo broken >&2; exit 3", fields["cmd"])
}

func TestRunCommand_Success(t *testing.T) {
	captureOutput(t)
	svc, dbPath := sqliteService(t)

	code := NewRunCommand().execute(svc, runOptions{env: "local", command: []string{"true"}})
	require.NoError(t, svc.Shutdown())

	assert.Equal(t, 0, code)
	entries := queryAll(t, dbPath)
	require.Len(t, entries, 1)
	assert.Equal(t, core.LevelInfo, entries[0].Level)
	assert.Nil(t, entries[0].ReturnValue)
	assert.Empty(t, entries[0].ExceptionType)
	assert.Equal(t, "shell", entries[0].Kwargs["language"])
}

func TestRunCommand_NotFound(t *testing.T) {
	_, stderr := captureOutput(t)
	svc, dbPath := sqliteService(t)

	code := NewRunCommand().execute(svc, runOptions{
		env:     "local",
		command: []string{"callwisp-no-such-command", "x"},
	})
	require.NoError(t, svc.Shutdown())

	assert.Equal(t, 127, code)
	assert.Contains(t, stderr.String(), "callwisp: command not found: callwisp-no-such-command")

	entries := queryAll(t, dbPath)
	require.Len(t, entries, 1)
	assert.Equal(t, "FileNotFoundError", entries[0].ExceptionType)
	assert.Equal(t, "Command not found: callwisp-no-such-command", entries[0].Exception)
}

func TestRunCommand_QuietKeepsChildOutput(t *testing.T) {
	stdout := &bytes.Buffer{}
	SetOutput(stdout, &bytes.Buffer{}, true)
	t.Cleanup(func() { InitOutputHandler(false) })
	svc, _ := sqliteService(t)

	NewRunCommand().execute(svc, runOptions{command: []string{"echo", "hi"}})
	require.NoError(t, svc.Shutdown())
	assert.Equal(t, "hi\n", stdout.String())
}

func TestProcessResult_TruncatesCapturedOutput(t *testing.T) {
	r := processResult{
		command:    []string{"gen"},
		stdout:     strings.Repeat("a", 2500),
		stderr:     strings.Repeat("b", 2500),
		returnCode: 1,
	}
	e := r.entry()
	assert.True(t, strings.HasPrefix(e.ReturnValue.(string), strings.Repeat("a", 2000)+"..."))
	assert.True(t, strings.HasPrefix(e.Exception, strings.Repeat("b", 2000)+"..."))
}

func TestLogsCommand_Query(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "calls.db")
	store, err := sink.NewSQLSink(&config.SQLSinkOptions{DSN: dbPath}, nil)
	require.NoError(t, err)

	ts := time.Date(2026, 5, 4, 10, 11, 12, 0, time.UTC)
	ok := core.NewEntry(core.LevelInfo, "deploy.sh", "cli")
	ok.Timestamp = ts
	ok.DurationMS = core.Float(1520.4)
	ok.Environment = "prod"
	require.NoError(t, store.Write(ok))

	bad := core.NewEntry(core.LevelError, "migrate", "cli")
	bad.Timestamp = ts.Add(time.Minute)
	bad.Exception = strings.Repeat("x", 100)
	require.NoError(t, store.Write(bad))
	require.NoError(t, store.Close())

	var buf bytes.Buffer
	cmd := NewLogsCommand()
	require.NoError(t, cmd.query(dbPath, sink.QueryOptions{Limit: 20}, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "2026-05-04T10:12:12 | ERROR | migrate | - | "+strings.Repeat("x", 60))
	assert.NotContains(t, lines[0], strings.Repeat("x", 61))
	assert.Contains(t, lines[1], "2026-05-04T10:11:12 | INFO  | deploy.sh | 1520ms | env=prod")
	assert.Equal(t, "(2 entries from "+dbPath+")", lines[3])

	buf.Reset()
	require.NoError(t, cmd.query(dbPath, sink.QueryOptions{Function: "nothing"}, &buf))
	assert.Equal(t, "No logs found.\n", buf.String())
}

func TestLogsCommand_ExecuteParsesFlags(t *testing.T) {
	stdout, _ := captureOutput(t)
	svc, dbPath := sqliteService(t)
	svc.Logger().Emit(core.NewEntry(core.LevelError, "sync", "cli"))
	svc.Logger().Emit(core.NewEntry(core.LevelInfo, "sync", "cli"))
	require.NoError(t, svc.Shutdown())

	require.NoError(t, NewLogsCommand().Execute([]string{dbPath, "--errors", "--last", "1h", "-n", "5"}))
	assert.Contains(t, stdout.String(), "(1 entries from ")

	err := NewLogsCommand().Execute([]string{filepath.Join(t.TempDir(), "missing.db")})
	assert.ErrorContains(t, err, "database not found")
}

func TestEnsureMemorySink(t *testing.T) {
	cfg := config.Default()
	cfg.Logger.Sinks = []string{"sqlite:a.db"}
	cfg.Serve.RecentLimit = 200
	ensureMemorySink(cfg)
	assert.Equal(t, []string{"sqlite:a.db", "memory:200"}, cfg.Logger.Sinks)

	ensureMemorySink(cfg)
	assert.Len(t, cfg.Logger.Sinks, 2)
}

func TestRouter(t *testing.T) {
	stdout, _ := captureOutput(t)
	r := NewCommandRouter()

	require.NoError(t, r.Route([]string{"callwisp"}))
	assert.Contains(t, stdout.String(), "Commands:")
	assert.Contains(t, stdout.String(), "serve")

	stdout.Reset()
	require.NoError(t, r.Route([]string{"callwisp", "version"}))
	assert.True(t, strings.HasPrefix(stdout.String(), "callwisp "))

	stdout.Reset()
	require.NoError(t, r.Route([]string{"callwisp", "logs", "--help"}))
	assert.Contains(t, stdout.String(), "Logs Command")

	stdout.Reset()
	require.NoError(t, r.Route([]string{"callwisp", "help", "run"}))
	assert.Contains(t, stdout.String(), "Run Command")

	assert.ErrorContains(t, r.Route([]string{"callwisp", "deploy"}), "unknown command")
	assert.ErrorContains(t, r.Route([]string{"callwisp", "run"}), "no command specified")
}

func TestRouter_RunPropagatesExitCode(t *testing.T) {
	captureOutput(t)
	dir := t.TempDir()
	t.Setenv("CALLWISP_CONFIG_DIR", dir)
	t.Setenv("CALLWISP_CONFIG_FILE", "")
	t.Setenv("CALLWISP_SINKS", "")
	dbPath := filepath.Join(dir, "run.db")

	err := NewCommandRouter().Route([]string{
		"callwisp", "run", "-q", "--log-output", "none", "--sink", "sqlite:" + dbPath, "--", "sh", "-c", "exit 4",
	})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 4, exitErr.Code)

	entries := queryAll(t, dbPath)
	require.Len(t, entries, 1)
	assert.Equal(t, "local", entries[0].Environment)
}

func TestTLSCommand(t *testing.T) {
	stdout, _ := captureOutput(t)
	dir := t.TempDir()
	caCert, caKey := filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key")
	srvCert, srvKey := filepath.Join(dir, "srv.crt"), filepath.Join(dir, "srv.key")

	cmd := NewTLSCommand()
	require.NoError(t, cmd.Execute([]string{"--ca", "--cn", "ops CA", "--days", "30", "--cert-out", caCert, "--key-out", caKey}))
	assert.Contains(t, stdout.String(), "CA certificate generated")

	stdout.Reset()
	require.NoError(t, cmd.Execute([]string{
		"--server", "--cn", "ingest", "--hosts", "ingest.internal,10.1.2.3", "--days", "7",
		"--ca-cert", caCert, "--ca-key", caKey, "--cert-out", srvCert, "--key-out", srvKey,
	}))
	assert.Contains(t, stdout.String(), "Signed by:   CN=ops CA")
	assert.Contains(t, stdout.String(), "Hosts:       ingest.internal,10.1.2.3")

	leaf, err := tls.LoadBundle(srvCert, srvKey)
	require.NoError(t, err)
	assert.Equal(t, "ingest", leaf.Cert.Subject.CommonName)

	assert.ErrorContains(t, cmd.Execute([]string{"--server", "--cn", "x"}), "--ca-cert and --ca-key")
	assert.ErrorContains(t, cmd.Execute([]string{"--ca"}), "common name")
	assert.ErrorContains(t, cmd.Execute([]string{"--cn", "x"}), "specify certificate type")
	assert.ErrorContains(t, cmd.Execute([]string{"--server", "--cn", "late", "--days", "60",
		"--ca-cert", caCert, "--ca-key", caKey, "--cert-out", srvCert, "--key-out", srvKey}), "exceeds CA expiry")
}

func TestConfigCommand(t *testing.T) {
	stdout, _ := captureOutput(t)
	dir := t.TempDir()
	t.Setenv("CALLWISP_CONFIG_DIR", dir)
	t.Setenv("CALLWISP_CONFIG_FILE", "")
	t.Setenv("CALLWISP_SINKS", "")
	out := filepath.Join(dir, "written.toml")

	cmd := NewConfigCommand()
	require.NoError(t, cmd.Execute([]string{"--out", out}))
	assert.Contains(t, stdout.String(), "Configuration written to "+out)
	assert.FileExists(t, out)

	assert.ErrorContains(t, cmd.Execute([]string{"--out", out}), "already exists")
	assert.NoError(t, cmd.Execute([]string{"--out", out, "--force"}))
}
