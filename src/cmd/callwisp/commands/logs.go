// FILE: callwisp/src/cmd/callwisp/commands/logs.go
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"
	"callwisp/src/internal/sink"

	"github.com/charmbracelet/lipgloss"
)

const (
	defaultLogsLimit = 20
	logsQueryTimeout = 10 * time.Second
	exceptionPreview = 60
)

var (
	errorLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	okLineStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// LogsCommand prints stored entries from a SQLite database
type LogsCommand struct {
	now func() time.Time
}

// NewLogsCommand creates the logs command
func NewLogsCommand() *LogsCommand {
	return &LogsCommand{now: time.Now}
}

func (c *LogsCommand) Execute(args []string) error {
	var q sink.QueryOptions
	var last string

	// The database path may come before the flags
	var dbPath string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		dbPath, args = args[0], args[1:]
	}

	flags := newFlagSet("logs", c.Help)
	flags.StringVar(&q.Level, "level", "", "Filter by level")
	flags.StringVar(&q.Function, "function", "", "Filter by function name substring")
	flags.StringVar(&q.Function, "f", "", "Shorthand for --function")
	flags.StringVar(&q.Environment, "env", "", "Filter by environment")
	flags.BoolVar(&q.ErrorsOnly, "errors", false, "Show only errors")
	flags.BoolVar(&q.ErrorsOnly, "e", false, "Shorthand for --errors")
	flags.StringVar(&last, "last", "", "Time window, e.g. 24h, 30m, 7d")
	flags.IntVar(&q.Limit, "limit", defaultLogsLimit, "Maximum entries")
	flags.IntVar(&q.Limit, "n", defaultLogsLimit, "Shorthand for --limit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if dbPath == "" && flags.NArg() > 0 {
		dbPath = flags.Arg(0)
	}
	dbPath = coalesceString(dbPath, os.Getenv("CALLWISP_DB"), config.DefaultDBPath)

	if last != "" {
		window, err := parseWindow(last)
		if err != nil {
			return err
		}
		q.Since = c.now().Add(-window)
	}

	return c.query(dbPath, q, out().stdout)
}

func (c *LogsCommand) query(dbPath string, q sink.QueryOptions, w io.Writer) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database not found: %s", dbPath)
	}

	store, err := sink.NewSQLSink(&config.SQLSinkOptions{Driver: "sqlite", DSN: dbPath}, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), logsQueryTimeout)
	defer cancel()
	entries, err := store.Query(ctx, q)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No logs found.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(w, formatLogLine(e))
	}
	fmt.Fprintf(w, "\n(%d entries from %s)\n", len(entries), dbPath)
	return nil
}

// formatLogLine renders "timestamp | LEVEL | function | duration | env=... | exception"
func formatLogLine(e *core.LogEntry) string {
	dur := "-"
	if e.DurationMS != nil && *e.DurationMS > 0 {
		dur = fmt.Sprintf("%.0fms", *e.DurationMS)
	}

	line := fmt.Sprintf("%s | %-5s | %s | %s",
		e.Timestamp.UTC().Format("2006-01-02T15:04:05"), e.Level, e.FunctionName, dur)
	if e.Environment != "" {
		line += " | env=" + e.Environment
	}
	if e.Exception != "" {
		line += " | " + firstRunes(e.Exception, exceptionPreview)
	}

	if core.IsErrorLevel(e.Level) {
		return errorLineStyle.Render(line)
	}
	return okLineStyle.Render(line)
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// parseWindow accepts "24h", "30m", "7d" or a bare number of hours
func parseWindow(spec string) (time.Duration, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	unit := time.Hour
	switch {
	case strings.HasSuffix(spec, "d"):
		unit = 24 * time.Hour
		spec = strings.TrimSuffix(spec, "d")
	case strings.HasSuffix(spec, "h"):
		spec = strings.TrimSuffix(spec, "h")
	case strings.HasSuffix(spec, "m"):
		unit = time.Minute
		spec = strings.TrimSuffix(spec, "m")
	}

	n, err := strconv.ParseFloat(spec, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid time window: %q", spec)
	}
	return time.Duration(n * float64(unit)), nil
}

func (c *LogsCommand) Description() string {
	return "Query logged calls from a SQLite database"
}

func (c *LogsCommand) Help() string {
	return `Logs Command - Query logged calls from a SQLite database

Usage:
  callwisp logs [db] [options]

Arguments:
  db                    Database path (default: CALLWISP_DB or callwisp_logs.db)

Options:
  --level <level>       Filter by level (ERROR, INFO, DEBUG)
  -f, --function <s>    Filter by function name substring
  --env <name>          Filter by environment
  -e, --errors          Show only ERROR and CRITICAL entries
  --last <window>       Time window, e.g. 24h, 30m, 7d
  -n, --limit <n>       Maximum entries (default: 20)

Examples:
  callwisp logs --errors --last 24h
  callwisp logs ci.db -f deploy --env prod
`
}
