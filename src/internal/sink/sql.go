// FILE: callwisp/src/internal/sink/sql.go
package sink

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/lixenwraith/log"
	_ "modernc.org/sqlite" // SQLite driver, registered as "sqlite"
)

const defaultSQLTable = "logs"

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLSink stores entries as rows of their flat record in a relational table
type SQLSink struct {
	db        *sqlx.DB
	driver    string
	table     string
	insertSQL string
	timeout   time.Duration
	logger    *log.Logger
	closeOnce sync.Once
	closeErr  error

	counters
}

// NewSQLSink connects, creates the table if missing and prepares the insert statement
func NewSQLSink(opts *config.SQLSinkOptions, logger *log.Logger) (*SQLSink, error) {
	if opts == nil || opts.DSN == "" {
		return nil, fmt.Errorf("sql sink: dsn is required")
	}

	driver := opts.Driver
	switch driver {
	case "", "sqlite", "sqlite3", "db":
		driver = "sqlite"
	case "postgres", "postgresql", "pq":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("sql sink: unsupported driver %q", opts.Driver)
	}

	table := opts.Table
	if table == "" {
		table = defaultSQLTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("sql sink: invalid table name %q", table)
	}

	db, err := sqlx.Connect(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("sql sink: failed to connect to database: %w", err)
	}
	if driver == "sqlite" {
		// One writer at a time keeps SQLite free of lock contention
		db.SetMaxOpenConns(1)
	}

	s := &SQLSink{
		db:        db,
		driver:    driver,
		table:     table,
		insertSQL: insertStatement(table),
		timeout:   5 * time.Second,
		logger:    logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, createTableStatement(driver, table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("sql sink: failed to create table %s: %w", table, err)
	}

	s.startCounters()
	return s, nil
}

func insertStatement(table string) string {
	named := make([]string, len(core.RecordColumns))
	for i, col := range core.RecordColumns {
		named[i] = ":" + col
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(core.RecordColumns, ", "), strings.Join(named, ", "))
}

func createTableStatement(driver, table string) string {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	floatType := "REAL"
	if driver == "postgres" {
		idColumn = "id BIGSERIAL PRIMARY KEY"
		floatType = "DOUBLE PRECISION"
	}

	columns := []string{idColumn}
	for _, col := range core.RecordColumns {
		colType := "TEXT"
		if col == "duration_ms" {
			colType = floatType
		}
		columns = append(columns, col+" "+colType)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(columns, ", "))
}

// Write inserts one row
func (s *SQLSink) Write(entry *core.LogEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.db.NamedExecContext(ctx, s.insertSQL, entry.Record()); err != nil {
		s.failed()
		if s.logger != nil {
			s.logger.Warn("msg", "Failed to insert log entry",
				"component", "sql_sink",
				"table", s.table,
				"function", entry.FunctionName,
				"error", err)
		}
		return fmt.Errorf("sql sink: insert failed: %w", err)
	}
	s.processed()
	return nil
}

// QueryOptions selects stored rows. Zero values match everything.
type QueryOptions struct {
	Level       string
	Function    string // substring match
	Environment string
	ErrorsOnly  bool // ERROR and CRITICAL
	Since       time.Time
	Limit       int
}

// Recent returns the newest rows first, optionally filtered by level
func (s *SQLSink) Recent(ctx context.Context, level string, limit int) ([]*core.LogEntry, error) {
	return s.Query(ctx, QueryOptions{Level: level, Limit: limit})
}

// Query returns the newest matching rows first
func (s *SQLSink) Query(ctx context.Context, q QueryOptions) ([]*core.LogEntry, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	var where []string
	var args []any
	if q.Level != "" {
		where = append(where, "level = ?")
		args = append(args, core.NormalizeLevel(q.Level))
	}
	if q.Function != "" {
		where = append(where, "function_name LIKE ?")
		args = append(args, "%"+q.Function+"%")
	}
	if q.Environment != "" {
		where = append(where, "environment = ?")
		args = append(args, q.Environment)
	}
	if q.ErrorsOnly {
		where = append(where, "level IN (?, ?)")
		args = append(args, core.LevelError, core.LevelCritical)
	}
	if !q.Since.IsZero() {
		// RFC3339 strings in UTC order lexically
		where = append(where, "timestamp >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(core.RecordColumns, ", "), s.table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, q.Limit)

	var records []core.Record
	if err := s.db.SelectContext(ctx, &records, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sql sink: query failed: %w", err)
	}

	entries := make([]*core.LogEntry, 0, len(records))
	for _, r := range records {
		entry, err := core.FromRecord(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close closes the connection pool
func (s *SQLSink) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// GetStats returns sink statistics
func (s *SQLSink) GetStats() SinkStats {
	return s.stats("sql", map[string]any{
		"driver": s.driver,
		"table":  s.table,
	})
}
