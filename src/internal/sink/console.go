// FILE: callwisp/src/internal/sink/console.go
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	"callwisp/src/internal/core"
	"callwisp/src/internal/format"

	"github.com/lixenwraith/log"
)

// ConsoleSink writes formatted entries to stdout, stderr, or both
type ConsoleSink struct {
	target    string // "stdout", "stderr", or "split"
	stdout    io.Writer
	stderr    io.Writer
	mu        sync.Mutex
	logger    *log.Logger
	formatter format.Formatter

	counters
}

// NewConsoleSink creates a console sink. In split mode WARNING and above go to stderr.
func NewConsoleSink(target string, formatter format.Formatter, logger *log.Logger) (*ConsoleSink, error) {
	switch target {
	case "":
		target = "stdout"
	case "stdout", "stderr", "split":
	default:
		return nil, fmt.Errorf("invalid console target: %s", target)
	}

	if formatter == nil {
		var err error
		if formatter, err = format.NewFormatter("raw", nil, logger); err != nil {
			return nil, err
		}
	}

	s := &ConsoleSink{
		target:    target,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		logger:    logger,
		formatter: formatter,
	}
	s.startCounters()
	return s, nil
}

// Write formats the entry and writes it to the selected stream
func (s *ConsoleSink) Write(entry *core.LogEntry) error {
	formatted, err := s.formatter.Format(entry)
	if err != nil {
		s.failed()
		if s.logger != nil {
			s.logger.Error("msg", "Failed to format log entry for console",
				"component", "console_sink",
				"error", err)
		}
		return nil
	}

	out := s.stdout
	switch s.target {
	case "stderr":
		out = s.stderr
	case "split":
		if core.LevelRank(entry.Level) >= core.LevelRank(core.LevelWarning) {
			out = s.stderr
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := out.Write(formatted); err != nil {
		s.failed()
		return fmt.Errorf("console write: %w", err)
	}
	s.processed()
	return nil
}

// Close is a no-op; the process owns the standard streams
func (s *ConsoleSink) Close() error {
	return nil
}

// GetStats returns sink statistics
func (s *ConsoleSink) GetStats() SinkStats {
	return s.stats("console", map[string]any{
		"target": s.target,
		"format": s.formatter.Name(),
	})
}
