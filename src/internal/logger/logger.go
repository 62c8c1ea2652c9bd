// FILE: callwisp/src/internal/logger/logger.go
package logger

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"callwisp/src/internal/core"
	"callwisp/src/internal/format"
	"callwisp/src/internal/redact"
	"callwisp/src/internal/sink"

	"github.com/lixenwraith/log"
)

// Options configures a Logger
type Options struct {
	// Name identifies the logger in diagnostics
	Name string

	// Entries ranked below this level are dropped; empty keeps everything
	Level string

	// Filter, when set, drops entries it rejects before redaction
	Filter func(entry *core.LogEntry) bool

	// Echo, when set, receives one compact summary line per emitted entry
	Echo io.Writer

	// Logger receives sink failures
	Logger *log.Logger
}

// Logger fans entries out to an ordered list of sinks
type Logger struct {
	name     string
	minRank  int
	filter   func(entry *core.LogEntry) bool
	logger   *log.Logger
	echo     io.Writer
	echoMu   sync.Mutex
	sinks    atomic.Pointer[[]sink.Sink]
	modifyMu sync.Mutex

	emitted    atomic.Uint64
	dropped    atomic.Uint64
	sinkErrors atomic.Uint64
}

// Stats is a snapshot of emit counters
type Stats struct {
	Name       string
	Sinks      int
	Emitted    uint64
	Dropped    uint64
	SinkErrors uint64
}

// New creates a Logger writing to sinks in the given order
func New(opts Options, sinks ...sink.Sink) *Logger {
	l := &Logger{
		name:   opts.Name,
		logger: opts.Logger,
		filter: opts.Filter,
		echo:   opts.Echo,
	}
	if opts.Level != "" {
		l.minRank = core.LevelRank(opts.Level)
	}
	list := append([]sink.Sink(nil), sinks...)
	l.sinks.Store(&list)
	return l
}

// Name returns the logger name
func (l *Logger) Name() string {
	return l.name
}

// Emit redacts the entry and writes it to every sink in registration order.
// A failing sink never prevents later sinks from receiving the entry.
func (l *Logger) Emit(entry *core.LogEntry) {
	if entry == nil {
		return
	}
	entry.Level = core.NormalizeLevel(entry.Level)
	if l.minRank > 0 && core.LevelRank(entry.Level) < l.minRank {
		l.dropped.Add(1)
		return
	}
	if l.filter != nil && !l.filter(entry) {
		l.dropped.Add(1)
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = core.Now()
	}

	entry.Kwargs = redact.Kwargs(entry.Kwargs)
	if fields := entry.Extra.Fields(); fields != nil {
		// Redacted values keep their shape, so this cannot fail
		_ = entry.Extra.SetFields(redact.Kwargs(fields))
	}

	l.emitted.Add(1)
	l.echoEntry(entry)

	for i, s := range *l.sinks.Load() {
		if err := l.write(s, entry); err != nil {
			l.sinkErrors.Add(1)
			if l.logger != nil {
				l.logger.Warn("msg", "Sink write failed",
					"component", "logger",
					"logger", l.name,
					"sink_index", i,
					"function", entry.FunctionName,
					"error", err)
			}
		}
	}
}

func (l *Logger) write(s sink.Sink, entry *core.LogEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return s.Write(entry)
}

func (l *Logger) echoEntry(entry *core.LogEntry) {
	if l.echo == nil {
		return
	}
	l.echoMu.Lock()
	defer l.echoMu.Unlock()
	_, _ = io.WriteString(l.echo, format.Summary(entry)+"\n")
}

// AddSink appends a sink to the fan-out list
func (l *Logger) AddSink(s sink.Sink) {
	l.modifyMu.Lock()
	defer l.modifyMu.Unlock()

	current := *l.sinks.Load()
	next := make([]sink.Sink, len(current), len(current)+1)
	copy(next, current)
	next = append(next, s)
	l.sinks.Store(&next)
}

// RemoveSink removes the first occurrence of s and reports whether it was present.
// The removed sink is not closed.
func (l *Logger) RemoveSink(s sink.Sink) bool {
	l.modifyMu.Lock()
	defer l.modifyMu.Unlock()

	current := *l.sinks.Load()
	for i, existing := range current {
		if sink.Same(existing, s) {
			next := make([]sink.Sink, 0, len(current)-1)
			next = append(next, current[:i]...)
			next = append(next, current[i+1:]...)
			l.sinks.Store(&next)
			return true
		}
	}
	return false
}

// Sinks returns a snapshot of the registered sinks
func (l *Logger) Sinks() []sink.Sink {
	current := *l.sinks.Load()
	return append([]sink.Sink(nil), current...)
}

// GetStats returns emit counters
func (l *Logger) GetStats() Stats {
	return Stats{
		Name:       l.name,
		Sinks:      len(*l.sinks.Load()),
		Emitted:    l.emitted.Load(),
		Dropped:    l.dropped.Load(),
		SinkErrors: l.sinkErrors.Load(),
	}
}

// Close closes every sink, continuing past failures, and returns the joined errors
func (l *Logger) Close() error {
	var errs []error
	for i, s := range l.Sinks() {
		if err := closeSink(s); err != nil {
			errs = append(errs, fmt.Errorf("sink[%d]: %w", i, err))
		}
	}
	if len(errs) > 0 && l.logger != nil {
		l.logger.Error("msg", "Failed to close sinks",
			"component", "logger",
			"logger", l.name,
			"failures", len(errs))
	}
	return errors.Join(errs...)
}

func closeSink(s sink.Sink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close panic: %v", r)
		}
	}()
	return s.Close()
}
