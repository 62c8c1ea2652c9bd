// FILE: callwisp/src/internal/core/entry.go
package core

import (
	"strings"
	"time"
)

// Severity levels, stored upper case on every entry
const (
	LevelDebug    = "DEBUG"
	LevelInfo     = "INFO"
	LevelWarning  = "WARNING"
	LevelError    = "ERROR"
	LevelCritical = "CRITICAL"
)

// LogEntry represents one completed call or discrete event flowing through the sink chain
type LogEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	Level        string    `json:"level"`
	FunctionName string    `json:"function_name"`
	Module       string    `json:"module"`

	Args       []any             `json:"args,omitempty"`
	Kwargs     map[string]any    `json:"kwargs,omitempty"`
	ArgTypes   []string          `json:"arg_types,omitempty"`
	KwargTypes map[string]string `json:"kwarg_types,omitempty"`

	ReturnValue   any    `json:"return_value,omitempty"`
	ReturnType    string `json:"return_type,omitempty"`
	Exception     string `json:"exception,omitempty"`
	ExceptionType string `json:"exception_type,omitempty"`
	Traceback     string `json:"traceback,omitempty"`

	// Nil for instantaneous or synthetic entries
	DurationMS *float64 `json:"duration_ms,omitempty"`

	// Correlation tags, first writer wins
	Environment string `json:"environment,omitempty"`
	TraceID     string `json:"trace_id,omitempty"`
	Version     string `json:"version,omitempty"`

	LLMAnalysis string `json:"llm_analysis,omitempty"`

	Extra Extra `json:"-"`
}

// NewEntry creates an entry stamped with the current UTC time
func NewEntry(level, functionName, module string) *LogEntry {
	return &LogEntry{
		Timestamp:    Now(),
		Level:        NormalizeLevel(level),
		FunctionName: functionName,
		Module:       module,
	}
}

// Now returns the current UTC instant
func Now() time.Time {
	return time.Now().UTC()
}

// NormalizeLevel upper-cases a level name, mapping the empty string to INFO
func NormalizeLevel(level string) string {
	level = strings.ToUpper(strings.TrimSpace(level))
	switch level {
	case "":
		return LevelInfo
	case "WARN":
		return LevelWarning
	case "FATAL":
		return LevelCritical
	}
	return level
}

// IsErrorLevel reports whether level is ERROR or CRITICAL, case-insensitively
func IsErrorLevel(level string) bool {
	l := NormalizeLevel(level)
	return l == LevelError || l == LevelCritical
}

// LevelRank orders levels for threshold comparisons. Unknown levels rank as INFO.
func LevelRank(level string) int {
	switch NormalizeLevel(level) {
	case LevelDebug:
		return 10
	case LevelWarning:
		return 30
	case LevelError:
		return 40
	case LevelCritical:
		return 50
	default:
		return 20
	}
}

// Failed reports whether the entry carries a captured exception
func (e *LogEntry) Failed() bool {
	return e.Exception != "" || e.ExceptionType != ""
}

// SetDuration records the call duration in milliseconds
func (e *LogEntry) SetDuration(d time.Duration) {
	ms := float64(d.Nanoseconds()) / 1e6
	e.DurationMS = &ms
}

// Float returns a pointer to v, for optional numeric fields
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v, for optional integer fields
func Int(v int64) *int64 {
	return &v
}
