// FILE: callwisp/src/internal/format/raw.go
package format

import (
	"fmt"
	"strings"

	"callwisp/src/internal/core"

	"github.com/lixenwraith/log"
)

// RawFormatter renders the compact one-line call summary:
// LEVEL module.fn() | args=[...] | kwargs={...} | -> ret | EXCEPTION T: msg | [1.23ms]
type RawFormatter struct {
	logger *log.Logger
}

// NewRawFormatter creates a new raw formatter
func NewRawFormatter(options map[string]any, logger *log.Logger) (*RawFormatter, error) {
	return &RawFormatter{
		logger: logger,
	}, nil
}

// Format returns the summary line with a newline appended
func (f *RawFormatter) Format(entry *core.LogEntry) ([]byte, error) {
	return append([]byte(Summary(entry)), '\n'), nil
}

// Name returns the formatter name
func (f *RawFormatter) Name() string {
	return "raw"
}

// Summary renders the compact call summary without a trailing newline
func Summary(entry *core.LogEntry) string {
	parts := []string{core.NormalizeLevel(entry.Level) + " " + callName(entry)}

	if len(entry.Args) > 0 {
		args := make([]string, len(entry.Args))
		for i, a := range entry.Args {
			args[i] = core.Repr(a)
		}
		parts = append(parts, "args=["+strings.Join(args, ", ")+"]")
	}
	if len(entry.Kwargs) > 0 {
		parts = append(parts, "kwargs="+core.Repr(entry.Kwargs))
	}
	if entry.ReturnValue != nil {
		parts = append(parts, "-> "+core.Repr(entry.ReturnValue))
	}
	if entry.Exception != "" {
		parts = append(parts, fmt.Sprintf("EXCEPTION %s: %s", entry.ExceptionType, entry.Exception))
	}
	if entry.DurationMS != nil {
		parts = append(parts, fmt.Sprintf("[%.2fms]", *entry.DurationMS))
	}
	return strings.Join(parts, " | ")
}
