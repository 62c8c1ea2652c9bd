// FILE: callwisp/src/internal/format/format.go
package format

import (
	"fmt"

	"callwisp/src/internal/core"

	"github.com/lixenwraith/log"
)

// Formatter defines the interface for transforming a LogEntry into a byte slice.
type Formatter interface {
	// Format takes a LogEntry and returns the formatted entry as a byte slice.
	Format(entry *core.LogEntry) ([]byte, error)

	// Name returns the formatter type name
	Name() string
}

// NewFormatter creates a new Formatter by name.
func NewFormatter(name string, options map[string]any, logger *log.Logger) (Formatter, error) {
	// Default to raw if no format specified
	if name == "" {
		name = "raw"
	}

	switch name {
	case "json":
		return NewJSONFormatter(options, logger)
	case "txt", "text":
		return NewTxtFormatter(options, logger)
	case "raw":
		return NewRawFormatter(options, logger)
	default:
		return nil, fmt.Errorf("unknown formatter type: %s", name)
	}
}

// Helper functions for option map conversion
func stringOption(options map[string]any, key, def string) string {
	if v, ok := options[key].(string); ok && v != "" {
		return v
	}
	return def
}

func boolOption(options map[string]any, key string, def bool) bool {
	if v, ok := options[key].(bool); ok {
		return v
	}
	return def
}
