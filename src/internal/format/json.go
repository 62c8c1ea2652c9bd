// FILE: callwisp/src/internal/format/json.go
package format

import (
	"bytes"
	"fmt"

	"callwisp/src/internal/core"

	"github.com/goccy/go-json"
	"github.com/lixenwraith/log"
)

// JSONFormatter produces one JSON document per entry using the flat record shape.
type JSONFormatter struct {
	pretty bool
	logger *log.Logger
}

// NewJSONFormatter creates a new JSON formatter from options.
func NewJSONFormatter(options map[string]any, logger *log.Logger) (*JSONFormatter, error) {
	return &JSONFormatter{
		pretty: boolOption(options, "pretty", false),
		logger: logger,
	}, nil
}

// Format transforms a single LogEntry into a JSON byte slice ending in a newline.
func (f *JSONFormatter) Format(entry *core.LogEntry) ([]byte, error) {
	result, err := f.marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(result, '\n'), nil
}

func (f *JSONFormatter) marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || !f.pretty {
		return data, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Name returns the formatter's type name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// FormatBatch transforms a slice of entries into a single JSON array.
func (f *JSONFormatter) FormatBatch(entries []*core.LogEntry) ([]byte, error) {
	batch := make([]json.RawMessage, 0, len(entries))

	for _, entry := range entries {
		formatted, err := json.Marshal(entry)
		if err != nil {
			if f.logger != nil {
				f.logger.Warn("msg", "Failed to format entry in batch",
					"component", "json_formatter",
					"function", entry.FunctionName,
					"error", err)
			}
			continue
		}
		batch = append(batch, formatted)
	}

	return f.marshal(batch)
}
