// FILE: callwisp/src/internal/format/txt.go
package format

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"callwisp/src/internal/core"

	"github.com/lixenwraith/log"
)

const (
	DefaultTxtTemplate        = "[{{.Timestamp | FmtTime}}] [{{.Level}}] {{.Call}}{{if .Exception}} {{.ExceptionType}}: {{.Exception}}{{end}}{{if .HasDuration}} ({{printf \"%.2f\" .DurationMS}}ms){{end}}"
	DefaultTxtTimestampFormat = time.RFC3339
)

// TxtFormatter produces human-readable call lines using templates
type TxtFormatter struct {
	timestampFormat string
	template        *template.Template
	logger          *log.Logger
}

// NewTxtFormatter creates a new text formatter.
// Recognised options: "template" and "timestamp_format".
func NewTxtFormatter(options map[string]any, logger *log.Logger) (*TxtFormatter, error) {
	f := &TxtFormatter{
		timestampFormat: stringOption(options, "timestamp_format", DefaultTxtTimestampFormat),
		logger:          logger,
	}

	// Create template with helper functions
	funcMap := template.FuncMap{
		"FmtTime": func(t time.Time) string {
			return t.Format(f.timestampFormat)
		},
		"ToUpper":   strings.ToUpper,
		"ToLower":   strings.ToLower,
		"TrimSpace": strings.TrimSpace,
		"Repr":      core.Repr,
	}

	tmpl, err := template.New("call").Funcs(funcMap).Parse(stringOption(options, "template", DefaultTxtTemplate))
	if err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}

	f.template = tmpl
	return f, nil
}

// Format renders the entry through the template
func (f *TxtFormatter) Format(entry *core.LogEntry) ([]byte, error) {
	rec := entry.Record()
	data := map[string]any{
		"Timestamp":     entry.Timestamp,
		"Level":         rec.Level,
		"Function":      entry.FunctionName,
		"Module":        entry.Module,
		"Call":          callName(entry),
		"Args":          rec.Args,
		"Kwargs":        rec.Kwargs,
		"Return":        rec.ReturnValue,
		"Exception":     entry.Exception,
		"ExceptionType": entry.ExceptionType,
		"Environment":   entry.Environment,
		"TraceID":       entry.TraceID,
		"Version":       entry.Version,
		"Extra":         entry.Extra.Map(),
		"HasDuration":   entry.DurationMS != nil,
		"DurationMS":    0.0,
	}
	if entry.DurationMS != nil {
		data["DurationMS"] = *entry.DurationMS
	}

	var buf bytes.Buffer
	if err := f.template.Execute(&buf, data); err != nil {
		// Fallback: the compact summary never fails
		if f.logger != nil {
			f.logger.Debug("msg", "Template execution failed, using fallback",
				"component", "txt_formatter",
				"error", err)
		}
		fallback := fmt.Sprintf("[%s] %s\n", entry.Timestamp.Format(f.timestampFormat), Summary(entry))
		return []byte(fallback), nil
	}

	// Ensure newline at end
	result := buf.Bytes()
	if len(result) == 0 || result[len(result)-1] != '\n' {
		result = append(result, '\n')
	}

	return result, nil
}

// Name returns the formatter name
func (f *TxtFormatter) Name() string {
	return "txt"
}

func callName(entry *core.LogEntry) string {
	if entry.Module == "" {
		return entry.FunctionName + "()"
	}
	return entry.Module + "." + entry.FunctionName + "()"
}
