// FILE: callwisp/src/internal/sink/markdown.go
package sink

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"callwisp/src/internal/core"
)

// MarkdownSink appends one Markdown section per entry
type MarkdownSink struct {
	out *appendFile

	counters
}

// NewMarkdownSink creates a Markdown sink writing to path
func NewMarkdownSink(path string) (*MarkdownSink, error) {
	out, err := newAppendFile(path)
	if err != nil {
		return nil, fmt.Errorf("markdown sink: %w", err)
	}
	s := &MarkdownSink{out: out}
	s.startCounters()
	return s, nil
}

// Write appends the rendered section
func (s *MarkdownSink) Write(entry *core.LogEntry) error {
	block := renderMarkdown(entry)
	err := s.out.write(func(f *os.File, _ bool) error {
		_, err := f.WriteString(block)
		return err
	})
	if err != nil {
		s.failed()
		return fmt.Errorf("markdown sink: %w", err)
	}
	s.processed()
	return nil
}

// Close closes the underlying file
func (s *MarkdownSink) Close() error {
	return s.out.close()
}

// GetStats returns sink statistics
func (s *MarkdownSink) GetStats() SinkStats {
	return s.stats("markdown", map[string]any{"path": s.out.path})
}

func renderMarkdown(e *core.LogEntry) string {
	rec := e.Record()
	var sb strings.Builder

	name := e.FunctionName
	if e.Module != "" {
		name = e.Module + "." + name
	}
	fmt.Fprintf(&sb, "## %s `%s()`\n\n", rec.Level, name)
	fmt.Fprintf(&sb, "- **Time:** %s\n", rec.Timestamp)

	if rec.Args != "" {
		fmt.Fprintf(&sb, "- **Args:** `%s`\n", rec.Args)
	}
	if rec.Kwargs != "" {
		fmt.Fprintf(&sb, "- **Kwargs:** `%s`\n", rec.Kwargs)
	}
	if rec.ReturnValue != "" {
		fmt.Fprintf(&sb, "- **Return:** `%s` (%s)\n", rec.ReturnValue, rec.ReturnType)
	}
	if e.DurationMS != nil {
		fmt.Fprintf(&sb, "- **Duration:** %.2fms\n", *e.DurationMS)
	}
	for _, tag := range []struct{ label, value string }{
		{"Environment", e.Environment},
		{"Trace", e.TraceID},
		{"Version", e.Version},
	} {
		if tag.value != "" {
			fmt.Fprintf(&sb, "- **%s:** %s\n", tag.label, tag.value)
		}
	}

	if extra := e.Extra.Map(); len(extra) > 0 {
		keys := make([]string, 0, len(extra))
		for k := range extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- **%s:** %v\n", k, extra[k])
		}
	}

	if e.Exception != "" {
		fmt.Fprintf(&sb, "\n**%s:** %s\n", e.ExceptionType, e.Exception)
		if e.Traceback != "" {
			fmt.Fprintf(&sb, "\n```\n%s\n```\n", strings.TrimRight(e.Traceback, "\n"))
		}
	}
	if e.LLMAnalysis != "" {
		fmt.Fprintf(&sb, "\n> %s\n", strings.ReplaceAll(e.LLMAnalysis, "\n", "\n> "))
	}

	sb.WriteString("\n---\n\n")
	return sb.String()
}
