// FILE: callwisp/src/internal/sink/pipeline_render.go
package sink

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"callwisp/src/internal/core"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Metric keys shown in a step summary, in display order
var summaryKeys = []string{
	"windows_total", "active_window", core.KeyDataSizeKB,
	"has_change", core.KeyContextLength, core.KeyCostUSD,
	core.KeyTokensIn, core.KeyTokensOut, "provider", "mode",
	"actions_count", "events_count", "crops_total",
	"ocr_chars", "memories_recalled",
}

const maxSummaryMetrics = 4

// blockData is the input to one rendered run
type blockData struct {
	tick        int
	runID       string
	entries     []*core.LogEntry
	sessionCost float64
	recentCosts []float64
}

// renderer draws pipeline runs as box-drawn blocks
type renderer struct {
	width int
	inner int
	color bool

	bold   lipgloss.Style
	green  lipgloss.Style
	red    lipgloss.Style
	yellow lipgloss.Style
	dim    lipgloss.Style
}

func newRenderer(w io.Writer, width int, color bool) *renderer {
	r := &renderer{
		width: width,
		inner: width - 4,
		color: color,
	}
	if color {
		lr := lipgloss.NewRenderer(w, termenv.WithProfile(termenv.ANSI))
		lr.SetColorProfile(termenv.ANSI)
		r.bold = lr.NewStyle().Bold(true)
		r.green = lr.NewStyle().Foreground(lipgloss.Color("2"))
		r.red = lr.NewStyle().Foreground(lipgloss.Color("1"))
		r.yellow = lr.NewStyle().Foreground(lipgloss.Color("3"))
		r.dim = lr.NewStyle().Faint(true)
	}
	return r
}

// paint applies style when colour is enabled
func (r *renderer) paint(style lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return style.Render(text)
}

// pad right-pads text to width visible cells
func pad(text string, width int) string {
	if gap := width - lipgloss.Width(text); gap > 0 {
		return text + strings.Repeat(" ", gap)
	}
	return text
}

func (r *renderer) block(d blockData) string {
	var sb strings.Builder
	rule := strings.Repeat("═", r.width-2)

	var steps []*core.LogEntry
	var completion *core.LogEntry
	for _, e := range d.entries {
		if e.Extra.PipelineComplete {
			completion = e
		} else {
			steps = append(steps, e)
		}
	}

	ts := ""
	if len(d.entries) > 0 {
		ts = d.entries[0].Timestamp.Format("15:04:05")
	}
	header := fmt.Sprintf(" TICK #%d │ %s │ %s ", d.tick, d.runID, ts)

	sb.WriteString("╔" + rule + "╗\n")
	sb.WriteString("║" + pad(r.paint(r.bold, header), r.width-2) + "║\n")
	sb.WriteString("╠" + rule + "╣\n")

	for _, e := range steps {
		sb.WriteString("║ " + pad(r.stepLine(e), r.inner) + " ║\n")
		for _, sub := range r.subLines(e) {
			sb.WriteString("║   " + pad(sub, r.inner-2) + " ║\n")
		}
	}

	if flow := r.dataFlow(steps); flow != "" {
		sb.WriteString("║ " + pad(flow, r.inner) + " ║\n")
	}

	sb.WriteString("╠" + rule + "╣\n")
	sb.WriteString("║ " + pad(r.footer(completion, steps), r.inner) + " ║\n")

	if cost := r.costLine(d.sessionCost, d.recentCosts); cost != "" {
		sb.WriteString("║ " + pad(cost, r.inner) + " ║\n")
	}

	sb.WriteString("╚" + rule + "╝\n")
	return sb.String()
}

func (r *renderer) stepLine(e *core.LogEntry) string {
	name := e.Extra.StepName
	if name == "" {
		name = e.FunctionName
	}
	if name == "" {
		name = "?"
	}
	namePart := fmt.Sprintf("%-20s", name)

	var icon string
	switch {
	case e.Exception != "":
		icon = r.paint(r.red, "✗")
		namePart = r.paint(r.red, namePart)
	case e.Extra.Decision == "skipped":
		icon = r.paint(r.dim, "⊘")
		namePart = r.paint(r.dim, namePart)
	default:
		icon = r.paint(r.green, "✓")
	}

	dur := "       "
	if e.DurationMS != nil {
		dur = fmt.Sprintf("%6.0fms", *e.DurationMS)
	}

	line := icon + " " + namePart + " " + dur
	if summary := stepSummary(e); summary != "" {
		line += " │ " + summary
	}
	return line
}

func stepSummary(e *core.LogEntry) string {
	if e.Exception != "" {
		excType := e.ExceptionType
		if excType == "" {
			excType = "Error"
		}
		return excType + ": " + truncateRunes(e.Exception, 40)
	}

	if e.Extra.Decision == "skipped" {
		if e.Extra.DecisionReason != "" {
			return "skipped (" + e.Extra.DecisionReason + ")"
		}
		return "skipped"
	}

	values := e.Extra.Map()
	var parts []string
	for _, key := range summaryKeys {
		if v, ok := values[key]; ok && v != nil {
			parts = append(parts, formatMetric(key, v))
			if len(parts) == maxSummaryMetrics {
				break
			}
		}
	}
	return strings.Join(parts, ", ")
}

func formatMetric(key string, v any) string {
	switch key {
	case "windows_total":
		return number(v) + " win"
	case "active_window":
		return truncateRunes(fmt.Sprint(v), 25)
	case core.KeyDataSizeKB:
		f, _ := core.ToFloat(v)
		return fmt.Sprintf("%.0fKB", f)
	case "has_change":
		if truthy(v) {
			return "CHANGE"
		}
		return "no change"
	case core.KeyContextLength:
		return number(v) + "ch ctx"
	case core.KeyCostUSD:
		f, _ := core.ToFloat(v)
		return fmt.Sprintf("$%.4f", f)
	case core.KeyTokensIn:
		return number(v) + "→"
	case core.KeyTokensOut:
		return "→" + number(v) + "tok"
	case "actions_count":
		return number(v) + " actions"
	case "events_count":
		return number(v) + " events"
	case "crops_total":
		return number(v) + " crops"
	case "ocr_chars":
		return number(v) + "ch OCR"
	case "memories_recalled":
		return number(v) + " memories"
	}
	return fmt.Sprint(v)
}

func (r *renderer) subLines(e *core.LogEntry) []string {
	var lines []string
	x := &e.Extra

	if x.Decision != "" && x.Decision != "executed" && x.Decision != "skipped" && x.DecisionReason != "" {
		lines = append(lines, r.paint(r.yellow, "►")+" DECISION: "+x.Decision+" — "+x.DecisionReason)
	}

	if positive(x.TokensIn) && positive(x.TokensOut) {
		detail := fmt.Sprintf("  └─ %s %d→%dtok", x.Model, *x.TokensIn, *x.TokensOut)
		if x.CostUSD != nil && *x.CostUSD != 0 {
			detail += fmt.Sprintf(" $%.4f", *x.CostUSD)
		}
		lines = append(lines, detail)
	}

	fields := x.Fields()
	engine, _ := fields["ocr_engine"].(string)
	if ms, ok := core.ToFloat(fields["ocr_ms"]); ok && engine != "" {
		detail := fmt.Sprintf("  └─ OCR: %s %.0fms", engine, ms)
		if chars, ok := fields["ocr_chars"]; ok && truthy(chars) {
			detail += ", " + number(chars) + "ch"
		}
		lines = append(lines, detail)
	}

	return lines
}

func (r *renderer) dataFlow(steps []*core.LogEntry) string {
	var parts []string
	for _, e := range steps {
		x := &e.Extra
		if x.DataSizeKB != nil && *x.DataSizeKB > 0 {
			parts = append(parts, fmt.Sprintf("%s:%.0fKB", x.StepName, *x.DataSizeKB))
		}
		if positive(x.ContextLength) {
			parts = append(parts, fmt.Sprintf("ctx:%dch", *x.ContextLength))
		}
		if positive(x.TokensIn) && positive(x.TokensOut) {
			parts = append(parts, fmt.Sprintf("llm:%d→%dtok", *x.TokensIn, *x.TokensOut))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return r.paint(r.dim, "DATA") + " " + strings.Join(parts, " → ")
}

func (r *renderer) footer(completion *core.LogEntry, steps []*core.LogEntry) string {
	var totalMS, totalCost float64
	errorCount := 0

	for _, s := range steps {
		if s.Exception != "" {
			errorCount++
		}
	}

	if completion != nil {
		if completion.Extra.TotalMS != nil {
			totalMS = *completion.Extra.TotalMS
		}
		if completion.Extra.TotalCost != nil {
			totalCost = *completion.Extra.TotalCost
		}
	} else {
		for _, s := range steps {
			if s.DurationMS != nil {
				totalMS += *s.DurationMS
			}
			if s.Extra.CostUSD != nil {
				totalCost += *s.Extra.CostUSD
			}
		}
	}

	parts := []string{fmt.Sprintf("%.0fms", totalMS)}
	if totalCost > 0 {
		parts = append(parts, fmt.Sprintf("$%.4f", totalCost))
	}
	if errorCount > 0 {
		parts = append(parts, r.paint(r.red, fmt.Sprintf("%d errors", errorCount)))
	}

	skipped := 0
	for _, s := range steps {
		if s.Extra.Decision == "skipped" {
			skipped++
		}
	}
	executed := len(steps) - skipped - errorCount
	parts = append(parts, fmt.Sprintf("%d/%d steps", executed, len(steps)))

	return strings.Join(parts, " │ ")
}

func (r *renderer) costLine(sessionCost float64, recent []float64) string {
	if sessionCost <= 0 {
		return ""
	}
	parts := []string{fmt.Sprintf("Session: $%.4f", sessionCost)}
	if len(recent) > 0 {
		var sum float64
		for _, c := range recent {
			sum += c
		}
		parts = append(parts, fmt.Sprintf("avg/tick: $%.4f", sum/float64(len(recent))))
	}
	return r.paint(r.dim, "COST") + " " + strings.Join(parts, " │ ")
}

func positive(v *int64) bool {
	return v != nil && *v > 0
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	}
	f, ok := core.ToFloat(v)
	return !ok || f != 0
}

// number renders integral floats without a fractional part
func number(v any) string {
	switch val := v.(type) {
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
