// FILE: callwisp/src/internal/sink/llm.go
package sink

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"

	"github.com/lixenwraith/log"
	"github.com/sashabaranov/go-openai"
)

// DefaultAnalysisPrompt is the system prompt for root-cause analysis
const DefaultAnalysisPrompt = "You are a log analysis assistant. Given a log entry with an exception, " +
	"provide a concise root-cause analysis and a suggested fix. " +
	"Be specific and actionable. Max 2-3 sentences."

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(previous|above|all)\s+(instructions|prompts|rules)`),
	regexp.MustCompile(`(?i)ignore\s+all\s+previous\s+(instructions|prompts|rules)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s+`),
	regexp.MustCompile(`(?i)system\s*:\s*`),
	regexp.MustCompile(`(?i)<\|?(system|im_start|endoftext)\|?>`),
	regexp.MustCompile(`(?i)(?:do\s+not|don'?t)\s+follow\s+(your|the)\s+(rules|instructions)`),
	regexp.MustCompile(`(?i)reveal\s+(your|the)\s+(system|initial)\s+(prompt|instructions)`),
	regexp.MustCompile(`(?i)act\s+as\s+(if|though)\s+you`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)DAN\s+mode`),
}

// DetectPromptInjection returns a finding for the first injection pattern in text, or ""
func DetectPromptInjection(text string) string {
	if text == "" {
		return ""
	}
	for _, re := range injectionPatterns {
		if m := re.FindString(text); m != "" {
			return fmt.Sprintf("PROMPT_INJECTION_DETECTED: '%s' in input", m)
		}
	}
	return ""
}

// ScanEntryForInjection scans string args, string kwargs and the "message" extra field
func ScanEntryForInjection(entry *core.LogEntry) string {
	var texts []string
	for _, a := range entry.Args {
		if s, ok := a.(string); ok {
			texts = append(texts, s)
		}
	}
	for _, v := range entry.Kwargs {
		if s, ok := v.(string); ok {
			texts = append(texts, s)
		}
	}
	if msg, ok := entry.Extra.Fields()["message"].(string); ok {
		texts = append(texts, msg)
	}

	for _, text := range texts {
		if finding := DetectPromptInjection(text); finding != "" {
			return finding
		}
	}
	return ""
}

// Analyzer produces a short analysis for a prompt pair
type Analyzer interface {
	Analyze(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIAnalyzer calls an OpenAI-compatible chat completion endpoint
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
}

// NewOpenAIAnalyzer creates an analyzer. An empty baseURL uses the public API.
func NewOpenAIAnalyzer(apiKey, baseURL, model string) *OpenAIAnalyzer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIAnalyzer{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Analyze implements Analyzer
func (o *OpenAIAnalyzer) Analyze(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   200,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// LLMOptions configures an LLMSink
type LLMOptions struct {
	SystemPrompt    string
	AnalyzeLevels   []string
	Async           bool
	DetectInjection bool
	Timeout         time.Duration
	OnAnalysis      func(entry *core.LogEntry, analysis string)

	// Async queue capacity; entries arriving while it is full are dropped
	QueueSize int
}

// DefaultLLMQueueSize is the async queue capacity used when QueueSize is unset
const DefaultLLMQueueSize = 1000

// LLMOptionsFromConfig maps the [llm] section onto sink options
func LLMOptionsFromConfig(cfg *config.LLMOptions) LLMOptions {
	return LLMOptions{
		SystemPrompt:    cfg.SystemPrompt,
		AnalyzeLevels:   cfg.AnalyzeLevels,
		Async:           cfg.Async,
		DetectInjection: cfg.DetectInjection,
		Timeout:         time.Duration(cfg.TimeoutMS) * time.Millisecond,
		QueueSize:       int(cfg.QueueSize),
	}
}

// LLMSink flags prompt-injection attempts and attaches root-cause analysis to failed
// entries before forwarding them to the delegate. In async mode one worker processes
// entries in arrival order.
type LLMSink struct {
	analyzer Analyzer
	delegate Sink
	opts     LLMOptions
	levels   map[string]bool
	logger   *log.Logger

	queue     chan *core.LogEntry
	queueMu   sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	analyses   atomic.Uint64
	injections atomic.Uint64
	dropped    atomic.Uint64

	counters
}

// NewLLMSink creates an LLM sink. delegate may be nil. A nil analyzer is accepted only
// with DetectInjection set and disables analysis.
func NewLLMSink(analyzer Analyzer, delegate Sink, opts LLMOptions, logger *log.Logger) (*LLMSink, error) {
	if analyzer == nil && !opts.DetectInjection {
		return nil, fmt.Errorf("llm sink: analyzer is required")
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultAnalysisPrompt
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultLLMQueueSize
	}

	levels := make(map[string]bool)
	for _, l := range opts.AnalyzeLevels {
		levels[core.NormalizeLevel(l)] = true
	}
	if len(levels) == 0 {
		levels[core.LevelError] = true
	}

	s := &LLMSink{
		analyzer: analyzer,
		delegate: delegate,
		opts:     opts,
		levels:   levels,
		logger:   logger,
	}
	s.startCounters()

	if opts.Async {
		s.queue = make(chan *core.LogEntry, opts.QueueSize)
		s.wg.Add(1)
		go s.worker()
	}
	return s, nil
}

// Write processes the entry inline, or queues it in async mode. A full queue drops the
// entry instead of blocking the caller.
func (s *LLMSink) Write(entry *core.LogEntry) error {
	if !s.opts.Async {
		return s.process(entry)
	}

	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.queue <- entry:
	default:
		s.dropped.Add(1)
		if s.logger != nil {
			s.logger.Warn("msg", "LLM queue full, entry dropped",
				"component", "llm_sink",
				"function", entry.FunctionName)
		}
	}
	return nil
}

func (s *LLMSink) worker() {
	defer s.wg.Done()
	for entry := range s.queue {
		if err := s.process(entry); err != nil && s.logger != nil {
			s.logger.Warn("msg", "Delegate write failed",
				"component", "llm_sink",
				"function", entry.FunctionName,
				"error", err)
		}
	}
}

func (s *LLMSink) process(entry *core.LogEntry) error {
	if s.opts.DetectInjection {
		if finding := ScanEntryForInjection(entry); finding != "" {
			s.injections.Add(1)
			entry.Extra.PromptInjection = finding
			if entry.LLMAnalysis == "" {
				entry.LLMAnalysis = finding
			} else {
				entry.LLMAnalysis += " | " + finding
			}
		}
	}

	if s.analyzer != nil && s.levels[core.NormalizeLevel(entry.Level)] && entry.Exception != "" {
		analysis := s.analyze(entry)
		entry.LLMAnalysis = analysis
		s.analyses.Add(1)
		if s.opts.OnAnalysis != nil {
			func() {
				defer func() { _ = recover() }()
				s.opts.OnAnalysis(entry, analysis)
			}()
		}
	}
	s.processed()

	if s.delegate != nil {
		return safeWrite(s.delegate, entry)
	}
	return nil
}

// analyze never fails; errors become the analysis text
func (s *LLMSink) analyze(entry *core.LogEntry) string {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()

	analysis, err := s.analyzer.Analyze(ctx, s.opts.SystemPrompt, BuildAnalysisPrompt(entry))
	if err != nil {
		s.failed()
		if s.logger != nil {
			s.logger.Warn("msg", "LLM analysis failed",
				"component", "llm_sink",
				"function", entry.FunctionName,
				"error", err)
		}
		return fmt.Sprintf("[callwisp] LLM analysis failed: %v", err)
	}
	return analysis
}

// BuildAnalysisPrompt renders the user prompt for one entry
func BuildAnalysisPrompt(entry *core.LogEntry) string {
	parts := []string{
		"Function: " + entry.FunctionName,
		"Module: " + entry.Module,
		"Args: " + core.Repr(entry.Args),
		"Kwargs: " + core.Repr(entry.Kwargs),
	}
	if entry.Exception != "" {
		parts = append(parts, fmt.Sprintf("Exception: %s: %s", entry.ExceptionType, entry.Exception))
	}
	if entry.Traceback != "" {
		lines := strings.Split(strings.TrimSpace(entry.Traceback), "\n")
		if len(lines) > 10 {
			lines = lines[len(lines)-10:]
		}
		parts = append(parts, "Traceback (last 10 lines):\n"+strings.Join(lines, "\n"))
	}
	if entry.Environment != "" {
		parts = append(parts, "Environment: "+entry.Environment)
	}
	if entry.Version != "" {
		parts = append(parts, "Version: "+entry.Version)
	}
	return strings.Join(parts, "\n")
}

// Close drains queued entries and closes the delegate
func (s *LLMSink) Close() error {
	s.closeOnce.Do(func() {
		if s.opts.Async {
			s.queueMu.Lock()
			s.closed = true
			close(s.queue)
			s.queueMu.Unlock()
			s.wg.Wait()
		}
		if s.delegate != nil {
			s.closeErr = safeClose(s.delegate)
		}
	})
	return s.closeErr
}

// GetStats returns sink statistics
func (s *LLMSink) GetStats() SinkStats {
	return s.stats("llm", map[string]any{
		"async":      s.opts.Async,
		"analyses":   s.analyses.Load(),
		"injections": s.injections.Load(),
		"queue_size": s.opts.QueueSize,
		"dropped":    s.dropped.Load(),
	})
}
