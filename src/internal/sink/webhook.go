// FILE: callwisp/src/internal/sink/webhook.go
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"
	"callwisp/src/internal/version"

	"github.com/goccy/go-json"
	"github.com/lixenwraith/log"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

const webhookQueueSize = 256

// WebhookSink posts alerts for selected levels to a chat webhook and forwards every
// entry to an optional delegate. Delivery is asynchronous and never fails a Write.
type WebhookSink struct {
	url      string
	format   string
	levels   map[string]bool
	headers  map[string]string
	timeout  time.Duration
	delegate Sink
	logger   *log.Logger

	client  *fasthttp.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[int]

	queue     chan []byte
	queueMu   sync.RWMutex
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	sent     atomic.Uint64
	dropped  atomic.Uint64
	rejected atomic.Uint64 // refused by the open circuit

	counters
}

// NewWebhookSink creates a webhook sink and starts its delivery worker
func NewWebhookSink(opts *config.WebhookOptions, delegate Sink, logger *log.Logger) (*WebhookSink, error) {
	if opts == nil || opts.URL == "" {
		return nil, fmt.Errorf("webhook sink: url is required")
	}
	if !strings.HasPrefix(opts.URL, "http://") && !strings.HasPrefix(opts.URL, "https://") {
		return nil, fmt.Errorf("webhook sink: invalid URL %q", opts.URL)
	}

	format := strings.ToLower(opts.Format)
	switch format {
	case "":
		format = "slack"
	case "slack", "discord", "teams", "raw":
	default:
		return nil, fmt.Errorf("webhook sink: unknown format %q", opts.Format)
	}

	levels := make(map[string]bool)
	for _, l := range opts.Levels {
		levels[core.NormalizeLevel(l)] = true
	}
	if len(levels) == 0 {
		levels[core.LevelError] = true
	}

	timeout := time.Duration(opts.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	limit := rate.Limit(opts.RateLimit)
	if opts.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := int(opts.Burst)
	if burst < 1 {
		burst = 1
	}

	failures := uint32(opts.BreakerFailures)
	if opts.BreakerFailures < 1 {
		failures = 5
	}

	w := &WebhookSink{
		url:      opts.URL,
		format:   format,
		levels:   levels,
		headers:  opts.Headers,
		timeout:  timeout,
		delegate: delegate,
		logger:   logger,
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
		queue:   make(chan []byte, webhookQueueSize),
	}
	w.breaker = gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:    "webhook",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("msg", "Webhook circuit state changed",
					"component", "webhook_sink",
					"from", from.String(),
					"to", to.String())
			}
		},
	})
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.startCounters()

	w.wg.Add(1)
	go w.deliveryLoop()
	return w, nil
}

// Write queues an alert for matching levels and forwards the entry to the delegate
func (w *WebhookSink) Write(entry *core.LogEntry) error {
	if w.levels[core.NormalizeLevel(entry.Level)] {
		w.enqueue(entry)
	}
	if w.delegate != nil {
		return w.delegate.Write(entry)
	}
	return nil
}

func (w *WebhookSink) enqueue(entry *core.LogEntry) {
	payload, err := json.Marshal(w.buildPayload(entry))
	if err != nil {
		w.failed()
		return
	}

	w.queueMu.RLock()
	defer w.queueMu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- payload:
		w.processed()
	default:
		w.dropped.Add(1)
		if w.logger != nil {
			w.logger.Warn("msg", "Webhook queue full, alert dropped",
				"component", "webhook_sink",
				"function", entry.FunctionName)
		}
	}
}

func (w *WebhookSink) buildPayload(entry *core.LogEntry) any {
	if w.format == "raw" {
		return entry
	}

	level := core.NormalizeLevel(entry.Level)
	call := fmt.Sprintf("%s: %s()", level, entry.FunctionName)
	title := fmt.Sprintf("🚨 %s: `%s()`", level, entry.FunctionName)

	parts := []string{fmt.Sprintf("**Function:** `%s`", entry.FunctionName)}
	if rec := entry.Record(); rec.Args != "" {
		parts = append(parts, fmt.Sprintf("**Args:** `%s`", rec.Args))
	}
	if entry.Exception != "" {
		parts = append(parts, fmt.Sprintf("**Exception:** `%s: %s`", entry.ExceptionType, entry.Exception))
	}
	if entry.DurationMS != nil {
		parts = append(parts, fmt.Sprintf("**Duration:** %.2fms", *entry.DurationMS))
	}
	if entry.Environment != "" {
		parts = append(parts, "**Env:** "+entry.Environment)
	}
	if entry.TraceID != "" {
		parts = append(parts, fmt.Sprintf("**Trace:** `%s`", entry.TraceID))
	}
	body := strings.Join(parts, "\n")

	color, themeColor := 0xFFAA00, "FFAA00"
	if level == core.LevelError {
		color, themeColor = 0xFF0000, "FF0000"
	}

	switch w.format {
	case "discord":
		return map[string]any{
			"content": title,
			"embeds": []map[string]any{{
				"title":       call,
				"description": body,
				"color":       color,
			}},
		}
	case "teams":
		return map[string]any{
			"@type":      "MessageCard",
			"summary":    title,
			"themeColor": themeColor,
			"title":      call,
			"text":       body,
		}
	default:
		return map[string]any{
			"text": title,
			"blocks": []map[string]any{
				{"type": "header", "text": map[string]any{"type": "plain_text", "text": call}},
				{"type": "section", "text": map[string]any{"type": "mrkdwn", "text": body}},
			},
		}
	}
}

func (w *WebhookSink) deliveryLoop() {
	defer w.wg.Done()

	for payload := range w.queue {
		if err := w.limiter.Wait(w.ctx); err != nil {
			w.dropped.Add(1)
			continue
		}

		_, err := w.breaker.Execute(func() (int, error) {
			return w.post(payload)
		})
		switch {
		case err == nil:
			w.sent.Add(1)
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			w.rejected.Add(1)
			w.failed()
		default:
			w.failed()
			if w.logger != nil {
				w.logger.Warn("msg", "Webhook delivery failed",
					"component", "webhook_sink",
					"error", err)
			}
		}
	}
}

func (w *WebhookSink) post(payload []byte) (int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(w.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	req.SetBody(payload)

	if err := w.client.DoTimeout(req, resp, w.timeout); err != nil {
		return 0, err
	}
	status := resp.StatusCode()
	if status >= 400 {
		return status, fmt.Errorf("webhook returned status %d", status)
	}
	return status, nil
}

// Close drains queued alerts within the request timeout, then closes the delegate
func (w *WebhookSink) Close() error {
	w.closeOnce.Do(func() {
		w.queueMu.Lock()
		w.closed = true
		close(w.queue)
		w.queueMu.Unlock()

		drained := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(2 * w.timeout):
			w.cancel()
			<-drained
		}
		w.cancel()

		if w.delegate != nil {
			w.closeErr = safeClose(w.delegate)
		}
	})
	return w.closeErr
}

// GetStats returns sink statistics
func (w *WebhookSink) GetStats() SinkStats {
	return w.stats("webhook", map[string]any{
		"format":           w.format,
		"sent":             w.sent.Load(),
		"dropped":          w.dropped.Load(),
		"breaker_rejected": w.rejected.Load(),
		"breaker_state":    w.breaker.State().String(),
	})
}
