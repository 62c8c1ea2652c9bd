// FILE: callwisp/src/internal/sink/http_client.go
package sink

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"
	"callwisp/src/internal/format"
	"callwisp/src/internal/tls"
	"callwisp/src/internal/version"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lixenwraith/log"
	"github.com/valyala/fasthttp"
)

// HTTPClientSink forwards entries in batches to a remote collector.
// The body is {"entries": [...]} with one flat record per entry.
type HTTPClientSink struct {
	// Configuration
	config *config.HTTPClientSinkOptions

	// Network
	client     *fasthttp.Client
	tlsManager *tls.ClientManager

	// Application
	formatter *format.JSONFormatter
	logger    *log.Logger

	// Runtime
	done      chan struct{}
	wg        sync.WaitGroup // batch timer
	sendWg    sync.WaitGroup // in-flight background sends
	closeOnce sync.Once

	// Batching
	batch   []*core.LogEntry
	batchMu sync.Mutex
	closed  bool

	// Statistics
	totalBatches      atomic.Uint64
	failedBatches     atomic.Uint64
	lastBatchSent     atomic.Int64 // unix nanos
	activeConnections atomic.Int64

	counters
}

// NewHTTPClientSink creates a new HTTP client sink and starts its batch timer.
func NewHTTPClientSink(opts *config.HTTPClientSinkOptions, logger *log.Logger) (*HTTPClientSink, error) {
	if opts == nil {
		return nil, fmt.Errorf("HTTP client sink options cannot be nil")
	}
	if !strings.HasPrefix(opts.URL, "http://") && !strings.HasPrefix(opts.URL, "https://") {
		return nil, fmt.Errorf("HTTP client sink: invalid URL %q", opts.URL)
	}

	defaults := config.DefaultHTTPClientSinkOptions()
	if opts.BatchSize < 1 {
		opts.BatchSize = defaults.BatchSize
	}
	if opts.BatchDelayMS < 1 {
		opts.BatchDelayMS = defaults.BatchDelayMS
	}
	if opts.Timeout < 1 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff < 1 {
		opts.RetryBackoff = 1
	}

	formatter, err := format.NewJSONFormatter(nil, logger)
	if err != nil {
		return nil, err
	}

	h := &HTTPClientSink{
		config:    opts,
		batch:     make([]*core.LogEntry, 0, opts.BatchSize),
		done:      make(chan struct{}),
		logger:    logger,
		formatter: formatter,
	}
	h.startCounters()

	// Create fasthttp client
	h.client = &fasthttp.Client{
		MaxConnsPerHost:               10,
		MaxIdleConnDuration:           10 * time.Second,
		ReadTimeout:                   time.Duration(opts.Timeout) * time.Second,
		WriteTimeout:                  time.Duration(opts.Timeout) * time.Second,
		DisableHeaderNamesNormalizing: true,
	}
	if strings.HasPrefix(opts.URL, "https://") {
		mgr, err := tls.NewClientManager(&opts.TLS, logger)
		if err != nil {
			return nil, fmt.Errorf("HTTP client sink: %w", err)
		}
		h.tlsManager = mgr
		h.client.TLSConfig = mgr.Config()
	}

	h.wg.Add(1)
	go h.batchTimer()

	if logger != nil {
		logger.Info("msg", "HTTP client sink started",
			"component", "http_client_sink",
			"url", opts.URL,
			"batch_size", opts.BatchSize,
			"batch_delay_ms", opts.BatchDelayMS)
	}
	return h, nil
}

// Write adds the entry to the current batch, sending it in the background when full
func (h *HTTPClientSink) Write(entry *core.LogEntry) error {
	h.batchMu.Lock()
	if h.closed {
		h.batchMu.Unlock()
		return nil
	}
	h.processed()
	h.batch = append(h.batch, entry)

	if int64(len(h.batch)) >= h.config.BatchSize {
		batch := h.takeBatchLocked()
		h.sendWg.Add(1)
		h.batchMu.Unlock()

		go func() {
			defer h.sendWg.Done()
			h.sendBatch(batch)
		}()
		return nil
	}
	h.batchMu.Unlock()
	return nil
}

func (h *HTTPClientSink) takeBatchLocked() []*core.LogEntry {
	batch := h.batch
	h.batch = make([]*core.LogEntry, 0, h.config.BatchSize)
	return batch
}

// Close stops the timer, waits for in-flight sends and sends any remaining entries
func (h *HTTPClientSink) Close() error {
	h.closeOnce.Do(func() {
		h.batchMu.Lock()
		h.closed = true
		h.batchMu.Unlock()

		close(h.done)
		h.wg.Wait()
		h.sendWg.Wait()

		h.batchMu.Lock()
		batch := h.takeBatchLocked()
		h.batchMu.Unlock()
		if len(batch) > 0 {
			h.sendBatch(batch)
		}

		if h.logger != nil {
			h.logger.Info("msg", "HTTP client sink stopped",
				"component", "http_client_sink",
				"total_processed", h.totalProcessed.Load(),
				"total_batches", h.totalBatches.Load(),
				"failed_batches", h.failedBatches.Load())
		}
	})
	return nil
}

// GetStats returns the sink's statistics.
func (h *HTTPClientSink) GetStats() SinkStats {
	h.batchMu.Lock()
	pendingEntries := len(h.batch)
	h.batchMu.Unlock()

	var lastBatch time.Time
	if ns := h.lastBatchSent.Load(); ns > 0 {
		lastBatch = time.Unix(0, ns)
	}

	return h.stats("http_client", map[string]any{
		"url":                h.config.URL,
		"batch_size":         h.config.BatchSize,
		"pending_entries":    pendingEntries,
		"total_batches":      h.totalBatches.Load(),
		"failed_batches":     h.failedBatches.Load(),
		"last_batch_sent":    lastBatch,
		"active_connections": h.activeConnections.Load(),
		"jwt":                h.config.JWTSecret != "",
		"tls":                h.tlsManager.GetStats(),
	})
}

// batchTimer periodically triggers sending of the current batch.
func (h *HTTPClientSink) batchTimer() {
	defer h.wg.Done()

	ticker := time.NewTicker(time.Duration(h.config.BatchDelayMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.batchMu.Lock()
			if len(h.batch) > 0 {
				batch := h.takeBatchLocked()
				h.batchMu.Unlock()
				h.sendBatch(batch)
			} else {
				h.batchMu.Unlock()
			}

		case <-h.done:
			return
		}
	}
}

// bearerToken mints a short-lived HS256 token for one request
func (h *HTTPClientSink) bearerToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    h.config.JWTIssuer,
		Subject:   "callwisp",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.config.JWTSecret))
}

// sendBatch sends a batch of log entries to the remote endpoint with retry logic.
func (h *HTTPClientSink) sendBatch(batch []*core.LogEntry) {
	h.activeConnections.Add(1)
	defer h.activeConnections.Add(-1)

	h.totalBatches.Add(1)
	h.lastBatchSent.Store(time.Now().UnixNano())

	entries, err := h.formatter.FormatBatch(batch)
	if err == nil {
		entries, err = json.Marshal(map[string]json.RawMessage{"entries": entries})
	}
	if err != nil {
		h.logError("Failed to format batch", "error", err, "batch_size", len(batch))
		h.batchFailed(len(batch))
		return
	}
	body := entries

	var authHeader string
	if h.config.JWTSecret != "" {
		token, err := h.bearerToken()
		if err != nil {
			h.logError("Failed to sign bearer token", "error", err)
			h.batchFailed(len(batch))
			return
		}
		authHeader = "Bearer " + token
	}

	// Retry logic
	var lastErr error
	retryDelay := time.Duration(h.config.RetryDelayMS) * time.Millisecond
	timeout := time.Duration(h.config.Timeout) * time.Second

	for attempt := int64(0); attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelay)

			// Cap at timeout, guarding against overflow
			newDelay := time.Duration(float64(retryDelay) * h.config.RetryBackoff)
			if newDelay > timeout || newDelay < retryDelay {
				retryDelay = timeout
			} else {
				retryDelay = newDelay
			}
		}

		// Acquire resources inside loop, release immediately after use
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()

		req.SetRequestURI(h.config.URL)
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		req.Header.Set("User-Agent", version.UserAgent())
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		req.SetBody(body)

		err := h.client.DoTimeout(req, resp, timeout)

		statusCode := resp.StatusCode()
		responseBody := append([]byte(nil), resp.Body()...)

		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)

		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			h.logWarn("HTTP request failed",
				"attempt", attempt+1,
				"max_retries", h.config.MaxRetries,
				"error", err)
			continue
		}

		if statusCode >= 200 && statusCode < 300 {
			if h.logger != nil {
				h.logger.Debug("msg", "Batch sent successfully",
					"component", "http_client_sink",
					"batch_size", len(batch),
					"status_code", statusCode,
					"attempt", attempt+1)
			}
			return
		}

		lastErr = fmt.Errorf("server returned status %d: %s", statusCode, responseBody)

		// Don't retry on 4xx errors (client errors)
		if statusCode >= 400 && statusCode < 500 {
			h.logError("Batch rejected by server",
				"status_code", statusCode,
				"response", string(responseBody),
				"batch_size", len(batch))
			h.batchFailed(len(batch))
			return
		}

		h.logWarn("Server returned error status",
			"attempt", attempt+1,
			"status_code", statusCode,
			"response", string(responseBody))
	}

	h.logError("Failed to send batch after all retries",
		"batch_size", len(batch),
		"retries", h.config.MaxRetries,
		"last_error", lastErr)
	h.batchFailed(len(batch))
}

func (h *HTTPClientSink) batchFailed(size int) {
	h.failedBatches.Add(1)
	h.totalFailed.Add(uint64(size))
}

func (h *HTTPClientSink) logWarn(msg string, kv ...any) {
	if h.logger != nil {
		h.logger.Warn(append([]any{"msg", msg, "component", "http_client_sink"}, kv...)...)
	}
}

func (h *HTTPClientSink) logError(msg string, kv ...any) {
	if h.logger != nil {
		h.logger.Error(append([]any{"msg", msg, "component", "http_client_sink"}, kv...)...)
	}
}
