// FILE: callwisp/src/internal/sink/prometheus.go
package sink

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"sync"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"

	"github.com/lixenwraith/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// DurationBuckets are the call duration histogram bounds in seconds
var DurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

var metricPrefixRe = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)

// PrometheusSink exports call counts, errors and durations as metrics on a private registry
type PrometheusSink struct {
	registry *prometheus.Registry
	prefix   string
	path     string
	delegate Sink
	logger   *log.Logger

	CallsTotal      *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	DurationSeconds *prometheus.HistogramVec
	LastCall        *prometheus.GaugeVec

	server    *fasthttp.Server
	listener  net.Listener
	closeOnce sync.Once
	closeErr  error

	counters
}

// NewPrometheusSink registers the metrics and, when a port is set, serves them over HTTP
func NewPrometheusSink(opts *config.PrometheusSinkOptions, delegate Sink, logger *log.Logger) (*PrometheusSink, error) {
	if opts == nil {
		opts = &config.PrometheusSinkOptions{}
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "callwisp"
	}
	if !metricPrefixRe.MatchString(prefix) {
		return nil, fmt.Errorf("prometheus sink: invalid metric prefix %q", prefix)
	}
	path := opts.Path
	if path == "" {
		path = "/metrics"
	}

	p := &PrometheusSink{
		registry: prometheus.NewRegistry(),
		prefix:   prefix,
		path:     path,
		delegate: delegate,
		logger:   logger,
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_calls_total",
			Help: "Total number of function calls logged",
		}, []string{"function", "module", "level"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_errors_total",
			Help: "Total number of ERROR-level function calls",
		}, []string{"function", "module"}),
		DurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_duration_seconds",
			Help:    "Function call duration in seconds",
			Buckets: DurationBuckets,
		}, []string{"function", "module"}),
		LastCall: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_last_call_timestamp",
			Help: "Unix timestamp of the last call to this function",
		}, []string{"function"}),
	}
	p.registry.MustRegister(p.CallsTotal, p.ErrorsTotal, p.DurationSeconds, p.LastCall)
	p.startCounters()

	if opts.Port > 0 {
		if err := p.serve(fmt.Sprintf(":%d", opts.Port)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PrometheusSink) serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("prometheus sink: failed to listen on %s: %w", addr, err)
	}

	metrics := fasthttpadaptor.NewFastHTTPHandler(p.Handler())
	p.listener = ln
	p.server = &fasthttp.Server{
		Name: "callwisp-metrics",
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) != p.path {
				ctx.SetStatusCode(fasthttp.StatusNotFound)
				return
			}
			metrics(ctx)
		},
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := p.server.Serve(ln); err != nil && p.logger != nil {
			p.logger.Error("msg", "Metrics server failed",
				"component", "prometheus_sink",
				"addr", addr,
				"error", err)
		}
	}()

	if p.logger != nil {
		p.logger.Info("msg", "Metrics endpoint listening",
			"component", "prometheus_sink",
			"addr", ln.Addr().String(),
			"path", p.path)
	}
	return nil
}

// Handler exposes the private registry in the text exposition format
func (p *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the private metric registry
func (p *PrometheusSink) Registry() *prometheus.Registry {
	return p.registry
}

// Addr returns the metrics listener address, empty when not serving
func (p *PrometheusSink) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Write records metrics for the entry and forwards it to the delegate
func (p *PrometheusSink) Write(entry *core.LogEntry) error {
	fn := entry.FunctionName
	if fn == "" {
		fn = "unknown"
	}
	module := entry.Module
	if module == "" {
		module = "unknown"
	}
	level := core.NormalizeLevel(entry.Level)

	p.CallsTotal.WithLabelValues(fn, module, level).Inc()
	if level == core.LevelError {
		p.ErrorsTotal.WithLabelValues(fn, module).Inc()
	}
	if entry.DurationMS != nil {
		p.DurationSeconds.WithLabelValues(fn, module).Observe(*entry.DurationMS / 1000.0)
	}
	p.LastCall.WithLabelValues(fn).SetToCurrentTime()
	p.processed()

	if p.delegate != nil {
		return p.delegate.Write(entry)
	}
	return nil
}

// Close stops the metrics server and closes the delegate
func (p *PrometheusSink) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		if p.server != nil {
			if err := p.server.Shutdown(); err != nil {
				errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		if p.delegate != nil {
			if err := safeClose(p.delegate); err != nil {
				errs = append(errs, err)
			}
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}

// GetStats returns sink statistics
func (p *PrometheusSink) GetStats() SinkStats {
	return p.stats("prometheus", map[string]any{
		"prefix": p.prefix,
		"addr":   p.Addr(),
	})
}
