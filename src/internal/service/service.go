// FILE: callwisp/src/internal/service/service.go
package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/core"
	"callwisp/src/internal/filter"
	"callwisp/src/internal/instrument"
	"callwisp/src/internal/logger"
	"callwisp/src/internal/sink"

	"github.com/lixenwraith/log"
)

const recentQueryTimeout = 5 * time.Second

// Service owns a configured instrumentation Logger, the sink chain behind it and the
// instrumenter bound to it.
type Service struct {
	cfg     *config.Config
	diag    *log.Logger
	emitter *logger.Logger
	instr   *instrument.Instrumenter
	funcs   *instrument.Registry

	memory *sink.MemorySink
	store  *sink.SQLSink
	stages map[string]sink.Sink

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewService builds the sink chain described by cfg. Decorators wrap the terminal sinks
// innermost first: llm, diff, ring, buffer, pipeline, webhook, env tagging.
func NewService(cfg *config.Config, diag *log.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	s := &Service{
		cfg:    cfg,
		diag:   diag,
		stages: make(map[string]sink.Sink),
	}

	head, err := s.buildChain(sink.DefaultRegistry())
	if err != nil {
		return nil, err
	}

	var filterFn func(*core.LogEntry) bool
	if len(cfg.Logger.Filters) > 0 {
		chain, err := filter.NewChain(cfg.Logger.Filters, diag)
		if err != nil {
			_ = head.Close()
			return nil, fmt.Errorf("logger filters: %w", err)
		}
		filterFn = chain.Apply
	}

	opts := logger.Options{
		Name:   cfg.Logger.Name,
		Level:  cfg.Logger.Level,
		Filter: filterFn,
		Logger: diag,
	}
	if cfg.Logger.Echo {
		opts.Echo = os.Stderr
	}
	s.emitter = logger.New(opts, head)

	s.funcs = instrument.NewRegistry()
	s.instr = instrument.New(s.emitter, s.instrumentOptions()...).WithRegistry(s.funcs)

	if diag != nil {
		diag.Info("msg", "Logger configured",
			"component", "service",
			"logger", cfg.Logger.Name,
			"sinks", len(cfg.Logger.Sinks),
			"routes", len(cfg.Routes),
			"stages", s.stageNames())
	}
	return s, nil
}

func (s *Service) instrumentOptions() []instrument.Option {
	ic := s.cfg.Instrument
	opts := []instrument.Option{instrument.WithModule(s.cfg.Logger.Name)}
	if ic.Level != "" {
		opts = append(opts, instrument.WithLevel(core.NormalizeLevel(ic.Level)))
	}
	if mode, ok := instrument.ParseMode(ic.Mode); ok {
		opts = append(opts, instrument.WithMode(mode))
	}
	if ic.SampleRate > 0 && ic.SampleRate < 1 {
		opts = append(opts, instrument.WithSampleRate(ic.SampleRate))
	}
	if ic.BinaryThreshold > 0 {
		opts = append(opts, instrument.SummarizeBinary(int(ic.BinaryThreshold)))
	}
	return opts
}

// Logger returns the configured instrumentation logger
func (s *Service) Logger() *logger.Logger {
	return s.emitter
}

// Instrumenter returns an instrumenter emitting to the configured logger
func (s *Service) Instrumenter() *instrument.Instrumenter {
	return s.instr
}

// Functions returns the registry of instrumented functions
func (s *Service) Functions() *instrument.Registry {
	return s.funcs
}

// Memory returns the first memory sink among the terminal sinks, or nil
func (s *Service) Memory() *sink.MemorySink {
	return s.memory
}

// Store returns the first SQL sink among the terminal sinks, or nil
func (s *Service) Store() *sink.SQLSink {
	return s.store
}

// Recent answers entry queries from the memory sink, or from the SQL sink when no
// memory sink is configured
func (s *Service) Recent(level string, limit int) []*core.LogEntry {
	if s.memory != nil {
		return s.memory.Recent(level, limit)
	}
	if s.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), recentQueryTimeout)
	defer cancel()
	entries, err := s.store.Recent(ctx, level, limit)
	if err != nil {
		if s.diag != nil {
			s.diag.Warn("msg", "Recent entries query failed",
				"component", "service",
				"error", err)
		}
		return nil
	}
	return entries
}

// Stage returns a decorator in the chain by name ("llm", "diff", "ring", "buffer",
// "pipeline", "webhook", "env", "router")
func (s *Service) Stage(name string) (sink.Sink, bool) {
	st, ok := s.stages[name]
	return st, ok
}

func (s *Service) stageNames() string {
	names := make([]string, 0, len(s.stages))
	for _, n := range []string{"router", "binary", "llm", "diff", "ring", "buffer", "pipeline", "webhook", "env"} {
		if _, ok := s.stages[n]; ok {
			names = append(names, n)
		}
	}
	return strings.Join(names, ",")
}

// GetGlobalStats returns logger counters and per-stage sink statistics
func (s *Service) GetGlobalStats() map[string]any {
	ls := s.emitter.GetStats()
	stages := make(map[string]any, len(s.stages))
	for name, st := range s.stages {
		if sp, ok := st.(sink.StatsProvider); ok {
			stages[name] = sp.GetStats()
		}
	}
	return map[string]any{
		"logger":      ls.Name,
		"sinks":       ls.Sinks,
		"emitted":     ls.Emitted,
		"dropped":     ls.Dropped,
		"sink_errors": ls.SinkErrors,
		"functions":   s.funcs.Len(),
		"stages":      stages,
	}
}

// Shutdown closes the logger and every sink behind it. Safe to call more than once.
func (s *Service) Shutdown() error {
	s.shutdownOnce.Do(func() {
		if s.diag != nil {
			s.diag.Info("msg", "Service shutdown initiated", "component", "service")
		}
		s.shutdownErr = s.emitter.Close()
		if s.diag != nil {
			s.diag.Info("msg", "Service shutdown complete", "component", "service")
		}
	})
	return s.shutdownErr
}
