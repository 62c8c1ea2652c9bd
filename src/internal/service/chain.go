// FILE: callwisp/src/internal/service/chain.go
package service

import (
	"fmt"
	"io"
	"os"
	"time"

	"callwisp/src/internal/config"
	"callwisp/src/internal/filter"
	"callwisp/src/internal/sink"

	"golang.org/x/term"
)

// buildChain creates the terminal sinks and wraps them in the enabled decorators.
// Each decorator owns its delegate, so on failure closing the current head releases
// every sink built so far.
func (s *Service) buildChain(reg *sink.Registry) (sink.Sink, error) {
	cfg := s.cfg

	terminals, err := reg.BuildAll(cfg.Logger.Sinks, cfg.Logger.SinkOptions, s.diag)
	if err != nil {
		return nil, fmt.Errorf("logger sinks: %w", err)
	}
	s.track(terminals...)

	var cur sink.Sink = sink.NewTee(terminals...)
	fail := func(err error) (sink.Sink, error) {
		_ = cur.Close()
		return nil, err
	}

	if len(cfg.Routes) > 0 {
		var fallback sink.Sink
		if len(terminals) > 0 {
			fallback = cur
		}
		router, err := s.buildRouter(reg, fallback)
		if err != nil {
			return fail(err)
		}
		cur = s.stage("router", router)
	}

	if cfg.Binary.Enabled {
		router, err := s.buildBinaryRouter(reg, cur)
		if err != nil {
			return fail(err)
		}
		cur = s.stage("binary", router)
	}

	if cfg.LLM.Enabled || cfg.LLM.DetectInjection {
		var analyzer sink.Analyzer
		opts := sink.LLMOptionsFromConfig(&cfg.LLM)
		if cfg.LLM.Enabled {
			analyzer = sink.NewOpenAIAnalyzer(llmAPIKey(&cfg.LLM), cfg.LLM.BaseURL, cfg.LLM.Model)
		} else {
			opts.Async = false
		}
		llm, err := sink.NewLLMSink(analyzer, cur, opts, s.diag)
		if err != nil {
			return fail(err)
		}
		cur = s.stage("llm", llm)
	}

	if cfg.Diff.Enabled {
		cur = s.stage("diff", sink.NewDiffTracker(cur, int(cfg.Diff.MaxEntries)))
	}

	if cfg.Ring.Enabled {
		cur = s.stage("ring", sink.NewRingBufferSink(cur, sink.RingOptions{
			Capacity:       int(cfg.Ring.Capacity),
			TriggerLevels:  cfg.Ring.TriggerLevels,
			ExcludeTrigger: !cfg.Ring.IncludeTrigger,
			FlushOnClose:   cfg.Ring.FlushOnClose,
		}, s.diag))
	}

	if cfg.Buffer.Enabled {
		cur = s.stage("buffer", sink.NewAsyncBufferedSink(cur, sink.BufferedOptions{
			BufferSize:     int(cfg.Buffer.BufferSize),
			FlushInterval:  time.Duration(cfg.Buffer.FlushIntervalMS) * time.Millisecond,
			NoFlushOnError: !cfg.Buffer.FlushOnError,
		}, s.diag))
	}

	if cfg.Pipeline.Enabled {
		out := pipelineOutput(cfg.Pipeline.Target)
		cur = s.stage("pipeline", sink.NewPipelineSink(cur, sink.PipelineOptions{
			Output:        out,
			Width:         int(cfg.Pipeline.Width),
			BufferTimeout: time.Duration(cfg.Pipeline.BufferTimeoutMS) * time.Millisecond,
			Color:         useColor(cfg.Pipeline.Color, out),
		}, s.diag))
	}

	if cfg.Webhook.Enabled {
		webhook, err := sink.NewWebhookSink(&cfg.Webhook, cur, s.diag)
		if err != nil {
			return fail(err)
		}
		cur = s.stage("webhook", webhook)
	}

	if cfg.Logger.EnvTagging || cfg.Logger.Environment != "" || cfg.Logger.Version != "" || cfg.Logger.TraceID != "" {
		cur = s.stage("env", sink.NewEnvTagger(cur, sink.EnvTaggerOptions{
			Environment: cfg.Logger.Environment,
			TraceID:     cfg.Logger.TraceID,
			Version:     cfg.Logger.Version,
			AutoDetect:  cfg.Logger.EnvTagging,
		}))
	}

	return cur, nil
}

func (s *Service) stage(name string, st sink.Sink) sink.Sink {
	s.stages[name] = st
	return st
}

// buildRouter wires one rule per configured route. Unmatched entries go to the default
// route when one is configured, otherwise to fallback.
func (s *Service) buildRouter(reg *sink.Registry, fallback sink.Sink) (*sink.DynamicRouter, error) {
	router := sink.NewDynamicRouter(nil, s.diag)
	hasDefault := false

	for i, route := range s.cfg.Routes {
		target, err := reg.Build(route.Sink, s.cfg.Logger.SinkOptions, s.diag)
		if err != nil {
			_ = router.Close()
			return nil, fmt.Errorf("routes[%d]: %w", i, err)
		}
		s.track(target)

		if route.Default {
			router.SetDefault(target)
			hasDefault = true
			continue
		}

		predicate, err := filter.RoutePredicate(route, s.diag)
		if err != nil {
			_ = target.Close()
			_ = router.Close()
			return nil, err
		}
		name := route.Name
		if name == "" {
			name = fmt.Sprintf("route-%d", i)
		}
		router.AddRule(name, predicate, target)
	}

	if !hasDefault && fallback != nil {
		router.SetDefault(fallback)
	}
	return router, nil
}

// buildBinaryRouter sends metadata-only entries to the light sink and large byte payloads
// to the optional heavy sink; everything else continues to full.
func (s *Service) buildBinaryRouter(reg *sink.Registry, full sink.Sink) (*sink.BinaryAwareRouter, error) {
	opts := s.cfg.Binary
	light, err := reg.Build(opts.LightSink, s.cfg.Logger.SinkOptions, s.diag)
	if err != nil {
		return nil, fmt.Errorf("binary light_sink: %w", err)
	}
	var heavy sink.Sink
	if opts.HeavySink != "" {
		if heavy, err = reg.Build(opts.HeavySink, s.cfg.Logger.SinkOptions, s.diag); err != nil {
			_ = light.Close()
			return nil, fmt.Errorf("binary heavy_sink: %w", err)
		}
	}
	router, err := sink.NewBinaryAwareRouter(light, full, heavy, int(opts.ThresholdBytes))
	if err != nil {
		_ = light.Close()
		if heavy != nil {
			_ = heavy.Close()
		}
		return nil, err
	}
	s.track(light)
	if heavy != nil {
		s.track(heavy)
	}
	return router, nil
}

// track remembers the first memory and SQL sinks for the query surfaces
func (s *Service) track(sinks ...sink.Sink) {
	for _, t := range sinks {
		switch v := t.(type) {
		case *sink.MemorySink:
			if s.memory == nil {
				s.memory = v
			}
		case *sink.SQLSink:
			if s.store == nil {
				s.store = v
			}
		}
	}
}

func llmAPIKey(cfg *config.LLMOptions) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

func pipelineOutput(target string) io.Writer {
	if target == "stdout" {
		return os.Stdout
	}
	return os.Stderr
}

// useColor resolves "auto" by checking whether out is a terminal
func useColor(mode string, out io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
