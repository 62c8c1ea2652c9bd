// FILE: callwisp/src/internal/sink/registry.go
package sink

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"callwisp/src/internal/config"
	"callwisp/src/internal/format"

	"github.com/lixenwraith/log"
)

// Spec is a parsed "type:destination" sink specification
type Spec struct {
	Type        string
	Destination string
}

func (s Spec) String() string {
	if s.Destination == "" {
		return s.Type
	}
	return s.Type + ":" + s.Destination
}

// ParseSpec splits a sink specification on the first colon. The type is case-insensitive.
func ParseSpec(spec string) (Spec, error) {
	kind, dest, _ := strings.Cut(strings.TrimSpace(spec), ":")
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return Spec{}, fmt.Errorf("invalid sink spec '%s': missing type", spec)
	}
	return Spec{Type: kind, Destination: strings.TrimSpace(dest)}, nil
}

// Factory builds a sink for a destination. options holds the [logger.sink_options.<type>] table.
type Factory func(dest string, options map[string]any, logger *log.Logger) (Sink, error)

// Registry maps sink types to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with every built-in sink type
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.mustRegister("memory", buildMemory)
	r.mustRegister("csv", buildCSV)
	r.mustRegister("md", buildMarkdown)
	r.mustRegister("markdown", buildMarkdown)
	r.mustRegister("json", buildJSON)
	r.mustRegister("jsonl", buildJSON)
	r.mustRegister("file", buildFile)
	r.mustRegister("log", buildFile)
	r.mustRegister("postgres", buildSQL("postgres"))
	r.mustRegister("sqlite", buildSQL("sqlite"))
	r.mustRegister("db", buildSQL("sqlite"))
	r.mustRegister("redis", buildRedis)
	r.mustRegister("http", buildHTTP("http"))
	r.mustRegister("https", buildHTTP("https"))
	for _, kind := range []string{"stdout", "stderr", "console"} {
		r.mustRegister(kind, buildConsole(kind))
	}
	r.mustRegister("prometheus", buildPrometheus)
	return r
}

// Register adds a factory. Registering a type twice is an error.
func (r *Registry) Register(kind string, factory Factory) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return fmt.Errorf("sink type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("sink type '%s': factory is nil", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("sink type '%s' already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

func (r *Registry) mustRegister(kind string, factory Factory) {
	if err := r.Register(kind, factory); err != nil {
		panic(err)
	}
}

// Types returns the registered sink types, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		types = append(types, kind)
	}
	sort.Strings(types)
	return types
}

// Validate checks that every spec names a registered type without building anything
func (r *Registry) Validate(specs []string) error {
	for i, raw := range specs {
		spec, err := ParseSpec(raw)
		if err != nil {
			return fmt.Errorf("sinks[%d]: %w", i, err)
		}
		if !r.has(spec.Type) {
			return fmt.Errorf("sinks[%d]: unknown sink type '%s' (known: %s)",
				i, spec.Type, strings.Join(r.Types(), ", "))
		}
	}
	return nil
}

func (r *Registry) has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Build parses spec and constructs the sink. options is keyed by sink type.
func (r *Registry) Build(spec string, options map[string]map[string]any, logger *log.Logger) (Sink, error) {
	parsed, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	factory, ok := r.factories[parsed.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown sink type '%s' (known: %s)", parsed.Type, strings.Join(r.Types(), ", "))
	}

	s, err := factory(parsed.Destination, options[parsed.Type], logger)
	if err != nil {
		return nil, fmt.Errorf("sink '%s': %w", parsed, err)
	}
	return s, nil
}

// BuildAll builds every spec in order. On failure the sinks built so far are closed.
func (r *Registry) BuildAll(specs []string, options map[string]map[string]any, logger *log.Logger) ([]Sink, error) {
	sinks := make([]Sink, 0, len(specs))
	for i, spec := range specs {
		s, err := r.Build(spec, options, logger)
		if err != nil {
			_ = closeAll(sinks...)
			return nil, fmt.Errorf("sinks[%d]: %w", i, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func requireDest(dest, kind string) error {
	if dest == "" {
		return fmt.Errorf("%s sink requires a destination", kind)
	}
	return nil
}

func buildMemory(dest string, options map[string]any, _ *log.Logger) (Sink, error) {
	limit := 0
	if dest != "" {
		n, err := strconv.Atoi(dest)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("memory sink: invalid limit '%s'", dest)
		}
		limit = n
	}
	if v, ok := toInt(options["limit"]); ok && limit == 0 {
		limit = int(v)
	}
	return NewMemorySink(limit), nil
}

func buildCSV(dest string, _ map[string]any, _ *log.Logger) (Sink, error) {
	if err := requireDest(dest, "csv"); err != nil {
		return nil, err
	}
	s, err := NewCSVSink(dest)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func buildMarkdown(dest string, _ map[string]any, _ *log.Logger) (Sink, error) {
	if err := requireDest(dest, "markdown"); err != nil {
		return nil, err
	}
	s, err := NewMarkdownSink(dest)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func buildJSON(dest string, options map[string]any, _ *log.Logger) (Sink, error) {
	if err := requireDest(dest, "json"); err != nil {
		return nil, err
	}
	pretty, _ := toBool(options["pretty"])
	s, err := NewJSONSink(dest, pretty, nil)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// buildFile treats the destination as a file path; the extension is dropped from the name
func buildFile(dest string, options map[string]any, logger *log.Logger) (Sink, error) {
	opts := config.DefaultFileSinkOptions()
	if dest != "" {
		opts.Directory = filepath.Dir(dest)
		opts.Name = strings.TrimSuffix(filepath.Base(dest), filepath.Ext(dest))
	}
	if v, ok := toInt(options["max_size_mb"]); ok {
		opts.MaxSizeMB = v
	}
	if v, ok := toInt(options["max_total_size_mb"]); ok {
		opts.MaxTotalSizeMB = v
	}
	if v, ok := toInt(options["min_disk_free_mb"]); ok {
		opts.MinDiskFreeMB = v
	}
	if v, ok := toFloat(options["retention_hours"]); ok {
		opts.RetentionHours = v
	}
	if v, ok := options["format"].(string); ok && v != "" {
		opts.Format = v
	}

	formatter, err := format.NewFormatter(opts.Format, options, logger)
	if err != nil {
		return nil, err
	}
	s, err := NewFileSink(opts, formatter, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func buildSQL(driver string) Factory {
	return func(dest string, options map[string]any, logger *log.Logger) (Sink, error) {
		opts := &config.SQLSinkOptions{Driver: driver, DSN: dest}
		if v, ok := options["dsn"].(string); ok && opts.DSN == "" {
			opts.DSN = v
		}
		if v, ok := options["table"].(string); ok {
			opts.Table = v
		}
		if err := requireDest(opts.DSN, driver); err != nil {
			return nil, err
		}
		s, err := NewSQLSink(opts, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func buildRedis(dest string, options map[string]any, logger *log.Logger) (Sink, error) {
	opts := &config.RedisSinkOptions{Addr: dest}
	if v, ok := options["addr"].(string); ok && opts.Addr == "" {
		opts.Addr = v
	}
	if v, ok := options["key"].(string); ok {
		opts.Key = v
	}
	if v, ok := options["password"].(string); ok {
		opts.Password = v
	}
	if v, ok := toInt(options["db"]); ok {
		opts.DB = v
	}
	if v, ok := toInt(options["max_len"]); ok {
		opts.MaxLen = v
	}
	s, err := NewRedisSink(opts, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// buildHTTP restores the scheme the spec parser split off ("http://host" -> "http", "//host")
func buildHTTP(scheme string) Factory {
	return func(dest string, options map[string]any, logger *log.Logger) (Sink, error) {
		opts := config.DefaultHTTPClientSinkOptions()
		if dest != "" {
			opts.URL = scheme + ":" + dest
		} else if v, ok := options["url"].(string); ok {
			opts.URL = v
		}

		if v, ok := toInt(options["batch_size"]); ok {
			opts.BatchSize = v
		}
		if v, ok := toInt(options["batch_delay_ms"]); ok {
			opts.BatchDelayMS = v
		}
		if v, ok := toInt(options["timeout"]); ok {
			opts.Timeout = v
		}
		if v, ok := toInt(options["max_retries"]); ok {
			opts.MaxRetries = v
		}
		if v, ok := toInt(options["retry_delay_ms"]); ok {
			opts.RetryDelayMS = v
		}
		if v, ok := toFloat(options["retry_backoff"]); ok {
			opts.RetryBackoff = v
		}
		if v, ok := toBool(options["insecure_skip_verify"]); ok {
			opts.TLS.InsecureSkipVerify = v
		}
		if v, ok := options["tls_ca_file"].(string); ok {
			opts.TLS.ServerCAFile = v
		}
		if v, ok := options["tls_server_name"].(string); ok {
			opts.TLS.ServerName = v
		}
		if v, ok := options["tls_cert_file"].(string); ok {
			opts.TLS.ClientCertFile = v
		}
		if v, ok := options["tls_key_file"].(string); ok {
			opts.TLS.ClientKeyFile = v
		}
		if v, ok := options["jwt_secret"].(string); ok {
			opts.JWTSecret = v
		}
		if v, ok := options["jwt_issuer"].(string); ok {
			opts.JWTIssuer = v
		}
		s, err := NewHTTPClientSink(opts, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// buildConsole maps stdout/stderr to their stream; console takes the target from the destination
func buildConsole(kind string) Factory {
	return func(dest string, options map[string]any, logger *log.Logger) (Sink, error) {
		target := kind
		if kind == "console" {
			target = dest
		}
		formatName, _ := options["format"].(string)
		formatter, err := format.NewFormatter(formatName, options, logger)
		if err != nil {
			return nil, err
		}
		s, err := NewConsoleSink(target, formatter, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// buildPrometheus takes an optional listen port as destination
func buildPrometheus(dest string, options map[string]any, logger *log.Logger) (Sink, error) {
	opts := &config.PrometheusSinkOptions{}
	if dest != "" {
		port, err := strconv.ParseInt(dest, 10, 64)
		if err != nil || port < 0 || port > 65535 {
			return nil, fmt.Errorf("prometheus sink: invalid port '%s'", dest)
		}
		opts.Port = port
	} else if v, ok := toInt(options["port"]); ok {
		opts.Port = v
	}
	if v, ok := options["prefix"].(string); ok {
		opts.Prefix = v
	}
	if v, ok := options["path"].(string); ok {
		opts.Path = v
	}
	s, err := NewPrometheusSink(opts, nil, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}
