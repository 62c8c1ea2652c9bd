// FILE: callwisp/src/internal/config/sink.go
package config

// BufferOptions configures the async buffered sink
type BufferOptions struct {
	Enabled         bool  `toml:"enabled"`
	BufferSize      int64 `toml:"buffer_size"`
	FlushIntervalMS int64 `toml:"flush_interval_ms"`
	FlushOnError    bool  `toml:"flush_on_error"`
}

// RingOptions configures the ring buffer sink
type RingOptions struct {
	Enabled        bool     `toml:"enabled"`
	Capacity       int64    `toml:"capacity"`
	TriggerLevels  []string `toml:"trigger_levels"`
	IncludeTrigger bool     `toml:"include_trigger"`

	// Write retained context to the delegate on close instead of discarding it
	FlushOnClose bool `toml:"flush_on_close"`
}

// BinaryOptions configures the binary-aware router. Metadata-summarized entries go to
// the light sink, entries with byte payloads at or above the threshold go to the heavy sink
// when set, everything else continues down the chain.
type BinaryOptions struct {
	Enabled        bool   `toml:"enabled"`
	LightSink      string `toml:"light_sink"`
	HeavySink      string `toml:"heavy_sink"`
	ThresholdBytes int64  `toml:"threshold_bytes"`
}

// DiffOptions configures the version diff tracker
type DiffOptions struct {
	Enabled bool `toml:"enabled"`

	// 0 keeps every (function, input) pair for the process lifetime
	MaxEntries int64 `toml:"max_entries"`
}

// PipelineOptions configures the pipeline run renderer
type PipelineOptions struct {
	Enabled         bool   `toml:"enabled"`
	Width           int64  `toml:"width"`
	BufferTimeoutMS int64  `toml:"buffer_timeout_ms"`
	Color           string `toml:"color"`  // "auto", "always", "never"
	Target          string `toml:"target"` // "stdout", "stderr"
}

// WebhookOptions configures the alerting webhook decorator
type WebhookOptions struct {
	Enabled   bool              `toml:"enabled"`
	URL       string            `toml:"url"`
	Levels    []string          `toml:"levels"`
	Format    string            `toml:"format"` // "slack", "discord", "teams", "raw"
	Headers   map[string]string `toml:"headers"`
	TimeoutMS int64             `toml:"timeout_ms"`

	// Requests per second and burst for outbound delivery
	RateLimit float64 `toml:"rate_limit"`
	Burst     int64   `toml:"burst"`

	// Consecutive failures before the circuit opens
	BreakerFailures int64 `toml:"breaker_failures"`
}

// LLMOptions configures the LLM analysis decorator
type LLMOptions struct {
	Enabled         bool   `toml:"enabled"`
	Model           string `toml:"model"`
	APIKey          string `toml:"api_key"`
	BaseURL         string `toml:"base_url"`
	Async           bool   `toml:"async"`
	DetectInjection bool   `toml:"detect_injection"`
	TimeoutMS       int64  `toml:"timeout_ms"`
	QueueSize       int64  `toml:"queue_size"`

	// Levels that trigger root-cause analysis for entries carrying an exception
	AnalyzeLevels []string `toml:"analyze_levels"`
	SystemPrompt  string   `toml:"system_prompt"`
}

// HTTPClientSinkOptions configures batched forwarding to a remote collector
type HTTPClientSinkOptions struct {
	URL                string  `toml:"url"`
	BatchSize          int64   `toml:"batch_size"`
	BatchDelayMS       int64   `toml:"batch_delay_ms"`
	Timeout            int64   `toml:"timeout"` // seconds
	MaxRetries         int64   `toml:"max_retries"`
	RetryDelayMS       int64   `toml:"retry_delay_ms"`
	RetryBackoff       float64 `toml:"retry_backoff"`

	// Used for https URLs only
	TLS TLSClientConfig `toml:"tls"`

	// HS256 bearer token minted per batch when set
	JWTSecret string `toml:"jwt_secret"`
	JWTIssuer string `toml:"jwt_issuer"`
}

// FileSinkOptions configures the rotating text file sink
type FileSinkOptions struct {
	Directory      string  `toml:"directory"`
	Name           string  `toml:"name"`
	MaxSizeMB      int64   `toml:"max_size_mb"`
	MaxTotalSizeMB int64   `toml:"max_total_size_mb"`
	MinDiskFreeMB  int64   `toml:"min_disk_free_mb"`
	RetentionHours float64 `toml:"retention_hours"`
	Format         string  `toml:"format"`
}

// RedisSinkOptions configures the redis list sink
type RedisSinkOptions struct {
	Addr     string `toml:"addr"`
	Key      string `toml:"key"`
	Password string `toml:"password"`
	DB       int64  `toml:"db"`
	MaxLen   int64  `toml:"max_len"`
}

// SQLSinkOptions configures the relational sink
type SQLSinkOptions struct {
	Driver string `toml:"driver"` // "postgres", "sqlite"
	DSN    string `toml:"dsn"`
	Table  string `toml:"table"`
}

// PrometheusSinkOptions configures the metrics exporter sink
type PrometheusSinkOptions struct {
	Prefix string `toml:"prefix"`
	Port   int64  `toml:"port"`
	Path   string `toml:"path"`
}

// DefaultHTTPClientSinkOptions returns forwarding defaults
func DefaultHTTPClientSinkOptions() *HTTPClientSinkOptions {
	return &HTTPClientSinkOptions{
		BatchSize:    100,
		BatchDelayMS: 1000,
		Timeout:      30,
		MaxRetries:   3,
		RetryDelayMS: 1000,
		RetryBackoff: 2.0,
	}
}

// DefaultFileSinkOptions returns rotating file defaults
func DefaultFileSinkOptions() *FileSinkOptions {
	return &FileSinkOptions{
		Directory:      "./log",
		Name:           "callwisp",
		MaxSizeMB:      100,
		MaxTotalSizeMB: 1000,
		RetentionHours: 168,
		Format:         "txt",
	}
}
