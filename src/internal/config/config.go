// FILE: callwisp/src/internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lconfig "github.com/lixenwraith/config"
)

// Config is the complete callwisp configuration
type Config struct {
	// Application diagnostics
	Logging *LogConfig `toml:"logging"`

	// Instrumentation logger and its sinks
	Logger LoggerConfig `toml:"logger"`

	// Sink decorators, applied innermost first: binary, llm, diff, ring, buffer, pipeline, env tagging
	Binary   BinaryOptions   `toml:"binary"`
	LLM      LLMOptions      `toml:"llm"`
	Diff     DiffOptions     `toml:"diff"`
	Ring     RingOptions     `toml:"ring"`
	Buffer   BufferOptions   `toml:"buffer"`
	Pipeline PipelineOptions `toml:"pipeline"`
	Webhook  WebhookOptions  `toml:"webhook"`

	// Defaults for instrumented calls
	Instrument InstrumentConfig `toml:"instrument"`

	// Content-based routing; empty disables the router
	Routes []RouteConfig `toml:"routes"`

	// Ingest server for `callwisp serve`
	Serve ServeConfig `toml:"serve"`

	// Runtime behavior flags
	Quiet bool `toml:"quiet"`
}

// LoggerConfig configures the instrumentation Logger
type LoggerConfig struct {
	// Logger name, used as the default module for remote and CLI entries
	Name string `toml:"name"`

	// Entries below this level are dropped at emit
	Level string `toml:"level"`

	// Echo a compact line per entry to stderr
	Echo bool `toml:"echo"`

	// Sink specifications, "type:destination"
	Sinks []string `toml:"sinks"`

	// Sink type options keyed by sink type, e.g. [logger.sink_options.http]
	SinkOptions map[string]map[string]any `toml:"sink_options"`

	// Regex filters applied at emit; all must pass
	Filters []FilterConfig `toml:"filters"`

	// Correlation tags; empty values are auto-detected when tagging is enabled
	EnvTagging  bool   `toml:"env_tagging"`
	Environment string `toml:"environment"`
	TraceID     string `toml:"trace_id"`
	Version     string `toml:"version"`
}

// InstrumentConfig holds defaults applied to every instrumented call
type InstrumentConfig struct {
	// Level for successful calls; failures are always ERROR
	Level string `toml:"level"`

	// "propagate" or "catch"
	Mode string `toml:"mode"`

	// Fraction of successful calls recorded; 0 or 1 records all
	SampleRate float64 `toml:"sample_rate"`

	// Byte payloads above this size are replaced by metadata; 0 disables
	BinaryThreshold int64 `toml:"binary_threshold"`
}

// ServeConfig configures the HTTP ingest server
type ServeConfig struct {
	Host        string `toml:"host"`
	Port        int64  `toml:"port"`
	MaxBodyKB   int64  `toml:"max_body_kb"`
	RecentLimit int64  `toml:"recent_limit"`

	// HS256 secret; when set, ingest requests need a valid bearer token
	JWTSecret string `toml:"jwt_secret"`
	JWTIssuer string `toml:"jwt_issuer"`

	// Client access control
	Access ServeAccessConfig `toml:"access"`

	TLS TLSServerConfig `toml:"tls"`
}

// ServeAccessConfig restricts ingest clients by address and request rate
type ServeAccessConfig struct {
	IPAllowlist []string `toml:"ip_allowlist"`
	IPDenylist  []string `toml:"ip_denylist"`

	// Per-client request rate; 0 disables limiting
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int64   `toml:"burst"`
}

// DefaultDBPath is the SQLite file written by default and read by `callwisp logs`
const DefaultDBPath = "callwisp_logs.db"

func defaults() *Config {
	return &Config{
		Logging: DefaultLogConfig(),
		Logger: LoggerConfig{
			Name:       "callwisp",
			Level:      "DEBUG",
			Echo:       false,
			Sinks:      []string{"sqlite:" + DefaultDBPath},
			EnvTagging: true,
		},
		Binary: BinaryOptions{
			Enabled:        false,
			ThresholdBytes: 64 * 1024,
		},
		LLM: LLMOptions{
			Enabled:         false,
			Model:           "gpt-4o-mini",
			Async:           true,
			DetectInjection: false,
			TimeoutMS:       30000,
			QueueSize:       1000,
			AnalyzeLevels:   []string{"ERROR"},
		},
		Diff: DiffOptions{
			Enabled:    false,
			MaxEntries: 0,
		},
		Ring: RingOptions{
			Enabled:        false,
			Capacity:       1000,
			TriggerLevels:  []string{"ERROR", "CRITICAL"},
			IncludeTrigger: true,
			FlushOnClose:   false,
		},
		Buffer: BufferOptions{
			Enabled:         false,
			BufferSize:      100,
			FlushIntervalMS: 5000,
			FlushOnError:    true,
		},
		Pipeline: PipelineOptions{
			Enabled:         false,
			Width:           72,
			BufferTimeoutMS: 10000,
			Color:           "auto",
			Target:          "stderr",
		},
		Webhook: WebhookOptions{
			Enabled:         false,
			Levels:          []string{"ERROR"},
			Format:          "slack",
			TimeoutMS:       5000,
			RateLimit:       1,
			Burst:           5,
			BreakerFailures: 5,
		},
		Instrument: InstrumentConfig{
			Level:      "DEBUG",
			Mode:       "propagate",
			SampleRate: 1,
		},
		Serve: ServeConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			MaxBodyKB:   1024,
			RecentLimit: 1000,
			TLS: TLSServerConfig{
				MinVersion: "TLS1.2",
			},
		},
	}
}

// Load builds the configuration from defaults, file, environment and CLI arguments
func Load(cliArgs []string) (*Config, error) {
	configPath := GetConfigPath()

	cfg, err := lconfig.NewBuilder().
		WithDefaults(defaults()).
		WithEnvPrefix("CALLWISP_").
		WithFile(configPath).
		WithArgs(cliArgs).
		WithEnvTransform(customEnvTransform).
		WithSources(
			lconfig.SourceCLI,
			lconfig.SourceEnv,
			lconfig.SourceFile,
			lconfig.SourceDefault,
		).
		Build()

	if err != nil {
		if !strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	finalConfig := &Config{}
	if err := cfg.Scan(finalConfig); err != nil {
		return nil, fmt.Errorf("failed to scan config: %w", err)
	}

	applyEnvOverrides(finalConfig)

	return finalConfig, ValidateConfig(finalConfig)
}

// Default returns the built-in defaults
func Default() *Config {
	return defaults()
}

func customEnvTransform(path string) string {
	env := strings.ReplaceAll(path, ".", "_")
	env = strings.ToUpper(env)
	env = "CALLWISP_" + env
	return env
}

// applyEnvOverrides handles the short-form variables that do not follow the section layout
func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("CALLWISP_LEVEL"); level != "" {
		cfg.Logger.Level = strings.ToUpper(strings.TrimSpace(level))
	}

	if sinksStr := os.Getenv("CALLWISP_SINKS"); sinksStr != "" {
		cfg.Logger.Sinks = SplitSpecs(sinksStr)
	}

	if env := os.Getenv("CALLWISP_ENV"); env != "" {
		cfg.Logger.Environment = strings.TrimSpace(env)
	}

	if threshold := os.Getenv("CALLWISP_META_THRESHOLD"); threshold != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(threshold), 10, 64); err == nil && n >= 0 {
			cfg.Instrument.BinaryThreshold = n
		}
	}

	if model := os.Getenv("CALLWISP_LLM_MODEL"); model != "" {
		cfg.LLM.Enabled = true
		cfg.LLM.Model = model
	}
}

// SplitSpecs splits a comma separated list of sink specifications
func SplitSpecs(s string) []string {
	var specs []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			specs = append(specs, part)
		}
	}
	return specs
}

// GetConfigPath resolves the configuration file location
func GetConfigPath() string {
	if configFile := os.Getenv("CALLWISP_CONFIG_FILE"); configFile != "" {
		if filepath.IsAbs(configFile) {
			return configFile
		}
		if configDir := os.Getenv("CALLWISP_CONFIG_DIR"); configDir != "" {
			return filepath.Join(configDir, configFile)
		}
		return configFile
	}

	if configDir := os.Getenv("CALLWISP_CONFIG_DIR"); configDir != "" {
		return filepath.Join(configDir, "callwisp.toml")
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config", "callwisp.toml")
	}

	return "callwisp.toml"
}
