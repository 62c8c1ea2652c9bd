// FILE: callwisp/src/internal/config/validation.go
package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	lconfig "github.com/lixenwraith/config"
)

var validEntryLevels = map[string]bool{
	"DEBUG": true, "INFO": true, "WARNING": true, "WARN": true,
	"ERROR": true, "CRITICAL": true,
}

// ValidateConfig is the centralized validator for the entire configuration
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Logging != nil {
		if err := validateLogConfig(cfg.Logging); err != nil {
			return fmt.Errorf("logging config: %w", err)
		}
	}

	if err := validateLoggerConfig(&cfg.Logger); err != nil {
		return fmt.Errorf("logger config: %w", err)
	}

	if cfg.Buffer.Enabled {
		if cfg.Buffer.BufferSize < 1 {
			return fmt.Errorf("buffer: buffer_size must be positive: %d", cfg.Buffer.BufferSize)
		}
		if cfg.Buffer.FlushIntervalMS < 10 {
			return fmt.Errorf("buffer: flush interval too small: %d ms (min: 10ms)", cfg.Buffer.FlushIntervalMS)
		}
	}

	if cfg.Ring.Enabled {
		if cfg.Ring.Capacity < 1 {
			return fmt.Errorf("ring: capacity must be positive: %d", cfg.Ring.Capacity)
		}
		for i, level := range cfg.Ring.TriggerLevels {
			if !validEntryLevels[strings.ToUpper(level)] {
				return fmt.Errorf("ring: trigger_levels[%d]: unknown level '%s'", i, level)
			}
		}
	}

	if cfg.Binary.Enabled {
		if err := validateBinary(&cfg.Binary); err != nil {
			return fmt.Errorf("binary: %w", err)
		}
	}

	if cfg.Diff.MaxEntries < 0 {
		return fmt.Errorf("diff: max_entries cannot be negative: %d", cfg.Diff.MaxEntries)
	}

	if cfg.Pipeline.Enabled {
		switch cfg.Pipeline.Color {
		case "auto", "always", "never", "":
		default:
			return fmt.Errorf("pipeline: invalid color mode '%s'", cfg.Pipeline.Color)
		}
		switch cfg.Pipeline.Target {
		case "stdout", "stderr", "":
		default:
			return fmt.Errorf("pipeline: invalid target '%s'", cfg.Pipeline.Target)
		}
	}

	if cfg.Webhook.Enabled {
		if err := validateWebhook(&cfg.Webhook); err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
	}

	if cfg.LLM.Enabled {
		if err := lconfig.NonEmpty(cfg.LLM.Model); err != nil {
			return fmt.Errorf("llm: missing model")
		}
	}

	if err := validateInstrument(&cfg.Instrument); err != nil {
		return fmt.Errorf("instrument: %w", err)
	}

	if err := validateRoutes(cfg.Routes); err != nil {
		return err
	}

	if err := lconfig.Port(cfg.Serve.Port); err != nil {
		return fmt.Errorf("serve: invalid port: %w", err)
	}
	if cfg.Serve.RecentLimit < 1 {
		return fmt.Errorf("serve: recent_limit must be positive: %d", cfg.Serve.RecentLimit)
	}
	if err := validateAccess(&cfg.Serve.Access); err != nil {
		return fmt.Errorf("serve access: %w", err)
	}
	if err := validateServeTLS(&cfg.Serve.TLS); err != nil {
		return fmt.Errorf("serve tls: %w", err)
	}

	return nil
}

func validateLogConfig(cfg *LogConfig) error {
	validOutputs := map[string]bool{
		"file": true, "stdout": true, "stderr": true,
		"split": true, "all": true, "none": true,
	}
	if !validOutputs[cfg.Output] {
		return fmt.Errorf("invalid log output mode: %s", cfg.Output)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		return fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	if cfg.Console != nil {
		validTargets := map[string]bool{
			"stdout": true, "stderr": true, "split": true,
		}
		if !validTargets[cfg.Console.Target] {
			return fmt.Errorf("invalid console target: %s", cfg.Console.Target)
		}

		validFormats := map[string]bool{
			"txt": true, "json": true, "": true,
		}
		if !validFormats[cfg.Console.Format] {
			return fmt.Errorf("invalid console format: %s", cfg.Console.Format)
		}
	}

	return nil
}

func validateLoggerConfig(cfg *LoggerConfig) error {
	if cfg.Level != "" && !validEntryLevels[strings.ToUpper(cfg.Level)] {
		return fmt.Errorf("invalid level: %s", cfg.Level)
	}

	for i := range cfg.Filters {
		if err := validateFilter(fmt.Sprintf("filters[%d]", i), &cfg.Filters[i]); err != nil {
			return err
		}
	}

	for i, spec := range cfg.Sinks {
		kind, _, _ := strings.Cut(spec, ":")
		if strings.TrimSpace(kind) == "" {
			return fmt.Errorf("sinks[%d]: missing type in spec '%s'", i, spec)
		}
	}

	return nil
}

func validateAccess(cfg *ServeAccessConfig) error {
	for _, list := range [][]string{cfg.IPAllowlist, cfg.IPDenylist} {
		for _, entry := range list {
			if strings.Contains(entry, "/") {
				if _, _, err := net.ParseCIDR(entry); err != nil {
					return fmt.Errorf("invalid CIDR '%s': %w", entry, err)
				}
			} else if net.ParseIP(entry) == nil {
				return fmt.Errorf("invalid IP '%s'", entry)
			}
		}
	}
	if cfg.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative: %g", cfg.RequestsPerSecond)
	}
	if cfg.RequestsPerSecond > 0 && cfg.Burst < 1 {
		return fmt.Errorf("burst must be positive when rate limiting: %d", cfg.Burst)
	}
	return nil
}

func validateServeTLS(cfg *TLSServerConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return fmt.Errorf("enabled requires cert_file and key_file")
	}
	if cfg.ClientAuth && cfg.ClientCAFile == "" {
		return fmt.Errorf("client_auth requires client_ca_file")
	}
	return nil
}

func validateInstrument(cfg *InstrumentConfig) error {
	if cfg.Level != "" && !validEntryLevels[strings.ToUpper(cfg.Level)] {
		return fmt.Errorf("invalid level: %s", cfg.Level)
	}
	switch strings.ToLower(cfg.Mode) {
	case "", "propagate", "log_call", "catch":
	default:
		return fmt.Errorf("invalid mode '%s' (must be 'propagate' or 'catch')", cfg.Mode)
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be within [0, 1]: %g", cfg.SampleRate)
	}
	if cfg.BinaryThreshold < 0 {
		return fmt.Errorf("binary_threshold cannot be negative: %d", cfg.BinaryThreshold)
	}
	return nil
}

func validateWebhook(cfg *WebhookOptions) error {
	if err := lconfig.NonEmpty(cfg.URL); err != nil {
		return fmt.Errorf("missing url")
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https: %s", cfg.URL)
	}

	switch strings.ToLower(cfg.Format) {
	case "slack", "discord", "teams", "raw", "":
	default:
		return fmt.Errorf("invalid format '%s'", cfg.Format)
	}

	if cfg.TimeoutMS < 0 {
		return fmt.Errorf("timeout cannot be negative: %d", cfg.TimeoutMS)
	}

	return nil
}

func validateBinary(cfg *BinaryOptions) error {
	if err := lconfig.NonEmpty(cfg.LightSink); err != nil {
		return fmt.Errorf("light_sink is required")
	}
	for name, spec := range map[string]string{"light_sink": cfg.LightSink, "heavy_sink": cfg.HeavySink} {
		if spec == "" {
			continue
		}
		if kind, _, _ := strings.Cut(spec, ":"); strings.TrimSpace(kind) == "" {
			return fmt.Errorf("%s: missing type in spec '%s'", name, spec)
		}
	}
	if cfg.ThresholdBytes < 0 {
		return fmt.Errorf("threshold_bytes cannot be negative: %d", cfg.ThresholdBytes)
	}
	return nil
}

func validateRoutes(routes []RouteConfig) error {
	defaults := 0
	for i, route := range routes {
		if err := lconfig.NonEmpty(route.Sink); err != nil {
			return fmt.Errorf("routes[%d]: missing sink", i)
		}

		if route.Default {
			defaults++
			continue
		}

		for j, level := range route.Levels {
			if !validEntryLevels[strings.ToUpper(level)] {
				return fmt.Errorf("routes[%d]: levels[%d]: unknown level '%s'", i, j, level)
			}
		}

		if route.Filter != nil {
			if err := validateFilter(fmt.Sprintf("routes[%d] filter", i), route.Filter); err != nil {
				return err
			}
		}
	}

	if defaults > 1 {
		return fmt.Errorf("routes: at most one default route allowed, got %d", defaults)
	}

	return nil
}

func validateFilter(prefix string, cfg *FilterConfig) error {
	// Validate filter type
	switch cfg.Type {
	case FilterTypeInclude, FilterTypeExclude, "":
		// Valid types
	default:
		return fmt.Errorf("%s: invalid type '%s' (must be 'include' or 'exclude')",
			prefix, cfg.Type)
	}

	// Validate filter logic
	switch cfg.Logic {
	case FilterLogicOr, FilterLogicAnd, "":
		// Valid logic
	default:
		return fmt.Errorf("%s: invalid logic '%s' (must be 'or' or 'and')",
			prefix, cfg.Logic)
	}

	// Validate regex patterns
	for i, pattern := range cfg.Patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%s pattern[%d] '%s': invalid regex: %w",
				prefix, i, pattern, err)
		}
	}

	return nil
}
