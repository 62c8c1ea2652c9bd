// FILE: callwisp/src/internal/config/config_test.go
package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, ValidateConfig(cfg))
	assert.Equal(t, "callwisp", cfg.Logger.Name)
	assert.Equal(t, []string{"ERROR", "CRITICAL"}, cfg.Ring.TriggerLevels)
	assert.False(t, cfg.Ring.FlushOnClose)
	assert.Equal(t, int64(0), cfg.Diff.MaxEntries)
}

func TestSplitSpecs(t *testing.T) {
	assert.Equal(t, []string{"csv:a.csv", "jsonl:b.jsonl"}, SplitSpecs(" csv:a.csv, ,jsonl:b.jsonl "))
	assert.Nil(t, SplitSpecs(""))
}

func TestCustomEnvTransform(t *testing.T) {
	assert.Equal(t, "CALLWISP_RING_FLUSH_ON_CLOSE", customEnvTransform("ring.flush_on_close"))
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CALLWISP_LEVEL", "warning")
	t.Setenv("CALLWISP_SINKS", "csv:x.csv,md:y.md")
	t.Setenv("CALLWISP_ENV", "prod")
	t.Setenv("CALLWISP_LLM_MODEL", "local-model")

	cfg := Default()
	applyEnvOverrides(cfg)

	assert.Equal(t, "WARNING", cfg.Logger.Level)
	assert.Equal(t, []string{"csv:x.csv", "md:y.md"}, cfg.Logger.Sinks)
	assert.Equal(t, "prod", cfg.Logger.Environment)
	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, "local-model", cfg.LLM.Model)
}

func TestGetConfigPath(t *testing.T) {
	dir := t.TempDir()

	t.Run("AbsoluteFile", func(t *testing.T) {
		abs := filepath.Join(dir, "custom.toml")
		t.Setenv("CALLWISP_CONFIG_FILE", abs)
		assert.Equal(t, abs, GetConfigPath())
	})

	t.Run("RelativeFileInDir", func(t *testing.T) {
		t.Setenv("CALLWISP_CONFIG_FILE", "custom.toml")
		t.Setenv("CALLWISP_CONFIG_DIR", dir)
		assert.Equal(t, filepath.Join(dir, "custom.toml"), GetConfigPath())
	})

	t.Run("DirOnly", func(t *testing.T) {
		t.Setenv("CALLWISP_CONFIG_FILE", "")
		t.Setenv("CALLWISP_CONFIG_DIR", dir)
		assert.Equal(t, filepath.Join(dir, "callwisp.toml"), GetConfigPath())
	})
}

func TestValidateConfig(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		errText string
	}{
		{
			name:    "BadLoggerLevel",
			mutate:  func(c *Config) { c.Logger.Level = "loud" },
			errText: "invalid level",
		},
		{
			name:    "SpecWithoutType",
			mutate:  func(c *Config) { c.Logger.Sinks = []string{":path"} },
			errText: "missing type",
		},
		{
			name: "RingZeroCapacity",
			mutate: func(c *Config) {
				c.Ring.Enabled = true
				c.Ring.Capacity = 0
			},
			errText: "capacity must be positive",
		},
		{
			name: "RingUnknownTrigger",
			mutate: func(c *Config) {
				c.Ring.Enabled = true
				c.Ring.TriggerLevels = []string{"fatal-ish"}
			},
			errText: "unknown level",
		},
		{
			name: "BufferIntervalTooSmall",
			mutate: func(c *Config) {
				c.Buffer.Enabled = true
				c.Buffer.FlushIntervalMS = 1
			},
			errText: "flush interval too small",
		},
		{
			name: "WebhookBadScheme",
			mutate: func(c *Config) {
				c.Webhook.Enabled = true
				c.Webhook.URL = "ftp://example.com"
			},
			errText: "scheme",
		},
		{
			name: "RouteBadRegex",
			mutate: func(c *Config) {
				c.Routes = []RouteConfig{{Sink: "csv:x.csv", Filter: &FilterConfig{Patterns: []string{"["}}}}
			},
			errText: "invalid regex",
		},
		{
			name: "TwoDefaultRoutes",
			mutate: func(c *Config) {
				c.Routes = []RouteConfig{
					{Sink: "csv:a.csv", Default: true},
					{Sink: "csv:b.csv", Default: true},
				}
			},
			errText: "at most one default",
		},
		{
			name:    "BinaryWithoutLightSink",
			mutate:  func(c *Config) { c.Binary.Enabled = true },
			errText: "light_sink is required",
		},
		{
			name: "BinaryHeavySpecWithoutType",
			mutate: func(c *Config) {
				c.Binary.Enabled = true
				c.Binary.LightSink = "memory:"
				c.Binary.HeavySink = ":blobs"
			},
			errText: "heavy_sink: missing type",
		},
		{
			name:    "NegativeDiffCap",
			mutate:  func(c *Config) { c.Diff.MaxEntries = -1 },
			errText: "max_entries",
		},
		{
			name:    "TLSWithoutCert",
			mutate:  func(c *Config) { c.Serve.TLS.Enabled = true },
			errText: "cert_file and key_file",
		},
		{
			name: "MTLSWithoutCA",
			mutate: func(c *Config) {
				c.Serve.TLS = TLSServerConfig{Enabled: true, CertFile: "c.pem", KeyFile: "k.pem", ClientAuth: true}
			},
			errText: "client_ca_file",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := ValidateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errText)
		})
	}
}
