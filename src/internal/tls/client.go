// FILE: callwisp/src/internal/tls/client.go
package tls

import (
	"crypto/tls"
	"fmt"

	"callwisp/src/internal/config"

	"github.com/lixenwraith/log"
)

// ClientManager holds the TLS settings used when forwarding to an https collector
type ClientManager struct {
	config    *config.TLSClientConfig
	tlsConfig *tls.Config
}

// NewClientManager builds client TLS settings. A zero config yields system roots and
// full verification.
func NewClientManager(cfg *config.TLSClientConfig, logger *log.Logger) (*ClientManager, error) {
	if cfg == nil {
		cfg = &config.TLSClientConfig{}
	}

	minVersion, err := parseVersion(cfg.MinVersion, tls.VersionTLS12)
	if err != nil {
		return nil, fmt.Errorf("min_version: %w", err)
	}
	maxVersion, err := parseVersion(cfg.MaxVersion, tls.VersionTLS13)
	if err != nil {
		return nil, fmt.Errorf("max_version: %w", err)
	}

	m := &ClientManager{
		config: cfg,
		tlsConfig: &tls.Config{
			MinVersion:         minVersion,
			MaxVersion:         maxVersion,
			ServerName:         cfg.ServerName,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	switch {
	case cfg.ClientCertFile != "" && cfg.ClientKeyFile != "":
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		m.tlsConfig.Certificates = []tls.Certificate{cert}
	case cfg.ClientCertFile != "" || cfg.ClientKeyFile != "":
		return nil, fmt.Errorf("both client_cert_file and client_key_file must be provided for mTLS")
	}

	if cfg.ServerCAFile != "" {
		pool, err := loadCertPool(cfg.ServerCAFile)
		if err != nil {
			return nil, fmt.Errorf("server CA: %w", err)
		}
		m.tlsConfig.RootCAs = pool
	}

	if cfg.InsecureSkipVerify && logger != nil {
		logger.Warn("msg", "Collector certificate verification disabled",
			"component", "tls")
	}
	return m, nil
}

// Config returns a copy of the client TLS configuration
func (m *ClientManager) Config() *tls.Config {
	if m == nil {
		return nil
	}
	return m.tlsConfig.Clone()
}

// GetStats returns the active client TLS settings
func (m *ClientManager) GetStats() map[string]any {
	if m == nil {
		return map[string]any{"enabled": false}
	}
	return map[string]any{
		"enabled":              true,
		"min_version":          versionString(m.tlsConfig.MinVersion),
		"has_client_cert":      len(m.tlsConfig.Certificates) > 0,
		"has_server_ca":        m.config.ServerCAFile != "",
		"insecure_skip_verify": m.config.InsecureSkipVerify,
	}
}
