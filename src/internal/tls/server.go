// FILE: callwisp/src/internal/tls/server.go
package tls

import (
	"crypto/tls"
	"fmt"
	"net"

	"callwisp/src/internal/config"

	"github.com/lixenwraith/log"
)

// ServerManager holds the TLS settings of the ingest server
type ServerManager struct {
	config    *config.TLSServerConfig
	tlsConfig *tls.Config
	logger    *log.Logger
}

// NewServerManager loads the server key pair and client CA. Returns nil when TLS is disabled.
func NewServerManager(cfg *config.TLSServerConfig, logger *log.Logger) (*ServerManager, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server cert/key: %w", err)
	}

	minVersion, err := parseVersion(cfg.MinVersion, tls.VersionTLS12)
	if err != nil {
		return nil, fmt.Errorf("min_version: %w", err)
	}
	maxVersion, err := parseVersion(cfg.MaxVersion, tls.VersionTLS13)
	if err != nil {
		return nil, fmt.Errorf("max_version: %w", err)
	}
	if minVersion > maxVersion {
		return nil, fmt.Errorf("min_version %s is above max_version %s",
			versionString(minVersion), versionString(maxVersion))
	}

	m := &ServerManager{
		config: cfg,
		logger: logger,
		tlsConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   minVersion,
			MaxVersion:   maxVersion,
			CipherSuites: defaultCipherSuites,
			NextProtos:   []string{"http/1.1"},
		},
	}

	if cfg.CipherSuites != "" {
		suites, err := parseCipherSuites(cfg.CipherSuites)
		if err != nil {
			return nil, err
		}
		m.tlsConfig.CipherSuites = suites
	}

	if cfg.ClientAuth {
		if cfg.ClientCAFile == "" {
			return nil, fmt.Errorf("client_auth is enabled but client_ca_file is not specified")
		}
		pool, err := loadCertPool(cfg.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("client CA: %w", err)
		}
		m.tlsConfig.ClientCAs = pool
		m.tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	if logger != nil {
		logger.Info("msg", "TLS enabled for ingest server",
			"component", "tls",
			"min_version", versionString(minVersion),
			"client_auth", cfg.ClientAuth)
	}
	return m, nil
}

// Listener wraps ln so accepted connections complete a TLS handshake. A nil manager
// returns ln unchanged.
func (m *ServerManager) Listener(ln net.Listener) net.Listener {
	if m == nil {
		return ln
	}
	return tls.NewListener(ln, m.tlsConfig.Clone())
}

// GetStats returns the active server TLS settings
func (m *ServerManager) GetStats() map[string]any {
	if m == nil {
		return map[string]any{"enabled": false}
	}
	return map[string]any{
		"enabled":       true,
		"min_version":   versionString(m.tlsConfig.MinVersion),
		"max_version":   versionString(m.tlsConfig.MaxVersion),
		"client_auth":   m.config.ClientAuth,
		"cipher_suites": len(m.tlsConfig.CipherSuites),
	}
}
