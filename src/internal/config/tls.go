// FILE: callwisp/src/internal/config/tls.go
package config

// TLSServerConfig enables HTTPS on the ingest server
type TLSServerConfig struct {
	Enabled  bool   `toml:"enabled"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`

	// Require and verify client certificates (mTLS)
	ClientAuth   bool   `toml:"client_auth"`
	ClientCAFile string `toml:"client_ca_file"`

	MinVersion   string `toml:"min_version"`
	MaxVersion   string `toml:"max_version"`
	CipherSuites string `toml:"cipher_suites"` // comma separated
}

// TLSClientConfig controls certificate verification for https forwarding
type TLSClientConfig struct {
	ServerCAFile       string `toml:"server_ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`

	// Presented to collectors that require mTLS
	ClientCertFile string `toml:"client_cert_file"`
	ClientKeyFile  string `toml:"client_key_file"`

	MinVersion string `toml:"min_version"`
	MaxVersion string `toml:"max_version"`
}
