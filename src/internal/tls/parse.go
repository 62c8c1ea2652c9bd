// FILE: callwisp/src/internal/tls/parse.go
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

// Cipher suites used when none are configured; TLS 1.3 suites are not configurable in Go
var defaultCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// parseVersion maps "TLS1.2" style names to crypto/tls constants. Empty selects fallback.
func parseVersion(version string, fallback uint16) (uint16, error) {
	switch strings.ToUpper(strings.TrimSpace(version)) {
	case "":
		return fallback, nil
	case "TLS1.2", "TLS12":
		return tls.VersionTLS12, nil
	case "TLS1.3", "TLS13":
		return tls.VersionTLS13, nil
	case "TLS1.0", "TLS10", "TLS1.1", "TLS11":
		return 0, fmt.Errorf("TLS version %q is not supported, use TLS1.2 or newer", version)
	default:
		return 0, fmt.Errorf("unknown TLS version %q", version)
	}
}

// parseCipherSuites resolves a comma separated list of IANA suite names
func parseCipherSuites(suites string) ([]uint16, error) {
	known := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		known[cs.Name] = cs.ID
	}

	var result []uint16
	for _, name := range strings.Split(suites, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown or insecure cipher suite %q", name)
		}
		result = append(result, id)
	}
	return result, nil
}

func versionString(version uint16) string {
	switch version {
	case tls.VersionTLS12:
		return "TLS1.2"
	case tls.VersionTLS13:
		return "TLS1.3"
	default:
		return fmt.Sprintf("0x%04x", version)
	}
}

// loadCertPool reads a PEM bundle into a fresh pool
func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
