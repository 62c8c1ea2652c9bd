// FILE: callwisp/src/internal/tls/generator.go
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"strings"
	"time"
)

// CertKind selects the extended key usage of an issued certificate
type CertKind int

const (
	KindServer CertKind = iota
	KindClient
	KindSelfSigned
)

// CertRequest describes a certificate to create
type CertRequest struct {
	CommonName   string
	Organization string
	Hosts        []string // DNS names or IPs, server and self-signed only
	ValidFor     time.Duration
}

// Bundle is a certificate with its ECDSA private key
type Bundle struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
	der  []byte
}

// GenerateCA creates a self-signed certificate authority
func GenerateCA(req CertRequest) (*Bundle, error) {
	tmpl, err := baseTemplate(req)
	if err != nil {
		return nil, err
	}
	tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature
	tmpl.BasicConstraintsValid = true
	tmpl.IsCA = true
	return sign(tmpl, nil)
}

// GenerateSelfSigned creates a standalone certificate usable for both server and client auth
func GenerateSelfSigned(req CertRequest) (*Bundle, error) {
	tmpl, err := leafTemplate(req, KindSelfSigned)
	if err != nil {
		return nil, err
	}
	return sign(tmpl, nil)
}

// Issue signs a server or client certificate with the CA in b
func (b *Bundle) Issue(req CertRequest, kind CertKind) (*Bundle, error) {
	if !b.Cert.IsCA {
		return nil, fmt.Errorf("certificate %q is not a CA", b.Cert.Subject.CommonName)
	}
	tmpl, err := leafTemplate(req, kind)
	if err != nil {
		return nil, err
	}
	if tmpl.NotAfter.After(b.Cert.NotAfter) {
		return nil, fmt.Errorf("validity exceeds CA expiry (%s)", b.Cert.NotAfter.Format(time.RFC3339))
	}
	return sign(tmpl, b)
}

// WriteFiles stores the certificate (0644) and private key (0600) as PEM
func (b *Bundle) WriteFiles(certPath, keyPath string) error {
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: b.der})
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(b.Key)
	if err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}

// LoadBundle reads a PEM certificate and PKCS#8 or SEC1 ECDSA key, e.g. a CA for signing
func LoadBundle(certPath, keyPath string) (*Bundle, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("invalid certificate format in %s", certPath)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("invalid key format in %s", keyPath)
	}

	var key *ecdsa.PrivateKey
	switch keyBlock.Type {
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key: %w", err)
		}
		var ok bool
		if key, ok = parsed.(*ecdsa.PrivateKey); !ok {
			return nil, fmt.Errorf("key is not ECDSA")
		}
	case "EC PRIVATE KEY":
		if key, err = x509.ParseECPrivateKey(keyBlock.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse key: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported key type: %s", keyBlock.Type)
	}

	return &Bundle{Cert: cert, Key: key, der: block.Bytes}, nil
}

// SplitHosts separates a host list into DNS names and IP addresses
func SplitHosts(hosts []string) ([]string, []net.IP) {
	var dnsNames []string
	var ips []net.IP
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
		} else {
			dnsNames = append(dnsNames, h)
		}
	}
	return dnsNames, ips
}

func baseTemplate(req CertRequest) (*x509.Certificate, error) {
	if req.CommonName == "" {
		return nil, fmt.Errorf("common name is required")
	}
	if req.ValidFor <= 0 {
		return nil, fmt.Errorf("validity must be positive")
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial: %w", err)
	}

	org := req.Organization
	if org == "" {
		org = "callwisp"
	}
	now := time.Now()
	return &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   req.CommonName,
			Organization: []string{org},
		},
		NotBefore: now.Add(-time.Minute),
		NotAfter:  now.Add(req.ValidFor),
	}, nil
}

func leafTemplate(req CertRequest, kind CertKind) (*x509.Certificate, error) {
	tmpl, err := baseTemplate(req)
	if err != nil {
		return nil, err
	}
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature

	switch kind {
	case KindServer:
		tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	case KindClient:
		tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	default:
		tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}
	}
	if kind != KindClient {
		tmpl.DNSNames, tmpl.IPAddresses = SplitHosts(req.Hosts)
	}
	return tmpl, nil
}

// sign creates the certificate; a nil parent self-signs
func sign(tmpl *x509.Certificate, parent *Bundle) (*Bundle, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	issuer, signer := tmpl, key
	if parent != nil {
		issuer, signer = parent.Cert, parent.Key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, issuer, &key.PublicKey, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Bundle{Cert: cert, Key: key, der: der}, nil
}
