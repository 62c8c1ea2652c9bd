// FILE: callwisp/src/cmd/callwisp/commands/tls.go
package commands

import (
	"fmt"
	"strings"
	"time"

	"callwisp/src/internal/tls"
)

// TLSCommand generates certificates for the ingest server and forwarding clients
type TLSCommand struct{}

// NewTLSCommand creates the tls command
func NewTLSCommand() *TLSCommand {
	return &TLSCommand{}
}

func (c *TLSCommand) Execute(args []string) error {
	var (
		genCA, genServer, genClient, selfSigned bool
		cn, org, hosts, caCert, caKey           string
		certOut, keyOut                         string
		days                                    int
	)

	flags := newFlagSet("tls", c.Help)
	flags.BoolVar(&genCA, "ca", false, "Generate a CA certificate")
	flags.BoolVar(&genServer, "server", false, "Generate a server certificate signed by a CA")
	flags.BoolVar(&genClient, "client", false, "Generate a client certificate signed by a CA")
	flags.BoolVar(&selfSigned, "self-signed", false, "Generate a self-signed certificate")
	flags.StringVar(&cn, "cn", "", "Common name (required)")
	flags.StringVar(&org, "org", "callwisp", "Organization")
	flags.StringVar(&hosts, "hosts", "", "Comma separated hostnames/IPs")
	flags.StringVar(&caCert, "ca-cert", "", "CA certificate for signing")
	flags.StringVar(&caKey, "ca-key", "", "CA key for signing")
	flags.StringVar(&certOut, "cert-out", "", "Output certificate file")
	flags.StringVar(&keyOut, "key-out", "", "Output key file")
	flags.IntVar(&days, "days", 365, "Validity period in days")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument(s): %s", strings.Join(flags.Args(), " "))
	}
	if cn == "" {
		return fmt.Errorf("common name (--cn) is required")
	}
	if days < 1 {
		return fmt.Errorf("--days must be positive: %d", days)
	}

	req := tls.CertRequest{
		CommonName:   cn,
		Organization: org,
		Hosts:        strings.Split(hosts, ","),
		ValidFor:     time.Duration(days) * 24 * time.Hour,
	}

	var (
		bundle *tls.Bundle
		label  string
		err    error
	)
	switch {
	case genCA:
		label = "CA"
		certOut, keyOut = coalesceString(certOut, "ca.crt"), coalesceString(keyOut, "ca.key")
		bundle, err = tls.GenerateCA(req)
	case selfSigned:
		label = "Self-signed"
		certOut, keyOut = coalesceString(certOut, "server.crt"), coalesceString(keyOut, "server.key")
		bundle, err = tls.GenerateSelfSigned(req)
	case genServer, genClient:
		if caCert == "" || caKey == "" {
			return fmt.Errorf("--ca-cert and --ca-key are required for signed certificates")
		}
		ca, loadErr := tls.LoadBundle(caCert, caKey)
		if loadErr != nil {
			return fmt.Errorf("load CA: %w", loadErr)
		}
		kind, name := tls.KindServer, "server"
		label = "Server"
		if genClient {
			kind, name = tls.KindClient, "client"
			label = "Client"
		}
		certOut, keyOut = coalesceString(certOut, name+".crt"), coalesceString(keyOut, name+".key")
		bundle, err = ca.Issue(req, kind)
	default:
		return fmt.Errorf("specify certificate type: --ca, --self-signed, --server, or --client")
	}
	if err != nil {
		return err
	}

	if err := bundle.WriteFiles(certOut, keyOut); err != nil {
		return err
	}

	Print("%s certificate generated:\n", label)
	Print("  Certificate: %s\n", certOut)
	Print("  Private key: %s (mode 0600)\n", keyOut)
	Print("  Valid until: %s\n", bundle.Cert.NotAfter.Format(time.RFC3339))
	if !bundle.Cert.IsCA && bundle.Cert.Issuer.CommonName != bundle.Cert.Subject.CommonName {
		Print("  Signed by:   CN=%s\n", bundle.Cert.Issuer.CommonName)
	}
	if names := sans(bundle); names != "" {
		Print("  Hosts:       %s\n", names)
	}
	return nil
}

func sans(b *tls.Bundle) string {
	names := append([]string{}, b.Cert.DNSNames...)
	for _, ip := range b.Cert.IPAddresses {
		names = append(names, ip.String())
	}
	return strings.Join(names, ",")
}

func (c *TLSCommand) Description() string {
	return "Generate TLS certificates for the ingest server"
}

func (c *TLSCommand) Help() string {
	return `TLS Command - Generate ECDSA certificates for callwisp

Usage:
  callwisp tls [options]

Certificate Types:
  --ca            Certificate authority
  --server        Server certificate signed by --ca-cert/--ca-key
  --client        Client certificate for mTLS, signed by --ca-cert/--ca-key
  --self-signed   Standalone certificate for development

Options:
  --cn <name>          Common name (required)
  --org <name>         Organization (default: callwisp)
  --hosts <list>       Comma separated hostnames/IPs (server, self-signed)
  --days <n>           Validity period in days (default: 365)
  --cert-out <file>    Certificate output file
  --key-out <file>     Private key output file

Examples:
  callwisp tls --ca --cn "callwisp CA" --days 3650
  callwisp tls --server --cn ingest.internal --hosts ingest.internal,10.0.0.7 \
    --ca-cert ca.crt --ca-key ca.key
  callwisp tls --client --cn build-agent --ca-cert ca.crt --ca-key ca.key

Serve with the result:
  CALLWISP_SERVE_TLS_ENABLED=true CALLWISP_SERVE_TLS_CERT_FILE=server.crt \
  CALLWISP_SERVE_TLS_KEY_FILE=server.key callwisp serve
`
}
