// FILE: callwisp/src/internal/limit/ip.go
package limit

import (
	"net"
	"strings"

	"callwisp/src/internal/config"

	"github.com/lixenwraith/log"
)

// IPChecker handles IP-based access control lists
type IPChecker struct {
	allow  []*net.IPNet
	deny   []*net.IPNet
	logger *log.Logger
}

// NewIPChecker creates a new IPChecker. Returns nil if no rules are defined.
func NewIPChecker(cfg *config.ServeAccessConfig, logger *log.Logger) *IPChecker {
	if cfg == nil || (len(cfg.IPAllowlist) == 0 && len(cfg.IPDenylist) == 0) {
		return nil
	}

	c := &IPChecker{logger: logger}
	c.allow = c.parseList(cfg.IPAllowlist, "allowlist")
	c.deny = c.parseList(cfg.IPDenylist, "denylist")

	if logger != nil {
		logger.Info("msg", "IP checker initialized",
			"component", "ip_checker",
			"allow_rules", len(c.allow),
			"deny_rules", len(c.deny))
	}
	return c
}

func (c *IPChecker) parseList(entries []string, list string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		if ipNet := parseEntry(entry); ipNet != nil {
			nets = append(nets, ipNet)
		} else if c.logger != nil {
			c.logger.Warn("msg", "Skipping invalid IP entry",
				"component", "ip_checker",
				"list", list,
				"entry", entry)
		}
	}
	return nets
}

// parseEntry accepts a CIDR or a plain IPv4/IPv6 address
func parseEntry(entry string) *net.IPNet {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil
		}
		return ipNet
	}
	ip := net.ParseIP(entry)
	if ip == nil {
		return nil
	}
	if v4 := ip.To4(); v4 != nil {
		return &net.IPNet{IP: v4, Mask: net.CIDRMask(32, 32)}
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}
}

// HostOf extracts the IP text from a remote address
func HostOf(remoteAddr net.Addr) string {
	switch addr := remoteAddr.(type) {
	case *net.TCPAddr:
		return addr.IP.String()
	case *net.UDPAddr:
		return addr.IP.String()
	}
	addrStr := remoteAddr.String()
	if host, _, err := net.SplitHostPort(addrStr); err == nil {
		return host
	}
	return addrStr
}

// IsAllowed validates if a remote address is permitted. Deny rules take precedence;
// with an allowlist configured, unlisted addresses are refused.
func (c *IPChecker) IsAllowed(remoteAddr net.Addr) bool {
	if c == nil {
		return true
	}

	ipStr := HostOf(remoteAddr)
	ip := net.ParseIP(ipStr)
	if ip == nil {
		if c.logger != nil {
			c.logger.Warn("msg", "Could not parse remote address to IP",
				"component", "ip_checker",
				"remote_addr", remoteAddr.String())
		}
		return false
	}

	for _, ipNet := range c.deny {
		if ipNet.Contains(ip) {
			if c.logger != nil {
				c.logger.Warn("msg", "Denylisted IP refused",
					"component", "ip_checker",
					"ip", ipStr,
					"rule", ipNet.String())
			}
			return false
		}
	}

	if len(c.allow) == 0 {
		return true
	}
	for _, ipNet := range c.allow {
		if ipNet.Contains(ip) {
			return true
		}
	}
	if c.logger != nil {
		c.logger.Warn("msg", "IP not in allowlist",
			"component", "ip_checker",
			"ip", ipStr)
	}
	return false
}

// GetStats returns IP checker statistics
func (c *IPChecker) GetStats() map[string]any {
	if c == nil {
		return map[string]any{"enabled": false}
	}
	return map[string]any{
		"enabled":     true,
		"allow_rules": len(c.allow),
		"deny_rules":  len(c.deny),
	}
}
