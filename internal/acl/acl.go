// Package acl restricts which remote hosts may push log lines over the
// TCP ingest listener.
package acl

import (
	"fmt"
	"net"
	"strings"
)

// Allowlist is a set of CIDR networks permitted to connect.
// An empty allowlist permits everything.
type Allowlist struct {
	nets []*net.IPNet
}

// Parse builds an allowlist from CIDR notation strings. Blank entries
// are ignored so config lists can carry placeholders.
func Parse(cidrs []string) (*Allowlist, error) {
	var nets []*net.IPNet
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("invalid allowlist entry %q: %w", c, err)
		}
		nets = append(nets, n)
	}
	return &Allowlist{nets: nets}, nil
}

// Permits reports whether ip falls inside any configured network.
func (a *Allowlist) Permits(ip net.IP) bool {
	if len(a.nets) == 0 {
		return true
	}
	for _, n := range a.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// PermitsAddr extracts the IP from a connection address (host:port) and
// checks it against the allowlist. Unparseable addresses are refused
// unless the allowlist is empty.
func (a *Allowlist) PermitsAddr(addr net.Addr) bool {
	if len(a.nets) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return a.Permits(ip)
}

// Empty reports whether no networks are configured.
func (a *Allowlist) Empty() bool {
	return len(a.nets) == 0
}
