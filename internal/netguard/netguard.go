// Package netguard keeps outbound fetches away from private and internal
// address space. The content enricher dials through it so a submitted URL
// cannot be used to reach the service's own network.
package netguard

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/yl2chen/cidranger"
)

// BlockedCIDRs are private/internal networks that fetch targets must never resolve to.
var BlockedCIDRs = []string{
	"127.0.0.0/8",    // loopback
	"10.0.0.0/8",     // RFC1918
	"172.16.0.0/12",  // RFC1918 / Docker bridge networks
	"192.168.0.0/16", // RFC1918
	"169.254.0.0/16", // link-local / cloud metadata
	"100.64.0.0/10",  // carrier-grade NAT
	"0.0.0.0/8",      // unspecified
	"::1/128",        // IPv6 loopback
	"fe80::/10",      // IPv6 link-local
	"fc00::/7",       // IPv6 unique local
}

var blocked = func() cidranger.Ranger {
	r := cidranger.NewPCTrieRanger()
	for _, c := range BlockedCIDRs {
		_, ipNet, err := net.ParseCIDR(c)
		if err != nil {
			panic("netguard: " + err.Error())
		}
		if err := r.Insert(cidranger.NewBasicRangerEntry(*ipNet)); err != nil {
			panic("netguard: " + err.Error())
		}
	}
	return r
}()

// IsBlocked returns true if the IP falls within a private/internal range.
// Unparseable input is treated as blocked.
func IsBlocked(ip net.IP) bool {
	if ip == nil {
		return true
	}
	ok, err := blocked.Contains(ip)
	return err != nil || ok
}

// Dialer resolves the target itself and refuses to connect when any
// resolved address is blocked.
type Dialer struct {
	Timeout  time.Duration
	Resolver *net.Resolver
	// AllowPrivate disables the check; tests use it to reach httptest servers.
	AllowPrivate bool
}

// DialContext matches net.Dialer.DialContext so it can be used in an http.Transport.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	nd := &net.Dialer{Timeout: d.Timeout}
	if d.AllowPrivate {
		return nd.DialContext(ctx, network, addr)
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsBlocked(ip) {
			return nil, fmt.Errorf("target %s is a blocked private IP", addr)
		}
		return nd.DialContext(ctx, network, addr)
	}

	resolver := d.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	ips, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("dns lookup for %s returned no addresses", host)
	}
	for _, ipAddr := range ips {
		if IsBlocked(ipAddr.IP) {
			return nil, fmt.Errorf("target %s resolves to blocked private IP %s", addr, ipAddr.IP)
		}
	}

	// connect to the address that was checked, not a fresh lookup
	return nd.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
}
