package auth

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// ClientIPResolver determines the originating address of a request. Forwarding
// headers are only believed when the direct peer is a trusted proxy.
type ClientIPResolver struct {
	trusted *netipx.IPSet
}

// NewClientIPResolver builds a resolver trusting the given CIDRs or single addresses.
func NewClientIPResolver(trustedProxies []string) (*ClientIPResolver, error) {
	var b netipx.IPSetBuilder
	for _, entry := range trustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("parse trusted proxy %q: %w", entry, err)
			}
			b.AddPrefix(prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("parse trusted proxy %q: %w", entry, err)
		}
		b.Add(addr.Unmap())
	}

	set, err := b.IPSet()
	if err != nil {
		return nil, fmt.Errorf("build trusted proxy set: %w", err)
	}
	return &ClientIPResolver{trusted: set}, nil
}

func (c *ClientIPResolver) isTrusted(addr netip.Addr) bool {
	return c != nil && c.trusted != nil && c.trusted.Contains(addr.Unmap())
}

// Resolve returns the client address for r. X-Forwarded-For is walked from the
// right and the first hop that is not a trusted proxy wins.
func (c *ClientIPResolver) Resolve(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	peerAddr, err := netip.ParseAddr(peer)
	if err != nil || !c.isTrusted(peerAddr) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			addr, err := netip.ParseAddr(hop)
			if err != nil {
				break
			}
			if !c.isTrusted(addr) {
				return addr.Unmap().String()
			}
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if addr, err := netip.ParseAddr(realIP); err == nil {
			return addr.Unmap().String()
		}
	}

	return peer
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
