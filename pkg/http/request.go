package http

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// UnknownClientIP is recorded when the peer address cannot be parsed.
const UnknownClientIP = "unknown"

// IPConfig lists the proxy networks whose forwarding headers are honoured.
// A nil or empty config trusts no proxy.
type IPConfig struct {
	trusted []netip.Prefix
}

// NewIPConfig parses the trusted proxy CIDRs. A bare address is treated as a
// single-host range. Invalid entries are rejected so a typo cannot silently
// disable proxy handling.
func NewIPConfig(trustedProxies []string) (*IPConfig, error) {
	cfg := &IPConfig{}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			cfg.trusted = append(cfg.trusted, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}

		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		cfg.trusted = append(cfg.trusted, prefix.Masked())
	}
	return cfg, nil
}

// MustIPConfig is NewIPConfig for static proxy lists; it panics on error.
func MustIPConfig(trustedProxies ...string) *IPConfig {
	cfg, err := NewIPConfig(trustedProxies)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *IPConfig) trusts(addr netip.Addr) bool {
	if c == nil {
		return false
	}
	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the address recorded on issued credentials and
// used for per-IP rate limits.
//
// Forwarding headers are read only when the peer is a trusted proxy.
// X-Forwarded-For is walked from the right, skipping trusted hops, so a
// client cannot prepend a spoofed address. X-Real-IP is the fallback.
// IPv4-mapped IPv6 addresses are reported in their IPv4 form.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer, ok := remoteAddr(r)
	if !ok {
		return UnknownClientIP
	}
	if !config.trusts(peer) {
		return peer.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if addr, ok := firstUntrustedHop(xff, config); ok {
			return addr.String()
		}
	}

	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.Unmap().String()
	}

	return peer.String()
}

// firstUntrustedHop returns the rightmost X-Forwarded-For entry that is not a
// trusted proxy. When every entry is trusted the leftmost valid one is used.
func firstUntrustedHop(xff string, config *IPConfig) (netip.Addr, bool) {
	hops := strings.Split(xff, ",")

	var leftmost netip.Addr
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			// A malformed hop ends the chain we can vouch for
			break
		}
		addr = addr.Unmap()
		if !config.trusts(addr) {
			return addr, true
		}
		leftmost = addr
	}
	return leftmost, leftmost.IsValid()
}

// remoteAddr parses RemoteAddr with or without a port.
func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
