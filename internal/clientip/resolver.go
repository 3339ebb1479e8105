// Package clientip derives a trustworthy client identity from the raw
// connection peer address and an optional forwarding header.
//
// The forwarding header is honored only when the immediate connection peer
// is a configured trusted proxy. A client cannot spoof its address by
// setting the header unless its request physically arrived through one of
// those proxies.
package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
)

// UnknownIP is the resolved address when no address can be determined.
const UnknownIP = "unknown"

// DefaultForwardedHeader is the header consulted for the original client
// address behind trusted proxies.
const DefaultForwardedHeader = "X-Forwarded-For"

// Identity is the resolved client identity for a single request.
// It is derived per request and never persisted.
type Identity struct {
	// IP is the normalized textual IPv4/IPv6 address, with any
	// IPv4-mapped IPv6 prefix stripped, or UnknownIP.
	IP string

	// ViaTrustedProxy reports whether the address was taken from the
	// forwarding header of a trusted proxy.
	ViaTrustedProxy bool
}

// Resolver resolves client identities against a configured set of trusted
// proxy addresses. The set can be replaced at runtime via
// SetTrustedProxies.
type Resolver struct {
	mu      sync.RWMutex
	trusted map[string]struct{}
	header  string
}

// Option is a functional option for the Resolver.
type Option func(*Resolver)

// WithForwardedHeader overrides the forwarding header name.
func WithForwardedHeader(name string) Option {
	return func(r *Resolver) {
		if name != "" {
			r.header = name
		}
	}
}

// NewResolver creates a Resolver trusting the given proxy addresses.
// Addresses are normalized before comparison, so "::ffff:10.0.0.5" and
// "10.0.0.5" configure the same proxy.
func NewResolver(trustedProxies []string, opts ...Option) *Resolver {
	r := &Resolver{
		trusted: normalizeSet(trustedProxies),
		header:  DefaultForwardedHeader,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetTrustedProxies replaces the trusted proxy set. Safe for concurrent
// use with Resolve; used by config hot reload.
func (r *Resolver) SetTrustedProxies(trustedProxies []string) {
	trusted := normalizeSet(trustedProxies)
	r.mu.Lock()
	r.trusted = trusted
	r.mu.Unlock()
}

func normalizeSet(addrs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		if normalized := Normalize(a); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return set
}

// Resolve derives the client identity from a connection peer address and
// the raw forwarding header value. The header is ignored entirely unless
// the peer exactly matches a trusted proxy.
func (r *Resolver) Resolve(peerAddr, forwardedValue string) Identity {
	peer := Normalize(peerAddr)

	r.mu.RLock()
	_, trusted := r.trusted[peer]
	r.mu.RUnlock()

	if trusted && forwardedValue != "" {
		// Left-most entry is the original client. A value that is not a
		// real address falls back to the peer; the proxy identity is
		// better than an attacker-chosen string.
		first := forwardedValue
		if idx := strings.Index(first, ","); idx >= 0 {
			first = first[:idx]
		}
		if ip := Normalize(first); ip != "" && isAddress(ip) {
			return Identity{IP: ip, ViaTrustedProxy: true}
		}
	}

	if peer == "" {
		return Identity{IP: UnknownIP}
	}
	return Identity{IP: peer}
}

// ResolveRequest resolves the client identity for an HTTP request using
// its RemoteAddr and the configured forwarding header.
func (r *Resolver) ResolveRequest(req *http.Request) Identity {
	return r.Resolve(req.RemoteAddr, req.Header.Get(r.header))
}

// Normalize produces the canonical textual form of an address: surrounding
// whitespace and brackets removed, a trailing port stripped, and any
// IPv4-mapped IPv6 prefix (::ffff:) unmapped. Returns "" when no address
// remains.
func Normalize(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}

	// RemoteAddr is usually "host:port"; SplitHostPort also unwraps
	// bracketed IPv6 literals.
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	} else {
		addr = strings.TrimPrefix(addr, "[")
		addr = strings.TrimSuffix(addr, "]")
	}

	if parsed, err := netip.ParseAddr(addr); err == nil {
		return parsed.Unmap().String()
	}

	// Not a parseable address. Still strip the mapped prefix so
	// comparisons and log output stay consistent.
	return strings.TrimPrefix(addr, "::ffff:")
}

// isAddress reports whether s is a literal IP address.
func isAddress(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}
