// Package metadata attaches client address and User-Agent to the request context.
package metadata

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"aidreg/pkg/requestcontext"
)

// MaxForwardedHeaderLength bounds X-Forwarded-For / X-Real-IP values we are willing to parse.
const MaxForwardedHeaderLength = 500

// Middleware resolves the client address, honoring forwarding headers only
// when the direct peer is a trusted proxy.
type Middleware struct {
	trusted []netip.Prefix
}

// New returns a Middleware trusting the given proxy prefixes. A nil slice trusts nobody.
func New(trusted []netip.Prefix) *Middleware {
	return &Middleware{trusted: trusted}
}

// ParseTrustedProxies parses a comma-separated list of CIDRs or bare addresses.
func ParseTrustedProxies(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for part := range strings.SplitSeq(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", part, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", part, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

// Handler stores client IP and User-Agent via requestcontext.WithClientMetadata.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), m.clientIP(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) clientIP(r *http.Request) string {
	peer := peerAddr(r.RemoteAddr)
	if peer == "" {
		return "unknown"
	}
	if !m.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if len(xff) > MaxForwardedHeaderLength {
			return peer
		}
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if _, err := netip.ParseAddr(first); err != nil {
			return peer
		}
		return first
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && len(xri) <= MaxForwardedHeaderLength {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return peer
}

func (m *Middleware) isTrusted(ip string) bool {
	if len(m.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range m.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// peerAddr strips the port from RemoteAddr, tolerating values without one.
func peerAddr(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return strings.Trim(remoteAddr, "[]")
}
