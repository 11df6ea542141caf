package util

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies is the set of address ranges allowed to speak for clients
// via forwarded headers. The server sits behind a load balancer in the
// reference deployment, so rate limiting and the auth audit log need the
// real caller address, not the balancer's.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// NewTrustedProxies builds the allowlist from config entries. Each entry is
// a CIDR range or a bare address; blanks are skipped. With no usable
// entries it returns nil, which trusts nobody.
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	var prefixes []netip.Prefix
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		p, err := parseProxyEntry(entry)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, p)
	}
	if len(prefixes) == 0 {
		return nil, nil
	}
	return &TrustedProxies{prefixes: prefixes}, nil
}

func parseProxyEntry(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("trusted proxy entry %q: %w", entry, err)
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("trusted proxy entry %q: %w", entry, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Trusts reports whether addr falls inside a configured proxy range.
func (t *TrustedProxies) Trusts(addr netip.Addr) bool {
	if t == nil || !addr.IsValid() {
		return false
	}
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP resolves the caller address for a request. The direct peer wins
// unless it is a trusted proxy; then the X-Forwarded-For chain is walked
// right to left and the first hop outside the trusted ranges is the client.
// A fully trusted chain yields its leftmost hop. X-Real-IP is a fallback
// for proxies that set only that header.
func ClientIP(r *http.Request, trusted *TrustedProxies) string {
	peer, ok := peerAddr(r.RemoteAddr)
	if !ok {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if !trusted.Trusts(peer) {
		return peer.String()
	}

	if hops := forwardedChain(r.Header.Get("X-Forwarded-For")); len(hops) > 0 {
		for i := len(hops) - 1; i >= 0; i-- {
			if !trusted.Trusts(hops[i]) {
				return hops[i].String()
			}
		}
		return hops[0].String()
	}

	if real, ok := headerAddr(r.Header.Get("X-Real-IP")); ok {
		return real.String()
	}
	return peer.String()
}

func forwardedChain(raw string) []netip.Addr {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	hops := make([]netip.Addr, 0, len(parts))
	for _, part := range parts {
		if addr, ok := headerAddr(part); ok {
			hops = append(hops, addr)
		}
	}
	return hops
}

func peerAddr(remoteAddr string) (netip.Addr, bool) {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap(), true
	}
	return headerAddr(remoteAddr)
}

func headerAddr(raw string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
