// Package capture extracts a requester's network address and device
// signature from transport requests. Captured values annotate audit events;
// nothing here is computed from them.
package capture

import (
	"net/http"
	"net/netip"
	"strings"
)

// Trusted proxy headers, in precedence order. The CDN header wins because it
// is set by infrastructure we trust ahead of any client-controlled value; the
// forwarded-for chain is only trusted at its leftmost (origin) entry, since
// everything after it is an intermediate hop.
const (
	headerCDNConnectingIP = "CF-Connecting-IP"
	headerRealIP          = "X-Real-IP"
	headerForwardedFor    = "X-Forwarded-For"
)

// Address extracts the client IP from request headers and the transport-layer
// peer address. Candidates are taken in precedence order and must parse as a
// well-formed IPv4/IPv6 address; malformed candidates are skipped rather than
// failing the whole extraction. The second return is false when no candidate
// was acceptable.
func Address(header http.Header, remoteAddr string) (string, bool) {
	if ip, ok := normalize(header.Get(headerCDNConnectingIP)); ok {
		return ip, true
	}
	if ip, ok := normalize(header.Get(headerRealIP)); ok {
		return ip, true
	}
	if xff := header.Get(headerForwardedFor); xff != "" {
		first := xff
		if idx := strings.Index(xff, ","); idx != -1 {
			first = xff[:idx]
		}
		if ip, ok := normalize(first); ok {
			return ip, true
		}
	}
	// RemoteAddr is "ip:port" ("[::1]:port" for IPv6).
	if ap, err := netip.ParseAddrPort(strings.TrimSpace(remoteAddr)); err == nil {
		return ap.Addr().String(), true
	}
	if ip, ok := normalize(remoteAddr); ok {
		return ip, true
	}
	return "", false
}

// AddressFromRequest is the http.Request convenience form of Address.
func AddressFromRequest(r *http.Request) (string, bool) {
	return Address(r.Header, r.RemoteAddr)
}

func normalize(candidate string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(candidate)
	if err != nil {
		return "", false
	}
	return addr.String(), true
}

// Anonymize zeroes the host-identifying suffix of an address: the last octet
// of IPv4, the last 80 bits of IPv6. Used by retention enforcement only,
// never for live audit writes. Unparseable input is returned unchanged so a
// retention sweep never aborts on a single malformed row.
func Anonymize(address string) string {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return address
	}
	addr = addr.Unmap()
	bits := 24
	if addr.Is6() {
		bits = 48
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return address
	}
	return prefix.Addr().String()
}
