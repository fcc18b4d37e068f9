package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the client address of r. Proxy headers are only
// consulted when trustForwarded is set; the first X-Forwarded-For hop wins
// over X-Real-IP.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	return PeerAddress(r)
}

// PeerAddress is the transport-layer peer of r without its port
func PeerAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SanitizeIP returns the canonical text form of addr, or "" when addr is
// not an IP address. A port suffix is dropped.
func SanitizeIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.Trim(addr, "[]")

	ip := net.ParseIP(addr)
	if ip == nil {
		return ""
	}
	return ip.String()
}
