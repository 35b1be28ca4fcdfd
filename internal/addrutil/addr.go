package addrutil

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// ClientAddr returns a best-effort address for the client behind r.
//
// A proxy-supplied X-Forwarded-For header wins; its first hop is the
// real client. Otherwise the host part of the connection address is used.
func ClientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if host := HostFromAddr(first); host != "" {
			return host
		}
	}
	return HostFromAddr(r.RemoteAddr)
}

// HostFromAddr strips an optional port from addr.
func HostFromAddr(addr string) string {
	a := strings.TrimSpace(addr)
	if a == "" {
		return ""
	}

	// Fast path: "host:port" (IPv4 or bracketed IPv6).
	if h, _, err := net.SplitHostPort(a); err == nil {
		return h
	}

	// Raw IPv6 without a port.
	if ip := net.ParseIP(strings.Trim(a, "[]")); ip != nil {
		return ip.String()
	}

	// Unbracketed IPv6 "host:port": peel off the last ":port".
	if strings.Count(a, ":") > 1 && !strings.HasPrefix(a, "[") {
		if last := strings.LastIndexByte(a, ':'); last > 0 && last < len(a)-1 {
			if _, err := strconv.Atoi(a[last+1:]); err == nil {
				return a[:last]
			}
		}
	}

	return strings.Trim(a, "[]")
}
