package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// IdentityOptions controls how the client identity is derived.
type IdentityOptions struct {
	// TrustProxyHeaders enables reading Header. Only turn this on behind a
	// proxy that overwrites the header; otherwise clients pick their own key.
	TrustProxyHeaders bool
	Header            string
}

// ClientIdentity returns the rate-limit identity for r ("ip:<addr>").
// With proxy headers trusted, the first valid address in Header wins;
// otherwise the transport peer address is used.
func ClientIdentity(r *http.Request, opt IdentityOptions) string {
	if opt.TrustProxyHeaders && opt.Header != "" {
		if raw := r.Header.Get(opt.Header); raw != "" {
			first := strings.TrimSpace(strings.Split(raw, ",")[0])
			if ip := net.ParseIP(first); ip != nil {
				return "ip:" + ip.String()
			}
		}
	}
	return "ip:" + peerAddr(r.RemoteAddr)
}

func peerAddr(remote string) string {
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	if host == "" {
		return "unknown"
	}
	return host
}
