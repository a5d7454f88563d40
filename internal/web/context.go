package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/leadimport/internal/core"
)

// withRequestMetadata adds the client IP and user agent to ctx for the audit log.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.WithRequestMetadata(ctx, clientIP(r), r.UserAgent())
}

// clientIP is the connection address after TrustedRealIP has rewritten it.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
