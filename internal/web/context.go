package web

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/JonMunkholm/stockimport/internal/core"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx for the
// audit trail. RemoteAddr is already rewritten by TrustedRealIP.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ctx = core.ContextWithIPAddress(ctx, ip)
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}

// tenant returns the X-Tenant-ID header or the configured default tenant.
func (s *Server) tenant(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get("X-Tenant-ID")); t != "" {
		return t
	}
	return s.cfg.Security.DefaultTenant
}
