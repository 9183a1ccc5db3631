package server

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"flowlytix/licensing/internal/security"
)

// adminKeyHeader carries the admin API key on admin endpoints.
const adminKeyHeader = "X-Admin-Key"

// RequireAdminKey guards admin endpoints: the request's X-Admin-Key must match
// the configured bcrypt hash. An empty hash disables the admin surface
// entirely (404 would leak which routes exist; 401 is returned instead).
func RequireAdminKey(hasher *security.Hasher, keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" {
				render.Render(w, r, newAPIError(http.StatusUnauthorized, "ADMIN_DISABLED", "admin API is not configured"))
				return
			}
			key := r.Header.Get(adminKeyHeader)
			if key == "" {
				render.Render(w, r, newAPIError(http.StatusUnauthorized, "UNAUTHORIZED", "missing admin API key"))
				return
			}
			if err := hasher.Compare(keyHash, []byte(key)); err != nil {
				render.Render(w, r, newAPIError(http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin API key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type ctxKey int

const clientIPKey ctxKey = 0

// WithClientIP stores the client IP on the request context for the audit logger.
func WithClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey, ip)))
	})
}

// ClientIPFromContext returns the client IP stored by WithClientIP, or "unknown".
func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
