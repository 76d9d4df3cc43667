package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/flemzord/rolechat/internal/security"
)

// authMiddleware validates a Bearer token or Basic credentials with
// constant-time comparison. Secrets are read from the credential store on
// every request so a reload rotates them without a restart. With no
// secret configured the API is open.
func (g *Gateway) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, hasToken := g.creds.Get(security.CredGatewayToken)
		pass, hasPass := g.creds.Get(security.CredGatewayPass)
		hasBasic := hasPass && g.cfg.BasicUser != ""
		if !hasToken && !hasBasic {
			next.ServeHTTP(w, r)
			return
		}

		if hasToken {
			if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && constantTimeEqual(after, token) {
				next.ServeHTTP(w, r)
				return
			}
		}
		if hasBasic {
			user, p, ok := r.BasicAuth()
			if ok && constantTimeEqual(user, g.cfg.BasicUser) && constantTimeEqual(p, pass) {
				next.ServeHTTP(w, r)
				return
			}
		}

		g.audit.Log(security.AuditEvent{
			Type:   security.EventAuthFailure,
			Remote: r.RemoteAddr,
			Detail: r.Method + " " + r.URL.Path,
		})
		if hasBasic {
			w.Header().Set("WWW-Authenticate", `Basic realm="rolechat"`)
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}

// limit rejects requests once the client exceeds its allowance for kind.
func (g *Gateway) limit(kind string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.limiter.Allow(clientKey(r), kind); err != nil {
				g.audit.Log(security.AuditEvent{
					Type:   security.EventRateLimit,
					Remote: r.RemoteAddr,
					Detail: kind,
				})
				if g.metrics != nil {
					g.metrics.RateLimited(kind)
				}
				writeError(w, http.StatusTooManyRequests, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey identifies the caller for rate limiting. RemoteAddr has
// already been rewritten by middleware.RealIP.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
