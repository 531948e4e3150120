package authz

import (
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/keystone-pm/keystone/internal/observability"
	"github.com/keystone-pm/keystone/internal/platform/httpx"
	"github.com/keystone-pm/keystone/internal/shared"
)

// Middleware enforces the guard on every request passing through it.
type Middleware struct {
	Guard   *Guard
	Logger  *slog.Logger
	Metrics *observability.Metrics
	// LoginPath receives unauthenticated browsers, carrying the
	// originally requested path in the next parameter.
	LoginPath string
}

// Handler evaluates the guard and translates the verdict: continue,
// redirect to login, or respond with a problem document.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var identityID string
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			identityID = sess.User()
		}

		verdict := m.Guard.Authorize(r.Context(), Request{
			Path:       r.URL.Path,
			Method:     r.Method,
			IdentityID: identityID,
		})
		if m.Metrics != nil {
			m.Metrics.AuthzDecision(verdict.Allow, string(verdict.Reason))
		}
		if verdict.Allow {
			if verdict.Identity != nil {
				r = r.WithContext(ContextWithIdentity(r.Context(), verdict.Identity))
			}
			next.ServeHTTP(w, r)
			return
		}

		switch verdict.Reason {
		case ReasonUnauthenticated:
			login := m.LoginPath
			if login == "" {
				login = "/auth/login"
			}
			target := login + "?next=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)
		case ReasonRateLimited:
			seconds := int(math.Ceil(verdict.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "request rate limit exceeded")
		case ReasonAccountLocked:
			httpx.Problem(w, http.StatusForbidden, "Account Locked", "account is temporarily locked")
		case ReasonInsufficientRole, ReasonInsufficientPermission:
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing required role or permission")
		default:
			// PolicyLookupFailed and anything unexpected: fail closed.
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		}
	})
}
