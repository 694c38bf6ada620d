// Package authguard protects the dashboard: a request passes only with a
// session cookie the auth gateway accepts, and the signed-in user is
// placed in its context.
package authguard

import (
	"context"
	"net/http"
	"strings"
	"time"

	"creditledger/internal/auth"
	applog "creditledger/internal/log"
)

const (
	// CookieName holds the gateway access token.
	CookieName = "session"

	// LoginPath is where unauthenticated requests are sent.
	LoginPath = "/auth"

	lookupTimeout = 7 * time.Second
)

type contextKey struct{ name string }

var (
	userKey  = &contextKey{"user"}
	tokenKey = &contextKey{"token"}
)

// Guard checks sessions against the gateway.
type Guard struct {
	gateway  auth.Gateway
	logger   *applog.Logger
	prefixes []string
}

// New guards every path starting with one of prefixes; other paths pass
// through unchecked.
func New(gateway auth.Gateway, logger *applog.Logger, prefixes ...string) *Guard {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Guard{
		gateway:  gateway,
		logger:   logger.WithComponent(applog.ComponentGuard),
		prefixes: prefixes,
	}
}

func (g *Guard) protects(path string) bool {
	for _, p := range g.prefixes {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

// Middleware redirects to LoginPath when the session is absent or rejected.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.protects(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(CookieName)
		if err != nil || cookie.Value == "" {
			g.logger.DebugContext(r.Context(), "No session cookie", applog.FieldPath, r.URL.Path)
			Redirect(w, r, LoginPath)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
		user, err := g.gateway.GetUser(ctx, cookie.Value)
		cancel()
		if err != nil || user == nil {
			g.logger.InfoContext(r.Context(), "Session rejected",
				applog.FieldPath, r.URL.Path,
				applog.FieldError, err)
			ClearSessionCookie(w, r)
			Redirect(w, r, LoginPath)
			return
		}

		ctx = context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, tokenKey, cookie.Value)
		ctx = applog.WithLogger(ctx, applog.FromContext(ctx).WithUser(user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the user placed by Middleware.
func UserFromContext(ctx context.Context) (*auth.User, bool) {
	u, ok := ctx.Value(userKey).(*auth.User)
	return u, ok && u != nil
}

// TokenFromContext returns the access token the request was admitted with.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// WithUser returns a context carrying user, for handlers tested without
// the middleware.
func WithUser(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// Redirect sends the browser to target. htmx requests get HX-Redirect so
// the whole page navigates instead of swapping the login page into a
// fragment.
func Redirect(w http.ResponseWriter, r *http.Request, target string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// SetSessionCookie stores session's access token for the browser.
func SetSessionCookie(w http.ResponseWriter, r *http.Request, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    session.AccessToken,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
