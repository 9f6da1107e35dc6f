package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"vowpact/internal/logging"
	"vowpact/internal/store"

	jsoniter "github.com/json-iterator/go"
)

// contextKey is the type for context keys to avoid collisions.
type contextKey string

const userKey contextKey = "vowpact-user"

// SessionMeta is request information recorded with a new session.
type SessionMeta struct {
	UserAgent string
	IPAddress string
}

// MetaFromRequest extracts SessionMeta from r. RemoteAddr is expected to have
// been rewritten by a real-IP middleware when running behind a proxy.
func MetaFromRequest(r *http.Request) SessionMeta {
	return SessionMeta{UserAgent: r.UserAgent(), IPAddress: ClientIP(r)}
}

// ClientIP returns the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// SetCookie writes the session cookie for sess.
func (c CookieConfig) SetCookie(w http.ResponseWriter, sess *store.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (c CookieConfig) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Token returns the session token carried by r, if any.
func (c CookieConfig) Token(r *http.Request) string {
	ck, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return ck.Value
}

// Middleware resolves the session cookie and stores the user in the request
// context. Requests without a valid session pass through anonymously.
func (s *Service) Middleware(cookie CookieConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookie.Token(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			u, err := s.Resolve(r.Context(), token)
			switch {
			case err == nil:
				r = r.WithContext(WithUser(r.Context(), u))
			case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrNoSession):
				cookie.ClearCookie(w)
			default:
				logging.AuthWarn("resolve session: %v", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects requests without a logged-in user.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = jsoniter.NewEncoder(w).Encode(map[string]string{"error": ErrNoSession.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the logged-in user, if any.
func UserFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(userKey).(*store.User)
	return u, ok && u != nil
}
