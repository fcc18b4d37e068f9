package middleware

import (
	"net/http"

	"github.com/platinummonkey/keyhole/pkg/auth"
	"github.com/platinummonkey/keyhole/pkg/contextkeys"
	"github.com/platinummonkey/keyhole/pkg/httputil"
)

// SessionValidator checks the session cookie of a request
type SessionValidator interface {
	Validate(r *http.Request) (*auth.Session, bool)
}

// SessionMiddleware puts a valid local session into the request context.
// Requests without one pass through untouched.
type SessionMiddleware struct {
	sessions SessionValidator
}

// NewSessionMiddleware creates a new session middleware
func NewSessionMiddleware(sessions SessionValidator) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions}
}

// Handler wraps an HTTP handler with session lookup
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := m.sessions.Validate(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := contextkeys.WithSession(r.Context(), session)
		ctx = contextkeys.WithUsername(ctx, session.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSession extracts the session from request
func GetSession(r *http.Request) *auth.Session {
	session, ok := r.Context().Value(contextkeys.SessionKey).(*auth.Session)
	if !ok {
		return nil
	}
	return session
}

// NonInteractive marks programmatic requests so that login delegation never
// redirects them
func NonInteractive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httputil.IsAPIRequest(r) {
			r = r.WithContext(contextkeys.WithNonInteractive(r.Context(), true))
		}
		next.ServeHTTP(w, r)
	})
}
