package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/platinummonkey/keyhole/pkg/config"
)

const sessionIssuer = "keyhole"

// Session is a validated local session
type Session struct {
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionClaims are the JWT claims carried in the session cookie
type SessionClaims struct {
	Username string `json:"usr"`
	jwt.RegisteredClaims
}

// SessionManager issues and checks HS256 signed session cookies
type SessionManager struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool
	now        func() time.Time
}

// NewSessionManager creates a manager from the session settings
func NewSessionManager(cfg config.SessionConfig) (*SessionManager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("session secret must be at least 32 characters")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session TTL must be positive")
	}
	name := cfg.CookieName
	if name == "" {
		name = "keyhole_session"
	}

	return &SessionManager{
		secret:     []byte(cfg.Secret),
		ttl:        cfg.TTL,
		cookieName: name,
		secure:     cfg.SecureCookie,
		now:        time.Now,
	}, nil
}

// CookieName returns the name of the session cookie
func (m *SessionManager) CookieName() string {
	return m.cookieName
}

// Establish issues a session for username and sets the cookie
func (m *SessionManager) Establish(w http.ResponseWriter, username string) (*Session, error) {
	if username == "" {
		return nil, errors.New("cannot establish a session without a username")
	}

	now := m.now()
	claims := SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    signed,
		Path:     "/",
		Expires:  now.Add(m.ttl),
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return &Session{
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}, nil
}

// Validate checks the session cookie signature and expiry
func (m *SessionManager) Validate(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid || claims.Username == "" {
		return nil, false
	}

	session := &Session{Username: claims.Username}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, true
}

// Refresh re-issues a valid session with a fresh expiry
func (m *SessionManager) Refresh(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session, ok := m.Validate(r)
	if !ok {
		return nil, false
	}
	refreshed, err := m.Establish(w, session.Username)
	if err != nil {
		return session, true
	}
	return refreshed, true
}

// Clear expires the session cookie
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
