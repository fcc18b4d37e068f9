// Package contextkeys provides centralized context key definitions.
//
// All context keys used across keyhole are defined here so that the
// middleware setting a value and the handler reading it agree on the key.
//
//	ctx = contextkeys.WithUsername(ctx, "alice")
//	user := contextkeys.GetUsername(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionKey contains *auth.Session
	// Set by: middleware.SessionMiddleware
	// Used by: admin handlers, Gate.Decide via the valid flag
	SessionKey Key = "session"

	// UsernameKey contains the local username of the session holder
	// Set by: middleware.SessionMiddleware
	// Used by: Logger
	UsernameKey Key = "username"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, error responses
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: api.Server
	// Used by: Handlers that need structured logging with request context
	LoggerKey Key = "logger"

	// NonInteractiveKey contains bool
	// Set by: api.Server for /api/ routes and signature-authenticated calls
	// Used by: auth.Gate, which never redirects such requests
	NonInteractiveKey Key = "non_interactive"
)

// WithSession adds the authenticated session to the context
func WithSession(ctx context.Context, session interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// WithUsername adds the session username to the context
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, UsernameKey, username)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithNonInteractive marks the request as a programmatic call
func WithNonInteractive(ctx context.Context, nonInteractive bool) context.Context {
	return context.WithValue(ctx, NonInteractiveKey, nonInteractive)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUsername retrieves the session username from context
func GetUsername(ctx context.Context) string {
	if username, ok := ctx.Value(UsernameKey).(string); ok {
		return username
	}
	return ""
}

// IsNonInteractive reports whether the request was marked programmatic
func IsNonInteractive(ctx context.Context) bool {
	v, _ := ctx.Value(NonInteractiveKey).(bool)
	return v
}
