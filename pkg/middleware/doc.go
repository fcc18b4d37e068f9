// Package middleware provides the HTTP middleware in front of keyhole's
// write and login paths.
//
// # Middleware Components
//
// FloodGuard: per-address submission throttle over the persisted history
//
//	guard, _ := middleware.NewFloodGuard(cfg.Flood, history, sessions, log, metrics)
//	router.Handle("/api/submissions", guard.Handler(submit))
//
// A write is rejected with 429 when the last recorded write from the same
// address is not older than the configured delay (whole seconds, the
// boundary itself is rejected). Disabled delay, setup mode, a valid
// session and whitelisted addresses are never throttled. The guard only
// reads; the write path records the new entry.
//
// SessionMiddleware: puts a valid session cookie into the request context
//
//	router.Use(middleware.NewSessionMiddleware(sessions).Handler)
//
// LoginThrottle: in-memory token bucket for unauthenticated login traffic
//
//	throttle := middleware.NewLoginThrottle(nil, cfg.Flood.TrustForwarded)
//
// NonInteractive: marks /api/ and signature requests as programmatic
//
// # Related Packages
//
//   - pkg/auth: sessions and the login gate
//   - pkg/storage: submission history
package middleware
