package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/keyhole/pkg/auth"
	"github.com/platinummonkey/keyhole/pkg/config"
	"github.com/platinummonkey/keyhole/pkg/httputil"
	"github.com/platinummonkey/keyhole/pkg/observability"
	"github.com/platinummonkey/keyhole/pkg/storage"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// FloodMessage is the only detail given to a throttled client
const FloodMessage = "Too many URLs added too fast. Slow down please."

// FloodRejectedError is returned by Check when the source address wrote
// too recently
type FloodRejectedError struct {
	Address string
	// Elapsed is the number of whole seconds since the last recorded write
	Elapsed int64
	// RetryAfter is the number of seconds until a write would be allowed
	RetryAfter int
}

func (e *FloodRejectedError) Error() string {
	return FloodMessage
}

// SessionRefresher validates the caller's session cookie and re-issues it
type SessionRefresher interface {
	Refresh(w http.ResponseWriter, r *http.Request) (*auth.Session, bool)
}

// FloodGuard rejects writes from an address whose previous write is not
// older than the configured delay. It only reads history. Two concurrent
// first writes from one address can both pass.
type FloodGuard struct {
	delay          int64
	installing     bool
	whitelist      []string
	trustForwarded bool

	history  storage.HistoryStore
	sessions SessionRefresher
	log      *logrus.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewFloodGuard creates a guard. sessions may be nil, in which case no
// caller is exempt by session.
func NewFloodGuard(cfg config.FloodConfig, history storage.HistoryStore, sessions SessionRefresher, log *logrus.Logger, metrics *observability.Metrics) (*FloodGuard, error) {
	if history == nil {
		return nil, errors.New("history store is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &FloodGuard{
		delay:          int64(cfg.DelaySeconds),
		installing:     cfg.Installing,
		whitelist:      cfg.Whitelist(),
		trustForwarded: cfg.TrustForwarded,
		history:        history,
		sessions:       sessions,
		log:            log,
		metrics:        metrics,
		now:            time.Now,
	}, nil
}

// Enabled reports whether the guard can ever reject
func (g *FloodGuard) Enabled() bool {
	return g.delay > 0 && !g.installing
}

// SourceAddress is the canonical address Check uses for r. The write path
// records its FloodRecord under the same address.
func (g *FloodGuard) SourceAddress(r *http.Request) string {
	if addr := SanitizeIP(ClientIP(r, g.trustForwarded)); addr != "" {
		return addr
	}
	return PeerAddress(r)
}

// Check decides whether a write from sourceAddress may proceed. It returns
// nil to allow, *FloodRejectedError to deny, and any other error when the
// history could not be read. An empty sourceAddress resolves to the
// transport peer of r.
func (g *FloodGuard) Check(w http.ResponseWriter, r *http.Request, sourceAddress string) error {
	if !g.Enabled() {
		g.metrics.ObserveFlood(observability.FloodAllowed, "disabled")
		return nil
	}

	if g.sessions != nil {
		if _, ok := g.sessions.Refresh(w, r); ok {
			g.metrics.ObserveFlood(observability.FloodAllowed, "session")
			return nil
		}
	}

	for _, entry := range g.whitelist {
		if entry == sourceAddress {
			g.metrics.ObserveFlood(observability.FloodAllowed, "whitelist")
			return nil
		}
	}

	addr := SanitizeIP(sourceAddress)
	if addr == "" {
		addr = PeerAddress(r)
	}

	ctx, span := observability.Tracer().Start(r.Context(), "flood.Check")
	defer span.End()

	last, found, err := g.history.LastAction(ctx, addr)
	if err != nil {
		g.metrics.ObserveFlood(observability.FloodError, "history")
		span.RecordError(err)
		return fmt.Errorf("failed to read submission history: %w", err)
	}
	if !found {
		g.metrics.ObserveFlood(observability.FloodAllowed, "no_history")
		return nil
	}

	elapsed := g.now().Unix() - last.Unix()
	span.SetAttributes(attribute.Int64("flood.elapsed_seconds", elapsed))
	if elapsed > g.delay {
		g.metrics.ObserveFlood(observability.FloodAllowed, "elapsed")
		return nil
	}

	// a timestamp in the future still waits out a full delay
	retry := g.delay - elapsed + 1
	if retry > g.delay+1 {
		retry = g.delay + 1
	}

	g.metrics.ObserveFlood(observability.FloodRejected, "too_soon")
	g.log.WithFields(logrus.Fields{
		"address": addr,
		"elapsed": elapsed,
	}).Info("submission flood rejected")

	return &FloodRejectedError{Address: addr, Elapsed: elapsed, RetryAfter: int(retry)}
}

// Handler guards a write endpoint. Rejections get 429 with Retry-After and
// history failures get 503.
func (g *FloodGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := g.Check(w, r, ClientIP(r, g.trustForwarded))
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}

		var rejected *FloodRejectedError
		if errors.As(err, &rejected) {
			httputil.WriteTooManyRequests(w, rejected.RetryAfter, FloodMessage)
			return
		}

		observability.FromContext(r.Context()).WithError(err).Error("flood check failed")
		httputil.WriteServiceUnavailable(w, "submission history unavailable")
	})
}
