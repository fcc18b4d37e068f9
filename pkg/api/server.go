package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/keyhole/pkg/auth"
	"github.com/platinummonkey/keyhole/pkg/httputil"
	"github.com/platinummonkey/keyhole/pkg/middleware"
	"github.com/platinummonkey/keyhole/pkg/observability"
	"github.com/platinummonkey/keyhole/pkg/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxBodyBytes bounds every request body
const maxBodyBytes = 64 << 10

// ServerOptions are the collaborators of a Server
type ServerOptions struct {
	Gate     auth.Delegate
	Sessions *auth.SessionManager
	Guard    *middleware.FloodGuard
	History  storage.HistoryStore

	// Throttle limits unauthenticated traffic to the login gate. Optional.
	Throttle *middleware.LoginThrottle

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Server represents our HTTP server
type Server struct {
	router  *mux.Router
	logger  *observability.Logger
	metrics *observability.Metrics

	admin       *AdminHandlers
	submissions *SubmissionHandlers
	sessions    *middleware.SessionMiddleware
	throttle    *middleware.LoginThrottle
}

// NewServer creates a new server and registers its routes
func NewServer(opts ServerOptions) (*Server, error) {
	switch {
	case opts.Gate == nil:
		return nil, errors.New("login gate is required")
	case opts.Sessions == nil:
		return nil, errors.New("session manager is required")
	case opts.Guard == nil:
		return nil, errors.New("flood guard is required")
	case opts.History == nil:
		return nil, errors.New("history store is required")
	case opts.Logger == nil:
		return nil, errors.New("logger is required")
	}

	s := &Server{
		router:      mux.NewRouter(),
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		admin:       NewAdminHandlers(opts.Gate),
		submissions: NewSubmissionHandlers(opts.Guard, opts.History, time.Now),
		sessions:    middleware.NewSessionMiddleware(opts.Sessions),
		throttle:    opts.Throttle,
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all the routes
func (s *Server) setupRoutes() {
	s.router.Use(s.sessions.Handler, middleware.NonInteractive)

	admin := s.router.PathPrefix("/admin").Subrouter()
	if s.throttle != nil {
		admin.Use(s.throttle.Handler)
	}
	s.admin.RegisterRoutes(admin)

	s.submissions.RegisterRoutes(s.router.PathPrefix("/api").Subrouter())

	s.router.Handle("/", http.RedirectHandler(httputil.LoginPath, http.StatusFound)).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the server wrapped in the request pipeline: tracing,
// metrics, request IDs, logging, panic recovery and body limits
func (s *Server) Handler() http.Handler {
	var h http.Handler = httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggerMiddleware(s.logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)(s)

	if s.metrics != nil {
		h = observability.HTTPMetricsMiddleware(s.metrics, s.routeTemplate)(h)
	}

	return otelhttp.NewHandler(h, "keyhole",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + s.routeTemplate(r)
		}),
	)
}

// routeTemplate names the matched route for metrics and span names
func (s *Server) routeTemplate(r *http.Request) string {
	var match mux.RouteMatch
	if s.router.Match(r, &match) && match.Route != nil {
		if tpl, err := match.Route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
