package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/keyhole/pkg/config"
	"github.com/platinummonkey/keyhole/pkg/httputil"
	"github.com/platinummonkey/keyhole/pkg/observability"
	"github.com/platinummonkey/keyhole/pkg/sso"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Delegate is the host-facing login delegation contract
type Delegate interface {
	// Decide returns the session validity for r. It may answer the request
	// itself: a redirect to the provider (ErrDelegationStarted) or, on a
	// successful callback, a redirect back to the clean path (true).
	Decide(w http.ResponseWriter, r *http.Request, valid, nonInteractive bool) (bool, error)

	// Logout ends the local session and, when delegation is configured,
	// redirects to the provider's sign-out
	Logout(w http.ResponseWriter, r *http.Request) error

	// RenderLoginTop and RenderLoginEnd bracket the native login form
	RenderLoginTop(w io.Writer) error
	RenderLoginEnd(w io.Writer) error
}

// GateOptions are the collaborators of a Gate
type GateOptions struct {
	Loader    config.DelegationLoader
	Providers *sso.ProviderCache
	States    sso.StateStore
	Allowlist Allowlist
	Sessions  *SessionManager

	// SiteURL is the post-logout landing page
	SiteURL string

	Logger  *logrus.Logger
	Metrics *observability.Metrics
}

// Gate delegates interactive logins to an OpenID Connect provider and maps
// the returned username onto the allowlist
type Gate struct {
	loader    config.DelegationLoader
	providers *sso.ProviderCache
	states    sso.StateStore
	allowlist Allowlist
	sessions  *SessionManager
	siteURL   string
	log       *logrus.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer

	unconfiguredOnce sync.Once
}

var _ Delegate = (*Gate)(nil)

// NewGate creates a gate
func NewGate(opts GateOptions) (*Gate, error) {
	switch {
	case opts.Loader == nil:
		return nil, errors.New("delegation loader is required")
	case opts.Providers == nil:
		return nil, errors.New("provider cache is required")
	case opts.States == nil:
		return nil, errors.New("state store is required")
	case opts.Allowlist == nil:
		return nil, errors.New("allowlist is required")
	case opts.Sessions == nil:
		return nil, errors.New("session manager is required")
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Gate{
		loader:    opts.Loader,
		providers: opts.Providers,
		states:    opts.States,
		allowlist: opts.Allowlist,
		sessions:  opts.Sessions,
		siteURL:   strings.TrimRight(opts.SiteURL, "/"),
		log:       log,
		metrics:   opts.Metrics,
		tracer:    observability.Tracer(),
	}, nil
}

// loadConfig returns ok=false when delegation is unavailable. The first
// Unconfigured result is logged as a warning, later ones at debug.
func (g *Gate) loadConfig() (config.DelegationConfig, bool) {
	cfg, err := g.loader.Load()
	if err == nil {
		return cfg, true
	}

	if errors.Is(err, config.ErrUnconfigured) {
		logged := false
		g.unconfiguredOnce.Do(func() {
			g.log.WithError(err).Warn("identity provider delegation disabled")
			logged = true
		})
		if !logged {
			g.log.WithError(err).Debug("identity provider delegation disabled")
		}
	} else {
		g.log.WithError(err).Error("invalid identity provider configuration, delegation disabled")
	}
	return config.DelegationConfig{}, false
}

// Decide implements Delegate
func (g *Gate) Decide(w http.ResponseWriter, r *http.Request, valid, nonInteractive bool) (bool, error) {
	cfg, ok := g.loadConfig()
	if !ok {
		g.metrics.ObserveDelegation(observability.OutcomeUnconfigured)
		return valid, nil
	}

	if valid || nonInteractive {
		g.metrics.ObserveDelegation(observability.OutcomeSkipped)
		return valid, nil
	}

	// the provider returns to the page the login started from
	if cfg.RedirectURL == "" && g.siteURL != "" {
		cfg.RedirectURL = g.siteURL + httputil.CanonicalPath(r)
	}

	q := r.URL.Query()
	if q.Get("state") != "" || q.Get("error") != "" {
		return g.completeDelegation(w, r, cfg)
	}
	return g.beginDelegation(w, r, cfg)
}

func (g *Gate) beginDelegation(w http.ResponseWriter, r *http.Request, cfg config.DelegationConfig) (bool, error) {
	ctx, span := g.tracer.Start(r.Context(), "auth.beginDelegation")
	defer span.End()

	provider, err := g.provider(ctx, cfg)
	if err != nil {
		return g.fail(span, "discovery", err)
	}

	st, err := sso.NewDelegationState(httputil.CanonicalPath(r))
	if err != nil {
		return g.fail(span, "state", err)
	}
	if err := g.states.Save(ctx, st); err != nil {
		return g.fail(span, "state", err)
	}

	http.Redirect(w, r, provider.AuthCodeURL(st), http.StatusFound)
	g.metrics.ObserveDelegation(observability.OutcomeStarted)
	g.log.WithField("path", st.ReturnPath).Debug("redirected to identity provider")
	return false, ErrDelegationStarted
}

func (g *Gate) completeDelegation(w http.ResponseWriter, r *http.Request, cfg config.DelegationConfig) (bool, error) {
	ctx, span := g.tracer.Start(r.Context(), "auth.completeDelegation")
	defer span.End()

	q := r.URL.Query()

	st, err := g.states.Consume(ctx, q.Get("state"))
	if err != nil {
		return g.fail(span, "state", err)
	}

	if code := q.Get("error"); code != "" {
		return g.fail(span, "authorize", fmt.Errorf("provider returned %s: %s", code, q.Get("error_description")))
	}

	provider, err := g.provider(ctx, cfg)
	if err != nil {
		return g.fail(span, "discovery", err)
	}

	start := time.Now()
	claim, err := provider.Exchange(ctx, q.Get("code"), st)
	g.metrics.ObserveProvider("exchange", start)
	if err != nil {
		return g.fail(span, "exchange", err)
	}

	userHash := sso.HashUsername(claim.Username)
	span.SetAttributes(attribute.String("keyhole.user_hash", userHash))

	if !g.allowlist.Contains(claim.Username) {
		g.metrics.ObserveDelegation(observability.OutcomeRejected)
		g.log.WithField("user_hash", userHash).Info("delegated login rejected: user not in allowlist")
		return false, nil
	}

	if _, err := g.sessions.Establish(w, claim.Username); err != nil {
		return g.fail(span, "session", err)
	}

	http.Redirect(w, r, returnPath(st, r), http.StatusFound)
	g.metrics.ObserveDelegation(observability.OutcomeAccepted)
	g.log.WithField("user_hash", userHash).Info("delegated login accepted")
	return true, nil
}

// Logout implements Delegate. The local session is cleared before anything
// else so that it never survives a provider failure.
func (g *Gate) Logout(w http.ResponseWriter, r *http.Request) error {
	g.sessions.Clear(w)

	cfg, ok := g.loadConfig()
	if !ok {
		g.metrics.ObserveLogout(false)
		return nil
	}

	ctx, span := g.tracer.Start(r.Context(), "auth.Logout")
	defer span.End()

	provider, err := g.provider(ctx, cfg)
	if err != nil {
		g.metrics.ObserveLogout(false)
		span.RecordError(err)
		span.SetStatus(codes.Error, "logout")
		return delegationError("logout", err)
	}

	target, ok := provider.EndSessionURL(g.siteURL)
	if !ok {
		target = g.siteURL
		if target == "" {
			target = "/"
		}
	}

	http.Redirect(w, r, target, http.StatusFound)
	g.metrics.ObserveLogout(ok)
	return nil
}

func (g *Gate) provider(ctx context.Context, cfg config.DelegationConfig) (sso.IdentityProvider, error) {
	start := time.Now()
	defer g.metrics.ObserveProvider("discovery", start)
	return g.providers.Get(ctx, cfg)
}

func (g *Gate) fail(span trace.Span, stage string, err error) (bool, error) {
	g.metrics.ObserveDelegation(observability.OutcomeFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	g.log.WithError(err).WithField("stage", stage).Error("delegated login failed")
	return false, delegationError(stage, err)
}

// returnPath prefers the local path the delegation started from and falls
// back to the callback path. Query strings are always dropped.
func returnPath(st *sso.DelegationState, r *http.Request) string {
	p := st.ReturnPath
	if strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.ContainsAny(p, "?#\\") {
		return p
	}
	return httputil.CanonicalPath(r)
}
