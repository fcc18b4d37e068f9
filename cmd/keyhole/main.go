package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/keyhole/pkg/api"
	"github.com/platinummonkey/keyhole/pkg/auth"
	"github.com/platinummonkey/keyhole/pkg/config"
	"github.com/platinummonkey/keyhole/pkg/middleware"
	"github.com/platinummonkey/keyhole/pkg/observability"
	"github.com/platinummonkey/keyhole/pkg/sso"
	"github.com/platinummonkey/keyhole/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// version is set at build time
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "keyhole: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	componentLog := observability.NewComponentLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = observability.ShutdownTracing(shutdownCtx, tp, logger)
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	conns, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer conns.Close()

	history, err := newHistoryStore(ctx, cfg, conns, metrics)
	if err != nil {
		return err
	}

	var states sso.StateStore = sso.NewMemoryStateStore(0)
	if cfg.Storage.StateStore == "redis" {
		states = sso.NewRedisStateStore(conns.redis)
	}

	allowlist, watched, err := newAllowlist(cfg, componentLog)
	if err != nil {
		return err
	}

	providers, err := sso.NewProviderCache(nil, 16)
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessionManager(cfg.Session)
	if err != nil {
		return err
	}

	gate, err := auth.NewGate(auth.GateOptions{
		Loader:    config.EnvDelegationLoader{},
		Providers: providers,
		States:    states,
		Allowlist: allowlist,
		Sessions:  sessions,
		SiteURL:   cfg.Server.SiteURL,
		Logger:    componentLog,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	guard, err := middleware.NewFloodGuard(cfg.Flood, history, sessions, componentLog, metrics)
	if err != nil {
		return err
	}

	var throttle *middleware.LoginThrottle
	if limit := cfg.Flood.LoginRateLimit; limit > 0 {
		throttle = middleware.NewLoginThrottle(&middleware.RateLimitConfig{
			RequestsPerWindow: limit,
			WindowDuration:    time.Minute,
			BurstSize:         limit / 3,
		}, cfg.Flood.TrustForwarded)
		throttle.Limiter().StartCleanup(ctx)
	}

	server, err := api.NewServer(api.ServerOptions{
		Gate:     gate,
		Sessions: sessions,
		Guard:    guard,
		History:  history,
		Throttle: throttle,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	mainServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(conns.db, conns.redis, cfg.Storage.Type == "redis", version)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     healthMux,
		ReadTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("keyhole %s listening on %s", version, mainServer.Addr)
		return serve(mainServer)
	})
	g.Go(func() error {
		logger.Infof("health and metrics listening on %s", healthServer.Addr)
		return serve(healthServer)
	})
	if watched != nil {
		g.Go(func() error {
			return watched.Watch(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(
			mainServer.Shutdown(shutdownCtx),
			healthServer.Shutdown(shutdownCtx),
		)
	})

	return g.Wait()
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
	}
	return nil
}

// backends holds the shared connections
type backends struct {
	db    *sql.DB
	redis *redis.Client
}

func (b *backends) Close() {
	if b.db != nil {
		b.db.Close()
	}
	if b.redis != nil {
		b.redis.Close()
	}
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}

	switch cfg.Storage.Type {
	case "postgres", "sqlite":
		db, err := storage.OpenDB(ctx, storage.DBConfig{
			Dialect:     storage.Dialect(cfg.Storage.Type),
			URL:         cfg.Storage.DatabaseURL,
			MaxConns:    cfg.Storage.MaxConns,
			MaxLifetime: 30 * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		b.db = db
	}

	if cfg.Storage.RedisURL != "" {
		client, err := storage.NewRedisClient(ctx, storage.RedisConfig{
			URL:      cfg.Storage.RedisURL,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
			PoolSize: cfg.Storage.RedisPoolSize,
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		b.redis = client
	}

	return b, nil
}

func newHistoryStore(ctx context.Context, cfg *config.Config, b *backends, metrics *observability.Metrics) (storage.HistoryStore, error) {
	if cfg.Storage.Type == "redis" {
		store := storage.NewRedisHistoryStore(b.redis, cfg.Storage.HistoryRetention)
		return storage.Instrument(store, "redis", metrics), nil
	}

	loc, err := time.LoadLocation(cfg.Storage.TimestampLocation)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp location: %w", err)
	}
	store, err := storage.NewSQLHistoryStore(b.db, storage.Dialect(cfg.Storage.Type), cfg.Storage.HistoryTable, loc)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return storage.Instrument(store, cfg.Storage.Type, metrics), nil
}

// newAllowlist loads the allowlist file. Without one no identity is ever
// accepted and the native login stays in charge.
func newAllowlist(cfg *config.Config, log *logrus.Logger) (auth.Allowlist, *auth.FileAllowlist, error) {
	if cfg.AllowlistFile == "" {
		log.Warn("no allowlist file configured, delegated logins will all be rejected")
		return auth.StaticAllowlist{}, nil, nil
	}

	list, err := auth.NewFileAllowlist(cfg.AllowlistFile, log)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("users", list.Len()).Info("allowlist loaded")
	return list, list, nil
}
