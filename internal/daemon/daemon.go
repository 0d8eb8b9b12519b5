package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/whispie/whispie/internal/api"
	"github.com/whispie/whispie/internal/app/progression"
	"github.com/whispie/whispie/internal/domain"
	"github.com/whispie/whispie/internal/health"
	"github.com/whispie/whispie/internal/infra/cache"
	"github.com/whispie/whispie/internal/infra/postgres"
	"github.com/whispie/whispie/internal/infra/sqlite"
)

// Daemon is the Whispie runtime. It wires the store, cache, progression
// service, health checks and HTTP server together.
type Daemon struct {
	Config  Config
	Store   domain.ProgressionStore
	Cache   domain.SnapshotCache // nil when no Redis is configured
	Service *progression.Service
	Server  *api.Server
	Health  *health.Checker
	Logger  *log.Logger
	Version string

	logCloser io.Closer
	cancel    context.CancelFunc
	skipSeed  bool
}

// Option adjusts how NewWithConfig opens the daemon.
type Option func(*Daemon)

// WithoutCatalogSeed leaves the stored catalog untouched on open, for callers
// that seed it themselves.
func WithoutCatalogSeed() Option {
	return func(d *Daemon) { d.skipSeed = true }
}

// NewWithConfig opens the store and cache described by cfg, seeds the
// achievement catalog and builds the service and HTTP server.
func NewWithConfig(ctx context.Context, cfg Config, version string, opts ...Option) (*Daemon, error) {
	logger, logCloser, err := NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}
	d := &Daemon{Config: cfg, Logger: logger, Version: version, logCloser: logCloser}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.open(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) open(ctx context.Context) error {
	cfg := d.Config

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	d.Store = store
	d.Logger.Info("store opened", "driver", cfg.Storage.Driver)

	checks := []health.Check{health.PingCheck(cfg.Storage.Driver, store, false)}

	if cfg.Cache.RedisAddr != "" {
		c, err := cache.NewRedisCache(ctx, cache.Config{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.Cache.TTL,
		})
		if err != nil {
			// Reads fall back to the store, so a missing cache is not fatal.
			d.Logger.Warn("redis unavailable, snapshot cache disabled", "addr", cfg.Cache.RedisAddr, "err", err)
		} else {
			d.Cache = c
			checks = append(checks, health.PingCheck("redis", c, true))
			d.Logger.Info("snapshot cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	d.Service = progression.NewService(store, progression.Options{
		Cache:              d.Cache,
		Logger:             d.Logger.WithPrefix("progression"),
		Location:           loc,
		MaxCommitRetries:   cfg.Progression.MaxCommitRetries,
		AutoCreateProfiles: cfg.Progression.AutoCreateProfiles,
		Driver:             cfg.Storage.Driver,
	})

	if !d.skipSeed {
		if err := d.seedCatalog(ctx); err != nil {
			return err
		}
	}

	d.Health = health.NewChecker(cfg.Telemetry.HealthInterval, d.Logger.WithPrefix("health"), checks...)

	srv := api.NewServer(d.Service, d.Version)
	srv.SetLogger(d.Logger.WithPrefix("api"))
	srv.SetChecker(d.Health)
	srv.SetCORSOrigins(cfg.API.CORSOrigins)
	if cfg.API.JWTSecret != "" {
		auth, err := api.NewAuthenticator(cfg.API.JWTSecret)
		if err != nil {
			return err
		}
		srv.SetAuthenticator(auth)
	}
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv
	return nil
}

func openStore(ctx context.Context, cfg StorageConfig) (domain.ProgressionStore, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return postgres.Open(ctx, cfg.PostgresURL, cfg.MaxConns)
	case DriverSQLite, "":
		return sqlite.Open(WhispieHome())
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// seedCatalog upserts the configured catalog file, or the built-in catalog.
func (d *Daemon) seedCatalog(ctx context.Context) error {
	defs := progression.DefaultCatalog()
	if path := d.Config.Progression.CatalogFile; path != "" {
		loaded, err := progression.LoadCatalog(path)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		defs = loaded
	}
	return d.Service.SeedCatalog(ctx, defs)
}

// Serve starts the health loop and HTTP server and blocks until ctx is
// cancelled or SIGINT/SIGTERM arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	go d.Health.Run(ctx)

	addr := d.Config.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			d.Logger.Info("shutting down", "signal", sig.String())
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			d.Logger.Error("http shutdown", "err", err)
		}
	}()

	d.Logger.Info("serving", "addr", "http://"+addr, "version", d.Version)
	if d.Config.API.JWTSecret == "" {
		d.Logger.Warn("api.jwt_secret not set, user routes are unauthenticated")
	}
	if d.Config.Telemetry.Prometheus {
		d.Logger.Info("metrics enabled", "url", "http://"+addr+"/metrics")
	}

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Cache != nil {
		if err := d.Cache.Close(); err != nil {
			d.Logger.Warn("close cache", "err", err)
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			d.Logger.Warn("close store", "err", err)
		}
	}
	if d.logCloser != nil {
		_ = d.logCloser.Close()
	}
}
