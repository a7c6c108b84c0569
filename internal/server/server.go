// Package server orchestrates all components: NATS client, DB, registry, dispatcher, HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/chatops-rpc/internal/config"
	"github.com/morezero/chatops-rpc/internal/handlers"
	"github.com/morezero/chatops-rpc/pkg/commsutil"
	"github.com/morezero/chatops-rpc/pkg/db"
	"github.com/morezero/chatops-rpc/pkg/dispatcher"
	"github.com/morezero/chatops-rpc/pkg/events"
	"github.com/morezero/chatops-rpc/pkg/guards"
	"github.com/morezero/chatops-rpc/pkg/manifest"
	"github.com/morezero/chatops-rpc/pkg/registry"
)

const logPrefix = "server:server"

// limiterPruneInterval is how often idle per-user limiters are dropped.
const limiterPruneInterval = time.Minute

// Runtime is the command surface assembled from config.
type Runtime struct {
	Manifest   *manifest.Manifest
	Dispatcher *dispatcher.Dispatcher
	Limiter    *guards.RateLimiter // nil when throttling is off
}

// LoadManifest loads the manifest named by cfg and applies the metadata overrides.
func LoadManifest(cfg *config.Config) (*manifest.Manifest, error) {
	var paths []string
	if cfg.ManifestFile != "" {
		paths = append(paths, cfg.ManifestFile)
	}
	m, err := manifest.LoadManifest(paths...)
	if err != nil {
		return nil, err
	}
	return manifest.Merge(m, &manifest.Manifest{
		Namespace:     cfg.Namespace,
		Help:          cfg.Help,
		ErrorResponse: cfg.ErrorResponse,
	}), nil
}

// BuildRuntime loads the manifest, registers its commands with the built-in
// handlers and seals the result behind a dispatcher.
func BuildRuntime(cfg *config.Config) (*Runtime, error) {
	m, err := LoadManifest(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load manifest: %w", logPrefix, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s - invalid manifest: %w", logPrefix, err)
	}

	reg := registry.NewRegistry(registry.NewRegistryParams{Config: manifest.RegistryConfig(m, cfg.MatchTimeout)})
	rt := &Runtime{Manifest: m}

	if cfg.RateLimit > 0 {
		rt.Limiter = guards.NewRateLimiter(guards.RateLimiterParams{PerSecond: cfg.RateLimit, Burst: cfg.RateBurst})
		if err := reg.Before(rt.Limiter.Guard()); err != nil {
			return nil, fmt.Errorf("%s - failed to attach rate limiter: %w", logPrefix, err)
		}
	}
	if err := manifest.Apply(reg, m, handlers.Table(reg.Catalog)); err != nil {
		return nil, fmt.Errorf("%s - failed to register commands: %w", logPrefix, err)
	}

	rt.Dispatcher = dispatcher.NewDispatcher(reg)
	return rt, nil
}

// Server is the chatops orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	subs       []*comms.Subscription
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting chatops", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}
	defer s.close()

	// Step 1: Build the command surface
	rt, err := BuildRuntime(cfg)
	if err != nil {
		return err
	}
	if rt.Limiter != nil {
		go rt.Limiter.Run(ctx, limiterPruneInterval)
	}
	slog.Info(fmt.Sprintf("%s - Namespace %s with %d commands", logPrefix, rt.Manifest.Namespace, len(rt.Manifest.Commands)))

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(commsutil.ConnectParams{URL: cfg.COMMSURL, Name: cfg.COMMSName, Token: cfg.COMMSToken})
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc
	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

	checks := map[string]HealthCheck{
		"comms": func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		},
	}

	// Step 3: Audit trail (optional)
	var audit AuditStore
	if cfg.AuditEnabled() {
		repo, err := s.openAudit(ctx)
		if err != nil {
			return err
		}
		audit = repo
		checks["database"] = s.pool.Ping
	} else {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, audit trail disabled", logPrefix))
	}

	// Step 4: Service and transports
	svc := NewService(NewServiceParams{
		Dispatcher:     rt.Dispatcher,
		Publisher:      events.NewCommsPublisher(nc, &events.CommsPublisherOpts{SubjectPrefix: cfg.SubjectPrefix}),
		Audit:          audit,
		RequestTimeout: cfg.RequestTimeout,
	})

	s.subs, err = Subscribe(ctx, SubscribeParams{
		Conn:          nc,
		Service:       svc,
		SubjectPrefix: cfg.SubjectPrefix,
		Tokens:        cfg.AcceptedTokens(),
	})
	if err != nil {
		return err
	}

	httpAddr := cfg.ListenAddr()
	s.httpServer = &http.Server{
		Addr: httpAddr,
		Handler: NewRouter(NewRouterParams{
			Service:       svc,
			Tokens:        cfg.AcceptedTokens(),
			Checks:        checks,
			HealthTimeout: cfg.HealthCheckTimeout,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Chatops is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer shutdownCancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func (s *Server) openAudit(ctx context.Context) (*db.Repository, error) {
	if s.cfg.RunMigrations {
		if err := db.EnsureDatabase(ctx, s.cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("%s - failed to ensure database: %w", logPrefix, err)
		}
	}

	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	if s.cfg.RunMigrations {
		migrations, err := db.LoadMigrationFiles(s.cfg.MigrationPath)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	return db.NewRepository(pool), nil
}

// close releases whatever Run managed to open, in reverse order.
func (s *Server) close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	if s.nc != nil {
		_ = s.nc.Drain()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
