// Package app wires the Bazaar server runtime: config, logging, storage,
// HTTP routes, and the auth service stack.
//
// It is intentionally small and deterministic to keep CI gates strict and
// behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"bazaar/cmd/identity"
	"bazaar/cmd/internal/audit"
	authapi "bazaar/cmd/internal/auth/api"
	"bazaar/cmd/internal/auth/oauth"
	"bazaar/cmd/internal/auth/reset"
	"bazaar/cmd/internal/auth/session"
	"bazaar/cmd/internal/auth/token"
	"bazaar/cmd/internal/ratelimit"
)

// App is the Bazaar server runtime. It owns the connection pools and the
// audit recorder; everything else borrows them.
type App struct {
	cfg Config
	log Logger

	pool *pgxpool.Pool
	rdb  *redis.Client
	rec  *audit.Recorder

	auth *authapi.Handler
}

// New constructs a fully wired App instance from config and logger.
//
// A database is required: every auth operation persists state (users,
// sessions, oauth requests, audit trail), so there is no in-memory mode.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("app: BAZAAR_DATABASE_URL is required")
	}

	ctx := context.Background()

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("db.connected")

	rdb, err := NewRedisClient(ctx, cfg, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	a, err := wire(cfg, log, pool, rdb)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		pool.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg Config, log Logger, pool *pgxpool.Pool, rdb *redis.Client) (*App, error) {
	rec := audit.NewRecorder(log, audit.NewPostgresSink(pool), cfg.AuditBuffer)

	tokenCfg, err := token.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewManager(tokenCfg, token.WithRecorder(rec))
	if err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	sessions := session.NewService(sessCfg, session.NewPostgresStore(pool), tokens, rec)

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		return nil, err
	}

	var limiter ratelimit.Limiter
	policies := ratelimit.LoadPoliciesFromEnv()
	if rdb != nil {
		limiter = ratelimit.NewRedisLimiter(rdb, policies)
	} else {
		limiter = ratelimit.NewMemoryLimiter(policies)
	}

	resetStore, err := reset.NewPostgresStore(pool)
	if err != nil {
		return nil, err
	}
	resets, err := reset.NewService(resetStore)
	if err != nil {
		return nil, err
	}

	opts := []authapi.HandlerOption{
		authapi.WithRecorder(rec),
		authapi.WithLimiter(limiter),
		authapi.WithPasswordResets(resets),
	}

	oauthCfg, err := oauth.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if len(oauthCfg.Providers) > 0 {
		exchange := oauth.NewService(oauthCfg, oauth.NewPostgresStore(pool), oauth.WithRecorder(rec))
		opts = append(opts, authapi.WithOAuth(exchange))
		log.Info("oauth.enabled", "providers", len(oauthCfg.Providers))
	}

	auth, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), users, sessions, tokens, opts...)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:  cfg,
		log:  log,
		pool: pool,
		rdb:  rdb,
		rec:  rec,
		auth: auth,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error. Resources are released before it returns.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.pool, a.auth)

	var handler http.Handler = mux
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithSecurityHeaders(handler)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if runErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			runErr = err
		}
	}

	a.close()
	a.log.Info("server.stopped")
	return runErr
}

// close releases owned resources in dependency order: the audit recorder
// drains into the pool, so it goes first.
func (a *App) close() {
	if a.rec != nil {
		a.rec.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
