// Package main is the entrypoint for the appauth API server.
package main

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

	"github.com/kiranshivaraju/appauth/internal/api"
	"github.com/kiranshivaraju/appauth/internal/api/handler"
	mw "github.com/kiranshivaraju/appauth/internal/api/middleware"
	"github.com/kiranshivaraju/appauth/internal/api/response"
	"github.com/kiranshivaraju/appauth/internal/auth"
	"github.com/kiranshivaraju/appauth/internal/authz"
	"github.com/kiranshivaraju/appauth/internal/cache"
	"github.com/kiranshivaraju/appauth/internal/config"
	"github.com/kiranshivaraju/appauth/internal/credential"
	"github.com/kiranshivaraju/appauth/internal/rotation"
	"github.com/kiranshivaraju/appauth/internal/session"
	"github.com/kiranshivaraju/appauth/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "role_source", cfg.Roles.Source)

	hasher, err := credential.New(credential.ParamsFromConfig(cfg.Argon2))
	if err != nil {
		return fmt.Errorf("create hasher: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and services
	pgStore := store.NewPostgresStore(pool)

	roles, err := authz.NewRoleSource(cfg.Roles, redisCache)
	if err != nil {
		return fmt.Errorf("create role source: %w", err)
	}

	authn := auth.NewAuthenticator(pgStore, hasher)
	sessions := session.NewManager(pgStore)
	resolver := authz.NewResolver(pgStore, roles)
	cookies := mw.Cookies{Name: cfg.Session.CookieName}

	// 6. Start rotation schedule
	if cfg.Session.RotationInterval > 0 {
		sweeper := rotation.NewSweeper(sessions, redisCache, pgStore, cfg.Session.RotationLockTTL)
		go sweeper.Run(ctx, cfg.Session.RotationInterval)
	}

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Auth:            mw.NewAuth(pgStore, authn, sessions, resolver, cookies),
		RateLimit:       mw.NewRateLimit(redisCache, cfg.RateLimit.RequestsPerMin, cfg.RateLimit.LoginsPerMin),
		AdminPermission: cfg.Roles.AdminPermission,

		HealthHandler:          healthHandler(pgStore, redisCache),
		LoginHandler:           handler.NewLoginHandler(pgStore, authn, sessions, cookies),
		LogoutHandler:          handler.NewLogoutHandler(pgStore, sessions, cookies),
		MeHandler:              handler.NewMeHandler(),
		MyPermissionsHandler:   handler.NewMyPermissionsHandler(resolver),
		UserPermissionsHandler: handler.NewUserPermissionsHandler(pgStore, resolver),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// pinger is anything with a connectivity check.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
