// Package main is authctl, the operator CLI for appauth. It talks to the
// same database and Redis as the server and uses the same configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/appauth/internal/authz"
	"github.com/kiranshivaraju/appauth/internal/cache"
	"github.com/kiranshivaraju/appauth/internal/config"
	"github.com/kiranshivaraju/appauth/internal/credential"
	"github.com/kiranshivaraju/appauth/internal/rotation"
	"github.com/kiranshivaraju/appauth/internal/session"
	"github.com/kiranshivaraju/appauth/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()

	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "authctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(os.Stderr)
		if len(args) == 0 {
			return errUsage
		}
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	hasher, err := credential.New(credential.ParamsFromConfig(cfg.Argon2))
	if err != nil {
		return fmt.Errorf("create hasher: %w", err)
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Redis is dialed lazily; commands that never touch it work without it.
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	roles, err := authz.NewRoleSource(cfg.Roles, redisCache)
	if err != nil {
		return fmt.Errorf("create role source: %w", err)
	}

	pgStore := store.NewPostgresStore(pool)
	sessions := session.NewManager(pgStore)

	a := &app{
		store:        pgStore,
		hasher:       hasher,
		sessions:     sessions,
		resolver:     authz.NewResolver(pgStore, roles),
		sweeper:      rotation.NewSweeper(sessions, redisCache, pgStore, cfg.Session.RotationLockTTL),
		roles:        redisCache,
		roleSource:   cfg.Roles.Source,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		readPassword: passwordReader(os.Stdin, os.Stderr),
	}
	return a.dispatch(ctx, args)
}
