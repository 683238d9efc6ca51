package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/config"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/database"
	redisinfra "github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/redis"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository/memory"
	postgresrepo "github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository/postgres"
	redisrepo "github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository/redis"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository/sqlite"
)

const (
	dedupKeyPrefix     = "onboarding:webhook"
	leaseKeyPrefix     = "onboarding:lease"
	rateLimitKeyPrefix = "onboarding:rate-limit"
)

// Backends holds the storage selected by configuration.
type Backends struct {
	Farmers  port.AccountRepository
	Sessions port.SessionStore
	Dedup    port.MessageDeduplicator
	// Leases is nil when sessions live in memory; a single process needs none.
	Leases port.SessionLease
	// RateLimits is nil when sessions live in memory; rate limiting then stays off.
	RateLimits port.RateLimitStore

	closers []func() error
}

// OpenBackends connects the farmer directory and the session store.
func OpenBackends(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*Backends, error) {
	b := &Backends{}

	farmers, err := OpenDirectory(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	b.Farmers = farmers.Repository
	b.closers = append(b.closers, farmers.Close)

	switch cfg.Sessions.Backend {
	case "redis":
		client, err := redisinfra.Connect(ctx, cfg.Redis, log)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		b.closers = append(b.closers, client.Close)

		b.Sessions = redisrepo.NewSessionStore(client, redisrepo.SessionStoreConfig{
			KeyPrefix:         cfg.Sessions.KeyPrefix,
			ActiveTTL:         4 * cfg.Registration.IdleWindow,
			TerminalRetention: cfg.Sessions.TerminalRetention,
		})
		b.Dedup = redisrepo.NewDeliveryDeduplicator(client, dedupKeyPrefix)
		b.Leases = redisrepo.NewSessionLeases(client, redisrepo.SessionLeaseConfig{
			KeyPrefix: leaseKeyPrefix,
			TTL:       cfg.Sessions.LeaseTTL,
		})

		window := cfg.RateLimit.WindowDuration
		if window <= 0 {
			window = time.Minute
		}
		b.RateLimits = redisrepo.NewRateLimitRepository(client, redisrepo.SlidingWindowConfig{
			KeyPrefix: rateLimitKeyPrefix,
			TTL:       2 * window,
		})
	case "memory":
		log.Warn("registration sessions are kept in memory; they are lost on restart and not shared between replicas")
		b.Sessions = memory.NewSessionStore(cfg.Sessions.TerminalRetention)
		b.Dedup = memory.NewDeliveryDeduplicator()
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unknown session backend %q", cfg.Sessions.Backend)
	}

	return b, nil
}

// Close releases connections in reverse order of opening.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// Directory is an opened farmer directory.
type Directory struct {
	Repository port.AccountRepository
	Backend    string
	migrate    func(ctx context.Context) ([]string, error)
	close      func() error
}

// Migrate applies the directory schema.
func (d *Directory) Migrate(ctx context.Context) ([]string, error) {
	return d.migrate(ctx)
}

// Close releases the directory connection.
func (d *Directory) Close() error {
	return d.close()
}

// OpenDirectory connects the configured farmer directory backend.
func OpenDirectory(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*Directory, error) {
	switch cfg.Identity.Backend {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		return &Directory{
			Repository: postgresrepo.NewFarmerRepository(pool),
			Backend:    "postgres",
			migrate:    func(ctx context.Context) ([]string, error) { return postgresrepo.Migrate(ctx, pool) },
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLite.Path, cfg.SQLite.BusyTimeout)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		log.Info("farmer directory opened", zap.String("backend", "sqlite"), zap.String("path", cfg.SQLite.Path))
		return &Directory{
			Repository: store,
			Backend:    "sqlite",
			migrate: func(ctx context.Context) ([]string, error) {
				if err := store.Migrate(ctx); err != nil {
					return nil, err
				}
				return []string{"farmers"}, nil
			},
			close: store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown identity backend %q", cfg.Identity.Backend)
	}
}
