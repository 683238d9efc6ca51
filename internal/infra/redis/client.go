package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/infra/config"
)

const (
	clientName  = "farmer-onboarding"
	pingTimeout = 5 * time.Second
)

// Options maps the settings onto a pool sized for short session reads and
// writes. One pool serves sessions, webhook claims and rate limits.
func Options(cfg config.RedisSettings) *red.Options {
	opts := &red.Options{
		Addr:       net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		ClientName: clientName,
		Password:   cfg.Password,
		DB:         cfg.DB,

		PoolSize:        10,
		MinIdleConns:    2,
		MaxRetries:      3,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: cfg.Host}
	}
	return opts
}

// Connect opens the pool and returns it only once the server answers PING.
func Connect(ctx context.Context, cfg config.RedisSettings, logger *zap.Logger) (*red.Client, error) {
	opts := Options(cfg)
	client := red.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	logger.Info("redis connection established",
		zap.String("addr", opts.Addr),
		zap.Int("db", cfg.DB),
		zap.Bool("tls_enabled", cfg.TLSEnabled),
	)
	return client, nil
}
