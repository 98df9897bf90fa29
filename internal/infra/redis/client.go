package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/coursava/auth-service/internal/infra/config"
)

// startupProbeTimeout bounds the ping issued while constructing the client.
const startupProbeTimeout = 5 * time.Second

// Client owns the Redis connection pool backing the session store.
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

// NewClient opens a connection pool and verifies it with a ping, so a
// misconfigured address fails at startup instead of on the first login.
func NewClient(cfg config.RedisSettings, logger *zap.Logger) (*Client, error) {
	client := redis.NewClient(poolOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), startupProbeTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("connected to redis",
		zap.String("addr", address(cfg)),
		zap.Int("db", cfg.DB),
		zap.Bool("tls", cfg.TLSEnabled),
	)

	return &Client{client: client, logger: logger}, nil
}

func poolOptions(cfg config.RedisSettings) *redis.Options {
	opts := &redis.Options{
		Addr:     address(cfg),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return opts
}

func address(cfg config.RedisSettings) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// Client exposes the underlying go-redis client for the repositories.
func (c *Client) Client() *redis.Client {
	return c.client
}

// HealthCheck pings the server on behalf of the readiness probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	return nil
}

// Close drains the connection pool.
func (c *Client) Close() error {
	c.logger.Info("closing redis connection")
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
