// Package redis provides the shared coordination layer for marketd on
// go-redis/v9: the oracle quote cache, distributed locks, rate limiting and the
// live event bus.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters. Addr may also be a
// redis:// or rediss:// URL, in which case it carries its own credentials.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

const namespace = "marketd"

// key joins parts under the marketd namespace, e.g. marketd:lock:resolve:12.
func key(parts ...string) string {
	return namespace + ":" + strings.Join(parts, ":")
}

// Client is the connection shared by every component in this package.
type Client struct {
	rdb *redis.Client
}

func options(cfg ClientConfig) (*redis.Options, error) {
	if strings.Contains(cfg.Addr, "://") {
		opts, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, err
		}
		if cfg.PoolSize > 0 {
			opts.PoolSize = cfg.PoolSize
		}
		return opts, nil
	}
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// New connects and pings. A Redis that cannot be reached at startup is fatal
// for every mode.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, fmt.Errorf("redis: parse %q: %w", cfg.Addr, err)
	}
	opts.ClientName = namespace

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping is used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error { return c.rdb.Close() }
