// Package redis holds the shared Redis connection and the distributed run lock built on it.
package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

const defaultPingTimeout = 5 * time.Second

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	// PingTimeout bounds the connectivity check made by NewClient
	PingTimeout time.Duration
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is the process-wide Redis connection. Only the run locker writes to it.
type Client struct {
	rdb    *redis.Client
	addr   string
	logger ectologger.Logger
}

// NewClient fails unless the server answers a PING within cfg.PingTimeout
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	addr := cfg.addr()
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := &Client{rdb: rdb, addr: addr, logger: logger}
	if err := client.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", addr, err)
	}

	logger.WithFields(map[string]any{"addr": addr, "db": cfg.DB}).Info("Connected to Redis")
	return client, nil
}

// Ping is registered as the redis readiness check
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	c.logger.WithField("addr", c.addr).Debug("Closing Redis connection")
	return c.rdb.Close()
}
