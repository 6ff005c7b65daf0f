package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds redis connection configuration. Enabled=false produces a
// client whose operations report ErrDisabled so callers can degrade.
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	Enabled      bool
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

var ErrDisabled = fmt.Errorf("redis is disabled")

type Client struct {
	rdb     *redis.Client
	enabled bool
	logger  *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}

	if !cfg.Enabled {
		log.Info("Redis disabled, revocation checks fall back to the database")
		return &Client{enabled: false, logger: log}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	client := &Client{rdb: rdb, enabled: true, logger: log}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		log.Warn("Failed to connect to Redis, continuing without cache",
			zap.String("address", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
			zap.Error(err),
		)
		client.enabled = false
		return client
	}

	log.Info("Successfully connected to Redis",
		zap.String("address", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("database", cfg.DB),
	)

	return client
}

func (c *Client) IsEnabled() bool {
	return c != nil && c.enabled
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return ErrDisabled
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// SetWithTTL stores a key with an expiry
func (c *Client) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if !c.IsEnabled() {
		return ErrDisabled
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Exists reports whether the key is present
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	if !c.IsEnabled() {
		return false, ErrDisabled
	}
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
