// internal/quotecache/cache.go
package quotecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quotelab/quote-streamer/pkg/dxlink"
	"github.com/quotelab/quote-streamer/pkg/logger"
)

var cacheMetrics = struct {
	Writes prometheus.Counter
	Errors prometheus.Counter
}{
	Writes: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer", Subsystem: "quotecache", Name: "writes_total",
		Help: "Latest-quote cache writes",
	}),
	Errors: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "streamer", Subsystem: "quotecache", Name: "errors_total",
		Help: "Latest-quote cache write errors",
	}),
}

// Config holds Redis settings for the latest-quote cache.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Cache stores the most recent event per (kind, symbol) so downstream
// consumers can read current prices without replaying the Kafka topic.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// New connects to Redis and verifies it with a ping.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("quotecache: Addr is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("quotecache: ping redis: %w", err)
	}

	log = log.Named("quotecache")
	log.Info("redis connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return &Cache{client: client, ttl: cfg.TTL, log: log}, nil
}

// Store writes one event under quote:<kind>:<symbol> with the configured TTL.
func (c *Cache) Store(ctx context.Context, ev dxlink.MarketEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		cacheMetrics.Errors.Inc()
		return fmt.Errorf("quotecache: marshal event: %w", err)
	}

	key := fmt.Sprintf("quote:%s:%s", ev.Kind, ev.Symbol)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		cacheMetrics.Errors.Inc()
		return fmt.Errorf("quotecache: set %s: %w", key, err)
	}
	cacheMetrics.Writes.Inc()
	return nil
}

// Latest reads the most recent event for a (kind, symbol) pair. A cache miss
// returns redis.Nil wrapped.
func (c *Cache) Latest(ctx context.Context, kind dxlink.EventKind, symbol string) (dxlink.MarketEvent, error) {
	key := fmt.Sprintf("quote:%s:%s", kind, symbol)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return dxlink.MarketEvent{}, fmt.Errorf("quotecache: get %s: %w", key, err)
	}
	var ev dxlink.MarketEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return dxlink.MarketEvent{}, fmt.Errorf("quotecache: decode %s: %w", key, err)
	}
	return ev, nil
}

// Ping verifies the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (c *Cache) Close() error {
	c.log.Info("closing redis client")
	return c.client.Close()
}
