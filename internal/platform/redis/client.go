package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"aidreg/internal/platform/config"
)

// PoolMetrics mirrors go-redis pool statistics into Prometheus.
type PoolMetrics struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	timeouts   prometheus.Counter
	staleConns prometheus.Counter
	totalConns prometheus.Gauge
	idleConns  prometheus.Gauge
}

// NewPoolMetrics registers the pool collectors on reg.
func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	factory := promauto.With(reg)
	return &PoolMetrics{
		hits: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidreg_redis_pool_hits_total",
			Help: "Number of times a connection was found in the pool",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidreg_redis_pool_misses_total",
			Help: "Number of times a connection was not found in the pool",
		}),
		timeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidreg_redis_pool_timeouts_total",
			Help: "Number of times a connection was not obtained due to timeout",
		}),
		staleConns: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidreg_redis_pool_stale_conns_total",
			Help: "Number of stale connections removed from the pool",
		}),
		totalConns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aidreg_redis_pool_total_conns",
			Help: "Number of total connections in the pool",
		}),
		idleConns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aidreg_redis_pool_idle_conns",
			Help: "Number of idle connections in the pool",
		}),
	}
}

// Client wraps the go-redis client with health checking capabilities.
type Client struct {
	*redis.Client
	metrics   *PoolMetrics
	lastStats *redis.PoolStats
}

// New creates a Redis client and pings it. Returns nil if the URL is empty.
func New(ctx context.Context, cfg config.RedisConfig, metrics *PoolMetrics) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client, metrics: metrics}, nil
}

// Wrap adapts an existing go-redis client, mainly for tests.
func Wrap(client *redis.Client, metrics *PoolMetrics) *Client {
	return &Client{Client: client, metrics: metrics}
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.Client.Close()
}

// RecordPoolStats updates Prometheus metrics with current pool statistics.
func (c *Client) RecordPoolStats() {
	if c.metrics == nil {
		return
	}
	stats := c.PoolStats()
	m := c.metrics

	m.totalConns.Set(float64(stats.TotalConns))
	m.idleConns.Set(float64(stats.IdleConns))

	var prev redis.PoolStats
	if c.lastStats != nil {
		prev = *c.lastStats
	}
	addDelta(m.hits, stats.Hits, prev.Hits)
	addDelta(m.misses, stats.Misses, prev.Misses)
	addDelta(m.timeouts, stats.Timeouts, prev.Timeouts)
	addDelta(m.staleConns, stats.StaleConns, prev.StaleConns)

	c.lastStats = stats
}

func addDelta(c prometheus.Counter, now, prev uint32) {
	if now > prev {
		c.Add(float64(now - prev))
	}
}

// RunPoolStats records pool statistics every interval until ctx is done.
func (c *Client) RunPoolStats(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.RecordPoolStats()
		}
	}
}
