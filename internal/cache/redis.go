// Package cache wraps Redis for the read-through caches, upload tickets and
// rate limit counters.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"threads/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// errorCounter feeds redis_errors_total. Misses (redis.Nil) are not errors.
type errorCounter struct{}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		countFailure(cmd.Name(), err)
		return err
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		countFailure("pipeline", err)
		return err
	}
}

func countFailure(op string, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	middleware.RedisErrors.WithLabelValues(op).Inc()
}

// NewClient accepts either a redis:// URL or a bare host:port. It does not
// dial.
func NewClient(addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		var err error
		if opts, err = redis.ParseURL(addr); err != nil {
			return nil, err
		}
	}
	c := redis.NewClient(opts)
	c.AddHook(errorCounter{})
	return c, nil
}

// Connect builds a client and pings it. Any failure is logged and yields a
// nil client; the API runs degraded without Redis rather than refusing to
// start.
func Connect(ctx context.Context, addr string) *redis.Client {
	log := middleware.Logger.With("component", "redis")
	c, err := NewClient(addr)
	if err != nil {
		log.Warn("invalid REDIS_URL, running without redis", "error", err)
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, running without redis", "addr", c.Options().Addr, "error", err)
		_ = c.Close()
		return nil
	}
	log.Info("redis connected", "addr", c.Options().Addr, "db", c.Options().DB)
	return c
}
