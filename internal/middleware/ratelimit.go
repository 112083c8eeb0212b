package middleware

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens to a request when the counter store errors.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

var errNoLimiterStore = errors.New("rate limiter has no redis client")

// Window is the state of one fixed counting window after a hit.
type Window struct {
	Count     int64
	Limit     int
	ResetsIn  time.Duration
	Exhausted bool
}

// Remaining is how many more hits the window accepts.
func (w Window) Remaining() int64 {
	if left := int64(w.Limit) - w.Count; left > 0 {
		return left
	}
	return 0
}

func limitsDisabled() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development":
		return true
	}
	return false
}

// Hit counts one request against rl:<resource>:<id>. A key left without an
// expiry (crash between INCR and EXPIRE) gets one on the next hit.
func Hit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (Window, error) {
	if rdb == nil {
		return Window{}, errNoLimiterStore
	}
	key := "rl:" + resource + ":" + id

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	if _, err := rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		ttl = p.PTTL(ctx, key)
		return nil
	}); err != nil {
		return Window{}, err
	}

	resets := ttl.Val()
	if resets < 0 {
		if err := rdb.PExpire(ctx, key, window).Err(); err != nil {
			return Window{}, err
		}
		resets = window
	}
	w := Window{Count: incr.Val(), Limit: limit, ResetsIn: resets}
	w.Exhausted = w.Count > int64(limit)
	return w, nil
}

// CheckRateLimit reports whether one more request fits in the window.
// Always true outside staging and production.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	if limitsDisabled() {
		return true, nil
	}
	w, err := Hit(ctx, rdb, resource, id, limit, window)
	if err != nil {
		return false, err
	}
	return !w.Exhausted, nil
}

// RateLimit fails open. Callers are keyed by session subject, else by IP.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, window, FailOpen, name...)
}

// RateLimitWithPolicy is RateLimit with an explicit store failure policy.
// The optional name replaces the request path as the counter's resource.
func RateLimitWithPolicy(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limitsDisabled() {
			return c.Next()
		}

		caller := "ip:" + c.IP()
		if sub, _ := c.Locals("subject").(string); sub != "" {
			caller = "sub:" + sub
		}
		resource := c.Path()
		if len(name) > 0 && name[0] != "" {
			resource = name[0]
		}

		w, err := Hit(c.UserContext(), rdb, resource, caller, limit, window)
		if err != nil {
			if policy == FailOpen {
				return c.Next()
			}
			Logger.WarnContext(c.UserContext(), "rate limiter unavailable, rejecting",
				"resource", resource, "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "rate limit unavailable"})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(w.Remaining(), 10))
		if w.Exhausted {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(w.ResetsIn.Round(time.Second)/time.Second)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}
