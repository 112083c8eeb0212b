package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"threads/internal/middleware"
	"threads/internal/observability"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

// ScheduledPushKey is the sorted set of pending pushes scored by due time in
// unix milliseconds.
const ScheduledPushKey = "push:scheduled"

const (
	claimBatch      = 100
	deliveryTimeout = 15 * time.Second
)

type scheduledPush struct {
	ID      string      `json:"id"`
	Message PushMessage `json:"message"`
}

// Dispatcher schedules delayed, best-effort push notifications. With Redis
// the delay queue survives restarts and is shared across replicas; a job is
// delivered by whichever worker removes it from the set. Without Redis an
// in-process timer is used.
type Dispatcher struct {
	rdb    *redis.Client
	sender PushSender
	poll   time.Duration
}

func NewDispatcher(rdb *redis.Client, sender PushSender, poll time.Duration) *Dispatcher {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Dispatcher{rdb: rdb, sender: sender, poll: poll}
}

// ScheduleCommentNotification queues a push to token after delay. It never
// fails the caller; problems are logged and counted.
func (d *Dispatcher) ScheduleCommentNotification(ctx context.Context, token, title, body string, threadID uint, delay time.Duration) {
	if token == "" {
		observability.PushDeliveries.WithLabelValues("skipped").Inc()
		middleware.Logger.InfoContext(ctx, "push skipped: recipient has no push token",
			slog.Uint64("thread_id", uint64(threadID)))
		return
	}

	job := scheduledPush{
		ID: xid.New().String(),
		Message: PushMessage{
			To:    token,
			Title: title,
			Body:  body,
			Data:  map[string]any{"threadId": strconv.FormatUint(uint64(threadID), 10)},
		},
	}

	if d.rdb != nil {
		err := d.enqueue(ctx, job, delay)
		if err == nil {
			return
		}
		middleware.Logger.WarnContext(ctx, "push queue unavailable, using local timer",
			slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}

	time.AfterFunc(delay, func() {
		d.deliver(context.Background(), job)
	})
}

func (d *Dispatcher) enqueue(ctx context.Context, job scheduledPush, delay time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	due := time.Now().Add(delay).UnixMilli()
	return d.rdb.ZAdd(context.WithoutCancel(ctx), ScheduledPushKey, redis.Z{Score: float64(due), Member: raw}).Err()
}

// Run drains due jobs until ctx is done. It is a no-op without Redis.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.rdb == nil {
		return
	}
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drainDue(ctx, time.Now())
		}
	}
}

// drainDue claims and delivers every job due at or before now.
func (d *Dispatcher) drainDue(ctx context.Context, now time.Time) int {
	members, err := d.rdb.ZRangeByScore(ctx, ScheduledPushKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: claimBatch,
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			middleware.Logger.WarnContext(ctx, "push queue poll failed", slog.String("error", err.Error()))
		}
		return 0
	}

	delivered := 0
	for _, member := range members {
		claimed, err := d.rdb.ZRem(ctx, ScheduledPushKey, member).Result()
		if err != nil || claimed == 0 {
			continue
		}
		var job scheduledPush
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			observability.PushDeliveries.WithLabelValues("invalid").Inc()
			middleware.Logger.ErrorContext(ctx, "dropping malformed push job", slog.String("error", err.Error()))
			continue
		}
		d.deliver(ctx, job)
		delivered++
	}
	return delivered
}

func (d *Dispatcher) deliver(ctx context.Context, job scheduledPush) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, job.Message); err != nil {
		observability.PushDeliveries.WithLabelValues("failed").Inc()
		middleware.Logger.ErrorContext(ctx, "push delivery failed",
			slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return
	}
	observability.PushDeliveries.WithLabelValues("sent").Inc()
	middleware.Logger.DebugContext(ctx, "push delivered", slog.String("job_id", job.ID))
}
