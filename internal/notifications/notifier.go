package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"threads/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// FeedChannel is the pub/sub channel shared by every API instance.
const FeedChannel = "feed:events"

const (
	EventThreadCreated  = "thread_created"
	EventCommentCreated = "comment_created"
	EventMessageDeleted = "message_deleted"
	EventLikeToggled    = "like_toggled"
)

// FeedEvent is the JSON frame written to feed sockets.
type FeedEvent struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

type deliverFunc func(payload string)

// Notifier fans feed events out across instances through Redis pub/sub.
// With no Redis client it delivers in-process to the handler installed by
// StartSubscriber, and events published before that are dropped.
type Notifier struct {
	rdb   *redis.Client
	local atomic.Pointer[deliverFunc]
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Publish encodes one event and hands it to every subscriber. A nil
// Notifier discards it.
func (n *Notifier) Publish(ctx context.Context, eventType string, payload any) error {
	if n == nil {
		return nil
	}
	frame, err := json.Marshal(FeedEvent{Type: eventType, Payload: payload, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}

	if n.rdb != nil {
		return n.rdb.Publish(ctx, FeedChannel, frame).Err()
	}
	if deliver := n.local.Load(); deliver != nil {
		safeDeliver(*deliver, string(frame))
	}
	return nil
}

// StartSubscriber installs onMessage as the event sink. With Redis the
// subscription is confirmed before returning and consumed in a goroutine
// until ctx ends.
func (n *Notifier) StartSubscriber(ctx context.Context, onMessage func(payload string)) error {
	if n.rdb == nil {
		fn := deliverFunc(onMessage)
		n.local.Store(&fn)
		return nil
	}

	sub := n.rdb.Subscribe(ctx, FeedChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", FeedChannel, err)
	}
	go consume(ctx, sub, onMessage)
	return nil
}

func consume(ctx context.Context, sub *redis.PubSub, onMessage deliverFunc) {
	defer func() { _ = sub.Close() }()
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			safeDeliver(onMessage, msg.Payload)
		}
	}
}

// safeDeliver keeps one bad event from killing the subscriber loop.
func safeDeliver(fn deliverFunc, payload string) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.Error("feed event handler panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn(payload)
}
