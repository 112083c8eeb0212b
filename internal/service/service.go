// Package service implements the feed, thread, like and user operations on
// top of the repositories.
package service

import (
	"context"
	"log/slog"
	"time"

	"threads/internal/middleware"
	"threads/internal/observability"
)

// MediaResolver exchanges media references for retrievable URLs.
type MediaResolver interface {
	Resolve(ctx context.Context, ref string) (string, bool)
	ResolveAll(ctx context.Context, refs []string) []string
}

// MediaSweeper deletes stored media that no longer has an owner. It is best
// effort and never fails the caller.
type MediaSweeper interface {
	Sweep(ctx context.Context, refs []string) int
}

// CommentNotifier schedules delayed push notifications.
type CommentNotifier interface {
	ScheduleCommentNotification(ctx context.Context, token, title, body string, threadID uint, delay time.Duration)
}

// EventPublisher fans realtime feed events out to connected clients.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// UploadStore issues upload URLs and accepts uploaded media.
type UploadStore interface {
	IssueURL(ctx context.Context, userID uint) (string, error)
	Accept(ctx context.Context, ticket string, body []byte, contentType string) (string, error)
}

// publish is best effort: realtime delivery never fails a request.
func publish(ctx context.Context, p EventPublisher, eventType string, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, eventType, payload); err != nil {
		observability.RealtimePublishFailures.WithLabelValues(eventType).Inc()
		middleware.Logger.WarnContext(ctx, "failed to publish feed event",
			slog.String("event_type", eventType), slog.String("error", err.Error()))
	}
}

// sweep runs after the owning rows are committed.
func sweep(ctx context.Context, s MediaSweeper, refs []string) {
	if s == nil || len(refs) == 0 {
		return
	}
	s.Sweep(ctx, refs)
}

func endSpan(span *observability.Span, err error) {
	span.SetError(err)
	span.End()
}
