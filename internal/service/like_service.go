package service

import (
	"context"

	"threads/internal/identity"
	"threads/internal/notifications"
	"threads/internal/observability"
	"threads/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

type LikeService struct {
	identity *identity.Resolver
	likes    repository.LikeRepository
	events   EventPublisher
}

func NewLikeService(ident *identity.Resolver, likes repository.LikeRepository, events EventPublisher) *LikeService {
	return &LikeService{identity: ident, likes: likes, events: events}
}

// ToggleLike flips the caller's like on messageID and returns the new state.
func (s *LikeService) ToggleLike(ctx context.Context, messageID uint) (liked bool, err error) {
	span, ctx := observability.NewSpan(ctx, "LikeService.ToggleLike", attribute.Int64("message.id", int64(messageID)))
	defer func() { endSpan(span, err) }()

	user, err := s.identity.CurrentUserOrFail(ctx)
	if err != nil {
		return false, err
	}
	liked, err = s.likes.Toggle(ctx, messageID, user.ID)
	if err != nil {
		return false, err
	}

	action := "unliked"
	if liked {
		action = "liked"
	}
	observability.LikesToggled.WithLabelValues(action).Inc()
	publish(ctx, s.events, notifications.EventLikeToggled, map[string]any{
		"id":      messageID,
		"user_id": user.ID,
		"liked":   liked,
	})
	return liked, nil
}

// IsLikedBy reports whether the caller likes messageID; anonymous callers never do.
func (s *LikeService) IsLikedBy(ctx context.Context, messageID uint) (bool, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil || user == nil {
		return false, err
	}
	return s.likes.IsLiked(ctx, messageID, user.ID)
}
