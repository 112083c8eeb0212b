package service

import (
	"context"

	"threads/internal/identity"
	"threads/internal/models"
	"threads/internal/observability"
	"threads/internal/pagination"
	"threads/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// FeedService answers the read-only feed queries. Results are personalized
// when the caller has a session and degrade to anonymous otherwise.
type FeedService struct {
	identity *identity.Resolver
	messages repository.MessageRepository
	present  *presenter
}

// ThreadDetail is a thread together with the first page of its comments.
type ThreadDetail struct {
	Thread   *models.Message                  `json:"thread"`
	Comments pagination.Page[*models.Message] `json:"comments"`
}

func NewFeedService(
	ident *identity.Resolver,
	users repository.UserRepository,
	messages repository.MessageRepository,
	likes repository.LikeRepository,
	media MediaResolver,
) *FeedService {
	return &FeedService{
		identity: ident,
		messages: messages,
		present:  &presenter{users: users, messages: messages, likes: likes, media: media},
	}
}

// ListThreads pages through root threads, newest first, optionally by one author.
func (s *FeedService) ListThreads(ctx context.Context, opts pagination.Opts, authorID *uint) (page pagination.Page[*models.Message], err error) {
	span, ctx := observability.NewSpan(ctx, "FeedService.ListThreads")
	defer func() { endSpan(span, err) }()

	viewer, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return page, err
	}
	page, err = s.messages.ListRoots(ctx, opts, authorID)
	if err != nil {
		return page, err
	}
	err = s.present.enrich(ctx, viewer, page.Page, models.KindThread, false)
	return page, err
}

// GetThread returns any message by id, enriched for the caller.
func (s *FeedService) GetThread(ctx context.Context, id uint) (msg *models.Message, err error) {
	span, ctx := observability.NewSpan(ctx, "FeedService.GetThread", attribute.Int64("message.id", int64(id)))
	defer func() { endSpan(span, err) }()

	viewer, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	msg, err = s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	kind, err := s.present.kindOf(ctx, msg)
	if err != nil {
		return nil, err
	}
	if err = s.present.enrich(ctx, viewer, []*models.Message{msg}, kind, false); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListComments pages through the direct children of parentID, newest first.
func (s *FeedService) ListComments(ctx context.Context, parentID uint, opts pagination.Opts) (page pagination.Page[*models.Message], err error) {
	span, ctx := observability.NewSpan(ctx, "FeedService.ListComments", attribute.Int64("message.parent_id", int64(parentID)))
	defer func() { endSpan(span, err) }()

	viewer, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return page, err
	}
	parent, err := s.messages.GetByID(ctx, parentID)
	if err != nil {
		return page, err
	}
	page, err = s.messages.ListChildren(ctx, parentID, opts)
	if err != nil {
		return page, err
	}
	err = s.present.enrich(ctx, viewer, page.Page, childKind(parent), true)
	return page, err
}

// ThreadDetail combines GetThread with the first comment page.
func (s *FeedService) ThreadDetail(ctx context.Context, id uint, opts pagination.Opts) (*ThreadDetail, error) {
	thread, err := s.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.ListComments(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	return &ThreadDetail{Thread: thread, Comments: comments}, nil
}
