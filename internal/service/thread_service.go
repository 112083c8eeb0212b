package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"threads/internal/identity"
	"threads/internal/middleware"
	"threads/internal/models"
	"threads/internal/notifications"
	"threads/internal/observability"
	"threads/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const (
	maxContentLen    = 5000
	maxMediaFiles    = 10
	maxWebsiteURLLen = 2048

	commentNotificationTitle = "New comment"
)

// ThreadService owns message writes: composing threads, comments and
// replies, and deleting them together with their subtrees.
type ThreadService struct {
	identity *identity.Resolver
	users    repository.UserRepository
	messages repository.MessageRepository
	present  *presenter
	notifier CommentNotifier
	events   EventPublisher
	sweeper  MediaSweeper
	delay    time.Duration
}

type CreateMessageInput struct {
	Content    string
	MediaFiles []string
	WebsiteURL string
	ThreadID   *uint
}

// ThreadServiceDeps groups ThreadService collaborators. Notifier, Events and
// Sweeper may be nil.
type ThreadServiceDeps struct {
	Identity          *identity.Resolver
	Users             repository.UserRepository
	Messages          repository.MessageRepository
	Likes             repository.LikeRepository
	Media             MediaResolver
	Notifier          CommentNotifier
	Events            EventPublisher
	Sweeper           MediaSweeper
	NotificationDelay time.Duration
}

func NewThreadService(deps ThreadServiceDeps) *ThreadService {
	return &ThreadService{
		identity: deps.Identity,
		users:    deps.Users,
		messages: deps.Messages,
		present:  &presenter{users: deps.Users, messages: deps.Messages, likes: deps.Likes, media: deps.Media},
		notifier: deps.Notifier,
		events:   deps.Events,
		sweeper:  deps.Sweeper,
		delay:    deps.NotificationDelay,
	}
}

func validateMessage(in *CreateMessageInput) error {
	in.Content = strings.TrimSpace(in.Content)
	in.WebsiteURL = strings.TrimSpace(in.WebsiteURL)

	media := make([]string, 0, len(in.MediaFiles))
	for _, ref := range in.MediaFiles {
		if ref = strings.TrimSpace(ref); ref != "" {
			media = append(media, ref)
		}
	}
	in.MediaFiles = media

	if in.Content == "" && len(in.MediaFiles) == 0 {
		return models.NewValidationError("Content or media is required")
	}
	if utf8.RuneCountInString(in.Content) > maxContentLen {
		return models.NewValidationError("Content too long (max 5000 characters)")
	}
	if len(in.MediaFiles) > maxMediaFiles {
		return models.NewValidationError("Too many media files (max 10)")
	}
	if in.WebsiteURL != "" {
		if len(in.WebsiteURL) > maxWebsiteURLLen {
			return models.NewValidationError("website_url too long")
		}
		u, err := url.ParseRequestURI(in.WebsiteURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return models.NewValidationError("website_url must be a valid http(s) URL")
		}
	}
	return nil
}

// CreateMessage stores a thread, or a comment or reply when ThreadID is set.
// Commenting on someone else's message schedules a push to its author once
// the write has committed.
func (s *ThreadService) CreateMessage(ctx context.Context, in CreateMessageInput) (msg *models.Message, err error) {
	span, ctx := observability.NewSpan(ctx, "ThreadService.CreateMessage")
	defer func() { endSpan(span, err) }()

	creator, err := s.identity.CurrentUserOrFail(ctx)
	if err != nil {
		return nil, err
	}
	if err = validateMessage(&in); err != nil {
		return nil, err
	}

	msg = &models.Message{
		UserID:     creator.ID,
		Content:    in.Content,
		MediaFiles: in.MediaFiles,
		WebsiteURL: in.WebsiteURL,
		ThreadID:   in.ThreadID,
	}
	parent, err := s.messages.Create(ctx, msg)
	if err != nil {
		return nil, err
	}

	kind := models.KindOf(parent)
	span.AddAttributes(attribute.Int64("message.id", int64(msg.ID)), attribute.String("message.kind", string(kind)))
	observability.MessagesCreated.WithLabelValues(string(kind)).Inc()

	if parent != nil && parent.UserID != creator.ID {
		s.notifyParentAuthor(ctx, parent, msg)
	}

	eventType := notifications.EventThreadCreated
	if parent != nil {
		eventType = notifications.EventCommentCreated
	}
	publish(ctx, s.events, eventType, map[string]any{
		"id":        msg.ID,
		"thread_id": msg.ThreadID,
		"user_id":   msg.UserID,
		"kind":      kind,
	})

	// Committed from here on: presentation failures are logged, not returned.
	if enrichErr := s.present.enrich(ctx, creator, []*models.Message{msg}, kind, false); enrichErr != nil {
		msg.Kind = kind
		msg.Creator = s.present.user(ctx, creator)
		middleware.Logger.WarnContext(ctx, "created message returned without enrichment",
			slog.Uint64("message_id", uint64(msg.ID)), slog.String("error", enrichErr.Error()))
	}
	return msg, nil
}

func (s *ThreadService) notifyParentAuthor(ctx context.Context, parent, comment *models.Message) {
	if s.notifier == nil {
		return
	}
	recipient, err := s.users.GetByID(ctx, parent.UserID)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "comment notification skipped: recipient lookup failed",
			slog.Uint64("thread_id", uint64(parent.ID)), slog.String("error", err.Error()))
		return
	}
	token := ""
	if recipient.HasPushToken() {
		token = *recipient.PushToken
	}
	s.notifier.ScheduleCommentNotification(ctx, token, commentNotificationTitle, comment.Content, parent.ID, s.delay)
}

// DeleteMessage removes a message the caller authored, with its descendants
// and their likes.
func (s *ThreadService) DeleteMessage(ctx context.Context, id uint) (err error) {
	span, ctx := observability.NewSpan(ctx, "ThreadService.DeleteMessage", attribute.Int64("message.id", int64(id)))
	defer func() { endSpan(span, err) }()

	requester, err := s.identity.CurrentUserOrFail(ctx)
	if err != nil {
		return err
	}
	msg, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if msg.UserID != requester.ID {
		return models.NewForbiddenError("You can only delete your own messages")
	}

	purged, err := s.messages.Delete(ctx, id)
	if err != nil {
		return err
	}
	observability.MessagesDeleted.Add(float64(purged.Messages))
	span.AddAttributes(attribute.Int("message.removed", purged.Messages))
	sweep(ctx, s.sweeper, purged.Media)

	publish(ctx, s.events, notifications.EventMessageDeleted, map[string]any{
		"id":        msg.ID,
		"thread_id": msg.ThreadID,
		"removed":   purged.Messages,
	})
	return nil
}
