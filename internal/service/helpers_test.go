package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"threads/internal/identity"
	"threads/internal/models"
	"threads/internal/repository"
	"threads/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeMedia resolves storage ids to a CDN URL; ids prefixed "bad" fail.
type fakeMedia struct{}

func (fakeMedia) Resolve(_ context.Context, ref string) (string, bool) {
	switch {
	case ref == "", strings.HasPrefix(ref, "bad"):
		return "", false
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref, true
	}
	return "https://cdn.test/" + ref, true
}

func (m fakeMedia) ResolveAll(ctx context.Context, refs []string) []string {
	out := []string{}
	for _, r := range refs {
		if u, ok := m.Resolve(ctx, r); ok {
			out = append(out, u)
		}
	}
	return out
}

type recordingSweeper struct {
	mu    sync.Mutex
	swept []string
}

func (s *recordingSweeper) Sweep(_ context.Context, refs []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swept = append(s.swept, refs...)
	return len(refs)
}

type scheduledCall struct {
	Token, Title, Body string
	ThreadID           uint
	Delay              time.Duration
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []scheduledCall
}

func (n *recordingNotifier) ScheduleCommentNotification(_ context.Context, token, title, body string, threadID uint, delay time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, scheduledCall{token, title, body, threadID, delay})
}

type recordingEvents struct {
	mu    sync.Mutex
	types []string
	err   error
}

func (e *recordingEvents) Publish(_ context.Context, eventType string, _ any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, eventType)
	return e.err
}

type env struct {
	db       *gorm.DB
	users    repository.UserRepository
	messages repository.MessageRepository
	likes    repository.LikeRepository
	ident    *identity.Resolver
	notifier *recordingNotifier
	events   *recordingEvents
	sweeper  *recordingSweeper

	feed    *FeedService
	threads *ThreadService
	likeSvc *LikeService
	userSvc *UserService
}

const testDelay = 500 * time.Millisecond

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	e := &env{
		db:       db,
		users:    repository.NewUserRepository(db, nil),
		messages: repository.NewMessageRepository(db),
		likes:    repository.NewLikeRepository(db),
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		sweeper:  &recordingSweeper{},
	}
	e.ident = identity.NewResolver(e.users)
	e.feed = NewFeedService(e.ident, e.users, e.messages, e.likes, fakeMedia{})
	e.threads = NewThreadService(ThreadServiceDeps{
		Identity:          e.ident,
		Users:             e.users,
		Messages:          e.messages,
		Likes:             e.likes,
		Media:             fakeMedia{},
		Notifier:          e.notifier,
		Events:            e.events,
		Sweeper:           e.sweeper,
		NotificationDelay: testDelay,
	})
	e.likeSvc = NewLikeService(e.ident, e.likes, e.events)
	e.userSvc = NewUserService(e.ident, e.users, fakeMedia{}, e.sweeper)
	return e
}

func as(u *models.User) context.Context {
	return identity.WithSubject(context.Background(), u.ExternalID)
}

func (e *env) post(t *testing.T, u *models.User, content string, parent *uint) *models.Message {
	t.Helper()
	m, err := e.threads.CreateMessage(as(u), CreateMessageInput{Content: content, ThreadID: parent})
	require.NoError(t, err)
	return m
}

func (e *env) reload(t *testing.T, id uint) *models.Message {
	t.Helper()
	var m models.Message
	require.NoError(t, e.db.First(&m, id).Error)
	return &m
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code)
}
