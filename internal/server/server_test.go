package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"threads/internal/config"
	"threads/internal/models"
	"threads/internal/notifications"
	"threads/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testJWTSecret     = "test-secret-key-that-is-long-enough-123"
	testWebhookSecret = "whsec_test"
)

// MockStorage is a testify mock of media.ObjectStorage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Put(ctx context.Context, id string, r io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, id, r, size, contentType)
	return args.Error(0)
}

func (m *MockStorage) PresignedURL(ctx context.Context, id string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, id, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) Remove(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notifications.PushMessage
}

func (r *recordingSender) Send(_ context.Context, msg notifications.PushMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

type testEnv struct {
	t       *testing.T
	db      *gorm.DB
	mr      *miniredis.Miniredis
	storage *MockStorage
	srv     *Server
	app     *fiber.App
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                     "0",
		Env:                      "test",
		PublicBaseURL:            "http://api.test",
		DBDriver:                 "sqlite",
		JWTSecret:                testJWTSecret,
		WebhookSecret:            testWebhookSecret,
		MediaURLExpiry:           time.Hour,
		UploadTicketTTL:          time.Minute,
		MaxUploadSizeMB:          1,
		NotificationDelay:        time.Millisecond,
		NotificationPollInterval: 50 * time.Millisecond,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	storage := &MockStorage{}
	srv, err := NewServerWithDeps(testConfig(), Deps{
		DB:         db,
		Redis:      rdb,
		Storage:    storage,
		PushSender: &recordingSender{},
	})
	require.NoError(t, err)

	return &testEnv{t: t, db: db, mr: mr, storage: storage, srv: srv, app: srv.App()}
}

func tokenFor(t *testing.T, subject string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(method, path string, body any, user *models.User) *http.Response {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(e.t, user.ExternalID))
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestLivenessCheck(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "up", body["status"])
}

func TestReadinessCheck(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.srv.hub.Register(1, nil)
	require.NoError(t, err)

	resp := e.do(http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decode[map[string]any](t, resp)["websockets"])

	e.mr.SetError("redis down")
	resp = e.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestSecurityHeaders(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(http.MethodGet, "/health/live", nil, nil)
	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	t.Run("missing token", func(t *testing.T) {
		resp := e.do(http.MethodPost, "/api/threads", fiber.Map{"content": "hi"}, nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		body := decode[models.ErrorResponse](t, resp)
		assert.Equal(t, models.CodeUnauthenticated, body.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		resp, err := e.app.Test(req, -1)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid token without a provisioned user", func(t *testing.T) {
		ghost := &models.User{ExternalID: "user_ghost"}
		resp := e.do(http.MethodGet, "/api/users/me", nil, ghost)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		body := decode[models.ErrorResponse](t, resp)
		assert.Equal(t, "User not found", body.Error)
	})

	t.Run("public reads ignore invalid tokens", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/threads", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		resp, err := e.app.Test(req, -1)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}

func TestThreadLifecycle(t *testing.T) {
	e := newTestEnv(t)
	alice := testutil.CreateUser(t, e.db)
	bob := testutil.CreateUser(t, e.db)

	resp := e.do(http.MethodPost, "/api/threads", fiber.Map{"content": "hello world"}, alice)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	thread := decode[models.Message](t, resp)
	assert.Equal(t, models.KindThread, thread.Kind)
	require.NotNil(t, thread.Creator)
	assert.Equal(t, alice.ID, thread.Creator.ID)

	resp = e.do(http.MethodPost, "/api/threads", fiber.Map{"content": "nice", "thread_id": thread.ID}, bob)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	comment := decode[models.Message](t, resp)
	assert.Equal(t, models.KindComment, comment.Kind)

	resp = e.do(http.MethodGet, "/api/threads/"+itoa(thread.ID), nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	got := decode[models.Message](t, resp)
	assert.Equal(t, 1, got.CommentCount)

	resp = e.do(http.MethodGet, "/api/threads/"+itoa(thread.ID)+"/detail", nil, alice)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	detail := decode[struct {
		Thread   models.Message `json:"thread"`
		Comments struct {
			Page   []models.Message `json:"page"`
			IsDone bool             `json:"is_done"`
		} `json:"comments"`
	}](t, resp)
	assert.Equal(t, thread.ID, detail.Thread.ID)
	require.Len(t, detail.Comments.Page, 1)
	assert.Equal(t, comment.ID, detail.Comments.Page[0].ID)
	assert.True(t, detail.Comments.IsDone)

	resp = e.do(http.MethodPost, "/api/threads/"+itoa(thread.ID)+"/like", nil, bob)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode[map[string]bool](t, resp)["liked"])

	resp = e.do(http.MethodGet, "/api/threads?limit=10", nil, bob)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	feed := decode[struct {
		Page   []models.Message `json:"page"`
		Cursor *string          `json:"cursor"`
	}](t, resp)
	require.Len(t, feed.Page, 1)
	assert.True(t, feed.Page[0].IsLiked)
	assert.Equal(t, 1, feed.Page[0].LikeCount)
	assert.Nil(t, feed.Cursor)

	resp = e.do(http.MethodPost, "/api/threads/"+itoa(thread.ID)+"/like", nil, bob)
	assert.Equal(t, false, decode[map[string]bool](t, resp)["liked"])

	resp = e.do(http.MethodDelete, "/api/threads/"+itoa(comment.ID), nil, alice)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = e.do(http.MethodDelete, "/api/threads/"+itoa(comment.ID), nil, bob)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode[map[string]bool](t, resp)["deleted"])

	resp = e.do(http.MethodGet, "/api/threads/"+itoa(thread.ID), nil, nil)
	assert.Equal(t, 0, decode[models.Message](t, resp).CommentCount)

	resp = e.do(http.MethodGet, "/api/threads/"+itoa(comment.ID)+"/comments", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCreateMessageValidation(t *testing.T) {
	e := newTestEnv(t)
	alice := testutil.CreateUser(t, e.db)

	tests := []struct {
		name string
		body any
	}{
		{"empty content and media", fiber.Map{"content": "   "}},
		{"content too long", fiber.Map{"content": strings.Repeat("a", 5001)}},
		{"too many media files", fiber.Map{"media_files": []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}}},
		{"bad website", fiber.Map{"content": "x", "website_url": "ftp://nope"}},
		{"missing parent", fiber.Map{"content": "x", "thread_id": 9999}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.do(http.MethodPost, "/api/threads", tt.body, alice)
			assert.GreaterOrEqual(t, resp.StatusCode, 400)
			assert.Less(t, resp.StatusCode, 500)
		})
	}

	resp := e.do(http.MethodGet, "/api/threads/abc", nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid ID", decode[models.ErrorResponse](t, resp).Error)

	resp = e.do(http.MethodGet, "/api/threads?user_id=-1", nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestListThreadsByAuthorAndCursor(t *testing.T) {
	e := newTestEnv(t)
	alice := testutil.CreateUser(t, e.db)
	bob := testutil.CreateUser(t, e.db)
	for i := 0; i < 3; i++ {
		testutil.CreateMessage(t, e.db, alice.ID, nil)
	}
	testutil.CreateMessage(t, e.db, bob.ID, nil)

	type page struct {
		Page   []models.Message `json:"page"`
		Cursor *string          `json:"cursor"`
		IsDone bool             `json:"is_done"`
	}

	resp := e.do(http.MethodGet, "/api/threads?limit=2&user_id="+itoa(alice.ID), nil, nil)
	first := decode[page](t, resp)
	require.Len(t, first.Page, 2)
	require.NotNil(t, first.Cursor)
	assert.False(t, first.IsDone)

	resp = e.do(http.MethodGet, "/api/threads?limit=2&user_id="+itoa(alice.ID)+"&cursor="+*first.Cursor, nil, nil)
	second := decode[page](t, resp)
	require.Len(t, second.Page, 1)
	assert.True(t, second.IsDone)
	for _, m := range append(first.Page, second.Page...) {
		assert.Equal(t, alice.ID, m.UserID)
	}

	resp = e.do(http.MethodGet, "/api/threads?cursor=not-a-cursor!", nil, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUserEndpoints(t *testing.T) {
	e := newTestEnv(t)
	alice := testutil.CreateUser(t, e.db, func(u *models.User) { u.Username = "alice_wonder" })
	bob := testutil.CreateUser(t, e.db)

	resp := e.do(http.MethodGet, "/api/users/me", nil, alice)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, alice.ID, decode[models.User](t, resp).ID)

	resp = e.do(http.MethodGet, "/api/users/external/"+bob.ExternalID, nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, bob.ID, decode[models.User](t, resp).ID)

	resp = e.do(http.MethodGet, "/api/users/external/nobody", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp = e.do(http.MethodGet, "/api/users/search?q=WONDER", nil, nil)
	found := decode[[]models.User](t, resp)
	require.Len(t, found, 1)
	assert.Equal(t, alice.ID, found[0].ID)

	resp = e.do(http.MethodGet, "/api/users/search?q=", nil, nil)
	assert.Empty(t, decode[[]models.User](t, resp))

	resp = e.do(http.MethodGet, "/api/users?limit=1", nil, nil)
	assert.Len(t, decode[[]models.User](t, resp), 1)

	resp = e.do(http.MethodPatch, "/api/users/"+itoa(bob.ID), fiber.Map{"bio": "hijack"}, alice)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = e.do(http.MethodPatch, "/api/users/"+itoa(alice.ID), fiber.Map{
		"bio":         "  curious  ",
		"website_url": "https://alice.example",
		"image_url":   "https://img.example/a.png",
	}, alice)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	updated := decode[models.User](t, resp)
	assert.Equal(t, "curious", updated.Bio)
	assert.Equal(t, "https://img.example/a.png", updated.ImageURL)

	resp = e.do(http.MethodPatch, "/api/users/"+itoa(alice.ID), fiber.Map{"bio": strings.Repeat("b", 501)}, alice)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func postWebhook(t *testing.T, e *testEnv, secret string, payload any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/identity", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(webhookSecretHeader, secret)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestIdentityWebhook(t *testing.T) {
	e := newTestEnv(t)
	created := fiber.Map{
		"type": "user.created",
		"data": fiber.Map{
			"id":              "user_2abcdef123456",
			"first_name":      "Ada",
			"last_name":       "Lovelace",
			"image_url":       "https://img.example/ada.png",
			"email_addresses": []fiber.Map{{"email_address": "ada@example.com"}},
		},
	}

	resp := postWebhook(t, e, "", created)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = postWebhook(t, e, "wrong", created)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = postWebhook(t, e, testWebhookSecret, created)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var user models.User
	require.NoError(t, e.db.Where("external_id = ?", "user_2abcdef123456").First(&user).Error)
	assert.Equal(t, "Ada Lovelace", user.Username)
	assert.Equal(t, "ada@example.com", user.Email)

	resp = postWebhook(t, e, testWebhookSecret, created)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decode[map[string]any](t, resp)["created"])

	resp = postWebhook(t, e, testWebhookSecret, fiber.Map{"type": "user.updated", "data": fiber.Map{"id": "user_2abcdef123456"}})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	testutil.CreateMessage(t, e.db, user.ID, nil)
	resp = postWebhook(t, e, testWebhookSecret, fiber.Map{"type": "user.deleted", "data": fiber.Map{"id": "user_2abcdef123456"}})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode[map[string]any](t, resp)["removed"])

	var count int64
	require.NoError(t, e.db.Model(&models.Message{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Zero(t, count)

	resp = postWebhook(t, e, testWebhookSecret, fiber.Map{"type": "user.created", "data": fiber.Map{}})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUploadFlow(t *testing.T) {
	e := newTestEnv(t)
	alice := testutil.CreateUser(t, e.db)

	resp := e.do(http.MethodPost, "/api/uploads", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = e.do(http.MethodPost, "/api/uploads", nil, alice)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	uploadURL := decode[map[string]string](t, resp)["upload_url"]
	require.True(t, strings.HasPrefix(uploadURL, "http://api.test/api/uploads/"), uploadURL)
	path := strings.TrimPrefix(uploadURL, "http://api.test")

	e.storage.On("Put", mock.Anything, mock.AnythingOfType("string"), mock.Anything, mock.AnythingOfType("int64"), "image/webp").
		Return(nil).Once()

	send := func(body []byte, contentType string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		r, err := e.app.Test(req, -1)
		require.NoError(t, err)
		t.Cleanup(func() { _ = r.Body.Close() })
		return r
	}

	resp = send([]byte("<html><script>alert(1)</script></html>"), "text/html")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	img := pngBytes(t)
	resp = send(img, "image/png")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, decode[map[string]string](t, resp)["storage_id"])

	resp = send(img, "image/png")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	e.storage.AssertExpectations(t)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 3))))
	return buf.Bytes()
}

func TestDeleteRemovesStoredMedia(t *testing.T) {
	e := newTestEnv(t)
	alice := testutil.CreateUser(t, e.db, func(u *models.User) { u.ImageURL = "avatar-old" })

	e.storage.On("PresignedURL", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return("https://cdn.test/signed", nil).Maybe()

	resp := e.do(http.MethodPost, "/api/threads", fiber.Map{
		"content":     "with pictures",
		"media_files": []string{"img-1", "https://example.com/remote.png"},
	}, alice)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	created := decode[models.Message](t, resp)

	e.storage.On("Remove", mock.Anything, "img-1").Return(nil).Once()
	resp = e.do(http.MethodDelete, "/api/threads/"+itoa(created.ID), nil, alice)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// A failed removal is logged, never surfaced.
	e.storage.On("Remove", mock.Anything, "avatar-old").Return(errors.New("storage timeout")).Once()
	resp = e.do(http.MethodPatch, "/api/users/"+itoa(alice.ID), fiber.Map{"image_url": "avatar-new"}, alice)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	e.storage.AssertExpectations(t)
	e.storage.AssertNotCalled(t, "Remove", mock.Anything, "https://example.com/remote.png")
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	e := newTestEnv(t)
	alice := testutil.CreateUser(t, e.db)

	resp := e.do(http.MethodGet, "/api/ws", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp = e.do(http.MethodGet, "/api/ws", nil, alice)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
