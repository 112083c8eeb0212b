package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"threads/internal/cache"
	"threads/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xwebp "golang.org/x/image/webp"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func issueTicket(t *testing.T, u *Uploads, prefix string) string {
	t.Helper()
	uploadURL, err := u.IssueURL(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uploadURL, prefix))
	return strings.TrimPrefix(uploadURL, prefix)
}

func TestUploads_IssueAndAccept(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := newFakeStorage()
	img := pngBytes(t, 4, 4)
	u := NewUploads(rdb, store, "https://api.test/api/uploads/", time.Hour, int64(len(img)))
	ctx := context.Background()

	ticket := issueTicket(t, u, "https://api.test/api/uploads/")
	assert.True(t, mr.Exists(cache.UploadTicketKey(ticket)))

	_, err := u.Accept(ctx, ticket, append(img, 0), "image/png")
	assert.True(t, models.IsCode(err, models.CodeValidation))
	assert.True(t, mr.Exists(cache.UploadTicketKey(ticket)), "ticket survives a rejected body")

	id, err := u.Accept(ctx, ticket, img, "image/png")
	require.NoError(t, err)
	stored, err := xwebp.Decode(bytes.NewReader(store.objects[id]))
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Bounds().Dx())
	assert.Equal(t, storedContentType, store.types[id])

	_, err = u.Accept(ctx, ticket, img, "image/png")
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestUploads_RejectsNonImages(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := newFakeStorage()
	u := NewUploads(rdb, store, "/api/uploads/", time.Hour, 0)
	ticket := issueTicket(t, u, "/api/uploads/")
	ctx := context.Background()

	cases := []struct {
		name        string
		body        []byte
		contentType string
	}{
		{"html", []byte("<html><script>alert(1)</script></html>"), "text/html"},
		{"html claiming png", []byte("<html><script>alert(1)</script></html>"), "image/png"},
		{"truncated png", pngBytes(t, 4, 4)[:20], "image/png"},
		{"png claiming jpeg", pngBytes(t, 4, 4), "image/jpeg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := u.Accept(ctx, ticket, tc.body, tc.contentType)
			assert.True(t, models.IsCode(err, models.CodeValidation), "got %v", err)
		})
	}
	assert.Empty(t, store.objects)
	assert.True(t, mr.Exists(cache.UploadTicketKey(ticket)))
}

func TestPrepareImage_DownscalesToMaster(t *testing.T) {
	out, ct, err := PrepareImage(pngBytes(t, MasterMaxSize*2, 10), "image/png; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, "image/webp", ct)

	cfg, err := xwebp.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, MasterMaxSize, cfg.Width)
	assert.Equal(t, 5, cfg.Height)
}

func TestUploads_TicketExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	u := NewUploads(rdb, newFakeStorage(), "/api/uploads/", time.Minute, 0)

	ticket := issueTicket(t, u, "/api/uploads/")
	mr.FastForward(2 * time.Minute)

	_, err := u.Accept(context.Background(), ticket, pngBytes(t, 2, 2), "")
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestUploads_Unavailable(t *testing.T) {
	u := NewUploads(nil, nil, "/api/uploads/", time.Minute, 0)
	_, err := u.IssueURL(context.Background(), 1)
	assert.True(t, models.IsCode(err, models.CodeUnavailable))
	_, err = u.Accept(context.Background(), "t", []byte("x"), "")
	assert.True(t, models.IsCode(err, models.CodeUnavailable))
}
