package media

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"threads/internal/cache"
	"threads/internal/middleware"
	"threads/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

// Uploads issues single-use upload URLs and stores what is posted to them.
type Uploads struct {
	rdb     *redis.Client
	storage ObjectStorage
	baseURL string
	ttl     time.Duration
	maxSize int64
}

// NewUploads wires the ticket store and object storage. baseURL is the
// public prefix tickets are appended to.
func NewUploads(rdb *redis.Client, storage ObjectStorage, baseURL string, ttl time.Duration, maxSize int64) *Uploads {
	return &Uploads{rdb: rdb, storage: storage, baseURL: baseURL, ttl: ttl, maxSize: maxSize}
}

func (u *Uploads) available() bool {
	return u != nil && u.rdb != nil && u.storage != nil
}

// IssueURL creates a ticket for userID and returns the URL to POST the file to.
func (u *Uploads) IssueURL(ctx context.Context, userID uint) (string, error) {
	if !u.available() {
		return "", models.NewUnavailableError("Uploads are not available")
	}
	ticket := xid.New().String()
	if err := u.rdb.Set(ctx, cache.UploadTicketKey(ticket), userID, u.ttl).Err(); err != nil {
		return "", models.NewInternalError(err)
	}
	return u.baseURL + ticket, nil
}

// Accept consumes ticket and stores body, returning the new storage id.
// body must be an image; it is stored re-encoded by PrepareImage. Rejected
// bodies leave the ticket usable.
func (u *Uploads) Accept(ctx context.Context, ticket string, body []byte, contentType string) (string, error) {
	if !u.available() {
		return "", models.NewUnavailableError("Uploads are not available")
	}
	if len(body) == 0 {
		return "", models.NewValidationError("Upload body is empty")
	}
	if u.maxSize > 0 && int64(len(body)) > u.maxSize {
		return "", models.NewValidationError("Upload is too large")
	}

	encoded, storedType, err := PrepareImage(body, contentType)
	if err != nil {
		return "", err
	}

	owner, err := u.rdb.GetDel(ctx, cache.UploadTicketKey(ticket)).Result()
	if errors.Is(err, redis.Nil) {
		return "", models.NewNotFoundError("Upload ticket", ticket)
	}
	if err != nil {
		return "", models.NewInternalError(err)
	}

	storageID := uuid.NewString()
	if err := u.storage.Put(ctx, storageID, bytes.NewReader(encoded), int64(len(encoded)), storedType); err != nil {
		return "", models.NewInternalError(err)
	}

	middleware.Logger.InfoContext(ctx, "media uploaded",
		slog.String("storage_id", storageID),
		slog.String("owner", owner),
		slog.Int("received_bytes", len(body)),
		slog.Int("stored_bytes", len(encoded)),
	)
	return storageID, nil
}
