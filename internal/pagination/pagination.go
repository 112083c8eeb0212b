// Package pagination implements opaque keyset cursors over (created_at, id).
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"threads/internal/models"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Opts is a page request. An empty Cursor starts from the newest item.
type Opts struct {
	Limit  int
	Cursor string
}

// Normalized clamps the limit into [1, MaxLimit], applying DefaultLimit to
// non-positive values.
func (o Opts) Normalized() Opts {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	return o
}

// Page is one window of a listing. Cursor is nil once IsDone is true.
type Page[T any] struct {
	Page   []T     `json:"page"`
	Cursor *string `json:"cursor"`
	IsDone bool    `json:"is_done"`
}

// Cursor is the position after which the next page starts.
type Cursor struct {
	CreatedAt time.Time
	ID        uint
}

type wireCursor struct {
	T  int64 `json:"t"`
	ID uint  `json:"id"`
}

// Encode renders c as an opaque URL-safe token.
func Encode(c Cursor) string {
	raw, _ := json.Marshal(wireCursor{T: c.CreatedAt.UnixMicro(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a token produced by Encode. The empty string yields nil.
func Decode(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, models.NewValidationError("Invalid pagination cursor")
	}
	var w wireCursor
	if err := json.Unmarshal(raw, &w); err != nil || w.ID == 0 {
		return nil, models.NewValidationError("Invalid pagination cursor")
	}
	return &Cursor{CreatedAt: time.UnixMicro(w.T).UTC(), ID: w.ID}, nil
}

// Build turns limit+1 fetched rows into a page, keyed by key.
func Build[T any](rows []T, limit int, key func(T) Cursor) Page[T] {
	if len(rows) <= limit {
		if rows == nil {
			rows = []T{}
		}
		return Page[T]{Page: rows, IsDone: true}
	}
	rows = rows[:limit]
	next := Encode(key(rows[len(rows)-1]))
	return Page[T]{Page: rows, Cursor: &next}
}
