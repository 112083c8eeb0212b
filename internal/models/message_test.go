package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()
	rootID := uint(1)
	root := &Message{ID: rootID}
	comment := &Message{ID: 2, ThreadID: &rootID}

	assert.Equal(t, KindThread, KindOf(nil))
	assert.Equal(t, KindComment, KindOf(root))
	assert.Equal(t, KindReply, KindOf(comment))

	assert.Equal(t, KindComment, ChildKind(KindThread))
	assert.Equal(t, KindReply, ChildKind(KindComment))
	assert.Equal(t, KindReply, ChildKind(KindReply))
}

func TestMessage_BeforeCreate(t *testing.T) {
	t.Parallel()

	t.Run("fills zero timestamp and media", func(t *testing.T) {
		t.Parallel()
		m := &Message{}
		require.NoError(t, m.BeforeCreate(nil))
		assert.False(t, m.CreatedAt.IsZero())
		assert.Equal(t, time.UTC, m.CreatedAt.Location())
		assert.NotNil(t, m.MediaFiles)
	})

	t.Run("truncates to microseconds", func(t *testing.T) {
		t.Parallel()
		ts := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.FixedZone("X", 3600))
		m := &Message{CreatedAt: ts}
		require.NoError(t, m.BeforeCreate(nil))
		assert.Equal(t, 123456000, m.CreatedAt.Nanosecond())
		assert.True(t, m.CreatedAt.Equal(ts.Truncate(time.Microsecond)))
	})
}

func TestAppError_Classification(t *testing.T) {
	t.Parallel()
	base := errors.New("boom")
	err := NewConflictError("duplicate", base)

	assert.True(t, IsCode(err, CodeConflict))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "duplicate: boom", err.Error())
	assert.Equal(t, "", ErrorCode(base))
	assert.Equal(t, CodeNotFound, ErrorCode(NewNotFoundError("Message", 7)))
	assert.Equal(t, "Message with ID 7 not found", NewNotFoundError("Message", 7).Error())
}
