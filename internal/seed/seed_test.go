package seed

import (
	"testing"

	"threads/internal/models"
	"threads/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeeder_Run(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewSeeder(db, 42)

	res, err := s.Run(Options{Users: 5, Threads: 8, MaxComments: 3, MaxReplies: 2, MaxLikes: 4, MaxDays: 7})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Users)
	assert.Equal(t, 8, res.Threads)

	var msgCount, likeCount int64
	require.NoError(t, db.Model(&models.Message{}).Count(&msgCount).Error)
	require.NoError(t, db.Model(&models.Like{}).Count(&likeCount).Error)
	assert.Equal(t, int64(res.Threads+res.Comments+res.Replies), msgCount)
	assert.Equal(t, int64(res.Likes), likeCount)

	var msgs []models.Message
	require.NoError(t, db.Find(&msgs).Error)
	for _, m := range msgs {
		var children, likes int64
		require.NoError(t, db.Model(&models.Message{}).Where("thread_id = ?", m.ID).Count(&children).Error)
		require.NoError(t, db.Model(&models.Like{}).Where("message_id = ?", m.ID).Count(&likes).Error)
		assert.Equal(t, int(children), m.CommentCount, "comment_count of %d", m.ID)
		assert.Equal(t, int(likes), m.LikeCount, "like_count of %d", m.ID)
	}
}

func TestSeeder_ClearAll(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewSeeder(db, 7)
	_, err := s.Run(Options{Users: 3, Threads: 3, MaxComments: 2, MaxLikes: 2})
	require.NoError(t, err)

	require.NoError(t, s.ClearAll())

	for _, model := range []any{&models.User{}, &models.Message{}, &models.Like{}} {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		assert.Zero(t, n)
	}
}

func TestRecountCounters_RepairsDrift(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	u := testutil.CreateUser(t, db)
	root := testutil.CreateMessage(t, db, u.ID, nil, func(m *models.Message) { m.CommentCount = 9; m.LikeCount = 3 })
	testutil.CreateMessage(t, db, u.ID, &root.ID)

	require.NoError(t, RecountCounters(db))

	var got models.Message
	require.NoError(t, db.First(&got, root.ID).Error)
	assert.Equal(t, 1, got.CommentCount)
	assert.Equal(t, 0, got.LikeCount)
}

func TestSeeder_EmptyRun(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	res, err := NewSeeder(db, 1).Run(Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Users)
}
