package repository

import (
	"context"

	"threads/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LikeRepository defines persistence operations for likes.
type LikeRepository interface {
	// Toggle flips userID's like on messageID and reports the new state.
	Toggle(ctx context.Context, messageID, userID uint) (bool, error)
	IsLiked(ctx context.Context, messageID, userID uint) (bool, error)
	// LikedMessageIDs returns the subset of messageIDs liked by userID.
	LikedMessageIDs(ctx context.Context, userID uint, messageIDs []uint) (map[uint]bool, error)
}

type likeRepository struct {
	db *gorm.DB
}

// NewLikeRepository returns a new LikeRepository implementation.
func NewLikeRepository(db *gorm.DB) LikeRepository {
	return &likeRepository{db: db}
}

// Toggle keeps like_count in step with the like rows: the counter moves
// only when a row was actually removed or inserted, so concurrent toggles
// cannot double count.
func (r *likeRepository) Toggle(ctx context.Context, messageID, userID uint) (bool, error) {
	liked := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.Message{}).Where("id = ?", messageID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return models.NewNotFoundError("Thread", messageID)
		}

		res := tx.Where("user_id = ? AND message_id = ?", userID, messageID).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return tx.Model(&models.Message{}).
				Where("id = ?", messageID).
				UpdateColumn("like_count", decrementExpr("like_count", 1)).Error
		}

		liked = true
		res = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "message_id"}},
			DoNothing: true,
		}).Create(&models.Like{UserID: userID, MessageID: messageID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&models.Message{}).
			Where("id = ?", messageID).
			UpdateColumn("like_count", gorm.Expr("like_count + ?", 1)).Error
	})
	if err != nil {
		if models.ErrorCode(err) != "" {
			return false, err
		}
		return false, models.NewInternalError(err)
	}
	return liked, nil
}

func (r *likeRepository) IsLiked(ctx context.Context, messageID, userID uint) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Count(&n).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

func (r *likeRepository) LikedMessageIDs(ctx context.Context, userID uint, messageIDs []uint) (map[uint]bool, error) {
	out := make(map[uint]bool, len(messageIDs))
	for _, chunk := range chunks(dedupe(messageIDs)) {
		var ids []uint
		if err := r.db.WithContext(ctx).Model(&models.Like{}).
			Where("user_id = ? AND message_id IN ?", userID, chunk).
			Pluck("message_id", &ids).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		for _, id := range ids {
			out[id] = true
		}
	}
	return out, nil
}
