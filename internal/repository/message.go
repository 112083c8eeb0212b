package repository

import (
	"context"

	"threads/internal/models"
	"threads/internal/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository defines persistence operations for threads, comments
// and replies.
type MessageRepository interface {
	// Create inserts msg and, for a child, bumps the parent's comment_count
	// in the same transaction. It returns the parent (nil for a root).
	Create(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	ListRoots(ctx context.Context, opts pagination.Opts, authorID *uint) (pagination.Page[*models.Message], error)
	ListChildren(ctx context.Context, parentID uint, opts pagination.Opts) (pagination.Page[*models.Message], error)
	CountChildren(ctx context.Context, ids []uint) (map[uint]int, error)
	// Delete removes a message, its descendants and every like on them.
	Delete(ctx context.Context, id uint) (Purged, error)
}

// Purged reports what a cascading delete removed. Media holds the media
// references of the removed rows so the objects can be cleaned up after
// commit.
type Purged struct {
	Messages int
	Media    []string
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository returns a new MessageRepository implementation.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	var parent *models.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if msg.ThreadID != nil {
			var p models.Message
			if err := tx.First(&p, *msg.ThreadID).Error; err != nil {
				return notFoundOr(err, "Thread", *msg.ThreadID)
			}
			parent = &p
		}

		msg.LikeCount, msg.CommentCount, msg.RetweetCount = 0, 0, 0
		if err := tx.Omit(clause.Associations).Create(msg).Error; err != nil {
			return err
		}

		if parent != nil {
			if err := tx.Model(&models.Message{}).
				Where("id = ?", parent.ID).
				UpdateColumn("comment_count", gorm.Expr("comment_count + ?", 1)).Error; err != nil {
				return err
			}
			parent.CommentCount++
		}
		return nil
	})
	if err != nil {
		if models.ErrorCode(err) != "" {
			return nil, err
		}
		return nil, models.NewInternalError(err)
	}
	return parent, nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, notFoundOr(err, "Thread", id)
	}
	return &msg, nil
}

func (r *messageRepository) ListRoots(ctx context.Context, opts pagination.Opts, authorID *uint) (pagination.Page[*models.Message], error) {
	q := r.db.WithContext(ctx).Model(&models.Message{}).Where("thread_id IS NULL")
	if authorID != nil {
		q = q.Where("user_id = ?", *authorID)
	}
	return r.page(q, opts)
}

func (r *messageRepository) ListChildren(ctx context.Context, parentID uint, opts pagination.Opts) (pagination.Page[*models.Message], error) {
	q := r.db.WithContext(ctx).Model(&models.Message{}).Where("thread_id = ?", parentID)
	return r.page(q, opts)
}

func (r *messageRepository) page(q *gorm.DB, opts pagination.Opts) (pagination.Page[*models.Message], error) {
	opts = opts.Normalized()
	cursor, err := pagination.Decode(opts.Cursor)
	if err != nil {
		return pagination.Page[*models.Message]{}, err
	}

	var rows []*models.Message
	if err := newestFirst(q, cursor, opts.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[*models.Message]{}, models.NewInternalError(err)
	}
	return pagination.Build(rows, opts.Limit, messageCursor), nil
}

func (r *messageRepository) CountChildren(ctx context.Context, ids []uint) (map[uint]int, error) {
	out := make(map[uint]int, len(ids))
	for _, chunk := range chunks(dedupe(ids)) {
		var rows []struct {
			ThreadID uint
			N        int
		}
		if err := r.db.WithContext(ctx).Model(&models.Message{}).
			Select("thread_id, COUNT(*) AS n").
			Where("thread_id IN ?", chunk).
			Group("thread_id").
			Scan(&rows).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		for _, row := range rows {
			out[row.ThreadID] = row.N
		}
	}
	return out, nil
}

func (r *messageRepository) Delete(ctx context.Context, id uint) (Purged, error) {
	var purged Purged
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		if err := tx.Select("id", "thread_id").First(&msg, id).Error; err != nil {
			return notFoundOr(err, "Thread", id)
		}
		var err error
		purged, err = purgeSubtrees(tx, []models.Message{msg})
		return err
	})
	if err != nil {
		if models.ErrorCode(err) != "" {
			return Purged{}, err
		}
		return Purged{}, models.NewInternalError(err)
	}
	return purged, nil
}

// purgeSubtrees deletes roots and all of their descendants along with their
// likes. Parents outside the deleted set lose one comment per removed root.
// Descendants are gathered level by level from an explicit worklist.
func purgeSubtrees(tx *gorm.DB, roots []models.Message) (Purged, error) {
	if len(roots) == 0 {
		return Purged{}, nil
	}

	seen := make(map[uint]struct{}, len(roots))
	var all, frontier []uint
	for _, m := range roots {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		all = append(all, m.ID)
		frontier = append(frontier, m.ID)
	}

	for len(frontier) > 0 {
		var next []uint
		for _, chunk := range chunks(frontier) {
			var children []uint
			if err := tx.Model(&models.Message{}).Where("thread_id IN ?", chunk).Pluck("id", &children).Error; err != nil {
				return Purged{}, err
			}
			for _, c := range children {
				if _, ok := seen[c]; ok {
					continue
				}
				seen[c] = struct{}{}
				all = append(all, c)
				next = append(next, c)
			}
		}
		frontier = next
	}

	lost := map[uint]int{}
	for _, m := range roots {
		if m.ThreadID == nil {
			continue
		}
		if _, deleted := seen[*m.ThreadID]; deleted {
			continue
		}
		lost[*m.ThreadID]++
	}
	for parentID, n := range lost {
		if err := tx.Model(&models.Message{}).
			Where("id = ?", parentID).
			UpdateColumn("comment_count", decrementExpr("comment_count", n)).Error; err != nil {
			return Purged{}, err
		}
	}

	var media []string
	for _, chunk := range chunks(all) {
		var rows []models.Message
		if err := tx.Select("id", "media_files").Where("id IN ?", chunk).Find(&rows).Error; err != nil {
			return Purged{}, err
		}
		for _, m := range rows {
			media = append(media, m.MediaFiles...)
		}
		if err := tx.Where("message_id IN ?", chunk).Delete(&models.Like{}).Error; err != nil {
			return Purged{}, err
		}
		if err := tx.Where("id IN ?", chunk).Delete(&models.Message{}).Error; err != nil {
			return Purged{}, err
		}
	}
	return Purged{Messages: len(all), Media: media}, nil
}
