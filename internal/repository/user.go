package repository

import (
	"context"
	"errors"
	"strings"

	"threads/internal/cache"
	"threads/internal/models"

	"gorm.io/gorm"
)

// ProfilePatch carries optional profile fields; nil leaves a field unchanged.
// An empty PushToken unregisters the device.
type ProfilePatch struct {
	Bio        *string
	WebsiteURL *string
	PushToken  *string
	ImageURL   *string
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Bio == nil && p.WebsiteURL == nil && p.PushToken == nil && p.ImageURL == nil
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []uint) (map[uint]*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Search(ctx context.Context, query string, limit int) ([]*models.User, error)
	UpdateProfile(ctx context.Context, id uint, patch ProfilePatch) (*models.User, error)
	Purge(ctx context.Context, id uint) (Purged, error)
}

type userRepository struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewUserRepository returns a new UserRepository implementation. c may be nil.
func NewUserRepository(db *gorm.DB, c *cache.Cache) UserRepository {
	return &userRepository{db: db, cache: c}
}

// cachedUser keeps the push token, which the public JSON shape hides.
type cachedUser struct {
	models.User
	PushToken *string `json:"push_token"`
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("User already exists", err)
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFoundOr(err, "User", id)
	}
	return &user, nil
}

var errNoSuchSubject = errors.New("no user for subject")

// GetByExternalID returns (nil, nil) when no user is provisioned for the subject.
func (r *userRepository) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var cached cachedUser
	err := r.cache.Aside(ctx, cache.UserSubjectKey(externalID), &cached, cache.UserTTL, func() error {
		var user models.User
		if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNoSuchSubject
			}
			return models.NewInternalError(err)
		}
		cached = cachedUser{User: user, PushToken: user.PushToken}
		return nil
	})
	if errors.Is(err, errNoSuchSubject) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user := cached.User
	user.PushToken = cached.PushToken
	return &user, nil
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []uint) (map[uint]*models.User, error) {
	out := make(map[uint]*models.User, len(ids))
	for _, chunk := range chunks(dedupe(ids)) {
		var users []*models.User
		if err := r.db.WithContext(ctx).Where("id IN ?", chunk).Find(&users).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		for _, u := range users {
			out[u.ID] = u
		}
	}
	return out, nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	var users []*models.User
	if err := r.db.WithContext(ctx).Order("id ASC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search matches usernames containing query, case-insensitively.
func (r *userRepository) Search(ctx context.Context, query string, limit int) ([]*models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*models.User{}, nil
	}
	pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"

	var users []*models.User
	if err := r.db.WithContext(ctx).
		Where(`LOWER(username) LIKE ? ESCAPE '\'`, pattern).
		Order("username ASC").
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id uint, patch ProfilePatch) (*models.User, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return user, nil
	}

	updates := map[string]any{}
	if patch.Bio != nil {
		updates["bio"] = *patch.Bio
	}
	if patch.WebsiteURL != nil {
		updates["website_url"] = *patch.WebsiteURL
	}
	if patch.ImageURL != nil {
		updates["image_url"] = *patch.ImageURL
	}
	if patch.PushToken != nil {
		if *patch.PushToken == "" {
			updates["push_token"] = nil
		} else {
			updates["push_token"] = *patch.PushToken
		}
	}

	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	r.cache.Invalidate(ctx, cache.UserSubjectKey(user.ExternalID))
	return r.GetByID(ctx, id)
}

// Purge removes a user with everything they own: their likes (with counter
// upkeep) and every message they authored together with its descendants.
// The user's profile image is reported among the purged media.
func (r *userRepository) Purge(ctx context.Context, id uint) (Purged, error) {
	var user models.User
	var purged Purged
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			return notFoundOr(err, "User", id)
		}

		liked := tx.Model(&models.Like{}).Select("message_id").Where("user_id = ?", id)
		if err := tx.Model(&models.Message{}).
			Where("id IN (?)", liked).
			UpdateColumn("like_count", decrementExpr("like_count", 1)).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}

		var authored []models.Message
		if err := tx.Select("id", "thread_id").Where("user_id = ?", id).Find(&authored).Error; err != nil {
			return err
		}
		var err error
		if purged, err = purgeSubtrees(tx, authored); err != nil {
			return err
		}
		if user.ImageURL != "" {
			purged.Media = append(purged.Media, user.ImageURL)
		}

		return tx.Delete(&models.User{}, id).Error
	})
	if err != nil {
		if models.ErrorCode(err) != "" {
			return Purged{}, err
		}
		return Purged{}, models.NewInternalError(err)
	}
	r.cache.Invalidate(ctx, cache.UserSubjectKey(user.ExternalID))
	return purged, nil
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
