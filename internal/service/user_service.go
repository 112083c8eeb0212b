package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"threads/internal/identity"
	"threads/internal/middleware"
	"threads/internal/models"
	"threads/internal/observability"
	"threads/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultUserPageSize = 20
	maxUserPageSize     = 100
	searchResultLimit   = 20
	maxBioLen           = 500
	maxPushTokenLen     = 255
)

type UserService struct {
	identity *identity.Resolver
	users    repository.UserRepository
	present  *presenter
	sweeper  MediaSweeper
}

// UpdateUserInput carries optional profile changes; nil fields are untouched.
type UpdateUserInput struct {
	Bio        *string
	WebsiteURL *string
	PushToken  *string
	ImageURL   *string
}

// IdentityUser is the profile the identity provider sends when a person signs up.
type IdentityUser struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	Username   string
	ImageURL   string
}

// NewUserService wires the user operations. sweeper may be nil.
func NewUserService(ident *identity.Resolver, users repository.UserRepository, media MediaResolver, sweeper MediaSweeper) *UserService {
	return &UserService{
		identity: ident,
		users:    users,
		present:  &presenter{users: users, media: media},
		sweeper:  sweeper,
	}
}

// Me returns the caller's own profile.
func (s *UserService) Me(ctx context.Context) (*models.User, error) {
	user, err := s.identity.CurrentUserOrFail(ctx)
	if err != nil {
		return nil, err
	}
	return s.present.user(ctx, user), nil
}

func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.present.user(ctx, user), nil
}

func (s *UserService) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", externalID)
	}
	return s.present.user(ctx, user), nil
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 {
		limit = defaultUserPageSize
	}
	if limit > maxUserPageSize {
		limit = maxUserPageSize
	}
	if offset < 0 {
		offset = 0
	}
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.present.userList(ctx, users), nil
}

// Search matches usernames containing query; an empty query matches nobody.
func (s *UserService) Search(ctx context.Context, query string) ([]*models.User, error) {
	users, err := s.users.Search(ctx, query, searchResultLimit)
	if err != nil {
		return nil, err
	}
	return s.present.userList(ctx, users), nil
}

func validateProfile(in *UpdateUserInput) error {
	if in.Bio != nil {
		bio := strings.TrimSpace(*in.Bio)
		if utf8.RuneCountInString(bio) > maxBioLen {
			return models.NewValidationError("Bio too long (max 500 characters)")
		}
		in.Bio = &bio
	}
	if in.WebsiteURL != nil {
		site := strings.TrimSpace(*in.WebsiteURL)
		if site != "" {
			u, err := url.ParseRequestURI(site)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return models.NewValidationError("website_url must be a valid http(s) URL")
			}
		}
		in.WebsiteURL = &site
	}
	if in.PushToken != nil && len(*in.PushToken) > maxPushTokenLen {
		return models.NewValidationError("push_token too long")
	}
	if in.ImageURL != nil {
		ref := strings.TrimSpace(*in.ImageURL)
		in.ImageURL = &ref
	}
	return nil
}

// Update edits the caller's own profile. Image references may be storage
// ids returned by an upload or absolute URLs. A replaced stored image is
// deleted.
func (s *UserService) Update(ctx context.Context, id uint, in UpdateUserInput) (user *models.User, err error) {
	span, ctx := observability.NewSpan(ctx, "UserService.Update", attribute.Int64("user.id", int64(id)))
	defer func() { endSpan(span, err) }()

	caller, err := s.identity.CurrentUserOrFail(ctx)
	if err != nil {
		return nil, err
	}
	if caller.ID != id {
		return nil, models.NewForbiddenError("You can only update your own profile")
	}
	if err = validateProfile(&in); err != nil {
		return nil, err
	}

	user, err = s.users.UpdateProfile(ctx, id, repository.ProfilePatch{
		Bio:        in.Bio,
		WebsiteURL: in.WebsiteURL,
		PushToken:  in.PushToken,
		ImageURL:   in.ImageURL,
	})
	if err != nil {
		return nil, err
	}
	if in.ImageURL != nil && caller.ImageURL != *in.ImageURL {
		sweep(ctx, s.sweeper, []string{caller.ImageURL})
	}
	return s.present.user(ctx, user), nil
}

// Provision creates the user for a newly signed-up identity. Replayed events
// return the existing user with created=false.
func (s *UserService) Provision(ctx context.Context, in IdentityUser) (*models.User, bool, error) {
	if strings.TrimSpace(in.ExternalID) == "" {
		return nil, false, models.NewValidationError("External id is required")
	}

	existing, err := s.users.GetByExternalID(ctx, in.ExternalID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	username := models.DefaultUsername(in.Username, in.FirstName, in.LastName)
	if username == "" {
		username = in.ExternalID
	}
	user := &models.User{
		ExternalID: in.ExternalID,
		Email:      in.Email,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Username:   username,
		ImageURL:   in.ImageURL,
	}

	err = s.users.Create(ctx, user)
	if models.IsCode(err, models.CodeConflict) {
		// Either the same subject raced us or the username is taken.
		if existing, lookupErr := s.users.GetByExternalID(ctx, in.ExternalID); lookupErr == nil && existing != nil {
			return existing, false, nil
		}
		user.ID = 0
		user.Username = username + "_" + subjectSuffix(in.ExternalID)
		err = s.users.Create(ctx, user)
	}
	if err != nil {
		return nil, false, err
	}

	middleware.Logger.InfoContext(ctx, "user provisioned",
		slog.Uint64("user_id", uint64(user.ID)), slog.String("external_id", user.ExternalID))
	return user, true, nil
}

func subjectSuffix(externalID string) string {
	const n = 6
	if len(externalID) <= n {
		return externalID
	}
	return externalID[len(externalID)-n:]
}

// Remove deletes the user behind externalID with everything they authored.
// It reports false when no such user exists.
func (s *UserService) Remove(ctx context.Context, externalID string) (removed bool, err error) {
	span, ctx := observability.NewSpan(ctx, "UserService.Remove")
	defer func() { endSpan(span, err) }()

	user, err := s.users.GetByExternalID(ctx, externalID)
	if err != nil || user == nil {
		return false, err
	}
	purged, err := s.users.Purge(ctx, user.ID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	observability.MessagesDeleted.Add(float64(purged.Messages))
	sweep(ctx, s.sweeper, purged.Media)
	middleware.Logger.InfoContext(ctx, "user removed",
		slog.Uint64("user_id", uint64(user.ID)), slog.Int("messages_removed", purged.Messages))
	return true, nil
}
