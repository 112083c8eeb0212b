// Package identity maps an authenticated session onto a provisioned user.
package identity

import (
	"context"

	"threads/internal/middleware"
	"threads/internal/models"
)

// WithSubject returns a context carrying the session subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, middleware.SubjectKey, subject)
}

// SubjectFrom returns the session subject, or "" when the request is anonymous.
func SubjectFrom(ctx context.Context) string {
	sub, _ := ctx.Value(middleware.SubjectKey).(string)
	return sub
}

// UserLookup is the slice of the user repository the resolver needs.
type UserLookup interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
}

// Resolver turns session subjects into users.
type Resolver struct {
	users UserLookup
}

func NewResolver(users UserLookup) *Resolver {
	return &Resolver{users: users}
}

// CurrentUser returns the caller, or nil when there is no session or the
// subject has not been provisioned yet.
func (r *Resolver) CurrentUser(ctx context.Context) (*models.User, error) {
	sub := SubjectFrom(ctx)
	if sub == "" {
		return nil, nil
	}
	return r.users.GetByExternalID(ctx, sub)
}

// CurrentUserOrFail is CurrentUser for operations that require a caller.
func (r *Resolver) CurrentUserOrFail(ctx context.Context) (*models.User, error) {
	user, err := r.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		if SubjectFrom(ctx) == "" {
			return nil, models.NewUnauthenticatedError("Authentication required")
		}
		return nil, models.NewUnauthenticatedError("User not found")
	}
	return user, nil
}
