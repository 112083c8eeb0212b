package service

import (
	"context"

	"threads/internal/identity"
)

type UploadService struct {
	identity *identity.Resolver
	uploads  UploadStore
}

func NewUploadService(ident *identity.Resolver, uploads UploadStore) *UploadService {
	return &UploadService{identity: ident, uploads: uploads}
}

// GenerateUploadURL returns a single-use URL the caller can POST a file to.
func (s *UploadService) GenerateUploadURL(ctx context.Context) (string, error) {
	user, err := s.identity.CurrentUserOrFail(ctx)
	if err != nil {
		return "", err
	}
	return s.uploads.IssueURL(ctx, user.ID)
}

// Accept stores an upload made against ticket and returns its storage id.
func (s *UploadService) Accept(ctx context.Context, ticket string, body []byte, contentType string) (string, error) {
	return s.uploads.Accept(ctx, ticket, body, contentType)
}
