package service

import (
	"context"

	"threads/internal/models"
	"threads/internal/repository"
)

// presenter attaches the derived, per-viewer fields to stored rows.
type presenter struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	likes    repository.LikeRepository
	media    MediaResolver
}

func (p *presenter) user(ctx context.Context, u *models.User) *models.User {
	if u == nil {
		return nil
	}
	out := *u
	out.ImageURL = ""
	if u.ImageURL != "" {
		if resolved, ok := p.media.Resolve(ctx, u.ImageURL); ok {
			out.ImageURL = resolved
		}
	}
	return &out
}

func (p *presenter) userList(ctx context.Context, users []*models.User) []*models.User {
	out := make([]*models.User, len(users))
	for i, u := range users {
		out[i] = p.user(ctx, u)
	}
	return out
}

// enrich fills creator, resolved media, kind and is_liked on msgs. With
// withReplies it also counts each message's direct children. viewer may be nil.
func (p *presenter) enrich(ctx context.Context, viewer *models.User, msgs []*models.Message, kind models.MessageKind, withReplies bool) error {
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]uint, len(msgs))
	creatorIDs := make([]uint, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		creatorIDs[i] = m.UserID
	}

	creators, err := p.users.GetByIDs(ctx, creatorIDs)
	if err != nil {
		return err
	}
	presented := make(map[uint]*models.User, len(creators))
	for id, u := range creators {
		presented[id] = p.user(ctx, u)
	}

	liked := map[uint]bool{}
	if viewer != nil {
		if liked, err = p.likes.LikedMessageIDs(ctx, viewer.ID, ids); err != nil {
			return err
		}
	}

	var replies map[uint]int
	if withReplies {
		if replies, err = p.messages.CountChildren(ctx, ids); err != nil {
			return err
		}
	}

	for _, m := range msgs {
		m.Creator = presented[m.UserID]
		m.MediaFiles = p.media.ResolveAll(ctx, m.MediaFiles)
		m.Kind = kind
		m.IsLiked = liked[m.ID]
		if withReplies {
			n := replies[m.ID]
			m.RepliesCount = &n
		}
	}
	return nil
}

// kindOf derives the kind of a single message, loading its parent if needed.
func (p *presenter) kindOf(ctx context.Context, m *models.Message) (models.MessageKind, error) {
	if m.IsRoot() {
		return models.KindThread, nil
	}
	parent, err := p.messages.GetByID(ctx, *m.ThreadID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return models.KindComment, nil
		}
		return "", err
	}
	return models.KindOf(parent), nil
}

// childKind is the kind of the direct children of parent.
func childKind(parent *models.Message) models.MessageKind {
	if parent.IsRoot() {
		return models.KindComment
	}
	return models.KindReply
}
