package models

import (
	"time"

	"gorm.io/gorm"
)

// MessageKind is the derived role of a message in a conversation tree.
type MessageKind string

const (
	KindThread  MessageKind = "thread"
	KindComment MessageKind = "comment"
	KindReply   MessageKind = "reply"
)

// Message is the single entity behind threads, comments and replies. A nil
// ThreadID marks a root thread; otherwise ThreadID points at the parent.
type Message struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	MediaFiles   []string  `gorm:"serializer:json;type:text" json:"media_files"`
	WebsiteURL   string    `gorm:"size:2048" json:"website_url,omitempty"`
	ThreadID     *uint     `gorm:"index:idx_messages_parent_created,priority:1" json:"thread_id,omitempty"`
	LikeCount    int       `gorm:"not null;default:0" json:"like_count"`
	CommentCount int       `gorm:"not null;default:0" json:"comment_count"`
	RetweetCount int       `gorm:"not null;default:0" json:"retweet_count"`
	CreatedAt    time.Time `gorm:"index:idx_messages_parent_created,priority:2;index" json:"created_at"`

	Creator      *User       `gorm:"foreignKey:UserID" json:"creator,omitempty"`
	Kind         MessageKind `gorm:"-" json:"kind,omitempty"`
	IsLiked      bool        `gorm:"-" json:"is_liked"`
	RepliesCount *int        `gorm:"-" json:"replies_count,omitempty"`
}

// BeforeCreate pins created_at to UTC at microsecond precision so keyset
// cursors round-trip exactly on every supported database.
func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.CreatedAt = m.CreatedAt.UTC().Truncate(time.Microsecond)
	if m.MediaFiles == nil {
		m.MediaFiles = []string{}
	}
	return nil
}

// IsRoot reports whether the message starts a thread.
func (m *Message) IsRoot() bool {
	return m.ThreadID == nil
}

// KindOf derives a message's kind from its parent. A nil parent means a root.
func KindOf(parent *Message) MessageKind {
	switch {
	case parent == nil:
		return KindThread
	case parent.IsRoot():
		return KindComment
	default:
		return KindReply
	}
}

// ChildKind is the kind of the direct children of a message of kind k.
func ChildKind(k MessageKind) MessageKind {
	if k == KindThread {
		return KindComment
	}
	return KindReply
}
