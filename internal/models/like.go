package models

import "time"

// Like records that a user liked a message. (user, message) is unique.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_like_user_message" json:"user_id"`
	MessageID uint      `gorm:"not null;uniqueIndex:idx_like_user_message;index" json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}
