// Package models contains data structures for the application's domain models.
package models

import (
	"strings"
	"time"
)

// User is a registered person, provisioned from the identity provider.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ExternalID     string    `gorm:"uniqueIndex;size:191;not null" json:"external_id"`
	Email          string    `gorm:"size:320;not null" json:"email"`
	FirstName      string    `gorm:"size:100" json:"first_name"`
	LastName       string    `gorm:"size:100" json:"last_name"`
	Username       string    `gorm:"uniqueIndex;size:191;not null" json:"username"`
	Bio            string    `gorm:"type:text" json:"bio"`
	WebsiteURL     string    `gorm:"size:2048" json:"website_url"`
	ImageURL       string    `gorm:"size:2048" json:"image_url"`
	FollowersCount int       `gorm:"not null;default:0" json:"followers_count"`
	PushToken      *string   `gorm:"size:255" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DefaultUsername derives a username from the person's names when the
// provider sends none.
func DefaultUsername(username, firstName, lastName string) string {
	if u := strings.TrimSpace(username); u != "" {
		return u
	}
	return strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
}

// HasPushToken reports whether the user registered a device for push delivery.
func (u *User) HasPushToken() bool {
	return u != nil && u.PushToken != nil && *u.PushToken != ""
}
