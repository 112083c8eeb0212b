package cache

import (
	"fmt"
	"time"
)

const (
	UserSubjectKeyPrefix = "user:sub:%s"
	MediaURLKeyPrefix    = "media:url:%s"
	UploadTicketPrefix   = "upload:ticket:%s"
)

const (
	UserTTL = 5 * time.Minute
)

func UserSubjectKey(subject string) string {
	return fmt.Sprintf(UserSubjectKeyPrefix, subject)
}

func MediaURLKey(storageID string) string {
	return fmt.Sprintf(MediaURLKeyPrefix, storageID)
}

func UploadTicketKey(ticket string) string {
	return fmt.Sprintf(UploadTicketPrefix, ticket)
}

// MediaURLTTL keeps cached URLs well inside their signed validity window.
func MediaURLTTL(expiry time.Duration) time.Duration {
	ttl := expiry / 2
	if ttl <= 0 {
		return time.Minute
	}
	return ttl
}
