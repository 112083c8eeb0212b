// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"threads/internal/database"
	"threads/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens an isolated, migrated in-memory database. The pool is
// limited to one connection so every query sees the same memory database.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.NewString(), "-", ""))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// CreateUser persists a user with unique defaults; overrides run before insert.
func CreateUser(t *testing.T, db *gorm.DB, overrides ...func(*models.User)) *models.User {
	t.Helper()
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	u := &models.User{
		ExternalID: "user_" + suffix,
		Email:      suffix + "@example.com",
		FirstName:  "Test",
		LastName:   suffix,
		Username:   "tester_" + suffix,
	}
	for _, o := range overrides {
		o(u)
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// CreateMessage persists a message row directly, bypassing counter upkeep.
func CreateMessage(t *testing.T, db *gorm.DB, userID uint, parentID *uint, overrides ...func(*models.Message)) *models.Message {
	t.Helper()
	m := &models.Message{UserID: userID, ThreadID: parentID, Content: "message " + uuid.NewString()[:8]}
	for _, o := range overrides {
		o(m)
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("create message: %v", err)
	}
	return m
}
