// Package testutils provides fixtures shared by the package tests.
package testutils

import (
	"fmt"
	"testing"

	"github.com/anonto42/nano-midea/user-service/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a private in-memory SQLite database with the service
// schema migrated. It is closed when the test ends.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	// a single connection keeps the in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&models.User{}, &models.Follow{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// NewUser returns an unsaved user with a random id
func NewUser(username string, bio string) *models.User {
	u := &models.User{ID: uuid.New(), Username: username}
	if bio != "" {
		u.Bio = &bio
	}
	return u
}

// MustCreateUser saves a user or fails the test
func MustCreateUser(t *testing.T, db *gorm.DB, username string, bio string) *models.User {
	t.Helper()
	u := NewUser(username, bio)
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("failed to create user %q: %v", username, err)
	}
	return u
}
