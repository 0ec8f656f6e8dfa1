package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Transactor runs fn with user and follow repositories bound to one
// database transaction. fn returning an error rolls everything back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(users UserRepository, follows FollowRepository) error) error
}

// GormTransactor implements Transactor on top of gorm transactions
type GormTransactor struct {
	db *gorm.DB
}

// NewGormTransactor creates a new GormTransactor
func NewGormTransactor(db *gorm.DB) *GormTransactor {
	return &GormTransactor{db: db}
}

func (t *GormTransactor) WithinTransaction(ctx context.Context, fn func(users UserRepository, follows FollowRepository) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewPostgresUserRepository(tx), NewPostgresFollowRepository(tx))
	})
}
