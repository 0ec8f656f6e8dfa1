package repositories

import (
	"context"
	"fmt"

	"github.com/anonto42/nano-midea/user-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository defines the interface for follow data operations
type FollowRepository interface {
	CreateFollow(ctx context.Context, follow *models.Follow) error
	GetFollow(ctx context.Context, followerID, followingID uuid.UUID) (*models.Follow, error)
	DeleteFollow(ctx context.Context, follow *models.Follow) error
	DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	IsFollowing(ctx context.Context, followerID, followingID uuid.UUID) (bool, error)
	GetFollowers(ctx context.Context, userID uuid.UUID) ([]models.User, error)
	GetFollowing(ctx context.Context, userID uuid.UUID) ([]models.User, error)
	GetFollowersCount(ctx context.Context, userID uuid.UUID) (int64, error)
	GetFollowingCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

// PostgresFollowRepository implements FollowRepository for PostgreSQL
type PostgresFollowRepository struct {
	db *gorm.DB
}

// NewPostgresFollowRepository creates a new PostgresFollowRepository
func NewPostgresFollowRepository(db *gorm.DB) *PostgresFollowRepository {
	return &PostgresFollowRepository{db: db}
}

// CreateFollow inserts the edge. The unique index on the pair turns a
// concurrent duplicate into apperr.ErrConflict.
func (r *PostgresFollowRepository) CreateFollow(ctx context.Context, follow *models.Follow) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(follow).Error
	return translateError(err, edgeSubject(follow.FollowerID, follow.FollowingID))
}

func (r *PostgresFollowRepository) GetFollow(ctx context.Context, followerID, followingID uuid.UUID) (*models.Follow, error) {
	var follow models.Follow
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		First(&follow).Error
	if err != nil {
		return nil, translateError(err, edgeSubject(followerID, followingID))
	}
	return &follow, nil
}

func (r *PostgresFollowRepository) DeleteFollow(ctx context.Context, follow *models.Follow) error {
	return r.db.WithContext(ctx).Delete(&models.Follow{}, "id = ?", follow.ID).Error
}

// DeleteAllForUser removes every edge where userID is either endpoint
func (r *PostgresFollowRepository) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? OR following_id = ?", userID, userID).
		Delete(&models.Follow{})
	return res.RowsAffected, res.Error
}

func (r *PostgresFollowRepository) IsFollowing(ctx context.Context, followerID, followingID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).Where("follower_id = ? AND following_id = ?", followerID, followingID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetFollowers lists the users following userID, newest edge first
func (r *PostgresFollowRepository) GetFollowers(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	users := []models.User{}
	err := r.db.WithContext(ctx).
		Select("users.*").
		Joins("JOIN follows ON follows.follower_id = users.id").
		Where("follows.following_id = ?", userID).
		Order("follows.created_at DESC, users.id ASC").
		Find(&users).Error
	return users, err
}

// GetFollowing lists the users userID follows, newest edge first
func (r *PostgresFollowRepository) GetFollowing(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	users := []models.User{}
	err := r.db.WithContext(ctx).
		Select("users.*").
		Joins("JOIN follows ON follows.following_id = users.id").
		Where("follows.follower_id = ?", userID).
		Order("follows.created_at DESC, users.id ASC").
		Find(&users).Error
	return users, err
}

func (r *PostgresFollowRepository) GetFollowersCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Follow{}).Where("following_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *PostgresFollowRepository) GetFollowingCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Follow{}).Where("follower_id = ?", userID).Count(&count).Error
	return count, err
}

func edgeSubject(followerID, followingID uuid.UUID) string {
	return fmt.Sprintf("follow %s -> %s", followerID, followingID)
}
