package repositories

import (
	"context"
	"fmt"

	"github.com/anonto42/nano-midea/user-service/internal/apperr"
	"github.com/anonto42/nano-midea/user-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	SearchUsers(ctx context.Context, query string) ([]models.User, error)
	SearchUsersRanked(ctx context.Context, query string) ([]models.User, error)
}

// PostgresUserRepository implements UserRepository for PostgreSQL
type PostgresUserRepository struct {
	db *gorm.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository
func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// Both search queries share this filter: username or bio contains the query.
const searchFilter = `LOWER(username) LIKE ? ESCAPE '\' OR LOWER(COALESCE(bio, '')) LIKE ? ESCAPE '\'`

// searchRank orders matches by tier (exact username, username prefix,
// anywhere) and then by username and id so equal tiers come back stable.
const searchRank = `CASE
	WHEN LOWER(username) = ? THEN 1
	WHEN LOWER(username) LIKE ? ESCAPE '\' THEN 2
	WHEN LOWER(username) LIKE ? ESCAPE '\' OR LOWER(COALESCE(bio, '')) LIKE ? ESCAPE '\' THEN 3
	ELSE 4
END, LOWER(username) ASC, id ASC`

// CreateUser inserts a new user; a taken username or id yields apperr.ErrConflict
func (r *PostgresUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	return translateError(err, fmt.Sprintf("user %q", user.Username))
}

// GetUserByID retrieves a user by ID
func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translateError(err, fmt.Sprintf("user %s", id))
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by exact username
func (r *PostgresUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, translateError(err, fmt.Sprintf("user %q", username))
	}
	return &user, nil
}

// UpdateUser writes every column of an existing user. A user deleted since
// it was read is not recreated; that is reported as not found.
func (r *PostgresUserRepository) UpdateUser(ctx context.Context, user *models.User) error {
	res := r.db.WithContext(ctx).Model(user).Select("*").Updates(user)
	if res.Error != nil {
		return translateError(res.Error, fmt.Sprintf("user %q", user.Username))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: user %s", apperr.ErrNotFound, user.ID)
	}
	return nil
}

// DeleteUser deletes a user by ID. Follow edges are not touched here.
func (r *PostgresUserRepository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
	}
	return nil
}

// SearchUsers returns users whose username or bio contains query, in no
// particular order. A blank query returns no users without hitting the db.
func (r *PostgresUserRepository) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	q := normalizeQuery(query)
	if q == "" {
		return []models.User{}, nil
	}
	contains := "%" + escapeLike(q) + "%"

	users := []models.User{}
	if err := r.db.WithContext(ctx).Where(searchFilter, contains, contains).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// SearchUsersRanked is SearchUsers ordered by relevance tier
func (r *PostgresUserRepository) SearchUsersRanked(ctx context.Context, query string) ([]models.User, error) {
	q := normalizeQuery(query)
	if q == "" {
		return []models.User{}, nil
	}
	escaped := escapeLike(q)
	contains := "%" + escaped + "%"
	prefix := escaped + "%"

	users := []models.User{}
	err := r.db.WithContext(ctx).
		Where(searchFilter, contains, contains).
		Clauses(clause.OrderBy{Expression: clause.Expr{
			SQL:                searchRank,
			Vars:               []interface{}{q, prefix, contains, contains},
			WithoutParentheses: true,
		}}).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
