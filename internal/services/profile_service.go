// Package services composes the user, follow and asset stores into the
// profile workflows exposed over HTTP.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/user-service/internal/apperr"
	"github.com/anonto42/nano-midea/user-service/internal/models"
	"github.com/anonto42/nano-midea/user-service/internal/repositories"
	"github.com/anonto42/nano-midea/user-service/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultCleanupTimeout = 30 * time.Second

// AssetStore is the object storage the profile service writes images to
type AssetStore interface {
	Upload(ctx context.Context, asset storage.Asset, folder string) (string, error)
	Delete(ctx context.Context, url string) error
	Owns(url string) bool
}

// ProfileService owns every invariant around users, follow edges and their
// images. Handlers should not talk to the repositories directly.
type ProfileService struct {
	users   repositories.UserRepository
	follows repositories.FollowRepository
	tx      repositories.Transactor
	assets  AssetStore
	orphans repositories.OrphanRepository
	logger  *zap.Logger

	cleanupTimeout time.Duration
	background     sync.WaitGroup
}

// Option configures a ProfileService
type Option func(*ProfileService)

// WithOrphanRepository records orphaned objects somewhere durable
func WithOrphanRepository(orphans repositories.OrphanRepository) Option {
	return func(s *ProfileService) {
		if orphans != nil {
			s.orphans = orphans
		}
	}
}

// WithCleanupTimeout bounds each background cleanup run
func WithCleanupTimeout(d time.Duration) Option {
	return func(s *ProfileService) {
		if d > 0 {
			s.cleanupTimeout = d
		}
	}
}

// NewProfileService creates a new ProfileService
func NewProfileService(
	users repositories.UserRepository,
	follows repositories.FollowRepository,
	tx repositories.Transactor,
	assets AssetStore,
	logger *zap.Logger,
	opts ...Option,
) *ProfileService {
	s := &ProfileService{
		users:          users,
		follows:        follows,
		tx:             tx,
		assets:         assets,
		orphans:        repositories.NopOrphanRepository{},
		logger:         logger,
		cleanupTimeout: defaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until background cleanups started so far have finished
func (s *ProfileService) Wait() {
	s.background.Wait()
}

// CreateUser stores a new profile under the caller-supplied id
func (s *ProfileService) CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: id is required", apperr.ErrValidation)
	}
	if req.Username == "" {
		return nil, fmt.Errorf("%w: username is required", apperr.ErrValidation)
	}

	if err := s.ensureUsernameFree(ctx, req.Username, uuid.Nil); err != nil {
		return nil, err
	}

	user := models.NewUser(req)
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created", zap.String("userId", user.ID.String()), zap.String("username", user.Username))
	return user, nil
}

// GetUserByID returns the user or apperr.ErrNotFound
func (s *ProfileService) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// GetUserByUsername looks a user up by exact username
func (s *ProfileService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.users.GetUserByUsername(ctx, username)
}

// UpdateUser applies the fields present in req to the user with the given id
func (s *ProfileService) UpdateUser(ctx context.Context, id uuid.UUID, req models.UpdateUserRequest) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyUpdate(ctx, user, req)
}

// UpdateUserByUsername is UpdateUser keyed by the current username
func (s *ProfileService) UpdateUserByUsername(ctx context.Context, username string, req models.UpdateUserRequest) (*models.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.applyUpdate(ctx, user, req)
}

func (s *ProfileService) applyUpdate(ctx context.Context, user *models.User, req models.UpdateUserRequest) (*models.User, error) {
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name == "" {
			return nil, fmt.Errorf("%w: username cannot be blank", apperr.ErrValidation)
		}
		if name != user.Username {
			if err := s.ensureUsernameFree(ctx, name, user.ID); err != nil {
				return nil, err
			}
		}
		req.Username = &name
	}

	user.ApplyUpdate(req)
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ensureUsernameFree fails with apperr.ErrConflict when a user other than
// owner holds username. The unique index still catches races.
func (s *ProfileService) ensureUsernameFree(ctx context.Context, username string, owner uuid.UUID) error {
	existing, err := s.users.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID == owner:
		return nil
	default:
		return fmt.Errorf("%w: username %q is already taken", apperr.ErrConflict, username)
	}
}

// DeleteUser removes the user and every follow edge touching it in one
// transaction. The user's images are deleted afterwards in the background.
func (s *ProfileService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	var (
		deleted *models.User
		edges   int64
	)
	err := s.tx.WithinTransaction(ctx, func(users repositories.UserRepository, follows repositories.FollowRepository) error {
		user, err := users.GetUserByID(ctx, id)
		if err != nil {
			return err
		}
		if edges, err = follows.DeleteAllForUser(ctx, id); err != nil {
			return fmt.Errorf("failed to delete follow edges: %w", err)
		}
		if err := users.DeleteUser(ctx, id); err != nil {
			return err
		}
		deleted = user
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("user deleted", zap.String("userId", id.String()), zap.Int64("followEdges", edges))

	var urls []string
	for _, slot := range []models.AssetSlot{models.AvatarSlot, models.CoverSlot} {
		if url := deleted.AssetURL(slot); url != nil && s.assets.Owns(*url) {
			urls = append(urls, *url)
		}
	}
	if len(urls) > 0 {
		s.cleanupInBackground(ctx, id, "delete user", urls...)
	}
	return nil
}

// SearchUsers returns users matching query, best match first
func (s *ProfileService) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	if strings.TrimSpace(query) == "" {
		return []models.User{}, nil
	}
	return s.users.SearchUsersRanked(ctx, query)
}
