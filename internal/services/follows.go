package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/nano-midea/user-service/internal/apperr"
	"github.com/anonto42/nano-midea/user-service/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Follow creates the edge followerID -> followingID
func (s *ProfileService) Follow(ctx context.Context, followerID, followingID uuid.UUID) error {
	if followerID == followingID {
		return fmt.Errorf("%w: a user cannot follow themselves", apperr.ErrSelfReference)
	}

	for _, id := range []uuid.UUID{followerID, followingID} {
		if _, err := s.users.GetUserByID(ctx, id); err != nil {
			return err
		}
	}

	following, err := s.follows.IsFollowing(ctx, followerID, followingID)
	if err != nil {
		return err
	}
	if following {
		return fmt.Errorf("%w: already following user %s", apperr.ErrConflict, followingID)
	}

	// A concurrent request may insert the same edge between the check and
	// here; the unique index reports it as a conflict too.
	if err := s.follows.CreateFollow(ctx, &models.Follow{FollowerID: followerID, FollowingID: followingID}); err != nil {
		return err
	}

	s.logger.Debug("follow created", zap.String("followerId", followerID.String()), zap.String("followingId", followingID.String()))
	return nil
}

// Unfollow removes the edge if it exists
func (s *ProfileService) Unfollow(ctx context.Context, followerID, followingID uuid.UUID) error {
	edge, err := s.follows.GetFollow(ctx, followerID, followingID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.follows.DeleteFollow(ctx, edge)
}

// IsFollowing reports whether the follow edge exists
func (s *ProfileService) IsFollowing(ctx context.Context, followerID, followingID uuid.UUID) (bool, error) {
	return s.follows.IsFollowing(ctx, followerID, followingID)
}

// GetFollowers lists users following userID, newest first
func (s *ProfileService) GetFollowers(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	return s.follows.GetFollowers(ctx, userID)
}

// GetFollowing lists users userID follows, newest first
func (s *ProfileService) GetFollowing(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	return s.follows.GetFollowing(ctx, userID)
}

// GetFollowersCount is len(GetFollowers) without loading the users
func (s *ProfileService) GetFollowersCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.follows.GetFollowersCount(ctx, userID)
}

// GetFollowingCount is len(GetFollowing) without loading the users
func (s *ProfileService) GetFollowingCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.follows.GetFollowingCount(ctx, userID)
}
