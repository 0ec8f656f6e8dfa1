package services

import (
	"context"
	"fmt"
	"time"

	"github.com/anonto42/nano-midea/user-service/internal/apperr"
	"github.com/anonto42/nano-midea/user-service/internal/models"
	"github.com/anonto42/nano-midea/user-service/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (s *ProfileService) UploadAvatar(ctx context.Context, id uuid.UUID, asset storage.Asset) (*models.User, error) {
	return s.uploadAsset(ctx, id, models.AvatarSlot, asset)
}

func (s *ProfileService) UploadCoverImage(ctx context.Context, id uuid.UUID, asset storage.Asset) (*models.User, error) {
	return s.uploadAsset(ctx, id, models.CoverSlot, asset)
}

func (s *ProfileService) DeleteAvatar(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.deleteAsset(ctx, id, models.AvatarSlot)
}

func (s *ProfileService) DeleteCoverImage(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.deleteAsset(ctx, id, models.CoverSlot)
}

// uploadAsset stores the file and points slot at it. The user is looked up
// first so a bad id never leaves an object behind.
func (s *ProfileService) uploadAsset(ctx context.Context, id uuid.UUID, slot models.AssetSlot, asset storage.Asset) (*models.User, error) {
	if asset.Body == nil {
		return nil, fmt.Errorf("%w: no file provided", apperr.ErrInvalidAsset)
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	op := "upload " + string(slot)
	url, err := s.assets.Upload(ctx, asset, slot.Folder())
	if err != nil {
		s.logger.Warn("asset upload failed",
			zap.String("userId", id.String()),
			zap.String("operation", op),
			zap.Error(err),
		)
		return nil, err
	}

	previous := user.AssetURL(slot)
	user.SetAssetURL(slot, &url)

	if err := s.users.UpdateUser(ctx, user); err != nil {
		s.logger.Error("uploaded asset is orphaned",
			zap.String("userId", id.String()),
			zap.String("operation", op),
			zap.String("url", url),
			zap.Error(err),
		)
		s.recordOrphan(ctx, id, op, url, err)
		s.cleanupInBackground(ctx, id, op, url)
		return nil, err
	}

	if previous != nil && *previous != url && s.assets.Owns(*previous) {
		s.cleanupInBackground(ctx, id, "replace "+string(slot), *previous)
	}
	return user, nil
}

// deleteAsset clears slot. An empty slot is a no-op; the object is removed
// before the record so a storage failure leaves the user unchanged.
func (s *ProfileService) deleteAsset(ctx context.Context, id uuid.UUID, slot models.AssetSlot) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	current := user.AssetURL(slot)
	if current == nil {
		return user, nil
	}

	if err := s.assets.Delete(ctx, *current); err != nil {
		s.logger.Error("asset delete failed",
			zap.String("userId", id.String()),
			zap.String("operation", "delete "+string(slot)),
			zap.String("url", *current),
			zap.Error(err),
		)
		return nil, err
	}

	user.SetAssetURL(slot, nil)
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *ProfileService) recordOrphan(ctx context.Context, userID uuid.UUID, op, url string, cause error) {
	orphan := &models.OrphanedAsset{
		UserID:    userID.String(),
		Operation: op,
		URL:       url,
		Reason:    cause.Error(),
		CreatedAt: time.Now(),
	}
	if err := s.orphans.RecordOrphan(context.WithoutCancel(ctx), orphan); err != nil {
		s.logger.Warn("failed to record orphaned asset", zap.String("url", url), zap.Error(err))
	}
}

// cleanupInBackground deletes urls concurrently without holding up the
// caller. Failures are logged and left for the orphan ledger.
func (s *ProfileService) cleanupInBackground(ctx context.Context, userID uuid.UUID, op string, urls ...string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cleanupTimeout)

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer cancel()

		var (
			g    errgroup.Group
			errs = make([]error, len(urls))
		)
		for i, url := range urls {
			g.Go(func() error {
				if err := s.assets.Delete(ctx, url); err != nil {
					errs[i] = fmt.Errorf("%s: %w", url, err)
					return nil
				}
				if err := s.orphans.MarkCleanedUp(ctx, url); err != nil {
					s.logger.Debug("failed to mark asset cleaned up", zap.String("url", url), zap.Error(err))
				}
				return nil
			})
		}
		_ = g.Wait()

		if err := multierr.Combine(errs...); err != nil {
			s.logger.Warn("asset cleanup failed",
				zap.String("userId", userID.String()),
				zap.String("operation", op),
				zap.Strings("urls", urls),
				zap.Error(err),
			)
			return
		}
		s.logger.Debug("asset cleanup finished",
			zap.String("userId", userID.String()),
			zap.String("operation", op),
			zap.Int("count", len(urls)),
		)
	}()
}
