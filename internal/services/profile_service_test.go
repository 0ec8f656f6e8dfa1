package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/user-service/internal/apperr"
	"github.com/anonto42/nano-midea/user-service/internal/models"
	"github.com/anonto42/nano-midea/user-service/internal/repositories"
	"github.com/anonto42/nano-midea/user-service/internal/storage"
	"github.com/anonto42/nano-midea/user-service/internal/testutils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const ownedPrefix = "http://storage.local/bucket/"

// fakeAssets is an in-memory AssetStore
type fakeAssets struct {
	mu      sync.Mutex
	seq     int
	objects map[string]bool
	deletes []string

	uploadErr error
	deleteErr error

	// beforeUpload runs at the start of Upload, outside the lock
	beforeUpload func()
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{objects: map[string]bool{}}
}

func (f *fakeAssets) Upload(_ context.Context, asset storage.Asset, folder string) (string, error) {
	if f.beforeUpload != nil {
		f.beforeUpload()
	}
	data, _ := io.ReadAll(asset.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	if len(data) == 0 || !strings.HasPrefix(asset.ContentType, "image/") {
		return "", apperr.ErrInvalidAsset
	}
	f.seq++
	url := ownedPrefix + folder + "/" + strings.Repeat("x", f.seq) + ".png"
	f.objects[url] = true
	return url, nil
}

func (f *fakeAssets) Delete(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Owns(url) {
		return nil
	}
	f.deletes = append(f.deletes, url)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, url)
	return nil
}

func (f *fakeAssets) Owns(url string) bool {
	return strings.HasPrefix(url, ownedPrefix) && len(url) > len(ownedPrefix)
}

func (f *fakeAssets) has(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[url]
}

func (f *fakeAssets) deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

// recordingOrphans keeps orphan entries in memory
type recordingOrphans struct {
	mu      sync.Mutex
	entries []models.OrphanedAsset
	cleaned []string
}

func (r *recordingOrphans) RecordOrphan(_ context.Context, orphan *models.OrphanedAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *orphan)
	return nil
}

func (r *recordingOrphans) MarkCleanedUp(_ context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleaned = append(r.cleaned, url)
	return nil
}

// failingUpdates makes UpdateUser fail while everything else hits the db
type failingUpdates struct {
	repositories.UserRepository
	err error
}

func (f failingUpdates) UpdateUser(context.Context, *models.User) error {
	return f.err
}

type fixture struct {
	db      *gorm.DB
	svc     *ProfileService
	assets  *fakeAssets
	orphans *recordingOrphans
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutils.NewTestDB(t)
	f := &fixture{db: db, assets: newFakeAssets(), orphans: &recordingOrphans{}}
	f.svc = f.build(repositories.NewPostgresUserRepository(db))
	return f
}

func (f *fixture) build(users repositories.UserRepository) *ProfileService {
	return NewProfileService(
		users,
		repositories.NewPostgresFollowRepository(f.db),
		repositories.NewGormTransactor(f.db),
		f.assets,
		zap.NewNop(),
		WithOrphanRepository(f.orphans),
		WithCleanupTimeout(time.Second),
	)
}

func pngAsset() storage.Asset {
	return storage.Asset{Body: strings.NewReader("\x89PNG\r\n\x1a\n"), ContentType: "image/png", Filename: "me.png"}
}

func strPtr(s string) *string { return &s }

func TestProfileService_CreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.CreateUser(ctx, models.CreateUserRequest{ID: uuid.New(), Username: "  alice ", Bio: strPtr("hi")})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	require.NotNil(t, user.Bio)
	assert.Equal(t, "hi", *user.Bio)

	t.Run("duplicate username is a conflict", func(t *testing.T) {
		_, err := f.svc.CreateUser(ctx, models.CreateUserRequest{ID: uuid.New(), Username: "alice"})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("duplicate id is a conflict", func(t *testing.T) {
		_, err := f.svc.CreateUser(ctx, models.CreateUserRequest{ID: user.ID, Username: "alice2"})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("blank username and nil id are rejected", func(t *testing.T) {
		_, err := f.svc.CreateUser(ctx, models.CreateUserRequest{ID: uuid.New(), Username: "   "})
		assert.ErrorIs(t, err, apperr.ErrValidation)

		_, err = f.svc.CreateUser(ctx, models.CreateUserRequest{Username: "bob"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestProfileService_UpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := testutils.MustCreateUser(t, f.db, "alice", "old bio")
	testutils.MustCreateUser(t, f.db, "bob", "")

	t.Run("only present fields change", func(t *testing.T) {
		got, err := f.svc.UpdateUser(ctx, alice.ID, models.UpdateUserRequest{FirstName: strPtr("Alice")})
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
		require.NotNil(t, got.FirstName)
		assert.Equal(t, "Alice", *got.FirstName)
		require.NotNil(t, got.Bio)
		assert.Equal(t, "old bio", *got.Bio)
	})

	t.Run("empty bio clears it", func(t *testing.T) {
		_, err := f.svc.UpdateUser(ctx, alice.ID, models.UpdateUserRequest{Bio: strPtr("")})
		require.NoError(t, err)

		stored, err := f.svc.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.Bio)
	})

	t.Run("renaming onto another user is a conflict", func(t *testing.T) {
		_, err := f.svc.UpdateUser(ctx, alice.ID, models.UpdateUserRequest{Username: strPtr("bob")})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("keeping the same username is fine", func(t *testing.T) {
		_, err := f.svc.UpdateUser(ctx, alice.ID, models.UpdateUserRequest{Username: strPtr("alice")})
		assert.NoError(t, err)
	})

	t.Run("blank username is rejected", func(t *testing.T) {
		_, err := f.svc.UpdateUser(ctx, alice.ID, models.UpdateUserRequest{Username: strPtr("  ")})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("by username", func(t *testing.T) {
		got, err := f.svc.UpdateUserByUsername(ctx, "alice", models.UpdateUserRequest{Username: strPtr("alice_w")})
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)

		_, err = f.svc.GetUserByUsername(ctx, "alice")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := f.svc.UpdateUser(ctx, uuid.New(), models.UpdateUserRequest{Bio: strPtr("x")})
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = f.svc.UpdateUserByUsername(ctx, "nobody", models.UpdateUserRequest{Bio: strPtr("x")})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestProfileService_Follow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := testutils.MustCreateUser(t, f.db, "alice", "")
	bob := testutils.MustCreateUser(t, f.db, "bob", "")

	require.NoError(t, f.svc.Follow(ctx, alice.ID, bob.ID))

	ok, err := f.svc.IsFollowing(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("twice is a conflict", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.Follow(ctx, alice.ID, bob.ID), apperr.ErrConflict)
	})

	t.Run("self follow", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.Follow(ctx, alice.ID, alice.ID), apperr.ErrSelfReference)
		assert.ErrorIs(t, f.svc.Follow(ctx, uuid.Nil, uuid.Nil), apperr.ErrSelfReference)
	})

	t.Run("unknown endpoint", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.Follow(ctx, alice.ID, uuid.New()), apperr.ErrNotFound)
		assert.ErrorIs(t, f.svc.Follow(ctx, uuid.New(), bob.ID), apperr.ErrNotFound)
	})

	t.Run("counts equal list lengths", func(t *testing.T) {
		followers, err := f.svc.GetFollowers(ctx, bob.ID)
		require.NoError(t, err)
		n, err := f.svc.GetFollowersCount(ctx, bob.ID)
		require.NoError(t, err)
		assert.EqualValues(t, len(followers), n)
		assert.EqualValues(t, 1, n)

		following, err := f.svc.GetFollowing(ctx, bob.ID)
		require.NoError(t, err)
		n, err = f.svc.GetFollowingCount(ctx, bob.ID)
		require.NoError(t, err)
		assert.EqualValues(t, len(following), n)
		assert.Zero(t, n)
	})

	t.Run("unfollow", func(t *testing.T) {
		require.NoError(t, f.svc.Unfollow(ctx, alice.ID, bob.ID))
		ok, err := f.svc.IsFollowing(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, f.svc.Unfollow(ctx, alice.ID, bob.ID), "unfollow without an edge succeeds")
		require.NoError(t, f.svc.Unfollow(ctx, uuid.New(), uuid.New()))
	})
}

func TestProfileService_ConcurrentFollowYieldsOneEdge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := testutils.MustCreateUser(t, f.db, "alice", "")
	bob := testutils.MustCreateUser(t, f.db, "bob", "")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.svc.Follow(ctx, alice.ID, bob.ID)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrConflict)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	n, err := f.svc.GetFollowersCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestProfileService_DeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := testutils.MustCreateUser(t, f.db, "alice", "")
	bob := testutils.MustCreateUser(t, f.db, "bob", "")
	carol := testutils.MustCreateUser(t, f.db, "carol", "")

	require.NoError(t, f.svc.Follow(ctx, alice.ID, bob.ID))
	require.NoError(t, f.svc.Follow(ctx, bob.ID, alice.ID))
	require.NoError(t, f.svc.Follow(ctx, carol.ID, alice.ID))
	require.NoError(t, f.svc.Follow(ctx, carol.ID, bob.ID))

	withAvatar, err := f.svc.UploadAvatar(ctx, alice.ID, pngAsset())
	require.NoError(t, err)
	avatar := *withAvatar.AvatarURL

	require.NoError(t, f.svc.DeleteUser(ctx, alice.ID))
	f.svc.Wait()

	_, err = f.svc.GetUserByID(ctx, alice.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	followers, err := f.svc.GetFollowers(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{carol.ID}, userIDs(followers))

	n, err := f.svc.GetFollowingCount(ctx, carol.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = f.svc.GetFollowersCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.False(t, f.assets.has(avatar), "avatar is removed from storage")

	t.Run("missing user", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.DeleteUser(ctx, alice.ID), apperr.ErrNotFound)
	})
}

func TestProfileService_UploadAvatar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutils.MustCreateUser(t, f.db, "alice", "")

	first, err := f.svc.UploadAvatar(ctx, alice.ID, pngAsset())
	require.NoError(t, err)
	require.NotNil(t, first.AvatarURL)
	firstURL := *first.AvatarURL
	assert.True(t, strings.HasPrefix(firstURL, ownedPrefix+"avatars/"))

	stored, err := f.svc.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, firstURL, *stored.AvatarURL)

	t.Run("replacing removes the previous object", func(t *testing.T) {
		second, err := f.svc.UploadAvatar(ctx, alice.ID, pngAsset())
		require.NoError(t, err)
		f.svc.Wait()

		assert.NotEqual(t, firstURL, *second.AvatarURL)
		assert.False(t, f.assets.has(firstURL))
		assert.True(t, f.assets.has(*second.AvatarURL))
	})

	t.Run("cover goes to its own folder", func(t *testing.T) {
		got, err := f.svc.UploadCoverImage(ctx, alice.ID, pngAsset())
		require.NoError(t, err)
		require.NotNil(t, got.CoverImageURL)
		assert.True(t, strings.HasPrefix(*got.CoverImageURL, ownedPrefix+"covers/"))
	})

	t.Run("non-image leaves the record alone", func(t *testing.T) {
		before, err := f.svc.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)

		_, err = f.svc.UploadAvatar(ctx, alice.ID, storage.Asset{Body: strings.NewReader("hello"), ContentType: "text/plain"})
		assert.ErrorIs(t, err, apperr.ErrInvalidAsset)

		after, err := f.svc.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, before.AvatarURL, after.AvatarURL)
	})

	t.Run("no file", func(t *testing.T) {
		_, err := f.svc.UploadAvatar(ctx, alice.ID, storage.Asset{})
		assert.ErrorIs(t, err, apperr.ErrInvalidAsset)
	})

	t.Run("missing user uploads nothing", func(t *testing.T) {
		before := len(f.assets.objects)
		_, err := f.svc.UploadAvatar(ctx, uuid.New(), pngAsset())
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.Len(t, f.assets.objects, before)
	})

	t.Run("storage failure propagates", func(t *testing.T) {
		f.assets.uploadErr = apperr.ErrUpstream
		defer func() { f.assets.uploadErr = nil }()

		_, err := f.svc.UploadAvatar(ctx, alice.ID, pngAsset())
		assert.ErrorIs(t, err, apperr.ErrUpstream)
	})
}

func TestProfileService_UploadAvatar_PersistFailureOrphansObject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutils.MustCreateUser(t, f.db, "alice", "")

	boom := errors.New("db is down")
	svc := f.build(failingUpdates{UserRepository: repositories.NewPostgresUserRepository(f.db), err: boom})

	_, err := svc.UploadAvatar(ctx, alice.ID, pngAsset())
	require.ErrorIs(t, err, boom)

	require.Len(t, f.orphans.entries, 1)
	orphan := f.orphans.entries[0]
	assert.Equal(t, alice.ID.String(), orphan.UserID)
	assert.Equal(t, "upload avatar", orphan.Operation)
	assert.Equal(t, "db is down", orphan.Reason)

	assert.Eventually(t, func() bool {
		return !f.assets.has(orphan.URL)
	}, time.Second, 10*time.Millisecond, "orphan is cleaned up in the background")

	svc.Wait()
	f.orphans.mu.Lock()
	defer f.orphans.mu.Unlock()
	assert.Equal(t, []string{orphan.URL}, f.orphans.cleaned)
}

func TestProfileService_UploadAvatar_UserDeletedDuringUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutils.MustCreateUser(t, f.db, "alice", "")

	f.assets.beforeUpload = func() {
		require.NoError(t, f.svc.DeleteUser(ctx, alice.ID))
	}

	_, err := f.svc.UploadAvatar(ctx, alice.ID, pngAsset())
	require.ErrorIs(t, err, apperr.ErrNotFound)
	f.svc.Wait()

	var rows int64
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", alice.ID).Count(&rows).Error)
	assert.Zero(t, rows, "deleted user is not recreated")

	require.Len(t, f.orphans.entries, 1)
	orphan := f.orphans.entries[0]
	assert.Equal(t, alice.ID.String(), orphan.UserID)
	assert.False(t, f.assets.has(orphan.URL), "uploaded object is cleaned up")
}

func TestProfileService_DeleteAvatar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutils.MustCreateUser(t, f.db, "alice", "")

	withAvatar, err := f.svc.UploadAvatar(ctx, alice.ID, pngAsset())
	require.NoError(t, err)
	url := *withAvatar.AvatarURL

	t.Run("storage failure leaves the record", func(t *testing.T) {
		f.assets.deleteErr = apperr.ErrUpstream
		defer func() { f.assets.deleteErr = nil }()

		_, err := f.svc.DeleteAvatar(ctx, alice.ID)
		assert.ErrorIs(t, err, apperr.ErrUpstream)

		stored, err := f.svc.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.AvatarURL)
		assert.Equal(t, url, *stored.AvatarURL)
	})

	t.Run("twice in a row succeeds", func(t *testing.T) {
		got, err := f.svc.DeleteAvatar(ctx, alice.ID)
		require.NoError(t, err)
		assert.Nil(t, got.AvatarURL)
		assert.False(t, f.assets.has(url))

		got, err = f.svc.DeleteAvatar(ctx, alice.ID)
		require.NoError(t, err)
		assert.Nil(t, got.AvatarURL)
	})

	t.Run("empty cover is a no-op", func(t *testing.T) {
		before := len(f.assets.deleted())
		got, err := f.svc.DeleteCoverImage(ctx, alice.ID)
		require.NoError(t, err)
		assert.Nil(t, got.CoverImageURL)
		assert.Len(t, f.assets.deleted(), before)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := f.svc.DeleteAvatar(ctx, uuid.New())
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestProfileService_SearchUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testutils.MustCreateUser(t, f.db, "alicewonder", "")
	testutils.MustCreateUser(t, f.db, "rabbit_fan", "follows alice everywhere")
	testutils.MustCreateUser(t, f.db, "alice", "")

	got, err := f.svc.SearchUsers(ctx, "Alice")
	require.NoError(t, err)
	names := make([]string, 0, len(got))
	for _, u := range got {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"alice", "alicewonder", "rabbit_fan"}, names)

	for _, q := range []string{"", "   "} {
		got, err := f.svc.SearchUsers(ctx, q)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func userIDs(users []models.User) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}
