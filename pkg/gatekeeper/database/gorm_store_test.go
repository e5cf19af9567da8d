package database

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mikepea/gatekeeper/pkg/gatekeeper/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := Connect(":memory:")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return NewGormStore(db)
}

func TestGormStore_CreateAndLookup(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := &models.User{
		Email:          "alice@example.com",
		Username:       models.StringPtr("alice"),
		HashedPassword: "hash",
		FullName:       "Alice",
		IsActive:       true,
		Provider:       models.StringPtr(models.ProviderGitHub),
		ProviderUserID: models.StringPtr("1001"),
	}
	require.NoError(t, store.Create(ctx, user))
	require.NotEqual(t, uuid.Nil, user.ID)

	byID, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)

	byEmail, err := store.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byUsername, err := store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byUsername.ID)

	byProvider, err := store.GetByProvider(ctx, models.ProviderGitHub, "1001")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byProvider.ID)
}

func TestGormStore_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Update(ctx, uuid.New(), UpdateParams{FullName: models.StringPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, uuid.New()), ErrNotFound)
}

func TestGormStore_DuplicateEmail(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &models.User{Email: "bob@example.com", HashedPassword: "hash"}))

	err := store.Create(ctx, &models.User{Email: "bob@example.com", HashedPassword: "hash"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestGormStore_DuplicateUsernameOnUpdate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &models.User{Email: "a@example.com", Username: models.StringPtr("alice"), HashedPassword: "hash"}))
	other := &models.User{Email: "b@example.com", HashedPassword: "hash"}
	require.NoError(t, store.Create(ctx, other))

	_, err := store.Update(ctx, other.ID, UpdateParams{Username: models.StringPtr("alice")})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestGormStore_Update(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := &models.User{Email: "carol@example.com", HashedPassword: "old", IsActive: true}
	require.NoError(t, store.Create(ctx, user))

	inactive := false
	updated, err := store.Update(ctx, user.ID, UpdateParams{
		FullName:       models.StringPtr("Carol"),
		HashedPassword: models.StringPtr("new"),
		IsActive:       &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, updated.ID)
	assert.Equal(t, "Carol", updated.FullName)
	assert.Equal(t, "new", updated.HashedPassword)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "carol@example.com", updated.Email)
}

func TestGormStore_ListAndDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, email := range []string{"zed@example.com", "amy@example.com"} {
		require.NoError(t, store.Create(ctx, &models.User{Email: email, HashedPassword: "hash"}))
	}

	users, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "amy@example.com", users[0].Email)

	require.NoError(t, store.Delete(ctx, users[0].ID))

	users, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestGormStore_Search(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	seed := []models.User{
		{Email: "john@example.com", FullName: "John Doe"},
		{Email: "jane@example.com", FullName: "Jane Smith"},
		{Email: "smithers@example.com", FullName: "Waylon"},
	}
	for i := range seed {
		seed[i].HashedPassword = "hash"
		require.NoError(t, store.Create(ctx, &seed[i]))
	}

	users, err := store.Search(ctx, "SMITH")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "jane@example.com", users[0].Email)
	assert.Equal(t, "smithers@example.com", users[1].Email)

	users, err = store.Search(ctx, "john@")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "John Doe", users[0].FullName)

	users, err = store.Search(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestMongoDatabaseName(t *testing.T) {
	assert.Equal(t, "accounts", mongoDatabaseName("mongodb://localhost:27017/accounts"))
	assert.Equal(t, defaultMongoDatabase, mongoDatabaseName("mongodb://localhost:27017"))
	assert.Equal(t, defaultMongoDatabase, mongoDatabaseName("mongodb://localhost:27017/"))
}
