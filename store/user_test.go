package store

import (
	"context"
	"testing"
	"time"

	"github.com/selimgur/librarium/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, db *DB, email string, verified bool, createdAt time.Time) *models.User {
	t.Helper()
	u := &models.User{
		Name:            "Reader",
		Email:           email,
		Password:        "hash",
		Role:            models.RoleUser,
		AccountVerified: verified,
		CreatedAt:       createdAt,
	}
	id, err := db.CreateUser(context.Background(), u)
	require.NoError(t, err)
	u.ID = id
	return u
}

func TestUserByEmail_PrefersVerified(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	older := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	verified := seedUser(t, db, "reader@example.com", true, older)
	seedUser(t, db, "reader@example.com", false, time.Now())

	got, err := db.UserByEmail(ctx, "reader@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, verified.ID, got.ID)
	assert.True(t, got.AccountVerified)

	missing, err := db.UserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserByEmail_UnverifiedOnly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedUser(t, db, "pending@example.com", false, time.Now().Add(-time.Hour))
	newest := seedUser(t, db, "pending@example.com", false, time.Now().Truncate(time.Millisecond))

	got, err := db.UserByEmail(ctx, "pending@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.AccountVerified)

	pending, err := db.PendingUserByEmail(ctx, "pending@example.com")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, newest.ID, pending.ID, "newest signup wins")
}

func TestTouchVerificationCode_PendingOnly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	pending := seedUser(t, db, "pending@example.com", false, time.Now())
	expire := time.Now().Add(15 * time.Minute).Truncate(time.Millisecond)
	require.NoError(t, db.TouchVerificationCode(ctx, pending.ID, "54321", expire))

	got, err := db.PendingUserByCode(ctx, "pending@example.com", "54321")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pending.ID, got.ID)

	verified := seedUser(t, db, "done@example.com", true, time.Now())
	require.NoError(t, db.TouchVerificationCode(ctx, verified.ID, "11111", expire))
	unchanged, err := db.UserByID(ctx, verified.ID)
	require.NoError(t, err)
	require.NotNil(t, unchanged)
	assert.Empty(t, unchanged.VerificationCode, "verified accounts never get a code")
}
