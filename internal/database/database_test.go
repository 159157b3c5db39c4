package database

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-very-long-test-secret-key-for-encryption-testing"

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	t.Chdir(t.TempDir())

	db, err := New(context.Background(), "profiles.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_RejectsUnsafePaths(t *testing.T) {
	ctx := context.Background()
	for _, path := range []string{"", "\x00bad", "../escape.db", "/etc/profiles.db"} {
		_, err := New(ctx, path)
		assert.Error(t, err, "path %q", path)
	}
}

func TestNew_ReopenKeepsRows(t *testing.T) {
	t.Chdir(t.TempDir())
	ctx := context.Background()

	db, err := New(ctx, "profiles.db")
	require.NoError(t, err)
	created, err := db.CreateProfile(ctx, "Support", "", false)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := New(ctx, "profiles.db")
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetProfile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Support", got.Name)
}

func TestProfileLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created, err := db.CreateProfile(ctx, "Sales", "https://hooks.example.com/in", true)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Sales", created.Name)
	assert.Equal(t, "https://hooks.example.com/in", created.WebhookURL)
	assert.True(t, created.EnableWebhook)
	assert.Empty(t, created.Token)
	assert.False(t, created.CreatedAt.IsZero())

	require.NoError(t, db.SetProfileCredentials(ctx, created.ID, "tok-1", "profile_1"))

	byToken, err := db.GetProfileByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byToken.ID)
	assert.Equal(t, "tok-1", byToken.Token)
	assert.Equal(t, "profile_1", byToken.Session)

	byToken.Name = "Sales EU"
	byToken.EnableWebhook = false
	byToken.WebhookURL = ""
	require.NoError(t, db.UpdateProfile(ctx, byToken))

	got, err := db.GetProfile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sales EU", got.Name)
	assert.False(t, got.EnableWebhook)
	assert.Empty(t, got.WebhookURL)

	require.NoError(t, db.DeleteProfile(ctx, created.ID))
	_, err = db.GetProfile(ctx, created.ID)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestMissingProfiles(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.GetProfile(ctx, 42)
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = db.GetProfileByToken(ctx, "unknown")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = db.GetProfileByToken(ctx, "")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	assert.ErrorIs(t, db.DeleteProfile(ctx, 42), ErrProfileNotFound)
	assert.ErrorIs(t, db.SetProfileCredentials(ctx, 42, "t", "s"), ErrProfileNotFound)
}

func TestListProfilesOrderedByID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	profiles, err := db.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, profiles)

	for _, name := range []string{"one", "two", "three"} {
		_, err := db.CreateProfile(ctx, name, "", false)
		require.NoError(t, err)
	}

	profiles, err = db.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 3)
	assert.Equal(t, "one", profiles[0].Name)
	assert.Equal(t, "three", profiles[2].Name)
	assert.Less(t, profiles[0].ID, profiles[1].ID)
}

func TestDuplicateTokenRejected(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a, err := db.CreateProfile(ctx, "alpha", "", false)
	require.NoError(t, err)
	b, err := db.CreateProfile(ctx, "bravo", "", false)
	require.NoError(t, err)

	require.NoError(t, db.SetProfileCredentials(ctx, a.ID, "same", "profile_a"))
	err = db.SetProfileCredentials(ctx, b.ID, "same", "profile_b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-retryable")
}

func TestConcurrentCreates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.CreateProfile(ctx, "concurrent", "", false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	profiles, err := db.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 10)
}

func TestEncryptedColumnsAtRest(t *testing.T) {
	t.Setenv(envEnableEncryption, "true")
	t.Setenv(envEncryptionSecret, testSecret)
	db := setupTestDB(t)
	ctx := context.Background()

	created, err := db.CreateProfile(ctx, "Secure", "https://hooks.example.com/secret", true)
	require.NoError(t, err)
	require.NoError(t, db.SetProfileCredentials(ctx, created.ID, "secret-token", "profile_9"))

	var rawURL, rawToken string
	require.NoError(t, db.db.QueryRowContext(ctx, "SELECT webhook_url, token FROM profiles WHERE id = ?", created.ID).Scan(&rawURL, &rawToken))
	assert.NotEqual(t, "https://hooks.example.com/secret", rawURL)
	assert.NotEqual(t, "secret-token", rawToken)

	got, err := db.GetProfileByToken(ctx, "secret-token")
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/secret", got.WebhookURL)
	assert.Equal(t, "secret-token", got.Token)
}

func TestPing(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Ping(context.Background()))
}
