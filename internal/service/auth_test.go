package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/PaulBabatuyi/filesync/internal/auth"
	"github.com/PaulBabatuyi/filesync/internal/database"
	"github.com/PaulBabatuyi/filesync/internal/models"
	"github.com/PaulBabatuyi/filesync/internal/service"
	"github.com/alexedwards/argon2id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func setupAuth(t *testing.T) (*service.AuthService, *database.DB) {
	t.Helper()
	dsn := database.SQLiteDSN(filepath.Join(t.TempDir(), "auth.db"))
	db, err := database.Open(context.Background(), database.DriverSQLite, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hasher := auth.New(&argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	return service.NewAuthService(db, hasher, zap.NewNop()), db
}

func TestRegisterAndLogin(t *testing.T) {
	svc, db := setupAuth(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Positive(t, u.ID)
	assert.Equal(t, "alice", u.Username)

	stored, err := db.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", stored.SecretHash)

	got, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestRegisterRejects(t *testing.T) {
	svc, _ := setupAuth(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "secret")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.Register(ctx, "al", "secret")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.Register(ctx, "alice", "pw")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "alice", "other-secret")
	assert.ErrorIs(t, err, models.ErrDuplicateUsername)
	assert.ErrorIs(t, err, models.ErrDuplicate)
}

func TestLoginFailures(t *testing.T) {
	svc, _ := setupAuth(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "secret")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, models.ErrAuth)

	_, err = svc.Login(ctx, "bob", "secret")
	assert.ErrorIs(t, err, models.ErrAuth)

	_, err = svc.Login(ctx, "ALICE", "secret")
	assert.ErrorIs(t, err, models.ErrAuth, "usernames are case-sensitive")

	_, err = svc.Login(ctx, "alice", "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestEnsureDefaultUser(t *testing.T) {
	svc, db := setupAuth(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureDefaultUser(ctx, "admin", "123456"))
	_, err := svc.Login(ctx, "admin", "123456")
	require.NoError(t, err)

	// a second run leaves the existing account alone
	require.NoError(t, svc.EnsureDefaultUser(ctx, "admin", "changed"))
	_, err = svc.Login(ctx, "admin", "123456")
	require.NoError(t, err)

	n, err := db.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEnsureDefaultUserSkipsPopulatedStore(t *testing.T) {
	svc, _ := setupAuth(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "secret")
	require.NoError(t, err)

	require.NoError(t, svc.EnsureDefaultUser(ctx, "admin", "123456"))
	_, err = svc.Login(ctx, "admin", "123456")
	assert.ErrorIs(t, err, models.ErrAuth)
}

func TestIdentify(t *testing.T) {
	svc, _ := setupAuth(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice", "secret")
	require.NoError(t, err)

	got, err := svc.Identify(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = svc.Identify(ctx, u.ID+100)
	assert.ErrorIs(t, err, models.ErrAuth)
	assert.Contains(t, err.Error(), "unknown caller")

	_, err = svc.Identify(ctx, 0)
	assert.ErrorIs(t, err, models.ErrAuth)
}

// failingHasher cannot produce hashes but still verifies.
type failingHasher struct {
	service.PasswordHasher
}

func (failingHasher) Hash(string) (string, error) { return "", errors.New("out of memory") }

func TestLoginReportsBrokenDummyHash(t *testing.T) {
	_, db := setupAuth(t)
	core, logs := observer.New(zapcore.InfoLevel)
	svc := service.NewAuthService(db, failingHasher{auth.NewDefault()}, zap.New(core))

	_, err := svc.Login(context.Background(), "ghost", "secret")
	assert.ErrorIs(t, err, models.ErrAuth)

	assert.Equal(t, 1, logs.FilterMessage("dummy hash failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("dummy hash comparison failed, login timing not equalized").Len())
}
