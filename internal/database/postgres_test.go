package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/PaulBabatuyi/filesync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// setupPostgres starts a throwaway Postgres container and returns its DSN.
// Skipped unless TEST_INTEGRATION is set.
func setupPostgres(t *testing.T) string {
	t.Helper()
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("filesync_test"),
		postgres.WithUsername("filesync"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresStore(t *testing.T) {
	dsn := setupPostgres(t)
	ctx := context.Background()

	// migrations must be safe to re-run on an initialised schema
	first, err := Open(ctx, DriverPostgres, dsn, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	db, err := Open(ctx, DriverPostgres, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping(ctx))

	u, err := db.InsertUser(ctx, "alice", "hash")
	require.NoError(t, err)
	_, err = db.InsertUser(ctx, "alice", "hash")
	assert.ErrorIs(t, err, models.ErrDuplicateUsername)

	ghost := int64(999)
	_, err = db.InsertFileRecord(ctx, models.FileRecord{
		StoredName: "ghost.txt", OriginalName: "ghost.txt", StoragePath: "uploads/ghost.txt", UploaderID: &ghost,
	})
	assert.ErrorIs(t, err, models.ErrUnknownUploader)

	base := time.Now().UTC()
	older, err := db.InsertFileRecord(ctx, models.FileRecord{
		StoredName: "1-a.txt", OriginalName: "a.txt", StoragePath: "uploads/1-a.txt", Size: 5,
		UploaderID: &u.ID, UploadedAt: base,
	})
	require.NoError(t, err)
	newer, err := db.InsertFileRecord(ctx, models.FileRecord{
		StoredName: "2-b.txt", OriginalName: "b.txt", StoragePath: "uploads/2-b.txt", Size: 7,
		UploadedAt: base.Add(time.Second),
	})
	require.NoError(t, err)

	files, err := db.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, newer.ID, files[0].ID)
	assert.Equal(t, older.ID, files[1].ID)
	require.NotNil(t, files[1].UploaderName)
	assert.Equal(t, "alice", *files[1].UploaderName)

	require.NoError(t, db.DeleteFileRecord(ctx, older.ID))
	_, err = db.GetFileRecord(ctx, older.ID)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)

	names, err := db.StoredNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"2-b.txt": {}}, names)
}
