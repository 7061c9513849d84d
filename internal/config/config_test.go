package config

import (
	"testing"
	"time"

	"github.com/PaulBabatuyi/filesync/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.AppEnv)
	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "9090", cfg.MetricsPort)
	assert.Equal(t, "uploads", cfg.UploadDir)
	assert.Equal(t, int64(50<<20), cfg.MaxUploadBytes)
	assert.Equal(t, "admin", cfg.AdminUsername)
	assert.Equal(t, "123456", cfg.AdminPassword)
	assert.Equal(t, 10*time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, time.Hour, cfg.OrphanGrace)
	assert.False(t, cfg.AllowAnonymousDelete)
	assert.Equal(t, 1.0, cfg.AuthRateLimit)
	assert.Equal(t, 10, cfg.AuthRateBurst)
	assert.Equal(t, 256, cfg.PreviewCacheSize)
	assert.True(t, cfg.IsDevelopment())

	driver, dsn := cfg.Database()
	assert.Equal(t, database.DriverSQLite, driver)
	assert.Contains(t, dsn, "./database.db")
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "8080")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("ALLOW_ANONYMOUS_DELETE", "true")
	t.Setenv("RECONCILE_INTERVAL", "0s")
	t.Setenv("ORPHAN_GRACE", "90s")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.True(t, cfg.AllowAnonymousDelete)
	assert.Zero(t, cfg.ReconcileInterval)
	assert.Equal(t, 90*time.Second, cfg.OrphanGrace)
	assert.False(t, cfg.IsDevelopment())

	_, dsn := cfg.Database()
	assert.Contains(t, dsn, "/tmp/database.db")
}

func TestDatabaseURLSelectsPostgres(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:hunter2@db:5432/files?sslmode=disable")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	driver, dsn := cfg.Database()
	assert.Equal(t, database.DriverPostgres, driver)
	assert.Equal(t, "postgres://u:hunter2@db:5432/files?sslmode=disable", dsn)
	assert.NotContains(t, cfg.String(), "hunter2")
	assert.NotContains(t, cfg.String(), "123456")
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	_, err := LoadFromEnv()
	assert.Error(t, err)

	t.Setenv("APP_ENV", "development")
	t.Setenv("MAX_UPLOAD_BYTES", "-1")
	_, err = LoadFromEnv()
	assert.Error(t, err)
}
