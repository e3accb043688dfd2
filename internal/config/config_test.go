package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"APP_ENV", "LISTEN_ADDR", "DATABASE_URL", "SQLITE_PATH", "SWEEP_INTERVAL", "SWEEP_WORKERS", "MAX_BODY_KB",
	"UPLOAD_REQUIRE_COMPLETION", "UPLOAD_FAST_TRACK", "CLOSE_GRACE_PERIOD", "RULES_FILE",
	"AMQP_URL", "AMQP_EXCHANGE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.False(t, cfg.UsePostgres())
	assert.Equal(t, "./data/sat.db", cfg.SQLitePath)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 4, cfg.SweepWorkers)
	assert.Equal(t, 1024, cfg.MaxBodyKB)
	assert.Zero(t, cfg.CloseGracePeriod)
	assert.False(t, cfg.UploadRequireCompletion)
	assert.Equal(t, "sat.events", cfg.AMQPExchange)
}

func TestOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://sat@localhost/sat")
	t.Setenv("SWEEP_INTERVAL", "0")
	t.Setenv("UPLOAD_REQUIRE_COMPLETION", "true")
	t.Setenv("UPLOAD_FAST_TRACK", "1")
	t.Setenv("CLOSE_GRACE_PERIOD", "72h")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.UsePostgres())
	assert.Zero(t, cfg.SweepInterval)
	assert.True(t, cfg.UploadRequireCompletion)
	assert.True(t, cfg.UploadFastTrack)
	assert.Equal(t, 72*time.Hour, cfg.CloseGracePeriod)
}

func TestMalformedValuesAreReportedTogether(t *testing.T) {
	clearEnv(t)
	t.Setenv("SWEEP_INTERVAL", "often")
	t.Setenv("UPLOAD_FAST_TRACK", "maybe")
	t.Setenv("SWEEP_WORKERS", "0")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SWEEP_INTERVAL")
	assert.Contains(t, err.Error(), "UPLOAD_FAST_TRACK")
	assert.Contains(t, err.Error(), "SWEEP_WORKERS")
}

func TestLoadReadsDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("LISTEN_ADDR")
	t.Cleanup(func() { os.Unsetenv("LISTEN_ADDR") })
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LISTEN_ADDR=:9191\n"), 0o600))
	t.Chdir(dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9191", cfg.ListenAddr)
}
