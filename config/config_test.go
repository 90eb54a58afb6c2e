package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./data/financial.db", cfg.Database.Path)
	assert.Equal(t, 500, cfg.Ingest.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 3, cfg.HTTP.DownloadRetries)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_NAME", "quotes")
	t.Setenv("BATCH_SIZE", "1000")
	t.Setenv("HTTP_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 1000, cfg.Ingest.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Contains(t, cfg.Database.DSN(), "dbname=quotes")
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported DB_DRIVER")
}

func TestLoadRejectsInvalidBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "0")

	_, err := Load()
	require.Error(t, err)
}
