package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
database:
  postgres:
    host: localhost
    database: notifications
    user: notifications
  redis:
    address: localhost:6379
senders:
  email:
    enabled: false
`

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "notifications.send", cfg.Queue.SendTopic)
	assert.Equal(t, 3, cfg.Queue.SendPartitions)
	assert.Equal(t, 3, cfg.Dispatch.WorkerConcurrency)
	assert.Equal(t, 5, cfg.Dispatch.DefaultMaxRetries)
	assert.Equal(t, 5000, cfg.Dispatch.RetryDelayLevel1)
	assert.Equal(t, 1800000, cfg.Dispatch.RetryDelayLevel5)
	assert.Equal(t, 5000, cfg.Dispatch.RetryHoldCap)
	assert.Equal(t, "notification-events", cfg.Database.Elasticsearch.Index)
	assert.Equal(t, ":9464", cfg.App.MetricsAddr)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFileRejectsMissingPostgresHost(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, `
database:
  redis:
    address: localhost:6379
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.host")
}

func TestLoadFromFileRejectsSMTPWithoutHost(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, `
database:
  postgres:
    host: localhost
    database: notifications
    user: notifications
  redis:
    address: localhost:6379
senders:
  email:
    enabled: true
    provider: smtp
    from: noreply@example.com
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp.host")
}

func TestGetDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5432, User: "svc", Password: "secret",
		Database: "notifications", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=db port=5432 user=svc password=secret dbname=notifications sslmode=disable",
		p.GetDSN())
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, GetDuration(5000))
	assert.Equal(t, time.Duration(0), GetDuration(0))
}
