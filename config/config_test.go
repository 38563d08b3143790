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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
postgres:
  host: localhost
  port: 5432
  user: repl
  password: secret
  database: app
  slot: mirror_slot
  publication: mirror_pub
tables:
  - schema: public
    name: users
iceberg:
  path: /tmp/warehouse
checkpoint:
  interval: 30s
proxy:
  port: 15432
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, "mirror_slot", cfg.Postgres.Slot)
	require.Len(t, cfg.Tables, 1)
	assert.Equal(t, "users", cfg.Tables[0].Name)
	assert.Equal(t, "/tmp/warehouse", cfg.Iceberg.Path)
	assert.Equal(t, 30*time.Second, cfg.Checkpoint.Interval)
	assert.Equal(t, 15432, cfg.Proxy.Port)
}

func TestLoadConfigDefaultCheckpointInterval(t *testing.T) {
	path := writeConfig(t, `
iceberg:
  path: /tmp/warehouse
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Checkpoint.Interval)
}

func TestLoadConfigS3(t *testing.T) {
	path := writeConfig(t, `
iceberg:
  s3:
    bucket: mirror
    prefix: warehouse
    region: us-east-1
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "mirror", cfg.Iceberg.S3.Bucket)
	assert.Equal(t, "warehouse", cfg.Iceberg.S3.Prefix)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
