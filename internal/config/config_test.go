package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/sheetsync/internal/core/observability/log"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sheetsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	d := Default()
	assert.Equal(t, d.Server, cfg.Server)
	assert.Equal(t, d.Auth, cfg.Auth)
	assert.Equal(t, d.History, cfg.History)
	assert.Equal(t, d.Kafka.Topic, cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, log.LevelInfo, cfg.LogLevel())
	assert.Equal(t, log.Options{Level: log.LevelInfo, Encoding: "json", OutputPaths: []string{"stderr"}, Sampling: true}, cfg.Logging())
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := writeFile(t, `
server:
  http_addr: 0.0.0.0:9000
  write_timeout: 3s
  shards: 8
log:
  level: debug
  encoding: console
redis:
  addr: redis:6379
kafka:
  brokers: [kafka-1:9092, kafka-2:9092]
history:
  max_undo_steps: 10
`)
	t.Setenv("SHEETSYNC_SERVER_SHARDS", "32")
	t.Setenv("SHEETSYNC_AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.HTTPAddr)
	assert.Equal(t, 3*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 32, cfg.Server.Shards)
	assert.Equal(t, log.LevelDebug, cfg.LogLevel())
	assert.Equal(t, "console", cfg.Logging().Encoding)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "sheetsync.revisions", cfg.Kafka.Topic)
	assert.Equal(t, 10, cfg.History.MaxUndoSteps)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)

	relayConfig := cfg.Relay()
	assert.Equal(t, "0.0.0.0:9000", relayConfig.HTTPAddr)
	assert.Equal(t, 32, relayConfig.Shards)
	assert.Equal(t, "s3cret", relayConfig.JWTSecret)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "server:\n  shards: 0\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeFile(t, "log:\n  encoding: xml\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeFile(t, "kafka:\n  brokers: [k:9092]\n  topic: \"\"\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_YAMLMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "s3cret"
	cfg.MySQL.DSN = "user:pass@tcp(db)/sheets"

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "s3cret")
	assert.NotContains(t, string(out), "pass@")

	var decoded Config
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, "***", decoded.Auth.JWTSecret)
	assert.Equal(t, cfg.Server, decoded.Server)
	assert.Equal(t, "sheetsync.revisions", decoded.Kafka.Topic)
}
