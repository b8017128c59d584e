package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnvironment(t *testing.T) {
	t.Setenv("NARWHAL_PLAYER_SERVER_URL", "http://media.local:8096")
	t.Setenv("NARWHAL_PLAYER_DOWNLOADS_CANCEL_GRACE", "3s")
	t.Setenv("NARWHAL_PLAYER_PLAYBACK_MAX_BITRATE", "8000000")
	t.Setenv("NARWHAL_PLAYER_EVENTS_BACKEND", "kafka")
	t.Setenv("NARWHAL_PLAYER_EVENTS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := load(nil)
	require.NoError(t, err)

	assert.Equal(t, "http://media.local:8096", cfg.Server.URL)
	assert.Equal(t, 3*time.Second, cfg.Downloads.CancelGrace)
	assert.Equal(t, 8000000, cfg.Playback.MaxBitrate)
	assert.Equal(t, "kafka", cfg.Events.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Kafka.Brokers)

	// untouched defaults survive
	assert.Equal(t, 5*time.Second, cfg.Playback.ResolveTimeout)
	assert.Equal(t, 4, cfg.Downloads.SegmentConcurrency)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "player.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  url: http://from-file:8096
  user_id: u1
playback:
  target: cast
downloads:
  dir: /data/offline
  work_dir: /data/work
`), 0o644))
	t.Setenv("NARWHAL_PLAYER_SERVER_USER_ID", "u2")

	cfg, err := load([]string{filepath.Join(t.TempDir(), "missing.yaml"), path})
	require.NoError(t, err)

	assert.Equal(t, "http://from-file:8096", cfg.Server.URL)
	assert.Equal(t, "u2", cfg.Server.UserID, "environment wins over file")
	assert.Equal(t, "cast", cfg.Playback.Target)
	assert.Equal(t, "/data/offline", cfg.Downloads.Dir)
	assert.Equal(t, "/data/work", cfg.Downloads.WorkDir)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "player.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := load([]string{path})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Defaults()
		cfg.Server.URL = "http://media.local"
		return cfg
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"missing server url":  func(c *Config) { c.Server.URL = "" },
		"unknown target":      func(c *Config) { c.Playback.Target = "toaster" },
		"work dir equals dir": func(c *Config) { c.Downloads.WorkDir = c.Downloads.Dir + "/" },
		"no concurrency":      func(c *Config) { c.Downloads.SegmentConcurrency = 0 },
		"postgres sans dsn":   func(c *Config) { c.Database.Driver = "postgres" },
		"unknown driver":      func(c *Config) { c.Database.Driver = "mysql" },
		"unknown backend":     func(c *Config) { c.Events.Backend = "redis" },
		"kafka sans topic":    func(c *Config) { c.Events.Backend = "kafka"; c.Events.Kafka.Topic = "" },
		"s3 sans bucket":      func(c *Config) { c.Storage.Mirror = "s3" },
		"local sans path":     func(c *Config) { c.Storage.Mirror = "local" },
		"bad port":            func(c *Config) { c.Service.HTTPPort = 70000 },
		"negative bitrate":    func(c *Config) { c.Downloads.MaxBitrate = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
