package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_GetConfigFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_DSN", " postgres://scheduler@localhost/devices ")
	t.Setenv("SCHEDULER_INTERVAL_SECONDS", "15")
	t.Setenv("DEVICE_CLOUD_BASE_URL", "https://openapi.example.com/")

	cfg, err := GetConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://scheduler@localhost/devices", cfg.PostgresDSN)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.Interval())
	assert.Equal(t, 5*time.Second, cfg.Scheduler.StopTimeout())
	assert.Equal(t, time.Second, cfg.Scheduler.RestartPause())
	assert.Equal(t, 10*time.Second, cfg.Scheduler.ErrorBackoff())
	assert.Equal(t, time.Duration(0), cfg.Scheduler.ExecutionTimeout())
	assert.True(t, cfg.Scheduler.Autostart)
	assert.Equal(t, 50, cfg.Scheduler.BatchSize)
	assert.Equal(t, "localhost:6379", cfg.RedisHost)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "https://openapi.example.com", cfg.DeviceCloud.BaseURL)
	assert.Equal(t, 10*time.Minute, cfg.Reaper.StaleAfter())
}

func Test_GetConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
postgres_dsn: postgres://file@db/devices
log_level: DEBUG
scheduler:
  interval_seconds: 30
  batch_size: 5
reaper:
  interval_minutes: 1
device_cloud:
  client_id: abc
`), 0o600))
	t.Setenv("REDIS_HOST", "redis:6379")

	cfg, err := GetConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://file@db/devices", cfg.PostgresDSN)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30, cfg.Scheduler.IntervalSeconds)
	assert.Equal(t, 5, cfg.Scheduler.BatchSize)
	assert.Equal(t, time.Minute, cfg.Reaper.Interval())
	assert.Equal(t, "abc", cfg.DeviceCloud.ClientID)
	assert.Equal(t, "redis:6379", cfg.RedisHost, "env overrides the file")
}

func Test_Validate(t *testing.T) {
	valid := Configuration{
		PostgresDSN: "postgres://x",
		Scheduler:   SchedulerConfig{IntervalSeconds: 60, StopTimeoutSeconds: 5, BatchSize: 10},
		Reaper:      ReaperConfig{IntervalMinutes: 5, StaleAfterMinutes: 10},
	}
	require.NoError(t, Validate(valid))

	tests := []struct {
		name   string
		mutate func(c *Configuration)
	}{
		{"missing dsn", func(c *Configuration) { c.PostgresDSN = "" }},
		{"zero interval", func(c *Configuration) { c.Scheduler.IntervalSeconds = 0 }},
		{"negative backoff", func(c *Configuration) { c.Scheduler.ErrorBackoffSeconds = -1 }},
		{"zero batch", func(c *Configuration) { c.Scheduler.BatchSize = 0 }},
		{"zero reaper interval", func(c *Configuration) { c.Reaper.IntervalMinutes = 0 }},
		{"negative rate", func(c *Configuration) { c.DeviceCloud.RequestsPerSecond = -2 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			assert.Error(t, Validate(c))
		})
	}
}
