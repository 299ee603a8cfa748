package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "config.yaml"

// Configuration is the service configuration, read from an optional YAML file and
// overridden by environment variables.
type Configuration struct {
	PostgresDSN   string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	RedisHost     string `yaml:"redis_host" env:"REDIS_HOST" env-default:"localhost:6379"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
	HTTPAddr      string `yaml:"http_addr" env:"HTTP_ADDR" env-default:":8080"`
	AdminToken    string `yaml:"admin_token" env:"ADMIN_TOKEN"`
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	Scheduler   SchedulerConfig   `yaml:"scheduler" env-prefix:"SCHEDULER_"`
	Reaper      ReaperConfig      `yaml:"reaper" env-prefix:"REAPER_"`
	DeviceCloud DeviceCloudConfig `yaml:"device_cloud" env-prefix:"DEVICE_CLOUD_"`
}

type SchedulerConfig struct {
	Autostart               bool `yaml:"autostart" env:"AUTOSTART" env-default:"true"`
	IntervalSeconds         int  `yaml:"interval_seconds" env:"INTERVAL_SECONDS" env-default:"60"`
	StopTimeoutSeconds      int  `yaml:"stop_timeout_seconds" env:"STOP_TIMEOUT_SECONDS" env-default:"5"`
	RestartPauseSeconds     int  `yaml:"restart_pause_seconds" env:"RESTART_PAUSE_SECONDS" env-default:"1"`
	ErrorBackoffSeconds     int  `yaml:"error_backoff_seconds" env:"ERROR_BACKOFF_SECONDS" env-default:"10"`
	ExecutionTimeoutSeconds int  `yaml:"execution_timeout_seconds" env:"EXECUTION_TIMEOUT_SECONDS" env-default:"0"`
	BatchSize               int  `yaml:"batch_size" env:"BATCH_SIZE" env-default:"50"`
}

type ReaperConfig struct {
	IntervalMinutes   int `yaml:"interval_minutes" env:"INTERVAL_MINUTES" env-default:"5"`
	StaleAfterMinutes int `yaml:"stale_after_minutes" env:"STALE_AFTER_MINUTES" env-default:"10"`
}

type DeviceCloudConfig struct {
	BaseURL           string  `yaml:"base_url" env:"BASE_URL"`
	ClientID          string  `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret      string  `yaml:"client_secret" env:"CLIENT_SECRET"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND" env-default:"10"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" env:"TIMEOUT_SECONDS" env-default:"10"`
}

func (s SchedulerConfig) Interval() time.Duration { return seconds(s.IntervalSeconds) }
func (s SchedulerConfig) StopTimeout() time.Duration {
	return seconds(s.StopTimeoutSeconds)
}
func (s SchedulerConfig) RestartPause() time.Duration {
	return seconds(s.RestartPauseSeconds)
}
func (s SchedulerConfig) ErrorBackoff() time.Duration {
	return seconds(s.ErrorBackoffSeconds)
}
func (s SchedulerConfig) ExecutionTimeout() time.Duration {
	return seconds(s.ExecutionTimeoutSeconds)
}

func (r ReaperConfig) Interval() time.Duration   { return time.Duration(r.IntervalMinutes) * time.Minute }
func (r ReaperConfig) StaleAfter() time.Duration { return time.Duration(r.StaleAfterMinutes) * time.Minute }

func (d DeviceCloudConfig) Timeout() time.Duration { return seconds(d.TimeoutSeconds) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// GetConfig loads the configuration. A missing file at path is not an error: the
// environment alone is then used.
func GetConfig(path string) (Configuration, error) {
	var cfg Configuration

	path = strings.TrimSpace(path)
	if st, err := os.Stat(path); path != "" && err == nil && !st.IsDir() {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read config env: %w", err)
	}

	normalize(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *Configuration) {
	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	cfg.RedisHost = strings.TrimSpace(cfg.RedisHost)
	cfg.HTTPAddr = strings.TrimSpace(cfg.HTTPAddr)
	cfg.AdminToken = strings.TrimSpace(cfg.AdminToken)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.DeviceCloud.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.DeviceCloud.BaseURL), "/")
	cfg.DeviceCloud.ClientID = strings.TrimSpace(cfg.DeviceCloud.ClientID)
	cfg.DeviceCloud.ClientSecret = strings.TrimSpace(cfg.DeviceCloud.ClientSecret)
}

// Validate rejects configurations the service cannot run with.
func Validate(cfg Configuration) error {
	var errs []error
	if cfg.PostgresDSN == "" {
		errs = append(errs, errors.New("postgres_dsn is required"))
	}
	if cfg.Scheduler.IntervalSeconds <= 0 {
		errs = append(errs, errors.New("scheduler.interval_seconds must be > 0"))
	}
	if cfg.Scheduler.StopTimeoutSeconds < 0 || cfg.Scheduler.RestartPauseSeconds < 0 ||
		cfg.Scheduler.ErrorBackoffSeconds < 0 || cfg.Scheduler.ExecutionTimeoutSeconds < 0 {
		errs = append(errs, errors.New("scheduler timings must be >= 0"))
	}
	if cfg.Scheduler.BatchSize <= 0 {
		errs = append(errs, errors.New("scheduler.batch_size must be > 0"))
	}
	if cfg.Reaper.IntervalMinutes <= 0 || cfg.Reaper.StaleAfterMinutes <= 0 {
		errs = append(errs, errors.New("reaper.interval_minutes and reaper.stale_after_minutes must be > 0"))
	}
	if cfg.DeviceCloud.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("device_cloud.requests_per_second must be >= 0"))
	}
	return errors.Join(errs...)
}
