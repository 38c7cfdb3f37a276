package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Queue     QueueConfig
	Scheduler SchedulerConfig
	Sync      SyncConfig

	DevicesConfigPath string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// QueueConfig tunes the persistent job queue and its worker pool.
type QueueConfig struct {
	Workers         int
	PollInterval    time.Duration
	MaxAttempts     int
	Lease           time.Duration
	ReclaimInterval time.Duration
}

// SchedulerConfig governs the periodic reconciliation trigger.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
	Owner    string
}

// SyncConfig governs device fan-out and the post-sync barrier.
type SyncConfig struct {
	BarrierTimeout time.Duration
	SafetyDelay    time.Duration
	HTTPTimeout    time.Duration
	HTTPRetries    int
	SnapshotTTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.DevicesConfigPath = v.GetString("DEVICES_CONFIG_PATH")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Queue = QueueConfig{
		Workers:         v.GetInt("QUEUE_WORKERS"),
		PollInterval:    parseDuration(v.GetString("QUEUE_POLL_INTERVAL"), 10*time.Second),
		MaxAttempts:     v.GetInt("QUEUE_MAX_ATTEMPTS"),
		Lease:           parseDuration(v.GetString("QUEUE_LEASE"), 30*time.Minute),
		ReclaimInterval: parseDuration(v.GetString("QUEUE_RECLAIM_INTERVAL"), time.Minute),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:  v.GetBool("SCHEDULER_ENABLED"),
		Interval: parseDuration(v.GetString("SCHEDULER_INTERVAL"), 6*time.Hour),
		Owner:    v.GetString("SCHEDULER_OWNER"),
	}

	cfg.Sync = SyncConfig{
		BarrierTimeout: parseDuration(v.GetString("SYNC_BARRIER_TIMEOUT"), 30*time.Minute),
		SafetyDelay:    parseDuration(v.GetString("SYNC_SAFETY_DELAY"), 10*time.Second),
		HTTPTimeout:    parseDuration(v.GetString("SYNC_HTTP_TIMEOUT"), 30*time.Second),
		HTTPRetries:    v.GetInt("SYNC_HTTP_RETRIES"),
		SnapshotTTL:    parseDuration(v.GetString("SYNC_SNAPSHOT_TTL"), time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("DEVICES_CONFIG_PATH", "devices.yaml")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "presensi")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("QUEUE_WORKERS", 2)
	v.SetDefault("QUEUE_POLL_INTERVAL", "10s")
	v.SetDefault("QUEUE_MAX_ATTEMPTS", 3)
	v.SetDefault("QUEUE_LEASE", "30m")
	v.SetDefault("QUEUE_RECLAIM_INTERVAL", "1m")

	v.SetDefault("SCHEDULER_ENABLED", false)
	v.SetDefault("SCHEDULER_INTERVAL", "6h")
	v.SetDefault("SCHEDULER_OWNER", "scheduler")

	v.SetDefault("SYNC_BARRIER_TIMEOUT", "30m")
	v.SetDefault("SYNC_SAFETY_DELAY", "10s")
	v.SetDefault("SYNC_HTTP_TIMEOUT", "30s")
	v.SetDefault("SYNC_HTTP_RETRIES", 3)
	v.SetDefault("SYNC_SNAPSHOT_TTL", "1m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate performs cheap sanity checks before wiring services.
func (c *Config) Validate() error {
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("QUEUE_WORKERS must be positive, got %d", c.Queue.Workers)
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be positive, got %d", c.Queue.MaxAttempts)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL must be positive")
	}
	return nil
}
