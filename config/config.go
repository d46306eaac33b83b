package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Device   DeviceConfig   `mapstructure:"device"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
	// Ingress rate limit for push payloads, per client.
	NotificationLimit  int64         `mapstructure:"notification_limit"`
	NotificationWindow time.Duration `mapstructure:"notification_window"`
}

// BackendConfig describes the approval backend the gateway talks to.
type BackendConfig struct {
	URL          string        `mapstructure:"url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"` // requests per second
	RateBurst    int           `mapstructure:"rate_burst"`
	FetchRetries int           `mapstructure:"fetch_retries"`
}

// Endpoint joins the backend base URL with path.
func (b BackendConfig) Endpoint(path string) string {
	return strings.TrimRight(b.URL, "/") + "/" + strings.TrimLeft(path, "/")
}

type SyncConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
	DecideTimeout time.Duration `mapstructure:"decide_timeout"`
}

type DeviceConfig struct {
	TokenKey string `mapstructure:"token_key"`
	// SecretKey protects the secure store: either a 64-char hex AES-256 key
	// or a passphrase that is stretched with Argon2id.
	SecretKey string `mapstructure:"secret_key"`
	PushToken string `mapstructure:"push_token"`
}

// StorageConfig is the Redis connection used for history and the secure store.
type StorageConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	HistoryKey string `mapstructure:"history_key"`
}

// Addr returns the Redis address string.
func (s StorageConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the optional PostgreSQL decision audit log.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: GATEWAY_.
// Nested keys use underscore: GATEWAY_BACKEND_URL, GATEWAY_SYNC_POLL_INTERVAL, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.notification_limit", 60)
	v.SetDefault("server.notification_window", "1m")
	v.SetDefault("backend.url", "https://openclaw-prod.tailbc93c6.ts.net")
	v.SetDefault("backend.timeout", "15s")
	v.SetDefault("backend.rate_limit", 5.0)
	v.SetDefault("backend.rate_burst", 10)
	v.SetDefault("backend.fetch_retries", 2)
	v.SetDefault("sync.poll_interval", "30s")
	v.SetDefault("sync.poll_timeout", "20s")
	v.SetDefault("sync.decide_timeout", "15s")
	v.SetDefault("device.token_key", "openclaw_device_token")
	v.SetDefault("device.secret_key", "")
	v.SetDefault("device.push_token", "")
	v.SetDefault("storage.host", "localhost")
	v.SetDefault("storage.port", 6379)
	v.SetDefault("storage.password", "")
	v.SetDefault("storage.db", 0)
	v.SetDefault("storage.history_key", "approvals-storage:history")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "approval_gateway")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 5)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; env vars and defaults can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync.poll_interval must be positive, got %s", c.Sync.PollInterval)
	}
	if c.Sync.DecideTimeout <= 0 {
		return fmt.Errorf("sync.decide_timeout must be positive, got %s", c.Sync.DecideTimeout)
	}
	if c.Device.TokenKey == "" {
		return fmt.Errorf("device.token_key is required")
	}
	return nil
}
