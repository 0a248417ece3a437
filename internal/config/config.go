package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Search    SearchConfig    `yaml:"search"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Auth      AuthConfig      `yaml:"auth"`
	Media     MediaConfig     `yaml:"media"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Timezone  string          `yaml:"timezone"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           string   `yaml:"port"`
	PublicURL      string   `yaml:"public_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AdminToken     string   `yaml:"admin_token"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// CacheConfig selects the shared tier behind the in-process cache
type CacheConfig struct {
	Backend   string          `yaml:"backend"` // redis, memcached or none
	LocalSize int64           `yaml:"local_size"`
	Redis     RedisConfig     `yaml:"redis"`
	Memcached MemcachedConfig `yaml:"memcached"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MemcachedConfig contains Memcached servers
type MemcachedConfig struct {
	Servers []string `yaml:"servers"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
}

// RabbitMQConfig contains product event queue settings
type RabbitMQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// SMTPConfig contains outgoing mail settings
type SMTPConfig struct {
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port"`
	Username                string `yaml:"username"`
	Password                string `yaml:"password"`
	From                    string `yaml:"from"`
	PollIntervalSeconds     int    `yaml:"poll_interval_seconds"`
	BreakerThreshold        int    `yaml:"breaker_threshold"`
	BreakerResetTimeoutSecs int    `yaml:"breaker_reset_timeout_seconds"`
}

// AuthConfig contains token and one-time code settings
type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	AccessTTLMinutes int    `yaml:"access_ttl_minutes"`
	RefreshTTLHours  int    `yaml:"refresh_ttl_hours"`
	CodeExpiryHours  int    `yaml:"code_expiry_hours"`
}

// MediaConfig contains uploaded file settings
type MediaConfig struct {
	Root    string `yaml:"root"`
	BaseURL string `yaml:"base_url"`
}

// SchedulerConfig contains daily job settings
type SchedulerConfig struct {
	DailyRunEnabled bool   `yaml:"daily_run_enabled"`
	DailyRunTime    string `yaml:"daily_run_time"`
}

// CleanupConfig contains retention settings
type CleanupConfig struct {
	RetentionDays    int  `yaml:"retention_days"`
	MaxDeletionCount int  `yaml:"max_deletion_count"`
	DryRun           bool `yaml:"dry_run"`
}

// RateLimitConfig contains per-client limits for the sensitive account endpoints
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	RequestsPerHour   int  `yaml:"requests_per_hour"`
	RequestsPerDay    int  `yaml:"requests_per_day"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8084",
			PublicURL:      "http://localhost:8084",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Database: DatabaseConfig{
			Type: "mysql",
			MySQL: MySQLConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "bhara",
				Database: "bhara",
			},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "bhara",
				Database: "bhara",
			},
		},
		Cache: CacheConfig{
			Backend:   "none",
			LocalSize: 1000,
			Redis:     RedisConfig{Addr: "localhost:6379"},
			Memcached: MemcachedConfig{Servers: []string{"localhost:11211"}},
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{Host: "http://localhost:7700"},
		},
		RabbitMQ: RabbitMQConfig{
			Queue: "products_queue",
		},
		SMTP: SMTPConfig{
			Host:                    "smtp.gmail.com",
			Port:                    587,
			From:                    "Bhara <noreply@bhara.xyz>",
			PollIntervalSeconds:     15,
			BreakerThreshold:        5,
			BreakerResetTimeoutSecs: 300,
		},
		Auth: AuthConfig{
			AccessTTLMinutes: 5,
			RefreshTTLHours:  24,
			CodeExpiryHours:  24,
		},
		Media: MediaConfig{
			Root:    "media",
			BaseURL: "/media",
		},
		Scheduler: SchedulerConfig{
			DailyRunEnabled: false,
			DailyRunTime:    "02:00",
		},
		Cleanup: CleanupConfig{
			RetentionDays:    90,
			MaxDeletionCount: 10000,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 10,
			RequestsPerHour:   100,
			RequestsPerDay:    500,
		},
		Timezone: "Asia/Dhaka",
	}
}

// LoadEnv loads variables from a .env file if one exists.
// Variables already set in the environment win.
func LoadEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// AccessTTL returns the access token lifetime
func (c *AuthConfig) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMinutes) * time.Minute
}

// RefreshTTL returns the refresh token lifetime
func (c *AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLHours) * time.Hour
}

// CodeExpiry returns how long signup and reset codes stay valid
func (c *AuthConfig) CodeExpiry() time.Duration {
	return time.Duration(c.CodeExpiryHours) * time.Hour
}

// PollInterval returns how often the email worker checks the outbox
func (c *SMTPConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// BreakerResetTimeout returns how long the SMTP breaker stays open
func (c *SMTPConfig) BreakerResetTimeout() time.Duration {
	return time.Duration(c.BreakerResetTimeoutSecs) * time.Second
}
