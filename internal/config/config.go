// Package config loads service configuration from a YAML file with .env and
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the greeting engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	GigaChat   GigaChatConfig   `yaml:"gigachat"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Quality    QualityConfig    `yaml:"quality"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Feed       FeedConfig       `yaml:"feed"`
	Referral   ReferralConfig   `yaml:"referral"`
}

// ServerConfig holds the admin API listener settings.
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the dedup store settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GigaChatConfig holds the content-service credentials and tuning.
type GigaChatConfig struct {
	AuthKey           string  `yaml:"auth_key"`
	Scope             string  `yaml:"scope"`
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	AuthURL           string  `yaml:"auth_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// DispatcherConfig tunes the daily dispatch worker.
type DispatcherConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Concurrency  int           `yaml:"concurrency"`
	Images       bool          `yaml:"images"`
}

// QualityConfig tunes the sincerity gate.
type QualityConfig struct {
	Evaluate    bool    `yaml:"evaluate"`
	MinScore    float64 `yaml:"min_score"`
	MaxAttempts int     `yaml:"max_attempts"`
}

// ArchiveConfig holds the optional S3 greeting archive settings.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
}

// FeedConfig holds the optional holiday-feed poller settings.
type FeedConfig struct {
	Enabled      bool          `yaml:"enabled"`
	URL          string        `yaml:"url"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ReferralConfig tunes activation-code minting.
type ReferralConfig struct {
	CodeLength int `yaml:"code_length"`
}

// Load reads the YAML file at path and applies defaults. A missing file is
// not an error; defaults plus env overrides still produce a usable config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// LoadFromEnv loads the YAML file, then .env, then applies environment
// variable overrides. This is the entrypoint services use.
func LoadFromEnv(path string) (*Config, error) {
	// .env is optional; ignore a missing file.
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GIGACHAT_AUTH_KEY"); v != "" {
		cfg.GigaChat.AuthKey = v
	}
	if v := os.Getenv("GIGACHAT_SCOPE"); v != "" {
		cfg.GigaChat.Scope = v
	}
	if v := os.Getenv("GIGACHAT_MODEL"); v != "" {
		cfg.GigaChat.Model = v
	}
	if v := os.Getenv("GIGACHAT_BASE_URL"); v != "" {
		cfg.GigaChat.BaseURL = v
	}
	if v := os.Getenv("GIGACHAT_AUTH_URL"); v != "" {
		cfg.GigaChat.AuthURL = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: bad SERVER_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("API_AUTH_TOKEN"); v != "" {
		cfg.Server.AuthToken = v
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
		cfg.Archive.Enabled = true
	}
	if v := os.Getenv("ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("HOLIDAY_FEED_URL"); v != "" {
		cfg.Feed.URL = v
		cfg.Feed.Enabled = true
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Dispatcher.PollInterval <= 0 {
		c.Dispatcher.PollInterval = time.Hour
	}
	if c.Dispatcher.Concurrency <= 0 {
		c.Dispatcher.Concurrency = 4
	}
	if c.Quality.MinScore <= 0 {
		c.Quality.MinScore = 0.6
	}
	if c.Quality.MaxAttempts <= 0 {
		c.Quality.MaxAttempts = 2
	}
	if c.Feed.PollInterval <= 0 {
		c.Feed.PollInterval = 6 * time.Hour
	}
	if c.Referral.CodeLength <= 0 {
		c.Referral.CodeLength = 11
	}
}

// Addr returns the listen address of the admin API.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
