// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session store backends.
const (
	SessionStoreFile  = "file"
	SessionStoreRedis = "redis"
)

// Config holds client configuration values loaded from file or environment variables.
type Config struct {
	APIBaseURL            string  `mapstructure:"API_BASE_URL"`
	Env                   string  `mapstructure:"APP_ENV"`
	LogLevel              string  `mapstructure:"LOG_LEVEL"`
	RequestTimeoutSeconds int     `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	PollIntervalSeconds   int     `mapstructure:"POLL_INTERVAL_SECONDS"`
	SessionStore          string  `mapstructure:"SESSION_STORE"`
	SessionFile           string  `mapstructure:"SESSION_FILE"`
	SessionProfile        string  `mapstructure:"SESSION_PROFILE"`
	RedisURL              string  `mapstructure:"REDIS_URL"`
	MediaCacheTTLSeconds  int     `mapstructure:"MEDIA_CACHE_TTL_SECONDS"`
	MaxUploadMB           int     `mapstructure:"MAX_UPLOAD_MB"`
	StatusAddr            string  `mapstructure:"STATUS_ADDR"`
	FeatureFlags          string  `mapstructure:"FEATURE_FLAGS"`
	TracingEnabled        bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter       string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint          string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio   float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/feedsync")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read profile-specific config 'config.%s.yml': %w", env, err)
			}
		} else {
			log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
		}
	}

	viper.SetDefault("API_BASE_URL", "http://localhost:4043")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("REQUEST_TIMEOUT_SECONDS", 15)
	viper.SetDefault("POLL_INTERVAL_SECONDS", 30)
	viper.SetDefault("SESSION_STORE", SessionStoreFile)
	viper.SetDefault("SESSION_FILE", "$HOME/.config/feedsync/session.yml")
	viper.SetDefault("SESSION_PROFILE", "default")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("MEDIA_CACHE_TTL_SECONDS", 600)
	viper.SetDefault("MAX_UPLOAD_MB", 10)
	viper.SetDefault("STATUS_ADDR", "127.0.0.1:8975")
	viper.SetDefault("FEATURE_FLAGS", "coalesce_likes=on,media_cache=on")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	config.APIBaseURL = strings.TrimRight(strings.TrimSpace(config.APIBaseURL), "/")
	config.SessionStore = strings.ToLower(strings.TrimSpace(config.SessionStore))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and consistent.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return errors.New("REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if c.PollIntervalSeconds <= 0 {
		return errors.New("POLL_INTERVAL_SECONDS must be positive")
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("MAX_UPLOAD_MB must be positive")
	}

	switch c.SessionStore {
	case SessionStoreFile:
		if c.SessionFile == "" {
			return errors.New("SESSION_FILE is required for the file session store")
		}
	case SessionStoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis session store")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreFile, SessionStoreRedis, c.SessionStore)
	}

	isProduction := c.Env == "production" || c.Env == "prod"
	if isProduction && u.Scheme != "https" {
		return errors.New("API_BASE_URL must use https in production")
	}
	if !isProduction && u.Scheme != "https" && u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		log.Println("WARNING: API_BASE_URL is plain http on a non-local host; bearer tokens travel unencrypted.")
	}

	return nil
}

// RequestTimeout is the per-request deadline applied by the API client.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// PollInterval is the unread-count refresh cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// MediaCacheTTL is how long fetched media stays in the Redis cache.
func (c *Config) MediaCacheTTL() time.Duration {
	return time.Duration(c.MediaCacheTTLSeconds) * time.Second
}

// MaxUploadBytes is the attachment size limit.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}
