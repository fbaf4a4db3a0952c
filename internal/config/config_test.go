package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		APIBaseURL:            "http://localhost:4043",
		Env:                   "development",
		RequestTimeoutSeconds: 15,
		PollIntervalSeconds:   30,
		SessionStore:          SessionStoreFile,
		SessionFile:           "/tmp/feedsync/session.yml",
		MaxUploadMB:           10,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"missing base url", func(c *Config) { c.APIBaseURL = "" }, true},
		{"relative base url", func(c *Config) { c.APIBaseURL = "/api" }, true},
		{"zero timeout", func(c *Config) { c.RequestTimeoutSeconds = 0 }, true},
		{"zero poll interval", func(c *Config) { c.PollIntervalSeconds = 0 }, true},
		{"zero upload limit", func(c *Config) { c.MaxUploadMB = 0 }, true},
		{"unknown session store", func(c *Config) { c.SessionStore = "memory" }, true},
		{"redis store without url", func(c *Config) { c.SessionStore = SessionStoreRedis }, true},
		{"redis store with url", func(c *Config) {
			c.SessionStore = SessionStoreRedis
			c.RedisURL = "redis://localhost:6379"
		}, false},
		{"production over http", func(c *Config) { c.Env = "production" }, true},
		{"production over https", func(c *Config) {
			c.Env = "production"
			c.APIBaseURL = "https://feed.example.com"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "development")
	t.Setenv("API_BASE_URL", "http://127.0.0.1:9000/")
	t.Setenv("POLL_INTERVAL_SECONDS", "5")
	t.Setenv("SESSION_STORE", "  REDIS ")
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")

	c, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9000", c.APIBaseURL)
	assert.Equal(t, 5*time.Second, c.PollInterval())
	assert.Equal(t, SessionStoreRedis, c.SessionStore)
	assert.Equal(t, 15*time.Second, c.RequestTimeout())
	assert.Equal(t, int64(10*1024*1024), c.MaxUploadBytes())
}
