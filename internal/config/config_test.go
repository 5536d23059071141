package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Authority.StreamInterval)
	assert.Equal(t, 15*time.Second, cfg.Authority.PhaseInterval)
	assert.Equal(t, "http://localhost:8000", cfg.Authority.BaseURL)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", testSecret)
	t.Setenv("AUTHORITY_BASE_URL", "http://collector:9000/")
	t.Setenv("AUTHORITY_STREAM_INTERVAL", "500ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("SERVER_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://collector:9000", cfg.Authority.BaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Authority.StreamInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", testSecret)
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"bad authority url", func(c *Config) { c.Authority.BaseURL = "collector" }},
		{"zero stream interval", func(c *Config) { c.Authority.StreamInterval = 0 }},
		{"poll timeout beyond phase", func(c *Config) { c.Authority.PollTimeout = time.Minute }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"audit without redis", func(c *Config) { c.Redis.Enabled = false }},
		{"production http authority", func(c *Config) {
			c.App.Env = EnvProduction
			c.Auth.JWTSecret = testSecret + testSecret
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "require"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=require", c.DSN())
}
