package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/taskprovider/internal/contract"
	"github.com/conduit-lang/taskprovider/internal/store"
)

// inTempDir runs the test from an empty directory so no stray taskprovider.yml
// or .env is picked up
func inTempDir(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { os.Chdir(oldWd) })
	return tmpDir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, contract.Authority, cfg.Authority)
	assert.Equal(t, []CollectionConfig{{Path: "tasks", Table: "tasks"}}, cfg.Collections)
	assert.Equal(t, store.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "localhost:8080", cfg.Address())
	assert.Equal(t, 4, cfg.Notify.Workers)
	assert.Equal(t, 100, cfg.Notify.Buffer)
	assert.Equal(t, "taskprovider:changes", cfg.Redis.Channel)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Server.Pprof)
	assert.Empty(t, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 0, cfg.RateLimit.Writes)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := inTempDir(t)

	content := `
authority: com.example.notes
collections:
  - path: notes
  - path: archive
    table: archived_notes
database:
  driver: pgx
  url: postgres://localhost/notes
server:
  host: 0.0.0.0
  port: 9090
  allowed_origins:
    - https://app.example.com
auth:
  jwt_secret: s3cret
  token_ttl: 15m
cache:
  enabled: true
  ttl: 10s
ratelimit:
  writes: 20
  window: 30s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taskprovider.yml"), []byte(content), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "com.example.notes", cfg.Authority)
	assert.Equal(t, "0.0.0.0:9090", cfg.Address())
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, store.DriverPgx, cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 20, cfg.RateLimit.Writes)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)

	cols := cfg.ProviderCollections()
	require.Len(t, cols, 2)
	assert.Equal(t, "notes", cols[0].Table)
	assert.Equal(t, "archived_notes", cols[1].Table)

	sc := cfg.StoreConfig()
	assert.Equal(t, "postgres://localhost/notes", sc.URL)
	require.Len(t, sc.Tables, 2)
	assert.Equal(t, "notes", sc.Tables[0].Name)
	assert.Equal(t, "archived_notes", sc.Tables[1].Name)
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7000\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	inTempDir(t)
	t.Setenv("TASKPROVIDER_SERVER_PORT", "9999")
	t.Setenv("TASKPROVIDER_REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TASKPROVIDER_LOG_LEVEL=debug\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("TASKPROVIDER_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taskprovider.yml"), []byte("database:\n  driver: oracle\n"), 0644))

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Authority:   contract.Authority,
			Collections: []CollectionConfig{{Path: "tasks"}},
			Database:    DatabaseConfig{Driver: store.DriverSQLite, URL: ":memory:"},
			Server:      ServerConfig{Host: "localhost", Port: 8080},
			Notify:      NotifyConfig{Workers: 1, Buffer: 10},
			Auth:        AuthConfig{TokenTTL: time.Minute},
			Log:         LogConfig{Level: "warn"},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty authority", func(c *Config) { c.Authority = "" }, "authority"},
		{"authority with slash", func(c *Config) { c.Authority = "a/b" }, "authority"},
		{"empty collection", func(c *Config) { c.Collections = []CollectionConfig{{}} }, "collection path"},
		{"nested collection", func(c *Config) { c.Collections = []CollectionConfig{{Path: "a/b"}} }, "single segment"},
		{"wildcard collection", func(c *Config) { c.Collections = []CollectionConfig{{Path: "#"}} }, "wildcard"},
		{"duplicate collection", func(c *Config) {
			c.Collections = []CollectionConfig{{Path: "tasks"}, {Path: "tasks"}}
		}, "twice"},
		{"table injection", func(c *Config) {
			c.Collections = []CollectionConfig{{Path: "tasks", Table: "tasks; DROP TABLE tasks"}}
		}, "collections[0].table"},
		{"path unusable as table", func(c *Config) {
			c.Collections = []CollectionConfig{{Path: "tasks"}, {Path: "to-do"}}
		}, "collections[1].table"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"empty url", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"no workers", func(c *Config) { c.Notify.Workers = 0 }, "notify.workers"},
		{"negative buffer", func(c *Config) { c.Notify.Buffer = -1 }, "notify.buffer"},
		{"redis without channel", func(c *Config) { c.Redis.Addr = "localhost:6379" }, "redis.channel"},
		{"zero ttl", func(c *Config) { c.Auth.TokenTTL = 0 }, "auth.token_ttl"},
		{"zero cache ttl", func(c *Config) { c.Cache = CacheConfig{Enabled: true} }, "cache.ttl"},
		{"negative writes", func(c *Config) { c.RateLimit.Writes = -1 }, "ratelimit.writes"},
		{"zero window", func(c *Config) { c.RateLimit = RateLimitConfig{Writes: 5} }, "ratelimit.window"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRender_RedactsSecrets(t *testing.T) {
	inTempDir(t)
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Auth.JWTSecret = "top-secret"
	cfg.Redis.Password = "hunter2"

	var buf bytes.Buffer
	require.NoError(t, cfg.Render(&buf))

	out := buf.String()
	assert.Contains(t, out, "authority: "+contract.Authority)
	assert.Contains(t, out, "token_ttl: 1h0m0s")
	assert.Contains(t, out, "<redacted>")
	assert.NotContains(t, out, "top-secret")
	assert.NotContains(t, out, "hunter2")
	assert.Equal(t, "top-secret", cfg.Auth.JWTSecret)
}

func TestLogConfig_Logger(t *testing.T) {
	logger, err := LogConfig{Level: "debug", Development: true}.Logger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	logger, err = LogConfig{Level: "error"}.Logger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(0))

	_, err = LogConfig{Level: "nope"}.Logger()
	assert.Error(t, err)
}
