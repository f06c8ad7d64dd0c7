// Package config loads taskprovider settings from taskprovider.yml, a .env file
// and TASKPROVIDER_ environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/taskprovider/internal/contract"
	"github.com/conduit-lang/taskprovider/internal/provider"
	"github.com/conduit-lang/taskprovider/internal/store"
	"github.com/conduit-lang/taskprovider/internal/uri"
)

// EnvPrefix namespaces environment overrides, e.g. TASKPROVIDER_SERVER_PORT
const EnvPrefix = "TASKPROVIDER"

// Config represents the taskprovider configuration
type Config struct {
	Authority   string             `mapstructure:"authority" yaml:"authority"`
	Collections []CollectionConfig `mapstructure:"collections" yaml:"collections"`
	Database    DatabaseConfig     `mapstructure:"database" yaml:"database"`
	Server      ServerConfig       `mapstructure:"server" yaml:"server"`
	Notify      NotifyConfig       `mapstructure:"notify" yaml:"notify"`
	Redis       RedisConfig        `mapstructure:"redis" yaml:"redis"`
	Auth        AuthConfig         `mapstructure:"auth" yaml:"auth"`
	Cache       CacheConfig        `mapstructure:"cache" yaml:"cache"`
	RateLimit   RateLimitConfig    `mapstructure:"ratelimit" yaml:"ratelimit"`
	Log         LogConfig          `mapstructure:"log" yaml:"log"`
}

// CollectionConfig routes a collection path to a table
type CollectionConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Table string `mapstructure:"table" yaml:"table,omitempty"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" yaml:"driver"`
	URL          string `mapstructure:"url" yaml:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host  string `mapstructure:"host" yaml:"host"`
	Port  int    `mapstructure:"port" yaml:"port"`
	Pprof bool   `mapstructure:"pprof" yaml:"pprof"`

	// AllowedOrigins may open the websocket change stream from a browser in
	// addition to the server's own origin. "*" allows any site.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`
}

// NotifyConfig sizes the change notifier
type NotifyConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
	Buffer  int `mapstructure:"buffer" yaml:"buffer"`
}

// RedisConfig enables cross-process change fan-out when Addr is set
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
}

// AuthConfig enables bearer token checks on writes when JWTSecret is set
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// CacheConfig enables the read cache. Entries live in redis when redis.addr
// is set, in memory otherwise.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// RateLimitConfig limits writes per client. Zero Writes disables it.
type RateLimitConfig struct {
	Writes int           `mapstructure:"writes" yaml:"writes"`
	Window time.Duration `mapstructure:"window" yaml:"window"`
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("authority", contract.Authority)
	v.SetDefault("database.driver", store.DriverSQLite)
	v.SetDefault("database.url", "file:tasks.db?_foreign_keys=on")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.pprof", false)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("notify.workers", 4)
	v.SetDefault("notify.buffer", 100)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "taskprovider:changes")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 30*time.Second)
	v.SetDefault("ratelimit.writes", 0)
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configuration. An empty path searches the working directory for
// taskprovider.yml; a missing file falls back to defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("taskprovider")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(config.Collections) == 0 {
		for _, c := range provider.DefaultCollections() {
			config.Collections = append(config.Collections, CollectionConfig{Path: c.Path, Table: c.Table})
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if c.Authority == "" {
		return fmt.Errorf("authority cannot be empty")
	}
	if strings.ContainsAny(c.Authority, "/ ") {
		return fmt.Errorf("authority %q must not contain '/' or spaces", c.Authority)
	}

	seen := make(map[string]bool, len(c.Collections))
	for i, col := range c.Collections {
		switch {
		case col.Path == "":
			return fmt.Errorf("collection path cannot be empty")
		case strings.Contains(col.Path, "/"):
			return fmt.Errorf("collection path %q must be a single segment", col.Path)
		case col.Path == uri.NumberWildcard || col.Path == uri.TextWildcard:
			return fmt.Errorf("collection path %q is a wildcard", col.Path)
		case seen[col.Path]:
			return fmt.Errorf("collection %q is listed twice", col.Path)
		}
		seen[col.Path] = true

		// The table defaults to the path and is interpolated into SQL
		table := col.Table
		if table == "" {
			table = col.Path
		}
		if err := store.ValidateIdentifier(table); err != nil {
			return fmt.Errorf("collections[%d].table: %w", i, err)
		}
	}

	if _, err := store.DialectFor(c.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url cannot be empty")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got: %d", c.Server.Port)
	}
	if c.Notify.Workers < 1 {
		return fmt.Errorf("notify.workers must be at least 1, got: %d", c.Notify.Workers)
	}
	if c.Notify.Buffer < 0 {
		return fmt.Errorf("notify.buffer cannot be negative, got: %d", c.Notify.Buffer)
	}
	if c.Redis.Addr != "" && c.Redis.Channel == "" {
		return fmt.Errorf("redis.channel cannot be empty when redis.addr is set")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive, got: %s", c.Auth.TokenTTL)
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got: %s", c.Cache.TTL)
	}
	if c.RateLimit.Writes < 0 {
		return fmt.Errorf("ratelimit.writes cannot be negative, got: %d", c.RateLimit.Writes)
	}
	if c.RateLimit.Writes > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be positive, got: %s", c.RateLimit.Window)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}

	return nil
}

// Address returns the server listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// StoreConfig converts the database section for store.Open
func (c *Config) StoreConfig() store.Config {
	cfg := store.DefaultConfig()
	cfg.Driver = c.Database.Driver
	cfg.URL = c.Database.URL
	cfg.MaxOpenConns = c.Database.MaxOpenConns
	cfg.MaxIdleConns = c.Database.MaxIdleConns

	for _, col := range c.ProviderCollections() {
		t := store.TasksTable()
		t.Name = col.Table
		cfg.Tables = append(cfg.Tables, t)
	}
	return cfg
}

// ProviderCollections returns the routed collections with tables defaulted
func (c *Config) ProviderCollections() []provider.Collection {
	out := make([]provider.Collection, 0, len(c.Collections))
	for _, col := range c.Collections {
		table := col.Table
		if table == "" {
			table = col.Path
		}
		out = append(out, provider.Collection{Path: col.Path, Table: table})
	}
	return out
}

// Render writes the effective configuration as YAML with secrets redacted
func (c *Config) Render(w io.Writer) error {
	shown := *c
	if shown.Auth.JWTSecret != "" {
		shown.Auth.JWTSecret = "<redacted>"
	}
	if shown.Redis.Password != "" {
		shown.Redis.Password = "<redacted>"
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&shown); err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	return enc.Close()
}

func (l LogConfig) level() (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return lvl, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// Logger builds a zap logger for the configured level and mode
func (l LogConfig) Logger() (*zap.Logger, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)

	return zc.Build()
}
