package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const FileName = "crm.yml"

// Config models crm.yml.
type Config struct {
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn,omitempty"`
	} `yaml:"database"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
		DevTokens bool          `yaml:"dev_tokens"`
	} `yaml:"auth"`
	Cases struct {
		PublicIDAttempts int `yaml:"public_id_attempts"`
		OverdueDays      int `yaml:"overdue_days"`
		DefaultLimit     int `yaml:"default_limit"`
		MaxLimit         int `yaml:"max_limit"`
	} `yaml:"cases"`
	Notify struct {
		Log     bool          `yaml:"log"`
		Redis   RedisConfig   `yaml:"redis"`
		Webhook WebhookConfig `yaml:"webhook"`
	} `yaml:"notify"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"maxlen"`
}

type WebhookConfig struct {
	URL        string        `yaml:"url,omitempty"`
	Secret     string        `yaml:"secret,omitempty"`
	MaxRetries int           `yaml:"max_retries"`
	RetryWait  time.Duration `yaml:"retry_wait"`
	Timeout    time.Duration `yaml:"timeout"`
	QueueSize  int           `yaml:"queue_size"`
	Events     []string      `yaml:"events,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Database.Driver = "sqlite"
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.BasePath = "/v1"
	cfg.Auth.TokenTTL = 12 * time.Hour
	cfg.Cases.PublicIDAttempts = 10
	cfg.Cases.OverdueDays = 7
	cfg.Cases.DefaultLimit = 50
	cfg.Cases.MaxLimit = 100
	cfg.Notify.Log = true
	cfg.Notify.Redis.Stream = "crm:notifications"
	cfg.Notify.Redis.MaxLen = 10000
	cfg.Notify.Webhook.MaxRetries = 5
	cfg.Notify.Webhook.RetryWait = 60 * time.Second
	cfg.Notify.Webhook.Timeout = 10 * time.Second
	cfg.Notify.Webhook.QueueSize = 256
	cfg.Log.Level = "info"
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite":
	case "postgres", "pgx", "postgresql":
		if c.Database.DSN == "" {
			return fmt.Errorf("config.database.dsn is required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("config.auth.token_ttl must not be negative")
	}
	if c.Cases.PublicIDAttempts < 1 {
		return fmt.Errorf("config.cases.public_id_attempts must be at least 1")
	}
	if c.Cases.OverdueDays < 1 {
		return fmt.Errorf("config.cases.overdue_days must be at least 1")
	}
	if c.Cases.MaxLimit < 1 || c.Cases.DefaultLimit < 1 || c.Cases.DefaultLimit > c.Cases.MaxLimit {
		return fmt.Errorf("config.cases limits invalid: default_limit=%d max_limit=%d", c.Cases.DefaultLimit, c.Cases.MaxLimit)
	}
	if c.Notify.Webhook.URL != "" && c.Notify.Webhook.MaxRetries < 1 {
		return fmt.Errorf("config.notify.webhook.max_retries must be at least 1")
	}
	if c.Notify.Redis.Addr != "" && c.Notify.Redis.Stream == "" {
		return fmt.Errorf("config.notify.redis.stream is required when redis.addr is set")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// FromYAML parses YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the workspace has no config file.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Load reads the workspace config and layers v's explicitly set keys
// (environment, flags) on top. v may be nil.
func Load(workspace string, v *viper.Viper) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if v != nil {
		cfg.ApplyOverrides(v)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides copies keys set in v onto c. Keys use the YAML paths, e.g.
// "database.dsn" or "notify.redis.addr".
func (c *Config) ApplyOverrides(v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	integer := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	boolean := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}
	str("database.driver", &c.Database.Driver)
	str("database.dsn", &c.Database.DSN)
	str("server.addr", &c.Server.Addr)
	str("server.base_path", &c.Server.BasePath)
	str("auth.jwt_secret", &c.Auth.JWTSecret)
	duration("auth.token_ttl", &c.Auth.TokenTTL)
	boolean("auth.dev_tokens", &c.Auth.DevTokens)
	integer("cases.public_id_attempts", &c.Cases.PublicIDAttempts)
	integer("cases.overdue_days", &c.Cases.OverdueDays)
	integer("cases.default_limit", &c.Cases.DefaultLimit)
	integer("cases.max_limit", &c.Cases.MaxLimit)
	boolean("notify.log", &c.Notify.Log)
	str("notify.redis.addr", &c.Notify.Redis.Addr)
	str("notify.redis.password", &c.Notify.Redis.Password)
	integer("notify.redis.db", &c.Notify.Redis.DB)
	str("notify.redis.stream", &c.Notify.Redis.Stream)
	if v.IsSet("notify.redis.maxlen") {
		c.Notify.Redis.MaxLen = v.GetInt64("notify.redis.maxlen")
	}
	str("notify.webhook.url", &c.Notify.Webhook.URL)
	str("notify.webhook.secret", &c.Notify.Webhook.Secret)
	integer("notify.webhook.max_retries", &c.Notify.Webhook.MaxRetries)
	duration("notify.webhook.retry_wait", &c.Notify.Webhook.RetryWait)
	duration("notify.webhook.timeout", &c.Notify.Webhook.Timeout)
	integer("notify.webhook.queue_size", &c.Notify.Webhook.QueueSize)
	if v.IsSet("notify.webhook.events") {
		c.Notify.Webhook.Events = v.GetStringSlice("notify.webhook.events")
	}
	str("log.level", &c.Log.Level)
	boolean("log.pretty", &c.Log.Pretty)
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Write stores c as the workspace config file.
func Write(workspace string, c *Config) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(Path(workspace), data, 0o600)
}
