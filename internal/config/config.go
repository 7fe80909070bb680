// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	ModePolling = "polling"
	ModeWebhook = "webhook"
	ModeNoop    = "noop" // no Telegram connection; outgoing messages are logged

	DefaultUpstreamURL = "https://api.sms-man.com/stubs/handler_api.php"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token         string `yaml:"token"`
	Mode          string `yaml:"mode"` // polling | webhook | noop
	AdminID       int64  `yaml:"admin_id"`
	NotifyChatID  int64  `yaml:"notify_chat_id"`
	WebhookURL    string `yaml:"webhook_url"` // public base, e.g. https://bot.example.com
	WebhookSecret string `yaml:"webhook_secret"`
	Language      string `yaml:"language"`
	Workers       int    `yaml:"workers"` // update workers
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Service string        `yaml:"service"`
	Timeout time.Duration `yaml:"timeout"`
}

type HunterConfig struct {
	PassDelay      time.Duration `yaml:"pass_delay"`
	FailureBackoff time.Duration `yaml:"failure_backoff"`
	ErrorCooldown  time.Duration `yaml:"error_cooldown"`
	SendDelay      time.Duration `yaml:"send_delay"`
	LockKey        string        `yaml:"lock_key"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
	CodePollLimit  int           `yaml:"code_poll_limit"` // per operation, 0 disables
	CodePollWindow time.Duration `yaml:"code_poll_window"`
}

type StoreConfig struct {
	Backend  string `yaml:"backend"` // file | redis | postgres
	Path     string `yaml:"path"`
	RedisKey string `yaml:"redis_key"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // 0 keeps the status key forever
}

type AdminConfig struct {
	APIKey       string        `yaml:"api_key"`
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Hunter   HunterConfig   `yaml:"hunter"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Admin    AdminConfig    `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, applies .env and environment overrides,
// fills defaults and validates everything the bot process needs.
func LoadConfig(path string, dev bool) (*Config, error) {
	cfg, err := Load(path, dev)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is LoadConfig without the bot validation; tools that only touch the
// status store use it.
func Load(path string, dev bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// env-only deployment
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	i64 := func(key string, dst *int64) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("BOT_TOKEN", &cfg.Bot.Token)
	str("BOT_MODE", &cfg.Bot.Mode)
	str("WEBHOOK_URL_BASE", &cfg.Bot.WebhookURL)
	str("WEBHOOK_SECRET", &cfg.Bot.WebhookSecret)
	if err := i64("ADMIN_ID", &cfg.Bot.AdminID); err != nil {
		return err
	}
	if err := i64("ADMIN_CHANNEL_ID", &cfg.Bot.NotifyChatID); err != nil {
		return err
	}
	var port int64
	if err := i64("PORT", &port); err != nil {
		return err
	}
	if port > 0 {
		cfg.HTTP.Port = int(port)
	}

	str("LOG_LEVEL", &cfg.Log.Level)
	str("SMS_API_BASE_URL", &cfg.Upstream.BaseURL)
	str("STORE_BACKEND", &cfg.Store.Backend)
	str("STORE_PATH", &cfg.Store.Path)
	str("REDIS_URL", &cfg.Redis.URL)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("DATABASE_URL", &cfg.Database.URL)
	str("ADMIN_API_KEY", &cfg.Admin.APIKey)
	str("ADMIN_JWT_SECRET", &cfg.Admin.JWTSecret)
	return nil
}

func (c *Config) applyDefaults() {
	c.Bot.Mode = strings.ToLower(strings.TrimSpace(c.Bot.Mode))
	if c.Bot.Mode == "" {
		c.Bot.Mode = ModePolling
		if c.Bot.WebhookURL != "" {
			c.Bot.Mode = ModeWebhook
		}
	}
	c.Bot.WebhookURL = strings.TrimRight(c.Bot.WebhookURL, "/")
	if c.Bot.WebhookSecret == "" {
		c.Bot.WebhookSecret = c.Bot.Token
	}
	if c.Bot.Language == "" {
		c.Bot.Language = "en"
	}
	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}

	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultUpstreamURL
	}
	if c.Upstream.Service == "" {
		c.Upstream.Service = "wa"
	}
	c.Upstream.Timeout = orDefault(c.Upstream.Timeout, 15*time.Second)

	c.Hunter.PassDelay = orDefault(c.Hunter.PassDelay, 5*time.Second)
	c.Hunter.FailureBackoff = orDefault(c.Hunter.FailureBackoff, 500*time.Millisecond)
	c.Hunter.ErrorCooldown = orDefault(c.Hunter.ErrorCooldown, 5*time.Second)
	c.Hunter.SendDelay = orDefault(c.Hunter.SendDelay, 100*time.Millisecond)
	c.Hunter.LockTTL = orDefault(c.Hunter.LockTTL, 2*time.Minute)
	if c.Hunter.LockKey == "" {
		c.Hunter.LockKey = "sms_hunter:lease"
	}
	c.Hunter.CodePollWindow = orDefault(c.Hunter.CodePollWindow, time.Minute)

	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
	if c.Store.Path == "" {
		c.Store.Path = "info.json"
	}
	if c.Store.RedisKey == "" {
		c.Store.RedisKey = "sms_hunter:status"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 4
	}

	c.Admin.SessionTTL = orDefault(c.Admin.SessionTTL, 30*time.Minute)
}

// Validate checks the settings the bot cannot start without.
func (c *Config) Validate() error {
	if c.Bot.Token == "" && c.Bot.Mode != ModeNoop {
		return errors.New("bot.token is required")
	}
	if c.Bot.AdminID == 0 {
		return errors.New("bot.admin_id is required")
	}
	if c.Bot.NotifyChatID == 0 {
		return errors.New("bot.notify_chat_id is required")
	}
	switch c.Bot.Mode {
	case ModePolling, ModeNoop:
	case ModeWebhook:
		if c.Bot.WebhookURL == "" {
			return errors.New("bot.webhook_url is required in webhook mode")
		}
	default:
		return fmt.Errorf("bot.mode %q is not supported", c.Bot.Mode)
	}
	if c.Admin.APIKey != "" && c.Admin.JWTSecret == "" {
		return errors.New("admin.jwt_secret is required when admin.api_key is set")
	}
	return c.ValidateStore()
}

// ValidateStore checks the status store backend settings.
func (c *Config) ValidateStore() error {
	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Path == "" {
			return errors.New("store.path is required")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return errors.New("redis.url is required")
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", c.Store.Backend)
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
