package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ErrMissingToken is returned when no bot token was supplied via file or BOT_TOKEN.
var ErrMissingToken = errors.New("telegram token is required: set BOT_TOKEN")

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" toml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" toml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" toml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" toml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" toml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" toml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" toml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" toml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" toml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order" toml:"keys_order"`
	DebugSample string `yaml:"debug_sample" toml:"debug_sample"`
	Dir         string `yaml:"dir" toml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file" toml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" toml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateChannelPost identifies channel posts for rate limit exclusions.
	UpdateChannelPost = "channel_post"
)

// RateLimitConfig holds settings for the per-user inbound rate limit.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": inline button presses
// - "message": private messages, including media
// - "channel_post": posts inside channels
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" toml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" toml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

const (
	// RelayModeBatch queues media until the user commits with /upload.
	RelayModeBatch = "batch"
	// RelayModeInstant relays every media item as soon as it arrives.
	RelayModeInstant = "instant"
)

// RelayConfig tunes the caption relay engine.
type RelayConfig struct {
	Mode string `yaml:"mode" toml:"mode" envconfig:"RELAY_MODE"`
	// QueueLimit caps the number of items a batch may hold.
	QueueLimit int `yaml:"queue_limit" toml:"queue_limit" envconfig:"RELAY_QUEUE_LIMIT"`
	// FloodBufferSeconds is added on top of every retry_after the API asks for.
	FloodBufferSeconds int `yaml:"flood_buffer_seconds" toml:"flood_buffer_seconds" envconfig:"RELAY_FLOOD_BUFFER_SECONDS"`
	// MaxFloodRetries bounds resubmissions of a single item; 0 means unbounded.
	MaxFloodRetries int `yaml:"max_flood_retries" toml:"max_flood_retries" envconfig:"RELAY_MAX_FLOOD_RETRIES"`
	// MaxFloodWait bounds the total flood wait for a single item; empty means unbounded.
	MaxFloodWait string `yaml:"max_flood_wait" toml:"max_flood_wait" envconfig:"RELAY_MAX_FLOOD_WAIT"`
	// DeleteSource removes the user's original message after a successful relay.
	DeleteSource bool `yaml:"delete_source" toml:"delete_source" envconfig:"RELAY_DELETE_SOURCE"`
}

// SessionConfig controls conversation lifetime.
type SessionConfig struct {
	IdleTimeout   string `yaml:"idle_timeout" toml:"idle_timeout" envconfig:"SESSION_IDLE_TIMEOUT"`
	SweepInterval string `yaml:"sweep_interval" toml:"sweep_interval" envconfig:"SESSION_SWEEP_INTERVAL"`
}

// SenderConfig tunes the outbound reply dispatcher.
type SenderConfig struct {
	QueueSize  int `yaml:"queue_size" toml:"queue_size"`
	Workers    int `yaml:"workers" toml:"workers"`
	MaxRetries int `yaml:"max_retries" toml:"max_retries"`
}

// MetricsConfig enables the Prometheus and health endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen" toml:"listen" envconfig:"METRICS_LISTEN"`
	Path   string `yaml:"path" toml:"path" envconfig:"METRICS_PATH"`
}

// DatabaseConfig holds connection settings for the optional relay journal.
type DatabaseConfig struct {
	Enabled        bool   `yaml:"enabled" toml:"enabled" envconfig:"DB_ENABLED"`
	Host           string `yaml:"host" toml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" toml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" toml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" toml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" toml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" toml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" toml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// MigrationsDir points at the *.up.sql files; relative paths resolve against the working directory.
	MigrationsDir string `yaml:"migrations_dir" toml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// DSN renders the key/value connection string understood by lib/pq.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.sslMode(),
	)
}

// URL renders the postgres:// form used by golang-migrate. Credentials are
// escaped.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.sslMode()),
	}
	return u.String()
}

func (d DatabaseConfig) sslMode() string {
	if d.SSLMode == "" {
		return "disable"
	}
	return d.SSLMode
}

// Config aggregates the bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram" toml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook" toml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Relay     RelayConfig     `yaml:"relay" toml:"relay"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Sender    SenderConfig    `yaml:"sender" toml:"sender"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
}

// CoreConfig satisfies the runner's config carrier.
func (c *Config) CoreConfig() *Config {
	return c
}

// Load reads configuration from a YAML or TOML file and environment variables.
// When optional is true a missing file is not an error and only the
// environment is used.
func Load(path string, optional bool) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &cfg); err != nil {
			return nil, err
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	if cfg.Telegram.Token == "" {
		return ErrMissingToken
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateChannelPost: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, channel_post", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if err := normalizeRelay(&cfg.Relay); err != nil {
		return err
	}
	if err := normalizeSession(&cfg.Session); err != nil {
		return err
	}
	if cfg.Metrics.Listen != "" && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Database.Enabled {
		if strings.TrimSpace(cfg.Database.Host) == "" {
			return fmt.Errorf("database.host is required when database.enabled is true")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 4
		}
		if cfg.Database.MigrationsDir == "" {
			cfg.Database.MigrationsDir = "migrations"
		}
	}
	return nil
}

func normalizeRelay(r *RelayConfig) error {
	mode := strings.ToLower(strings.TrimSpace(r.Mode))
	switch mode {
	case "":
		mode = RelayModeBatch
	case "single", "single_shot":
		mode = RelayModeInstant
	case RelayModeBatch, RelayModeInstant:
	default:
		return fmt.Errorf("invalid relay.mode %q; allowed: batch, instant", r.Mode)
	}
	r.Mode = mode

	if r.QueueLimit < 0 {
		return fmt.Errorf("relay.queue_limit must be >= 0")
	}
	if r.QueueLimit == 0 {
		r.QueueLimit = 50
	}
	if r.FloodBufferSeconds < 0 {
		return fmt.Errorf("relay.flood_buffer_seconds must be >= 0")
	}
	if r.FloodBufferSeconds == 0 {
		r.FloodBufferSeconds = 1
	}
	if r.MaxFloodRetries < 0 {
		return fmt.Errorf("relay.max_flood_retries must be >= 0")
	}
	if _, err := parseDuration("relay.max_flood_wait", r.MaxFloodWait); err != nil {
		return err
	}
	return nil
}

func normalizeSession(s *SessionConfig) error {
	if strings.TrimSpace(s.IdleTimeout) == "" {
		s.IdleTimeout = "30m"
	}
	if strings.TrimSpace(s.SweepInterval) == "" {
		s.SweepInterval = "1m"
	}
	if _, err := parseDuration("session.idle_timeout", s.IdleTimeout); err != nil {
		return err
	}
	if d, err := parseDuration("session.sweep_interval", s.SweepInterval); err != nil {
		return err
	} else if d <= 0 {
		return fmt.Errorf("session.sweep_interval must be > 0")
	}
	return nil
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("%s must be >= 0", field)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must be >= 0", field)
	}
	return d, nil
}

// MaxFloodWaitDuration returns the parsed relay.max_flood_wait (0 when unbounded).
func (r RelayConfig) MaxFloodWaitDuration() time.Duration {
	d, _ := parseDuration("relay.max_flood_wait", r.MaxFloodWait)
	return d
}

// FloodBuffer returns the configured safety buffer as a duration.
func (r RelayConfig) FloodBuffer() time.Duration {
	return time.Duration(r.FloodBufferSeconds) * time.Second
}

// IdleTimeoutDuration returns the parsed session.idle_timeout (0 disables eviction).
func (s SessionConfig) IdleTimeoutDuration() time.Duration {
	d, _ := parseDuration("session.idle_timeout", s.IdleTimeout)
	return d
}

// SweepIntervalDuration returns the parsed session.sweep_interval.
func (s SessionConfig) SweepIntervalDuration() time.Duration {
	d, _ := parseDuration("session.sweep_interval", s.SweepInterval)
	return d
}
