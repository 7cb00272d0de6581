package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig holds the complete application configuration
type AppConfig struct {
	Scraper    ScraperConfig    `yaml:"scraper"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Keywords   []string         `yaml:"keywords"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Dedup      DedupConfig      `yaml:"dedup"`
	IO         IOConfig         `yaml:"io"`
	Proxies    ProxyConfig      `yaml:"proxies"`
	Browser    BrowserConfig    `yaml:"browser"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ScraperConfig holds the listing fetch configuration
type ScraperConfig struct {
	ListingURL string        `yaml:"listing_url"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	UserAgents []string      `yaml:"user_agents,omitempty"`
}

// ExtractionConfig holds the selectors used to split a listing page into postings
type ExtractionConfig struct {
	BlockSelector string `yaml:"block_selector"`
	TitleSelector string `yaml:"title_selector"`
	LinkSelector  string `yaml:"link_selector"`
	BodySelector  string `yaml:"body_selector"`
	MaxBodyLength int    `yaml:"max_body_length"`
}

// NotifierConfig holds the webhook and optional Telegram delivery settings
type NotifierConfig struct {
	WebhookURL     string        `yaml:"webhook_url"`
	Username       string        `yaml:"username"`
	AvatarURL      string        `yaml:"avatar_url"`
	Timeout        time.Duration `yaml:"timeout"`
	RateLimit      time.Duration `yaml:"rate_limit"`
	MaxPerCycle    int           `yaml:"max_per_cycle"`
	SendStartup    bool          `yaml:"send_startup"`
	TelegramToken  string        `yaml:"telegram_token"`
	TelegramChatID int64         `yaml:"telegram_chat_id"`
}

// ScheduleConfig holds the poll loop settings
type ScheduleConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RunOnStart bool          `yaml:"run_on_start"`
}

// DedupConfig selects and configures the seen-postings store
type DedupConfig struct {
	Backend      string        `yaml:"backend"`
	TTL          time.Duration `yaml:"ttl"`
	FilePath     string        `yaml:"file_path"`
	RedisAddress string        `yaml:"redis_address"`
	RedisDB      int           `yaml:"redis_db"`
	KeyPrefix    string        `yaml:"key_prefix"`
	PostgresURL  string        `yaml:"postgres_url"`
}

// IOConfig holds the matched postings output configuration
type IOConfig struct {
	KeywordsFile string `yaml:"keywords_file"`
	OutputDir    string `yaml:"output_dir"`
}

// ProxyConfig holds the proxy configuration
type ProxyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Rotate  bool     `yaml:"rotate"`
	List    []string `yaml:"list"`
	Auth    struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"auth"`
}

// BrowserConfig holds the browser configuration for JavaScript rendering
type BrowserConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Headless  bool          `yaml:"headless"`
	UserAgent string        `yaml:"user_agent"`
	WaitTime  time.Duration `yaml:"wait_time"`
}

// ServerConfig holds the status server configuration
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig holds the log level
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ConfigError reports missing or invalid configuration detected at startup
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is, or wraps, a ConfigError
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// Load builds the configuration from .env, an optional YAML file and the environment.
// An empty filename skips the YAML layer.
func Load(filename string) (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := CreateDefault()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, &ConfigError{Field: "config file", Reason: "cannot read " + filename, Err: err}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Field: "config file", Reason: "cannot parse " + filename, Err: err}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if cfg.IO.KeywordsFile != "" {
		extra, err := readKeywordsFile(cfg.IO.KeywordsFile)
		if err != nil {
			return nil, &ConfigError{Field: "io.keywords_file", Reason: "cannot read " + cfg.IO.KeywordsFile, Err: err}
		}
		cfg.Keywords = append(cfg.Keywords, extra...)
	}
	cfg.Keywords = NormalizeKeywords(cfg.Keywords)

	// Set default user agents if none provided
	if len(cfg.Scraper.UserAgents) == 0 {
		cfg.Scraper.UserAgents = DefaultUserAgents
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables
func (c *AppConfig) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("JOB_KEYWORDS"); ok && strings.TrimSpace(v) != "" {
		c.Keywords = strings.Split(v, ",")
	}
	if v, ok := lookup("WEBHOOK_URL"); ok && v != "" {
		c.Notifier.WebhookURL = v
	} else if v, ok := lookup("DISCORD_WEBHOOK_URL"); ok && v != "" {
		c.Notifier.WebhookURL = v
	}
	if v, ok := lookup("CHECK_INTERVAL"); ok && v != "" {
		seconds, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &ConfigError{Field: "CHECK_INTERVAL", Reason: "must be a positive integer number of seconds", Err: err}
		}
		if seconds <= 0 {
			return &ConfigError{Field: "CHECK_INTERVAL", Reason: "must be a positive integer number of seconds"}
		}
		c.Schedule.Interval = time.Duration(seconds) * time.Second
	}
	if v, ok := lookup("LISTING_URL"); ok && v != "" {
		c.Scraper.ListingURL = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Server.Address = ":" + v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup("DEDUP_BACKEND"); ok && v != "" {
		c.Dedup.Backend = v
	}
	if v, ok := lookup("REDIS_ADDRESS"); ok && v != "" {
		c.Dedup.RedisAddress = v
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Dedup.PostgresURL = v
	}
	if v, ok := lookup("TELEGRAM_BOT_TOKEN"); ok && v != "" {
		c.Notifier.TelegramToken = v
	}
	if v, ok := lookup("TELEGRAM_CHAT_ID"); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &ConfigError{Field: "TELEGRAM_CHAT_ID", Reason: "must be an integer", Err: err}
		}
		c.Notifier.TelegramChatID = id
	}
	return nil
}

// Validate checks the fields the notifier cannot start without
func (c *AppConfig) Validate() error {
	if c.Notifier.WebhookURL == "" {
		return &ConfigError{Field: "WEBHOOK_URL", Reason: "webhook URL is required"}
	}
	if err := validateURL(c.Notifier.WebhookURL); err != nil {
		return &ConfigError{Field: "WEBHOOK_URL", Reason: "invalid URL", Err: err}
	}
	if err := validateURL(c.Scraper.ListingURL); err != nil {
		return &ConfigError{Field: "LISTING_URL", Reason: "invalid URL", Err: err}
	}
	if c.Schedule.Interval <= 0 {
		return &ConfigError{Field: "CHECK_INTERVAL", Reason: "must be positive"}
	}
	if len(c.Keywords) == 0 {
		return &ConfigError{Field: "JOB_KEYWORDS", Reason: "at least one keyword is required"}
	}
	if c.Scraper.Timeout <= 0 || c.Notifier.Timeout <= 0 {
		return &ConfigError{Field: "timeout", Reason: "fetch and notify timeouts must be positive"}
	}
	if (c.Notifier.TelegramToken == "") != (c.Notifier.TelegramChatID == 0) {
		return &ConfigError{Field: "TELEGRAM_BOT_TOKEN", Reason: "token and chat ID must be set together"}
	}

	switch c.Dedup.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Dedup.FilePath == "" {
			return &ConfigError{Field: "dedup.file_path", Reason: "required for the file backend"}
		}
	case BackendRedis:
		if c.Dedup.RedisAddress == "" {
			return &ConfigError{Field: "REDIS_ADDRESS", Reason: "required for the redis backend"}
		}
	case BackendPostgres:
		if c.Dedup.PostgresURL == "" {
			return &ConfigError{Field: "DATABASE_URL", Reason: "required for the postgres backend"}
		}
	default:
		return &ConfigError{Field: "DEDUP_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.Dedup.Backend)}
	}
	if c.Dedup.TTL < 0 {
		return &ConfigError{Field: "dedup.ttl", Reason: "must not be negative"}
	}
	if c.Notifier.MaxPerCycle < 0 {
		return &ConfigError{Field: "notifier.max_per_cycle", Reason: "must not be negative"}
	}
	if c.Proxies.Enabled {
		for _, raw := range c.Proxies.List {
			u, err := url.Parse(raw)
			if err != nil || u.Host == "" {
				return &ConfigError{Field: "proxies.list", Reason: fmt.Sprintf("invalid proxy %q", raw)}
			}
		}
	}
	return nil
}

// TelegramEnabled reports whether Telegram delivery is configured
func (c *AppConfig) TelegramEnabled() bool {
	return c.Notifier.TelegramToken != "" && c.Notifier.TelegramChatID != 0
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// NormalizeKeywords trims and lower-cases keywords, dropping empties and repeats
// while keeping the configured order.
func NormalizeKeywords(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	keywords := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keywords = append(keywords, k)
	}
	return keywords
}
