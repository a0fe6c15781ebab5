package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File rotation settings. An empty LogFile disables the file core.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the per-account browser contexts.
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless" yaml:"headless"`
	UserAgent     string `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth   int    `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight  int    `mapstructure:"window_height" yaml:"window_height"`
	DisableImages bool   `mapstructure:"disable_images" yaml:"disable_images"`
	// StepsPerSecond paces UI step issuance per session against the
	// rate-limited remote surface. Zero disables pacing.
	StepsPerSecond float64 `mapstructure:"steps_per_second" yaml:"steps_per_second"`
}

// PoolConfig bounds concurrent UI activity across all accounts.
type PoolConfig struct {
	// MaxConcurrent is the capacity of the global limiter. Warm-up and
	// steady-state operations share it.
	MaxConcurrent int64 `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// SessionConfig carries the explicit timeouts and scroll parameters for
// session operations. Every UI wait takes one of these; there are no hidden
// global defaults.
type SessionConfig struct {
	StepTimeout      time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	ShortStepTimeout time.Duration `mapstructure:"short_step_timeout" yaml:"short_step_timeout"`
	LoginTimeout     time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`

	// PageSettle is the fixed delay after navigating to a content page;
	// ActionSettle the delay after submitting an interaction.
	PageSettle   time.Duration `mapstructure:"page_settle" yaml:"page_settle"`
	ActionSettle time.Duration `mapstructure:"action_settle" yaml:"action_settle"`

	FeedScrollPixels     int           `mapstructure:"feed_scroll_pixels" yaml:"feed_scroll_pixels"`
	FeedScrollSettle     time.Duration `mapstructure:"feed_scroll_settle" yaml:"feed_scroll_settle"`
	CommentScrollPixels  int           `mapstructure:"comment_scroll_pixels" yaml:"comment_scroll_pixels"`
	CommentScrollSettle  time.Duration `mapstructure:"comment_scroll_settle" yaml:"comment_scroll_settle"`
	FollowerScrollPixels int           `mapstructure:"follower_scroll_pixels" yaml:"follower_scroll_pixels"`
	FollowerScrollSettle time.Duration `mapstructure:"follower_scroll_settle" yaml:"follower_scroll_settle"`

	// StallLimit stops a scroll-collect loop after this many consecutive
	// iterations that produced no new items.
	StallLimit int `mapstructure:"stall_limit" yaml:"stall_limit"`
	// MaxComments caps comment collection during a single-item fetch.
	MaxComments int `mapstructure:"max_comments" yaml:"max_comments"`
}

// ActionLogConfig points at the external append-only action log.
type ActionLogConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// ServerConfig controls the thin HTTP front door.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// Config is the full application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Pool      PoolConfig      `mapstructure:"pool" yaml:"pool"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	ActionLog ActionLogConfig `mapstructure:"action_log" yaml:"action_log"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	// AccountsFile is the path to the credential list consumed at pool
	// construction.
	AccountsFile string `mapstructure:"accounts_file" yaml:"accounts_file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "weibopilot")
	v.SetDefault("logger.max_size", 5)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.disable_images", true)
	v.SetDefault("browser.steps_per_second", 2.0)

	v.SetDefault("pool.max_concurrent", 10)

	v.SetDefault("session.step_timeout", 50*time.Second)
	v.SetDefault("session.short_step_timeout", 20*time.Second)
	v.SetDefault("session.login_timeout", 50*time.Second)
	v.SetDefault("session.page_settle", 10*time.Second)
	v.SetDefault("session.action_settle", 5*time.Second)
	v.SetDefault("session.feed_scroll_pixels", 1000)
	v.SetDefault("session.feed_scroll_settle", 5*time.Second)
	v.SetDefault("session.comment_scroll_pixels", 500)
	v.SetDefault("session.comment_scroll_settle", 3*time.Second)
	v.SetDefault("session.follower_scroll_pixels", 500)
	v.SetDefault("session.follower_scroll_settle", 2*time.Second)
	v.SetDefault("session.stall_limit", 3)
	v.SetDefault("session.max_comments", 10)

	v.SetDefault("action_log.enabled", false)

	v.SetDefault("server.addr", ":11122")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Minute)

	v.SetDefault("accounts_file", "accounts.yaml")
}

// Load reads configuration from the given file (optional) plus WEIBOPILOT_*
// environment overrides, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WEIBOPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would make concurrency unbounded or
// waits infinite.
func (c *Config) Validate() error {
	if c.Pool.MaxConcurrent <= 0 {
		return fmt.Errorf("pool.max_concurrent must be positive, got %d", c.Pool.MaxConcurrent)
	}
	if c.Session.StepTimeout <= 0 || c.Session.ShortStepTimeout <= 0 || c.Session.LoginTimeout <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}
	if c.Session.StallLimit <= 0 {
		return fmt.Errorf("session.stall_limit must be positive, got %d", c.Session.StallLimit)
	}
	if c.ActionLog.Enabled && c.ActionLog.DSN == "" {
		return fmt.Errorf("action_log.dsn is required when the action log is enabled")
	}
	return nil
}
