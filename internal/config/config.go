// Package config loads and validates monitor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Sites    []string       `mapstructure:"sites"`
	Proxies  []string       `mapstructure:"proxies"`
	Webhooks WebhookConfig  `mapstructure:"webhooks"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Classify ClassifyConfig `mapstructure:"classify"`
	DB       DBConfig       `mapstructure:"db"`
	Server   ServerConfig   `mapstructure:"server"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// WebhookConfig holds the two delivery endpoints.
type WebhookConfig struct {
	NotifyURL string `mapstructure:"notify_url"`
	ErrorURL  string `mapstructure:"error_url"`
}

// FetchConfig governs paginated feed retrieval.
type FetchConfig struct {
	PageSize           int `mapstructure:"page_size"`
	MaxProducts        int `mapstructure:"max_products"`
	MaxErrors          int `mapstructure:"max_errors"`
	RateLimitThreshold int `mapstructure:"rate_limit_threshold"`
	CooldownMinutes    int `mapstructure:"cooldown_minutes"`
	TimeoutSeconds     int `mapstructure:"timeout_seconds"`
}

// MonitorConfig governs the per-site monitoring loop.
type MonitorConfig struct {
	PriceDropThreshold float64 `mapstructure:"price_drop_threshold"`
	SleepMinSeconds    int     `mapstructure:"sleep_min_seconds"`
	SleepMaxSeconds    int     `mapstructure:"sleep_max_seconds"`
	MaxFailures        int     `mapstructure:"max_failures"`
	NewNotifyCap       int     `mapstructure:"new_notify_cap"`
}

// ClassifyConfig points at the hot-reloadable keyword table.
type ClassifyConfig struct {
	TablePath string `mapstructure:"table_path"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ServerConfig controls the dashboard HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PubSubConfig holds metadata for the optional event stream.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ArchiveConfig names the optional raw-feed bucket. Empty disables
// archiving.
type ArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHOPMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetch.page_size", 250)
	v.SetDefault("fetch.max_products", 5000)
	v.SetDefault("fetch.max_errors", 5)
	v.SetDefault("fetch.rate_limit_threshold", 3)
	v.SetDefault("fetch.cooldown_minutes", 30)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("monitor.price_drop_threshold", 0.10)
	v.SetDefault("monitor.sleep_min_seconds", 240)
	v.SetDefault("monitor.sleep_max_seconds", 360)
	v.SetDefault("monitor.max_failures", 5)
	v.SetDefault("monitor.new_notify_cap", 15)
	v.SetDefault("classify.table_path", "configs/categories.yaml")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Sites) == 0 {
		return fmt.Errorf("at least one site must be configured")
	}
	for _, site := range c.Sites {
		if !strings.HasPrefix(site, "http://") && !strings.HasPrefix(site, "https://") {
			return fmt.Errorf("site %q must include an http(s) scheme", site)
		}
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.PageSize <= 0 || c.Fetch.PageSize > 250 {
		return fmt.Errorf("fetch.page_size must be in 1..250")
	}
	if c.Fetch.MaxProducts <= 0 {
		return fmt.Errorf("fetch.max_products must be > 0")
	}
	if c.Fetch.RateLimitThreshold <= 0 {
		return fmt.Errorf("fetch.rate_limit_threshold must be > 0")
	}
	if c.Monitor.PriceDropThreshold <= 0 || c.Monitor.PriceDropThreshold >= 1 {
		return fmt.Errorf("monitor.price_drop_threshold must be in (0, 1)")
	}
	if c.Monitor.SleepMinSeconds <= 0 || c.Monitor.SleepMaxSeconds < c.Monitor.SleepMinSeconds {
		return fmt.Errorf("monitor sleep window is invalid")
	}
	if c.Monitor.MaxFailures <= 0 {
		return fmt.Errorf("monitor.max_failures must be > 0")
	}
	return nil
}

// FetchTimeout converts the configured request timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// Cooldown converts the rate-limit cooldown into a duration.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Fetch.CooldownMinutes) * time.Minute
}

// SleepWindow returns the monitor's inter-cycle sleep bounds.
func (c Config) SleepWindow() (time.Duration, time.Duration) {
	return time.Duration(c.Monitor.SleepMinSeconds) * time.Second,
		time.Duration(c.Monitor.SleepMaxSeconds) * time.Second
}
