// Package config loads and validates storefront configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/spf13/viper"

	"github.com/JakeFAU/storefront/internal/admission"
	"github.com/JakeFAU/storefront/internal/logging"
	"github.com/JakeFAU/storefront/internal/navaccel"
	"github.com/JakeFAU/storefront/internal/storage/postgres"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    logging.Config   `mapstructure:"logging"`
	RateLimit  admission.Config `mapstructure:"ratelimit"`
	Navigation NavigationConfig `mapstructure:"navigation"`
	Shop       ShopConfig       `mapstructure:"shop"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         postgres.Config  `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Warm       WarmConfig       `mapstructure:"warm"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port               int    `mapstructure:"port"`
	StaticDir          string `mapstructure:"static_dir"`
	BaseURL            string `mapstructure:"base_url"`
	RequestTimeoutSecs int    `mapstructure:"request_timeout_seconds"`
	SecureCookies      bool   `mapstructure:"secure_cookies"`
}

// AuthConfig guards the admin surface.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// NavigationConfig feeds the browser navigation accelerator.
type NavigationConfig struct {
	Selector      string `mapstructure:"selector"`
	MarkerClass   string `mapstructure:"marker_class"`
	ScriptEnabled bool   `mapstructure:"script_enabled"`
}

// ShopConfig holds catalog defaults.
type ShopConfig struct {
	Currency string `mapstructure:"currency"`
	SeedDemo bool   `mapstructure:"seed_demo"`
}

// StorageConfig selects where product media and data live.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	BaseDir    string `mapstructure:"base_dir"`
	PublicBase string `mapstructure:"public_base"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
	GCSPublic  bool   `mapstructure:"gcs_public"`
	Prefix     string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for order event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// WarmConfig drives the `warm` command.
type WarmConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	RPS            float64 `mapstructure:"rps"`
	Burst          int     `mapstructure:"burst"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxPages       int     `mapstructure:"max_pages"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STOREFRONT")
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
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("ratelimit.window_ms", admission.DefaultWindowMs)
	v.SetDefault("ratelimit.max", admission.DefaultMax)
	v.SetDefault("ratelimit.key_prefix", admission.DefaultKeyPrefix)
	v.SetDefault("navigation.selector", navaccel.DefaultSelector)
	v.SetDefault("navigation.marker_class", navaccel.DefaultMarkerClass)
	v.SetDefault("navigation.script_enabled", true)
	v.SetDefault("shop.currency", "USD")
	v.SetDefault("shop.seed_demo", true)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.base_dir", "./data/media")
	v.SetDefault("storage.public_base", "/media")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_public", false)
	v.SetDefault("storage.prefix", "media")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("warm.user_agent", "storefront-warm/0.1")
	v.SetDefault("warm.rps", 5)
	v.SetDefault("warm.burst", 1)
	v.SetDefault("warm.timeout_seconds", 15)
	v.SetDefault("warm.max_pages", 100)
	v.SetDefault("warm.respect_robots", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Server.BaseURL != "" {
		u, err := url.Parse(c.Server.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.base_url must be an absolute URL")
		}
	}
	if c.RateLimit.WindowMs < 0 || c.RateLimit.Max < 0 {
		return fmt.Errorf("ratelimit.window_ms and ratelimit.max must be >= 0")
	}
	if c.Navigation.Selector != "" {
		if _, err := cascadia.ParseGroup(c.Navigation.Selector); err != nil {
			return fmt.Errorf("navigation.selector: %w", err)
		}
	}
	if strings.ContainsAny(c.Navigation.MarkerClass, " \t\n") {
		return fmt.Errorf("navigation.marker_class must be a single class name")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.DB.MaxConns < 0 || c.DB.MinConns < 0 || (c.DB.MaxConns > 0 && c.DB.MinConns > c.DB.MaxConns) {
		return fmt.Errorf("db.min_conns must be between 0 and db.max_conns")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.Warm.TimeoutSeconds <= 0 {
		return fmt.Errorf("warm.timeout_seconds must be > 0")
	}
	if c.Warm.MaxPages <= 0 {
		return fmt.Errorf("warm.max_pages must be > 0")
	}
	return nil
}

// RequestTimeout returns the per-request handler budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSecs) * time.Second
}

// WarmTimeout returns the per-fetch budget of the warm command.
func (c Config) WarmTimeout() time.Duration {
	return time.Duration(c.Warm.TimeoutSeconds) * time.Second
}
