// Package config combines defaults, an optional ~/.clipper.yaml file,
// CLIPPER_* environment variables, and CLI flags, in that order of
// precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings.
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool

	// Collection backend
	APIBaseURL   string
	RestaurantID string
	CollectionID string
	SourceID     string

	// Local storage
	DBPath string

	// Browser
	ChromePath      string
	BrowserPoolSize int
	UserAgent       string
	Proxy           string

	// Fetching
	HTTPTimeout       time.Duration
	RateLimitRPS      float64
	RateLimitBurst    int
	CacheTTL          time.Duration
	CacheMaxSizeBytes int64
	RenderSettle      time.Duration
}

// fileConfig is the shape of the optional YAML config file.
type fileConfig struct {
	LogLevel     string  `yaml:"log_level"`
	APIBaseURL   string  `yaml:"api_base_url"`
	RestaurantID string  `yaml:"restaurant_id"`
	CollectionID string  `yaml:"collection_id"`
	SourceID     string  `yaml:"source_id"`
	DBPath       string  `yaml:"db_path"`
	ChromePath   string  `yaml:"chrome_path"`
	UserAgent    string  `yaml:"user_agent"`
	Proxy        string  `yaml:"proxy"`
	PoolSize     int     `yaml:"browser_pool_size"`
	RateRPS      float64 `yaml:"rate_limit_rps"`
	RateBurst    int     `yaml:"rate_limit_burst"`
}

// Load builds the configuration. cmd may be nil when no flags apply.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := &Config{
		LogLevel:          DefaultLogLevel,
		JSONLog:           DefaultJSONLog,
		UserAgent:         DefaultUserAgent,
		HTTPTimeout:       DefaultHTTPTimeout,
		RateLimitRPS:      DefaultRateLimitRPS,
		RateLimitBurst:    DefaultRateLimitBurst,
		BrowserPoolSize:   DefaultBrowserPoolSize,
		CacheTTL:          DefaultCacheTTL,
		CacheMaxSizeBytes: DefaultCacheMaxSizeBytes,
		RenderSettle:      DefaultRenderSettle,
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.DBPath = filepath.Join(home, DefaultDBFile)
	} else {
		cfg.DBPath = "clipper.db"
	}

	if err := applyFile(cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	applyFlags(cfg, cmd)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyFile merges ~/.clipper.yaml when it exists. CLIPPER_CONFIG overrides
// the file location.
func applyFile(cfg *Config) error {
	path := os.Getenv("CLIPPER_CONFIG")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, DefaultConfigFile)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.APIBaseURL, fc.APIBaseURL)
	setString(&cfg.RestaurantID, fc.RestaurantID)
	setString(&cfg.CollectionID, fc.CollectionID)
	setString(&cfg.SourceID, fc.SourceID)
	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.ChromePath, fc.ChromePath)
	setString(&cfg.UserAgent, fc.UserAgent)
	setString(&cfg.Proxy, fc.Proxy)
	if fc.PoolSize > 0 {
		cfg.BrowserPoolSize = fc.PoolSize
	}
	if fc.RateRPS > 0 {
		cfg.RateLimitRPS = fc.RateRPS
	}
	if fc.RateBurst > 0 {
		cfg.RateLimitBurst = fc.RateBurst
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.APIBaseURL, os.Getenv("CLIPPER_API_URL"))
	setString(&cfg.RestaurantID, os.Getenv("CLIPPER_RESTAURANT_ID"))
	setString(&cfg.CollectionID, os.Getenv("CLIPPER_COLLECTION_ID"))
	setString(&cfg.SourceID, os.Getenv("CLIPPER_SOURCE_ID"))
	setString(&cfg.DBPath, os.Getenv("CLIPPER_DB"))
	setString(&cfg.ChromePath, os.Getenv("CLIPPER_CHROME"))
	setString(&cfg.UserAgent, os.Getenv("CLIPPER_USER_AGENT"))
	setString(&cfg.Proxy, os.Getenv("CLIPPER_PROXY"))
	if v := os.Getenv("CLIPPER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BrowserPoolSize = n
		}
	}
}

func applyFlags(cfg *Config, cmd *cobra.Command) {
	if cmd == nil {
		return
	}
	lookup := func(name string) *pflag.Flag {
		if f := cmd.Flags().Lookup(name); f != nil {
			return f
		}
		return cmd.PersistentFlags().Lookup(name)
	}
	flagString := func(name string, dst *string) {
		if f := lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	flagString("api-url", &cfg.APIBaseURL)
	flagString("restaurant", &cfg.RestaurantID)
	flagString("collection", &cfg.CollectionID)
	flagString("source", &cfg.SourceID)
	flagString("db", &cfg.DBPath)
	flagString("chrome", &cfg.ChromePath)
	flagString("user-agent", &cfg.UserAgent)
	flagString("proxy", &cfg.Proxy)

	if f := lookup("timeout"); f != nil && f.Changed {
		if d, err := time.ParseDuration(f.Value.String()); err == nil {
			cfg.HTTPTimeout = d
		}
	}
	if f := lookup("json"); f != nil && f.Value.String() == "true" {
		cfg.JSONLog = true
	}
	if f := lookup("verbose"); f != nil && f.Value.String() == "true" {
		cfg.LogLevel = "debug"
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
