package config

import "time"

// Default configuration values.
const (
	DefaultLogLevel           = "info"
	DefaultJSONLog            = false
	DefaultUserAgent          = "Mozilla/5.0 (compatible; clipper/1.0)"
	DefaultHTTPTimeout        = 30 * time.Second
	DefaultRateLimitRPS       = 2.0
	DefaultRateLimitBurst     = 4
	DefaultBrowserPoolSize    = 3
	DefaultMaxBrowserPoolSize = 10
	DefaultCacheTTL           = 5 * time.Minute
	DefaultCacheMaxSizeBytes  = 50 * 1024 * 1024
	DefaultRenderSettle       = 500 * time.Millisecond
	DefaultDBFile             = ".clipper/clipper.db"
	DefaultConfigFile         = ".clipper.yaml"
)
