// Package config loads crawler configuration from the environment.
// A .env file is honored when present; explicit environment variables win.
package config

import (
	"errors"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Limit disabled sentinel: MaxDepth/MaxPages below zero mean "no limit".
const Unlimited = -1

// Default configuration values.
const (
	DefaultWorkers           = 12
	DefaultMaxDownloadBytes  = 2_000_000
	DefaultMaxSavedHTMLBytes = 500_000
	DefaultUserAgent         = "JooyaBot/1.0"
	DefaultAcceptLanguage    = "en-US,en;q=0.9"
	DefaultRequestTimeout    = 10 * time.Second
	DefaultMetricsAddr       = ":8000"
	DefaultMongoDatabase     = "jooyacrawler"
	DefaultMongoCollection   = "pages"
)

// ErrMissingDatabaseURL is returned when no Postgres DSN is configured.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL or RADAR_DATABASE_URL is required")

// Config holds the full crawler configuration.
type Config struct {
	DatabaseURL       string
	MongoURI          string
	MongoDatabase     string
	MongoCollection   string
	Workers           int
	MaxDepth          int // Unlimited when negative
	MaxPages          int // Unlimited when negative
	MaxDownloadBytes  int
	MaxSavedHTMLBytes int
	UserAgent         string
	AcceptLanguage    string
	RequestTimeout    time.Duration
	MetricsAddr       string
	LogLevel          string
}

// Load reads configuration from the environment, applying defaults.
// Returns ErrMissingDatabaseURL when no Postgres DSN is set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("WORKERS", DefaultWorkers)
	v.SetDefault("MAX_DEPTH", Unlimited)
	v.SetDefault("MAX_PAGES", Unlimited)
	v.SetDefault("MAX_DOWNLOAD_BYTES", DefaultMaxDownloadBytes)
	v.SetDefault("MAX_SAVED_HTML_BYTES", DefaultMaxSavedHTMLBytes)
	v.SetDefault("CRAWLER_USER_AGENT", DefaultUserAgent)
	v.SetDefault("CRAWLER_ACCEPT_LANGUAGE", DefaultAcceptLanguage)
	v.SetDefault("REQUEST_TIMEOUT", DefaultRequestTimeout)
	v.SetDefault("METRICS_ADDR", DefaultMetricsAddr)
	v.SetDefault("MONGO_DB", DefaultMongoDatabase)
	v.SetDefault("LOG_LEVEL", "info")

	dsn := v.GetString("RADAR_DATABASE_URL")
	if dsn == "" {
		dsn = v.GetString("DATABASE_URL")
	}
	if dsn == "" {
		return nil, ErrMissingDatabaseURL
	}

	mongoURI := v.GetString("MONGO_URI")
	if mongoURI == "" {
		mongoURI = v.GetString("MONGO_URL")
	}

	cfg := &Config{
		DatabaseURL:       NormalizePostgresDSN(dsn),
		MongoURI:          mongoURI,
		MongoDatabase:     v.GetString("MONGO_DB"),
		MongoCollection:   DefaultMongoCollection,
		Workers:           v.GetInt("WORKERS"),
		MaxDepth:          v.GetInt("MAX_DEPTH"),
		MaxPages:          v.GetInt("MAX_PAGES"),
		MaxDownloadBytes:  v.GetInt("MAX_DOWNLOAD_BYTES"),
		MaxSavedHTMLBytes: v.GetInt("MAX_SAVED_HTML_BYTES"),
		UserAgent:         v.GetString("CRAWLER_USER_AGENT"),
		AcceptLanguage:    v.GetString("CRAWLER_ACCEPT_LANGUAGE"),
		RequestTimeout:    v.GetDuration("REQUEST_TIMEOUT"),
		MetricsAddr:       v.GetString("METRICS_ADDR"),
		LogLevel:          v.GetString("LOG_LEVEL"),
	}

	return cfg.WithDefaults(), nil
}

// WithDefaults returns a copy with defaults applied for zero or invalid values.
func (c Config) WithDefaults() *Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.MaxDownloadBytes <= 0 {
		c.MaxDownloadBytes = DefaultMaxDownloadBytes
	}
	if c.MaxSavedHTMLBytes <= 0 {
		c.MaxSavedHTMLBytes = DefaultMaxSavedHTMLBytes
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = DefaultAcceptLanguage
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = DefaultMongoDatabase
	}
	if c.MongoCollection == "" {
		c.MongoCollection = DefaultMongoCollection
	}
	return &c
}
