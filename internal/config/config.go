// Package config loads postdeck configuration from the environment and an
// optional postdeck.yml file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values. Environment variables use
// the POSTDECK_ prefix, e.g. POSTDECK_API_URL.
type Config struct {
	Port            string        `mapstructure:"PORT"`
	DBPath          string        `mapstructure:"DB_PATH"`
	APIURL          string        `mapstructure:"API_URL"`
	APITimeout      time.Duration `mapstructure:"API_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogFormat       string        `mapstructure:"LOG_FORMAT"`
	StatePassphrase string        `mapstructure:"STATE_PASSPHRASE"`
	SkipRestore     bool          `mapstructure:"SKIP_RESTORE"`

	// Optional S3-compatible bucket for composer uploads.
	MediaEndpoint  string `mapstructure:"MEDIA_S3_ENDPOINT"`
	MediaBucket    string `mapstructure:"MEDIA_S3_BUCKET"`
	MediaRegion    string `mapstructure:"MEDIA_S3_REGION"`
	MediaAccessKey string `mapstructure:"MEDIA_S3_ACCESS_KEY"`
	MediaSecretKey string `mapstructure:"MEDIA_S3_SECRET_KEY"`
	MediaPublicURL string `mapstructure:"MEDIA_PUBLIC_URL"`
	MediaMaxBytes  int64  `mapstructure:"MEDIA_MAX_BYTES"`
}

var keys = []string{
	"PORT", "DB_PATH", "API_URL", "API_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT", "STATE_PASSPHRASE", "SKIP_RESTORE",
	"MEDIA_S3_ENDPOINT", "MEDIA_S3_BUCKET", "MEDIA_S3_REGION", "MEDIA_S3_ACCESS_KEY", "MEDIA_S3_SECRET_KEY",
	"MEDIA_PUBLIC_URL", "MEDIA_MAX_BYTES",
}

// Load reads configuration using a fresh viper instance. configPaths are the
// directories searched for postdeck.yml; a missing file is not an error.
func Load(configPaths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("postdeck")
	v.SetConfigType("yml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("POSTDECK")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_PATH", "postdeck.db")
	v.SetDefault("API_URL", "http://localhost:8000")
	v.SetDefault("API_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("STATE_PASSPHRASE", "")
	v.SetDefault("SKIP_RESTORE", false)
	v.SetDefault("MEDIA_S3_REGION", "us-east-1")
	v.SetDefault("MEDIA_MAX_BYTES", 10<<20)

	// AutomaticEnv only consults keys viper already knows about.
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	if len(configPaths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	return &cfg, nil
}

// Validate ensures required values are present and well formed.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if n, err := strconv.Atoi(c.Port); err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("PORT %q is not a valid port", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH is required")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_URL %q must be an absolute http(s) URL", c.APIURL)
	}
	if c.APITimeout <= 0 {
		return errors.New("API_TIMEOUT must be positive")
	}
	if c.MediaBucket != "" && (c.MediaAccessKey == "" || c.MediaSecretKey == "") {
		return errors.New("MEDIA_S3_ACCESS_KEY and MEDIA_S3_SECRET_KEY are required with MEDIA_S3_BUCKET")
	}
	if c.MediaMaxBytes <= 0 {
		return errors.New("MEDIA_MAX_BYTES must be positive")
	}
	return nil
}
