package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Fetch modes.
const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"
)

// Config stores all configuration for the application.
type Config struct {
	SitesFile        string   `mapstructure:"SITES_FILE"`
	OutputPath       string   `mapstructure:"OUTPUT_PATH"`
	ConcurrencyLimit int      `mapstructure:"CONCURRENCY_LIMIT"`
	FetchTimeout     int      `mapstructure:"FETCH_TIMEOUT"` // in seconds
	FetchMode        string   `mapstructure:"FETCH_MODE"`
	TolerateFailures bool     `mapstructure:"TOLERATE_FAILURES"`
	NormalizeLinks   bool     `mapstructure:"NORMALIZE_LINKS"`
	UserAgents       string   `mapstructure:"USER_AGENTS"` // "|" separated, UA strings contain commas
	Proxies          []string `mapstructure:"PROXIES"`
	RateLimitPerHost float64  `mapstructure:"RATE_LIMIT_PER_HOST"` // requests per second, 0 disables
	LogLevel         string   `mapstructure:"LOG_LEVEL"`
	LogFormat        string   `mapstructure:"LOG_FORMAT"`
	PostgresURL      string   `mapstructure:"POSTGRES_URL"`
	RedisAddr        string   `mapstructure:"REDIS_ADDR"`
	ServerPort       string   `mapstructure:"SERVER_PORT"`
	Schedule         string   `mapstructure:"SCHEDULE"`
}

// Load reads configuration from envFile (if present) and environment
// variables. Environment variables win over the file.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	// The file is optional so the scraper can run purely from the environment
	_ = v.ReadInConfig()

	v.SetDefault("SITES_FILE", "")
	v.SetDefault("OUTPUT_PATH", "output/result.json")
	v.SetDefault("CONCURRENCY_LIMIT", 50)
	v.SetDefault("FETCH_TIMEOUT", 15)
	v.SetDefault("FETCH_MODE", FetchModeHTTP)
	v.SetDefault("TOLERATE_FAILURES", false)
	v.SetDefault("NORMALIZE_LINKS", false)
	v.SetDefault("USER_AGENTS", "")
	v.SetDefault("PROXIES", []string{})
	v.SetDefault("RATE_LIMIT_PER_HOST", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SCHEDULE", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ConcurrencyLimit <= 0 {
		errs = append(errs, fmt.Errorf("CONCURRENCY_LIMIT must be positive, got %d", c.ConcurrencyLimit))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive, got %d", c.FetchTimeout))
	}
	if c.FetchMode != FetchModeHTTP && c.FetchMode != FetchModeBrowser {
		errs = append(errs, fmt.Errorf("FETCH_MODE must be %q or %q, got %q", FetchModeHTTP, FetchModeBrowser, c.FetchMode))
	}
	if c.RateLimitPerHost < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_HOST must not be negative, got %v", c.RateLimitPerHost))
	}
	if c.OutputPath == "" {
		errs = append(errs, errors.New("OUTPUT_PATH must not be empty"))
	}
	return errors.Join(errs...)
}

// Timeout is the per-request fetch timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// UserAgentList splits USER_AGENTS on "|".
func (c *Config) UserAgentList() []string {
	var agents []string
	for _, ua := range strings.Split(c.UserAgents, "|") {
		if ua = strings.TrimSpace(ua); ua != "" {
			agents = append(agents, ua)
		}
	}
	return agents
}
