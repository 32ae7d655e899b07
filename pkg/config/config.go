package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the promotion engine
type Config struct {
	// Database settings
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Twitter API settings
	Twitter TwitterConfig `yaml:"twitter" json:"twitter"`

	// Text-generation collaborator settings
	TextGen TextGenConfig `yaml:"textgen" json:"textgen"`

	// Account pool settings
	Pool PoolConfig `yaml:"pool" json:"pool"`

	// Delayed job scheduler settings
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`

	// Local rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DatabaseConfig holds SQLite storage configuration
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// TwitterConfig holds settings for the external API client
type TwitterConfig struct {
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
}

// TextGenConfig holds settings for the text-generation collaborator
type TextGenConfig struct {
	APIKey string `yaml:"api_key" json:"api_key"`
	Model  string `yaml:"model" json:"model"`
}

// PoolConfig holds account pool behavior settings
type PoolConfig struct {
	// WriteLockDuration is the lock applied when a write cap is hit
	// without an explicit reset timestamp (the 24-hour cap class).
	WriteLockDuration time.Duration `yaml:"write_lock_duration" json:"write_lock_duration"`
}

// SchedulerConfig holds delayed job scheduler settings
type SchedulerConfig struct {
	ProcessEvery   time.Duration `yaml:"process_every" json:"process_every"`
	MaxConcurrency int           `yaml:"max_concurrency" json:"max_concurrency"`
	ReplyStagger   time.Duration `yaml:"reply_stagger" json:"reply_stagger"`
}

// RateLimitConfig holds the local call-smoothing limiter configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join("data", "xpromo.db"),
		},
		Twitter: TwitterConfig{
			BaseURL:    "https://api.twitter.com/2",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		TextGen: TextGenConfig{
			Model: "gpt-4o-mini",
		},
		Pool: PoolConfig{
			WriteLockDuration: 24 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			ProcessEvery:   10 * time.Second,
			MaxConcurrency: 5,
			ReplyStagger:   3 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if dbPath := os.Getenv("XPROMO_DB_PATH"); dbPath != "" {
		c.Database.Path = dbPath
	}
	if baseURL := os.Getenv("XPROMO_TWITTER_BASE_URL"); baseURL != "" {
		c.Twitter.BaseURL = baseURL
	}
	if apiKey := os.Getenv("XPROMO_TEXTGEN_API_KEY"); apiKey != "" {
		c.TextGen.APIKey = apiKey
	}
	if model := os.Getenv("XPROMO_TEXTGEN_MODEL"); model != "" {
		c.TextGen.Model = model
	}
	if rpm := os.Getenv("XPROMO_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if every := os.Getenv("XPROMO_PROCESS_EVERY"); every != "" {
		if d, err := time.ParseDuration(every); err == nil && d > 0 {
			c.Scheduler.ProcessEvery = d
		}
	}
	if maxConc := os.Getenv("XPROMO_MAX_CONCURRENCY"); maxConc != "" {
		if val, err := strconv.Atoi(maxConc); err == nil && val > 0 {
			c.Scheduler.MaxConcurrency = val
		}
	}
	if logLevel := os.Getenv("XPROMO_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".xpromo.yaml",
		".xpromo.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "xpromo", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "xpromo", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".xpromo.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database path is required"))
	}

	if c.Twitter.BaseURL == "" {
		errs = append(errs, errors.New("twitter base URL is required"))
	}
	if c.Twitter.Timeout <= 0 {
		errs = append(errs, errors.New("twitter timeout must be positive"))
	}
	if c.Twitter.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	if c.Pool.WriteLockDuration <= 0 {
		errs = append(errs, errors.New("write lock duration must be positive"))
	}

	if c.Scheduler.ProcessEvery <= 0 {
		errs = append(errs, errors.New("scheduler process interval must be positive"))
	}
	if c.Scheduler.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("scheduler max concurrency must be positive"))
	}
	if c.Scheduler.ReplyStagger < 0 {
		errs = append(errs, errors.New("reply stagger cannot be negative"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if dbPath, ok := flags["db"].(string); ok && dbPath != "" {
		c.Database.Path = dbPath
	}
	if model, ok := flags["model"].(string); ok && model != "" {
		c.TextGen.Model = model
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if rpm, ok := flags["rate-limit"].(int); ok && rpm > 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".xpromo.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
