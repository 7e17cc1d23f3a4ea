// Package config handles server configuration from the environment with
// optional YAML overrides for pipeline tunables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultCheckName is the name of the check run created per review pass.
	DefaultCheckName = "AI Code Review"

	// DefaultModel is the Claude model used for file reviews.
	DefaultModel = "claude-sonnet-4-20250514"

	// DefaultMaxPatchBytes is the per-file diff size ceiling; larger
	// patches are treated as generated or minified and skipped.
	DefaultMaxPatchBytes = 20000

	// DefaultMaxConcurrentFiles bounds the per-run worker pool.
	DefaultMaxConcurrentFiles = 4

	// DefaultRunTimeout bounds the wall-clock time of one pipeline run.
	DefaultRunTimeout = 5 * time.Minute
)

// Config holds the fully resolved server configuration.
type Config struct {
	AppID           int64
	WebhookSecret   string
	PrivateKey      []byte
	AnthropicAPIKey string
	DatabaseURL     string
	Port            string

	Model              string
	CheckName          string
	MaxPatchBytes      int
	MaxConcurrentFiles int64
	RunTimeout         time.Duration

	// SkipFiles and SkipSuffixes extend the built-in file filter denylists.
	SkipFiles    []string
	SkipSuffixes []string
}

// Overrides are the optional tunables loaded from a YAML file.
type Overrides struct {
	Model              string   `yaml:"model"`
	CheckName          string   `yaml:"check_name"`
	MaxPatchBytes      int      `yaml:"max_patch_bytes"`
	MaxConcurrentFiles int64    `yaml:"max_concurrent_files"`
	RunTimeout         string   `yaml:"run_timeout"`
	SkipFiles          []string `yaml:"skip_files"`
	SkipSuffixes       []string `yaml:"skip_suffixes"`
}

// Load reads configuration from the environment and, if REVIEWLOOP_CONFIG is
// set, applies overrides from that YAML file. Missing required values are
// fatal: the pipeline must not start without credentials.
func Load() (*Config, error) {
	cfg := &Config{
		WebhookSecret:      os.Getenv("GITHUB_WEBHOOK_SECRET"),
		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		Port:               os.Getenv("PORT"),
		Model:              DefaultModel,
		CheckName:          DefaultCheckName,
		MaxPatchBytes:      DefaultMaxPatchBytes,
		MaxConcurrentFiles: DefaultMaxConcurrentFiles,
		RunTimeout:         DefaultRunTimeout,
	}

	appIDStr := os.Getenv("GITHUB_APP_ID")
	if appIDStr == "" {
		return nil, fmt.Errorf("GITHUB_APP_ID is required")
	}
	appID, err := strconv.ParseInt(appIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
	}
	cfg.AppID = appID

	privateKey := os.Getenv("GITHUB_PRIVATE_KEY")
	if privateKey == "" {
		return nil, fmt.Errorf("GITHUB_PRIVATE_KEY is required")
	}
	// Keys pasted into env files often carry literal \n sequences.
	cfg.PrivateKey = []byte(strings.ReplaceAll(privateKey, `\n`, "\n"))

	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("GITHUB_WEBHOOK_SECRET is required")
	}
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	if path := os.Getenv("REVIEWLOOP_CONFIG"); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		overrides, err := ParseOverrides(content)
		if err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
		cfg.Apply(overrides)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseOverrides parses override tunables from YAML content.
func ParseOverrides(content []byte) (*Overrides, error) {
	var overrides Overrides
	if err := yaml.Unmarshal(content, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse overrides: %w", err)
	}

	if overrides.RunTimeout != "" {
		if _, err := time.ParseDuration(overrides.RunTimeout); err != nil {
			return nil, fmt.Errorf("invalid run_timeout: %w", err)
		}
	}

	return &overrides, nil
}

// Apply merges non-zero override values into the config.
func (c *Config) Apply(o *Overrides) {
	if o == nil {
		return
	}
	if o.Model != "" {
		c.Model = o.Model
	}
	if o.CheckName != "" {
		c.CheckName = o.CheckName
	}
	if o.MaxPatchBytes > 0 {
		c.MaxPatchBytes = o.MaxPatchBytes
	}
	if o.MaxConcurrentFiles > 0 {
		c.MaxConcurrentFiles = o.MaxConcurrentFiles
	}
	if o.RunTimeout != "" {
		if d, err := time.ParseDuration(o.RunTimeout); err == nil {
			c.RunTimeout = d
		}
	}
	c.SkipFiles = append(c.SkipFiles, o.SkipFiles...)
	c.SkipSuffixes = append(c.SkipSuffixes, o.SkipSuffixes...)
}

// Validate checks the resolved configuration for inconsistent values.
func (c *Config) Validate() error {
	if c.MaxPatchBytes <= 0 {
		return fmt.Errorf("max_patch_bytes must be positive, got %d", c.MaxPatchBytes)
	}
	if c.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("max_concurrent_files must be positive, got %d", c.MaxConcurrentFiles)
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be positive, got %s", c.RunTimeout)
	}
	return nil
}
