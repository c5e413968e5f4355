// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultAPITimeout     = 15 * time.Second
	defaultFeedInterval   = 10 * time.Second
	defaultDetailInterval = 30 * time.Second
	defaultCacheTTL       = 5 * time.Second
	defaultStoreFilename  = "data/cafespot.db"
	defaultMetricsAddr    = ":9100"
)

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type IdentityConfig struct {
	UserPoolID string `yaml:"user_pool_id"`
	ClientID   string `yaml:"client_id"`
	// Region overrides the region parsed from the pool id.
	Region          string `yaml:"region,omitempty"`
	AccessKeyID     string `yaml:"-"` // Loaded from environment
	SecretAccessKey string `yaml:"-"` // Loaded from environment
}

// Enabled reports whether a user pool has been configured.
func (c IdentityConfig) Enabled() bool {
	return c.UserPoolID != "" || c.ClientID != ""
}

type PollingConfig struct {
	FeedInterval   time.Duration `yaml:"feed_interval"`
	DetailInterval time.Duration `yaml:"detail_interval"`
}

type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
	Password string        `yaml:"-"` // Loaded from environment
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
	} `yaml:"app"`

	API      APIConfig      `yaml:"api"`
	Identity IdentityConfig `yaml:"identity"`
	Polling  PollingConfig  `yaml:"polling"`
	Store    StoreConfig    `yaml:"store"`
	Cache    CacheConfig    `yaml:"cache"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Features struct {
		EnableMetrics bool   `yaml:"enable_metrics"`
		MetricsAddr   string `yaml:"metrics_addr"`
		EnableDebug   bool   `yaml:"enable_debug"`
	} `yaml:"features"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes yaml configuration, overlays environment secrets, fills
// defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Load sensitive values from environment
	cfg.Identity.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Identity.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	cfg.Cache.Password = os.Getenv("REDIS_PASSWORD")
	if override := os.Getenv("CAFESPOT_API_URL"); override != "" {
		cfg.API.BaseURL = override
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = defaultAPITimeout
	}
	if c.Polling.FeedInterval == 0 {
		c.Polling.FeedInterval = defaultFeedInterval
	}
	if c.Polling.DetailInterval == 0 {
		c.Polling.DetailInterval = defaultDetailInterval
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Filename == "" {
		c.Store.Filename = defaultStoreFilename
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = defaultCacheTTL
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "cafespot"
	}
	if c.Features.MetricsAddr == "" {
		c.Features.MetricsAddr = defaultMetricsAddr
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base_url is required")
	}
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("api base_url must be an http(s) URL: %q", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api timeout must be positive")
	}
	if c.Polling.FeedInterval < 0 || c.Polling.DetailInterval < 0 {
		return fmt.Errorf("polling intervals must be positive")
	}

	if c.Identity.Enabled() {
		if c.Identity.ClientID == "" {
			return fmt.Errorf("identity client_id is required when a user pool is configured")
		}
		if c.Identity.Region == "" && !strings.Contains(c.Identity.UserPoolID, "_") {
			return fmt.Errorf("identity user_pool_id must look like region_id: %q", c.Identity.UserPoolID)
		}
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Filename == "" {
			return fmt.Errorf("store filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported store driver: %s", c.Store.Driver)
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache addr is required when the cache is enabled")
	}

	return nil
}
