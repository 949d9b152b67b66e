package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	DBPath         string        `yaml:"db_path" json:"db_path"`
	Sources        []string      `yaml:"sources" json:"sources"`
	BundleEndpoint string        `yaml:"bundle_endpoint" json:"bundle_endpoint"`
	Platform       string        `yaml:"platform,omitempty" json:"platform,omitempty"`
	UnloadOnEnable bool          `yaml:"unload_on_enable" json:"unload_on_enable"`
	HTTP           HTTPConfig    `yaml:"http" json:"http"`
	Logging        LoggingConfig `yaml:"logging" json:"logging"`
	Server         ServerConfig  `yaml:"server" json:"server"`
}

// HTTPConfig configures outbound fetches.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit"` // requests per second, 0 = unlimited
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		DBPath:         "bundlereg.db",
		BundleEndpoint: "http://localhost:8000/bundles/{platform}/{filename}",
		UnloadOnEnable: true,
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "bundlereg/0.3",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// configPaths returns the list of paths to search for config file.
func configPaths() []string {
	paths := []string{
		".bundlereg.yaml",
		".bundlereg.yml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "bundlereg", "config.yaml"),
			filepath.Join(home, ".config", "bundlereg", "config.yml"),
			filepath.Join(home, ".bundlereg.yaml"),
		)
	}

	return paths
}

// Load loads configuration from file or returns defaults.
// Priority: env BUNDLEREG_CONFIG > search paths > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if envPath := os.Getenv("BUNDLEREG_CONFIG"); envPath != "" {
		if err := cfg.loadFromFile(envPath); err != nil {
			return nil, err
		}
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	for _, path := range configPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.loadFromFile(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // Path from env or fixed search list
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if dbPath := os.Getenv("BUNDLEREG_DB"); dbPath != "" {
		c.DBPath = dbPath
	}
	if sources := os.Getenv("BUNDLEREG_SOURCES"); sources != "" {
		c.Sources = splitList(sources)
	}
	if endpoint := os.Getenv("BUNDLEREG_BUNDLE_ENDPOINT"); endpoint != "" {
		c.BundleEndpoint = endpoint
	}
	if platform := os.Getenv("BUNDLEREG_PLATFORM"); platform != "" {
		c.Platform = platform
	}
	if addr := os.Getenv("BUNDLEREG_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks that sources and the bundle endpoint are usable URLs.
func (c *Config) Validate() error {
	var errs []error
	for _, src := range c.Sources {
		if err := checkHTTPURL(src); err != nil {
			errs = append(errs, fmt.Errorf("source %q: %w", src, err))
		}
	}
	if c.BundleEndpoint == "" {
		errs = append(errs, errors.New("bundle_endpoint is required"))
	} else if err := checkHTTPURL(strings.NewReplacer("{platform}", "p", "{filename}", "f").Replace(c.BundleEndpoint)); err != nil {
		errs = append(errs, fmt.Errorf("bundle_endpoint: %w", err))
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("http.rate_limit must not be negative"))
	}
	return errors.Join(errs...)
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// GetDBPath returns the database path, applying defaults.
func (c *Config) GetDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return "bundlereg.db"
}

// GetTimeout returns the HTTP timeout, applying defaults.
func (c *Config) GetTimeout() time.Duration {
	if c.HTTP.Timeout > 0 {
		return c.HTTP.Timeout
	}
	return 30 * time.Second
}
