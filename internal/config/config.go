package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileNames are the config file names LoadFromDir looks for, in order.
var FileNames = []string{"widgetlab.yaml", "widgetlab.yml"}

// Config represents the widgetlab configuration
type Config struct {
	Title        string         `yaml:"title"`
	Description  string         `yaml:"description"`
	Server       ServerConfig   `yaml:"server"`
	Features     FeaturesConfig `yaml:"features"`
	Widgets      []string       `yaml:"widgets,omitempty"`       // Enabled widgets (default: all registered)
	TemplatesDir string         `yaml:"templates_dir,omitempty"` // Override embedded widget templates
	API          *APIConfig     `yaml:"api,omitempty"`
	Sessions     SessionsConfig `yaml:"sessions"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port  int    `yaml:"port"`
	Host  string `yaml:"host"`
	Debug bool   `yaml:"debug"`
}

// FeaturesConfig holds feature flags
type FeaturesConfig struct {
	HotReload   bool `yaml:"hot_reload"`  // Reload templates from templates_dir on change
	Metrics     bool `yaml:"metrics"`     // Expose /metrics
	Compression bool `yaml:"compression"` // Gzip responses
}

// SessionsConfig controls REST API widget sessions
type SessionsConfig struct {
	TTL string `yaml:"ttl,omitempty"` // Idle lifetime (e.g., "30m"). Default: 30m
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"` // Enable REST API endpoints (default: false)
	CORS      *CORSConfig      `yaml:"cors,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// CORSConfig holds CORS configuration for the API
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"` // Allowed origins (e.g., ["http://localhost:3000", "*"])
}

// RateLimitConfig holds rate limiting configuration for the API
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // Default: 10
	Burst             int     `yaml:"burst,omitempty"`               // Default: 20
	MaxClients        int     `yaml:"max_clients,omitempty"`         // Default: 10000
}

// GetTTL returns the parsed session TTL (default: 30m)
func (c SessionsConfig) GetTTL() time.Duration {
	if c.TTL == "" {
		return 30 * time.Minute
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// GetCORSOrigins returns the configured CORS origins, or nil if not configured
func (c *APIConfig) GetCORSOrigins() []string {
	if c == nil || c.CORS == nil {
		return nil
	}
	return c.CORS.Origins
}

// GetRateLimitRPS returns the rate limit in requests per second (default: 10)
func (c *APIConfig) GetRateLimitRPS() float64 {
	if c == nil || c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 20)
func (c *APIConfig) GetRateLimitBurst() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

// GetRateLimitMaxClients returns how many client buckets the limiter tracks (default: 10000)
func (c *APIConfig) GetRateLimitMaxClients() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.MaxClients <= 0 {
		return 10000
	}
	return c.RateLimit.MaxClients
}

// IsAPIEnabled returns whether the API is enabled
func (c *Config) IsAPIEnabled() bool {
	return c.API != nil && c.API.Enabled
}

// Addr returns host:port for the HTTP listener
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// WidgetEnabled reports whether a widget is served. An empty list enables all.
func (c *Config) WidgetEnabled(name string) bool {
	if len(c.Widgets) == 0 {
		return true
	}
	for _, w := range c.Widgets {
		if w == name {
			return true
		}
	}
	return false
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title:       "Widget Lab",
		Description: "Live widgets rendered on the server",
		Server: ServerConfig{
			Port:  8080,
			Host:  "localhost",
			Debug: false,
		},
		Features: FeaturesConfig{
			HotReload:   true,
			Metrics:     true,
			Compression: true,
		},
	}
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Relative template directories resolve against the config file.
	if config.TemplatesDir != "" && !filepath.IsAbs(config.TemplatesDir) {
		config.TemplatesDir = filepath.Join(filepath.Dir(configPath), config.TemplatesDir)
	}

	return config, nil
}

// LoadFromDir looks for widgetlab.yaml or widgetlab.yml in the given directory.
// If none is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
