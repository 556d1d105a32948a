package shared

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Cache  CacheConfig  `toml:"cache"`
	HTTP   HTTPConfig   `toml:"http"`
	Auth   AuthConfig   `toml:"auth"`
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
}

// CacheConfig contains blob storage and index database settings.
type CacheConfig struct {
	Dir           string `toml:"dir"`
	Database      string `toml:"database"`
	MaxBytes      int64  `toml:"max_bytes"`
	MemoryEntries int    `toml:"memory_entries"`
	MaxOpenConns  int    `toml:"max_open_conns"`
	MaxIdleConns  int    `toml:"max_idle_conns"`
}

// BlobDir returns the configured blob directory, falling back to [CacheDir].
func (c CacheConfig) BlobDir() string {
	if c.Dir != "" {
		return c.Dir
	}
	return CacheDir()
}

// DatabasePath returns the configured index path, defaulting to index.db
// inside the blob directory.
func (c CacheConfig) DatabasePath() string {
	if c.Database != "" {
		return c.Database
	}
	return filepath.Join(c.BlobDir(), "index.db")
}

// HTTPConfig contains download client settings.
type HTTPConfig struct {
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MaxBytes       int64   `toml:"max_bytes"`
	RatePerSecond  float64 `toml:"rate_per_second"`
	Burst          int     `toml:"burst"`
	UserAgent      string  `toml:"user_agent"`
	HeadersFile    string  `toml:"headers_file"`
}

// Timeout returns the request timeout as a [time.Duration].
func (c HTTPConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AuthConfig contains OAuth2 client-credentials settings for CDNs that
// require bearer tokens. An empty token URL disables authentication.
type AuthConfig struct {
	TokenURL     string   `toml:"token_url"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	Scopes       []string `toml:"scopes"`
}

// Enabled reports whether client-credentials auth is configured.
func (a AuthConfig) Enabled() bool {
	return a.TokenURL != "" && a.ClientID != ""
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// ResolveConfig loads the configuration from the explicit path when given,
// otherwise searches <config dir>/imgmux.toml then ./imgmux.toml, falling
// back to [DefaultConfig]. The returned path is empty when defaults were used.
func ResolveConfig(explicit string) (*Config, string, error) {
	if explicit != "" {
		cfg, err := LoadConfig(explicit)
		return cfg, explicit, err
	}

	candidates := []string{
		filepath.Join(ConfigDir(), "imgmux.toml"),
		"imgmux.toml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadConfig(path)
			return cfg, path, err
		}
	}

	return DefaultConfig(), "", nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
