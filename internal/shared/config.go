package shared

import (
	_ "embed"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML (or YAML) file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials" yaml:"credentials"`
	Proxy       ProxyConfig       `toml:"proxy" yaml:"proxy"`
	Database    DatabaseConfig    `toml:"database" yaml:"database"`
	Server      ServerConfig      `toml:"server" yaml:"server"`
	Ingest      IngestConfig      `toml:"ingest" yaml:"ingest"`
	Signatures  SignatureConfig   `toml:"signatures" yaml:"signatures"`
	Cache       CacheConfig       `toml:"cache" yaml:"cache"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify" yaml:"spotify"`
}

// SpotifyConfig contains client-credentials settings for the catalog API.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id" yaml:"client_id"`
	ClientSecret string `toml:"client_secret" yaml:"client_secret"`
	TokenURL     string `toml:"token_url" yaml:"token_url"`
	BaseURL      string `toml:"base_url" yaml:"base_url"`
}

// ProxyConfig describes the outbound HTTP proxy used for catalog requests.
type ProxyConfig struct {
	Host     string `toml:"host" yaml:"host"`
	Port     int    `toml:"port" yaml:"port"`
	User     string `toml:"user" yaml:"user"`
	Password string `toml:"password" yaml:"password"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path          string `toml:"path" yaml:"path"`
	MaxOpenConns  int    `toml:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns  int    `toml:"max_idle_conns" yaml:"max_idle_conns"`
	SearchBreadth int    `toml:"search_breadth" yaml:"search_breadth"` // candidate rows scanned by similarity queries, 0 = all
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`
}

// IngestConfig controls catalog traversal and track write-back.
type IngestConfig struct {
	BatchSize   int      `toml:"batch_size" yaml:"batch_size"`
	BatchDelay  Duration `toml:"batch_delay" yaml:"batch_delay"`
	AuthRetries int      `toml:"auth_retries" yaml:"auth_retries"`
	AuthBackoff Duration `toml:"auth_backoff" yaml:"auth_backoff"`
	RequestRate float64  `toml:"request_rate" yaml:"request_rate"` // requests per second, 0 = unlimited
}

// SignatureConfig controls signature computation.
type SignatureConfig struct {
	BatchSize        int      `toml:"batch_size" yaml:"batch_size"`
	Workers          int      `toml:"workers" yaml:"workers"`
	BatchDelay       Duration `toml:"batch_delay" yaml:"batch_delay"`
	Normalize        string   `toml:"normalize" yaml:"normalize"` // "z-score", "min-max" or "" for none
	Reduce           bool     `toml:"reduce" yaml:"reduce"`
	Components       int      `toml:"components" yaml:"components"`
	Features         []string `toml:"features" yaml:"features"`
	SampleRate       int      `toml:"sample_rate" yaml:"sample_rate"`
	MaxDuration      Duration `toml:"max_duration" yaml:"max_duration"`
	DurationFraction float64  `toml:"duration_fraction" yaml:"duration_fraction"`
	FetchRate        float64  `toml:"fetch_rate" yaml:"fetch_rate"` // preview downloads per second, 0 = unlimited
	FetchTimeout     Duration `toml:"fetch_timeout" yaml:"fetch_timeout"`
}

// CacheConfig contains settings for the on-disk preview cache.
type CacheConfig struct {
	Path     string `toml:"path" yaml:"path"`
	InMemory bool   `toml:"in_memory" yaml:"in_memory"`
}

// Duration is a [time.Duration] that decodes from strings such as "1s" or "250ms".
type Duration struct {
	time.Duration
}

// NewDuration wraps d.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText implements [encoding.TextUnmarshaler] (used by the TOML decoder).
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// URL builds the proxy URL, or returns nil when no proxy host is configured.
func (p ProxyConfig) URL() *url.URL {
	if p.Host == "" {
		return nil
	}

	host := p.Host
	if p.Port > 0 {
		host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}

	u := &url.URL{Scheme: "http", Host: host}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LoadConfig reads and parses a configuration file from the specified path.
//
// Files ending in .yaml or .yml are decoded as YAML, everything else as TOML.
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides credentials, proxy and database settings from environment variables.
//
// lookup is usually [os.LookupEnv].
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("TRACKSIG_CLIENT_ID"); ok && v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v, ok := lookup("TRACKSIG_CLIENT_SECRET"); ok && v != "" {
		c.Credentials.Spotify.ClientSecret = v
	}
	if v, ok := lookup("TRACKSIG_DB_PATH"); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup("PROXY_HOST"); ok {
		c.Proxy.Host = v
	}
	if v, ok := lookup("PROXY_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Proxy.Port = port
		}
	}
	if v, ok := lookup("PROXY_USER"); ok {
		c.Proxy.User = v
	}
	if v, ok := lookup("PROXY_PASSWORD"); ok {
		c.Proxy.Password = v
	}
}

// Validate reports settings that would make the pipelines misbehave.
func (c *Config) Validate() error {
	switch {
	case c.Ingest.BatchSize <= 0:
		return fmt.Errorf("%w: ingest.batch_size must be positive", ErrInvalidConfig)
	case c.Ingest.AuthRetries < 0:
		return fmt.Errorf("%w: ingest.auth_retries must not be negative", ErrInvalidConfig)
	case c.Signatures.BatchSize <= 0:
		return fmt.Errorf("%w: signatures.batch_size must be positive", ErrInvalidConfig)
	case c.Signatures.Workers <= 0:
		return fmt.Errorf("%w: signatures.workers must be positive", ErrInvalidConfig)
	case c.Signatures.Reduce && c.Signatures.Components <= 0:
		return fmt.Errorf("%w: signatures.components must be positive when reduce is set", ErrInvalidConfig)
	case c.Signatures.DurationFraction <= 0 || c.Signatures.DurationFraction > 1:
		return fmt.Errorf("%w: signatures.duration_fraction must be in (0, 1]", ErrInvalidConfig)
	case c.Signatures.SampleRate <= 0:
		return fmt.Errorf("%w: signatures.sample_rate must be positive", ErrInvalidConfig)
	}
	return nil
}
