package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
//
// Every field may be overridden from the environment after the file is read.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Community   CommunityConfig   `toml:"community"`
	Lavalink    LavalinkConfig    `toml:"lavalink"`
	Cache       CacheConfig       `toml:"cache"`
	Policy      PolicyConfig      `toml:"policy"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	YouTube YouTubeConfig `toml:"youtube"`
}

// SpotifyConfig contains Spotify client-credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id" env:"SPOTIFY_CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"SPOTIFY_CLIENT_SECRET"`
}

// YouTubeConfig contains YouTube Data API credentials.
type YouTubeConfig struct {
	APIKey         string  `toml:"api_key" env:"YOUTUBE_API_KEY"`
	QuotaPerSecond float64 `toml:"quota_per_second" env:"YOUTUBE_QUOTA_PER_SECOND"`
}

// CommunityConfig configures the shared community cache service.
type CommunityConfig struct {
	URL                    string `toml:"url" env:"AUDIOCACHE_COMMUNITY_URL"`
	APIKey                 string `toml:"api_key" env:"AUDIOCACHE_COMMUNITY_API_KEY"`
	Enabled                bool   `toml:"enabled" env:"AUDIOCACHE_COMMUNITY_ENABLED"`
	TimeoutSeconds         int    `toml:"timeout_seconds" env:"AUDIOCACHE_COMMUNITY_TIMEOUT"`
	HandshakeWindowMinutes int    `toml:"handshake_window_minutes" env:"AUDIOCACHE_COMMUNITY_HANDSHAKE_WINDOW"`
}

// Timeout returns the per-request timeout for community calls.
func (c CommunityConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HandshakeWindow returns how long an availability probe result stays valid.
func (c CommunityConfig) HandshakeWindow() time.Duration {
	if c.HandshakeWindowMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.HandshakeWindowMinutes) * time.Minute
}

// LavalinkConfig contains load node connection settings.
type LavalinkConfig struct {
	Address        string `toml:"address" env:"LAVALINK_ADDRESS"`
	Password       string `toml:"password" env:"LAVALINK_PASSWORD"`
	TimeoutSeconds int    `toml:"timeout_seconds" env:"LAVALINK_TIMEOUT"`
}

// Timeout returns the load node request timeout.
func (c LavalinkConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheConfig controls which cache tiers are active and how long records live.
type CacheConfig struct {
	Level       int `toml:"level" env:"AUDIOCACHE_CACHE_LEVEL"`
	AgeDays     int `toml:"age_days" env:"AUDIOCACHE_CACHE_AGE_DAYS"`
	RefreshDays int `toml:"refresh_days" env:"AUDIOCACHE_CACHE_REFRESH_DAYS"`
}

// PolicyConfig holds the keyword allow and deny lists.
type PolicyConfig struct {
	Allowlist []string `toml:"allowlist" env:"AUDIOCACHE_POLICY_ALLOWLIST" envSeparator:","`
	Denylist  []string `toml:"denylist" env:"AUDIOCACHE_POLICY_DENYLIST" envSeparator:","`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"AUDIOCACHE_DATABASE_PATH"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host                 string `toml:"host" env:"AUDIOCACHE_HOST"`
	Port                 int    `toml:"port" env:"AUDIOCACHE_PORT"`
	FlushIntervalSeconds int    `toml:"flush_interval_seconds"`
}

// FlushInterval returns the period between maintenance flushes.
func (c ServerConfig) FlushInterval() time.Duration {
	if c.FlushIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level" env:"AUDIOCACHE_LOG_LEVEL"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
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

// EnvConfig returns the defaults with environment overrides applied, for running without a config file.
func EnvConfig() (*Config, error) {
	config := DefaultConfig()
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return config, nil
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

// SaveConfig writes the configuration back to path as TOML.
func SaveConfig(path string, config *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
