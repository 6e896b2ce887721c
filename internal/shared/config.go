package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Cache       CacheConfig       `toml:"cache"`
	Enrich      EnrichConfig      `toml:"enrich"`
}

// CredentialsConfig contains provider-specific credentials.
type CredentialsConfig struct {
	LastFM      LastFMConfig      `toml:"lastfm"`
	Spotify     SpotifyConfig     `toml:"spotify"`
	MusicBrainz MusicBrainzConfig `toml:"musicbrainz"`
}

// LastFMConfig contains Last.fm API credentials.
type LastFMConfig struct {
	APIKey string `toml:"api_key"`
}

// SpotifyConfig contains Spotify API credentials for the client-credentials flow.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// MusicBrainzConfig identifies this application to the MusicBrainz API.
// MusicBrainz requires a meaningful User-Agent with a contact address.
type MusicBrainzConfig struct {
	AppName    string `toml:"app_name"`
	AppVersion string `toml:"app_version"`
	Contact    string `toml:"contact"`
}

// CacheConfig contains lookup cache settings.
type CacheConfig struct {
	Path     string `toml:"path"`
	TTLHours int    `toml:"ttl_hours"`
}

// EnrichConfig contains worker pool, retry, circuit breaker and voting settings.
type EnrichConfig struct {
	Workers           int                `toml:"workers"`
	TrustWeights      map[string]float64 `toml:"trust_weights"`
	StaleWeight       float64            `toml:"stale_weight"`
	SubgenreThreshold float64            `toml:"subgenre_threshold"`
	MaxAttempts       int                `toml:"max_attempts"`
	BackoffBaseMS     int                `toml:"backoff_base_ms"`
	BackoffCapMS      int                `toml:"backoff_cap_ms"`
	BreakerThreshold  int                `toml:"breaker_threshold"`
	BreakerCooldownS  int                `toml:"breaker_cooldown_s"`
	RateLimits        map[string]float64 `toml:"rate_limits"`
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

// ApplyEnv overlays credentials from the environment onto the config.
// A .env file in the working directory is honored when present; explicit
// environment variables win over both .env and file-based config.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.Credentials.LastFM.APIKey = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Credentials.Spotify.ClientSecret = v
	}
	if v := os.Getenv("MUSICBRAINZ_CONTACT"); v != "" {
		c.Credentials.MusicBrainz.Contact = v
	}
}
