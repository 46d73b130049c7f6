package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix prefixes every environment override, e.g. TUNESYNC_SPOTIFY_CLIENT_SECRET.
const EnvPrefix = "TUNESYNC_"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Sync        SyncConfig        `toml:"sync"`
}

// CredentialsConfig contains OAuth client registrations keyed by platform.
type CredentialsConfig struct {
	Spotify OAuthClientConfig `toml:"spotify"`
	Deezer  OAuthClientConfig `toml:"deezer"`
	YouTube OAuthClientConfig `toml:"youtube"`
}

// OAuthClientConfig holds one platform's OAuth application credentials.
type OAuthClientConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// Configured reports whether both client id and secret are present.
func (c OAuthClientConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings for the daemon API and OAuth callbacks.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SyncConfig controls the scheduler and reconciliation timing.
type SyncConfig struct {
	Subject       string   `toml:"subject"`
	Interval      Duration `toml:"interval"`
	MinInterval   Duration `toml:"min_interval"`
	InitialDelay  Duration `toml:"initial_delay"`
	JobDelay      Duration `toml:"job_delay"`
	CallTimeout   Duration `toml:"call_timeout"`
	FetchTimeout  Duration `toml:"fetch_timeout"`
	RefreshMargin Duration `toml:"refresh_margin"`
	LockFile      string   `toml:"lock_file"`
}

// Duration is a [time.Duration] read from TOML strings such as "30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file fall back to the embedded defaults, and environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	config.ApplyEnv()
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

// SaveConfig writes config to path as TOML.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadEnvFile loads variables from a dotenv file into the process environment.
//
// A missing file is not an error. Variables already set in the environment win.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides secrets and paths with TUNESYNC_* environment variables.
func (c *Config) ApplyEnv() {
	clients := map[string]*OAuthClientConfig{
		"SPOTIFY": &c.Credentials.Spotify,
		"DEEZER":  &c.Credentials.Deezer,
		"YOUTUBE": &c.Credentials.YouTube,
	}
	for name, client := range clients {
		setFromEnv(&client.ClientID, name+"_CLIENT_ID")
		setFromEnv(&client.ClientSecret, name+"_CLIENT_SECRET")
		setFromEnv(&client.RedirectURI, name+"_REDIRECT_URI")
	}
	setFromEnv(&c.Database.Path, "DATABASE_PATH")
	setFromEnv(&c.Sync.Subject, "SUBJECT")
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
		*dst = v
	}
}

// Client returns the OAuth client registration for a platform name.
func (c *CredentialsConfig) Client(platform string) (OAuthClientConfig, bool) {
	switch strings.ToLower(platform) {
	case "spotify":
		return c.Spotify, true
	case "deezer":
		return c.Deezer, true
	case "youtube":
		return c.YouTube, true
	default:
		return OAuthClientConfig{}, false
	}
}
