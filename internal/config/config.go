package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Default values applied when the config file omits a field.
const (
	DefaultListenAddr  = ":8080"
	DefaultMetricsAddr = ":9090"
	DefaultSchedule    = "*/10 * * * *"
	DefaultBackend     = "sqlite"
)

// Config holds the service configuration, loaded from a TOML file.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Google    GoogleConfig    `toml:"google"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Store     StoreConfig     `toml:"store"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// ListenAddr is the address the HTTP server binds to (default ":8080")
	ListenAddr string `toml:"listen_addr"`

	// MetricsAddr is the address the Prometheus metrics server binds to
	// (default ":9090", empty disables the metrics server)
	MetricsAddr string `toml:"metrics_addr"`

	// BaseURL is the externally reachable base URL of the service.
	// Used to derive the OAuth redirect URL when google.redirect_url is unset.
	BaseURL string `toml:"base_url"`
}

// GoogleConfig holds the Google Cloud and OAuth settings.
type GoogleConfig struct {
	// ClientID is the OAuth2 client ID of the Cloud Console web application
	ClientID string `toml:"client_id"`

	// ClientSecret is the OAuth2 client secret
	ClientSecret string `toml:"client_secret"`

	// RedirectURL is the registered OAuth2 callback URL.
	// Defaults to BaseURL + "/oauth2callback" when empty.
	RedirectURL string `toml:"redirect_url"`

	// Project is the Google Cloud project that owns the scheduler jobs and topics
	Project string `toml:"project"`

	// Region is the Cloud Scheduler location (for example "us-central1")
	Region string `toml:"region"`
}

// SchedulerConfig holds the recurring job settings.
type SchedulerConfig struct {
	// Schedule is the cron expression for registered jobs (default "*/10 * * * *")
	Schedule string `toml:"schedule"`
}

// StoreConfig holds the persistence settings.
type StoreConfig struct {
	// Backend selects the store implementation: "sqlite" or "memory"
	Backend string `toml:"backend"`

	// Path is the SQLite database file path.
	// Empty uses ~/.gmailnotifier/gmailnotifier.db.
	Path string `toml:"path"`
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:  DefaultListenAddr,
			MetricsAddr: DefaultMetricsAddr,
		},
		Scheduler: SchedulerConfig{
			Schedule: DefaultSchedule,
		},
		Store: StoreConfig{
			Backend: DefaultBackend,
		},
	}
}

// DefaultPath returns the default config file location (~/.gmailnotifier/config.toml).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".gmailnotifier", "config.toml"), nil
}

// Load reads the TOML config file at path and merges it over the defaults.
// If path is empty, the default location is used. A missing file is not an
// error; the defaults are returned so the service can run from flags and
// environment alone.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file yet - that's fine, run on defaults
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults restores defaults for fields the file set to empty values.
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Scheduler.Schedule == "" {
		c.Scheduler.Schedule = DefaultSchedule
	}
	if c.Store.Backend == "" {
		c.Store.Backend = DefaultBackend
	}
	if c.Google.RedirectURL == "" && c.Server.BaseURL != "" {
		c.Google.RedirectURL = c.Server.BaseURL + "/oauth2callback"
	}
}

// Validate checks that the fields required to serve are present.
func (c *Config) Validate() error {
	if c.Google.ClientID == "" {
		return fmt.Errorf("google.client_id is required")
	}
	if c.Google.ClientSecret == "" {
		return fmt.Errorf("google.client_secret is required")
	}
	if c.Google.RedirectURL == "" {
		return fmt.Errorf("google.redirect_url is required (or set server.base_url)")
	}
	if c.Google.Project == "" {
		return fmt.Errorf("google.project is required")
	}
	if c.Google.Region == "" {
		return fmt.Errorf("google.region is required")
	}
	if c.Store.Backend != "sqlite" && c.Store.Backend != "memory" {
		return fmt.Errorf("store.backend must be %q or %q, got %q", "sqlite", "memory", c.Store.Backend)
	}
	return nil
}
