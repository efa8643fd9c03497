package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fxcal/internal/feed"
)

// Config is the persisted user preferences for the calendar tool.
type Config struct {
	// FeedURL is the calendar feed endpoint.
	FeedURL string `yaml:"feed_url"`

	// CachePath is where the last validated payload is persisted for
	// offline fallback.
	CachePath string `yaml:"cache_path"`

	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Retries        int     `yaml:"retries"`
	BackoffSeconds float64 `yaml:"backoff_seconds"`

	// Timezone is the IANA display timezone; empty means the system zone.
	Timezone string `yaml:"timezone"`

	// Impacts / Currencies / Search are the default view filters.
	Impacts    []string `yaml:"impacts"`
	Currencies []string `yaml:"currencies"`
	Search     string   `yaml:"search"`

	// UseUTC renders event times in UTC instead of the display timezone.
	UseUTC bool `yaml:"use_utc"`

	// RefreshCron is a cron-style schedule string (e.g. "*/30 * * * *")
	// driving periodic refresh in watch mode.
	RefreshCron string `yaml:"refresh"`

	ExportDir   string `yaml:"export_dir"`
	ExportTitle string `yaml:"export_title"`
}

// envOverrides are environment variables layered over the config file.
type envOverrides struct {
	FeedURL   string `env:"FXCAL_FEED_URL"`
	CachePath string `env:"FXCAL_CACHE_PATH"`
	ExportDir string `env:"FXCAL_EXPORT_DIR"`
	Timezone  string `env:"FXCAL_TIMEZONE"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		FeedURL:        feed.DefaultFeedURL,
		CachePath:      filepath.Join("data", "latest_calendar.json"),
		TimeoutSeconds: int(feed.DefaultTimeout / time.Second),
		Retries:        feed.DefaultRetries,
		BackoffSeconds: feed.DefaultBackoff.Seconds(),
		Timezone:       "",
		Impacts:        []string{"High"},
		Currencies:     []string{},
		Search:         "",
		UseUTC:         false,
		RefreshCron:    "*/30 * * * *",
		ExportDir:      "exports",
		ExportTitle:    "Upcoming News",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.FeedURL == "" {
		c.FeedURL = feed.DefaultFeedURL
	}
	if c.CachePath == "" {
		c.CachePath = filepath.Join("data", "latest_calendar.json")
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = int(feed.DefaultTimeout / time.Second)
	}
	if c.Retries < 1 {
		c.Retries = feed.DefaultRetries
	}
	if c.BackoffSeconds < 0 {
		c.BackoffSeconds = feed.DefaultBackoff.Seconds()
	}
	if c.Impacts == nil {
		c.Impacts = []string{"High"}
	}
	if c.Currencies == nil {
		c.Currencies = []string{}
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/30 * * * *"
	}
	if c.ExportDir == "" {
		c.ExportDir = "exports"
	}
	if c.ExportTitle == "" {
		c.ExportTitle = "Upcoming News"
	}
}

// Timeout returns the configured request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Backoff returns the configured base retry wait as a duration.
func (c *Config) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds * float64(time.Second))
}

// Location resolves the configured display timezone. An empty Timezone means
// the system-local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create the parent directory if needed,
//     write a default config with 0600 perms, and return the defaults.
//   - If the file exists: read YAML, unmarshal, normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides. A
// .env file (if present) is loaded first, so overrides can live there
// locally and in real env vars elsewhere.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing).
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("parsing environment overrides: %w", err)
	}

	if ov.FeedURL != "" {
		cfg.FeedURL = ov.FeedURL
	}
	if ov.CachePath != "" {
		cfg.CachePath = ov.CachePath
	}
	if ov.ExportDir != "" {
		cfg.ExportDir = ov.ExportDir
	}
	if ov.Timezone != "" {
		cfg.Timezone = ov.Timezone
	}

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".fxcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
