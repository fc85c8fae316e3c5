package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocationConfig fixes the forecast location and its display label.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	Label     string  `yaml:"label" json:"label"`
}

// CalendarConfig selects the event source.
type CalendarConfig struct {
	// Provider is "google" or "ics".
	Provider string `yaml:"provider" json:"provider"`
	// GoogleCalendarID is the calendar to read when Provider is "google".
	GoogleCalendarID string `yaml:"google_calendar_id" json:"google_calendar_id"`
	// ICSURLs are the subscription feeds when Provider is "ics".
	ICSURLs []string `yaml:"ics_urls" json:"ics_urls"`
	// MaxEvents caps the upcoming events shown on the dashboard.
	MaxEvents int64 `yaml:"max_events" json:"max_events"`
	// HorizonDays bounds ICS recurrence expansion.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
}

// GoogleConfig locates the OAuth credential files.
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	TokenFile       string `yaml:"token_file" json:"token_file"`
}

// RenderConfig tunes the raster pipeline.
type RenderConfig struct {
	Width          int  `yaml:"width" json:"width"`
	Height         int  `yaml:"height" json:"height"`
	TimeoutSeconds int  `yaml:"timeout_seconds" json:"timeout_seconds"`
	SettleMillis   int  `yaml:"settle_ms" json:"settle_ms"`
	Mono           bool `yaml:"mono" json:"mono"`
	// MaxConcurrent caps simultaneous browser processes.
	MaxConcurrent int64 `yaml:"max_concurrent" json:"max_concurrent"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration. API keys are not kept
// here; they come from the environment (see cmd/tinker).
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the default IANA display zone. A per-request tz query
	// parameter overrides it; unknown names fall back to server local time.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is "debug", "info", or "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron schedules the warm render (cron syntax). Empty disables it.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Location  LocationConfig   `yaml:"location" json:"location"`
	Calendar  CalendarConfig   `yaml:"calendar" json:"calendar"`
	Google    GoogleConfig     `yaml:"google" json:"google"`
	Render    RenderConfig     `yaml:"render" json:"render"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "",
		LogLevel:    "info",
		RefreshCron: "*/15 * * * *",
		Location: LocationConfig{
			Latitude:  34.106081,
			Longitude: -117.710486,
			Label:     "Harvey Mudd",
		},
		Calendar: CalendarConfig{
			Provider:         "google",
			GoogleCalendarID: "primary",
			MaxEvents:        10,
			HorizonDays:      60,
		},
		Google: GoogleConfig{
			CredentialsFile: "client_secrets.json",
			TokenFile:       "token.json",
		},
		Render: RenderConfig{
			Width:          640,
			Height:         384,
			TimeoutSeconds: 30,
			SettleMillis:   500,
			Mono:           false,
			MaxConcurrent:  2,
		},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	switch c.Calendar.Provider {
	case "google", "ics":
		// ok
	default:
		c.Calendar.Provider = "google"
	}
	if c.Calendar.GoogleCalendarID == "" {
		c.Calendar.GoogleCalendarID = "primary"
	}
	if c.Calendar.MaxEvents <= 0 {
		c.Calendar.MaxEvents = 10
	}
	if c.Calendar.HorizonDays <= 0 {
		c.Calendar.HorizonDays = 60
	}
	if c.Google.CredentialsFile == "" {
		c.Google.CredentialsFile = "client_secrets.json"
	}
	if c.Google.TokenFile == "" {
		c.Google.TokenFile = "token.json"
	}
	if c.Render.Width <= 0 {
		c.Render.Width = 640
	}
	if c.Render.Height <= 0 {
		c.Render.Height = 384
	}
	if c.Render.TimeoutSeconds <= 0 {
		c.Render.TimeoutSeconds = 30
	}
	if c.Render.SettleMillis <= 0 {
		c.Render.SettleMillis = 500
	}
	if c.Render.MaxConcurrent <= 0 {
		c.Render.MaxConcurrent = 2
	}
}

// Load loads configuration from the given YAML path. A missing file is a
// first run: a default config is written (0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
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

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
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

	tmp, err := os.CreateTemp(dir, ".tinker-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
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
	return os.Rename(tmpName, path)
}
