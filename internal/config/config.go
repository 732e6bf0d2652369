// Package config layers defaults, an optional YAML file, .env and
// environment variables into one configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/newearthmartin/irdin/internal/search"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment keys.
const (
	EnvConfigPath = "IRDIN_CONFIG"
	EnvAPIURL     = "IRDIN_API_URL"
	EnvDebounce   = "IRDIN_DEBOUNCE"
	EnvPrefsPath  = "IRDIN_PREFS_PATH"
	EnvRateLimit  = "IRDIN_RATE_LIMIT"
	EnvDBPath     = "IRDIN_DB_PATH"
	EnvListen     = "IRDIN_LISTEN"
	EnvMediaDir   = "IRDIN_MEDIA_DIR"
	EnvPageSize   = "IRDIN_PAGE_SIZE"
	EnvSeedPath   = "IRDIN_SEED"
	EnvExportDir  = "IRDIN_EXPORT_DIR"
	EnvOrigins    = "IRDIN_ALLOWED_ORIGINS"
	EnvLogLevel   = "LOG_LEVEL"
)

// Config holds settings for both binaries.
type Config struct {
	// Client side
	APIURL    string        `yaml:"api_url"`
	Debounce  time.Duration `yaml:"debounce"`
	PrefsPath string        `yaml:"prefs_path"`
	RateLimit float64       `yaml:"rate_limit"`
	RateBurst int           `yaml:"rate_burst"`
	Timeout   time.Duration `yaml:"timeout"`
	ExportDir string        `yaml:"export_dir"`

	// Catalogue server
	DBPath   string `yaml:"db_path"`
	Listen   string `yaml:"listen"`
	MediaDir string `yaml:"media_dir"`
	PageSize int    `yaml:"page_size"`
	SeedPath string `yaml:"seed_path"`

	// AllowedOrigins lists CORS origins; empty or "*" allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	client := search.DefaultClientConfig()
	return &Config{
		APIURL:    client.BaseURL,
		Debounce:  search.DefaultDebounce,
		PrefsPath: "irdin-prefs.json",
		RateLimit: client.RequestsPerSecond,
		RateBurst: client.Burst,
		Timeout:   client.Timeout,
		ExportDir: "exports",
		DBPath:    "irdin.db",
		Listen:    ":8000",
		MediaDir:  "media",
		PageSize:  20,
		LogLevel:  "info",
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnvironment loads .env, the YAML file at path (or the one named by
// IRDIN_CONFIG when path is empty) and then environment overrides.
func FromEnvironment(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("Error loading .env file, using environment variables")
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields with non-empty values returned by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(EnvAPIURL, &c.APIURL)
	setString(EnvPrefsPath, &c.PrefsPath)
	setString(EnvExportDir, &c.ExportDir)
	setString(EnvDBPath, &c.DBPath)
	setString(EnvListen, &c.Listen)
	setString(EnvMediaDir, &c.MediaDir)
	setString(EnvSeedPath, &c.SeedPath)
	setString(EnvLogLevel, &c.LogLevel)

	if v := getenv(EnvOrigins); v != "" {
		c.AllowedOrigins = SplitList(v)
	}
	if v := getenv(EnvDebounce); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDebounce, err)
		}
		c.Debounce = d
	}
	if v := getenv(EnvRateLimit); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRateLimit, err)
		}
		c.RateLimit = f
	}
	if v := getenv(EnvPageSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPageSize, err)
		}
		c.PageSize = n
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("debounce must not be negative, got %s", c.Debounce))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %g", c.RateLimit))
	}
	if c.PageSize < 1 {
		errs = append(errs, fmt.Errorf("page size must be positive, got %d", c.PageSize))
	}
	if strings.TrimSpace(c.APIURL) == "" {
		errs = append(errs, errors.New("api url is required"))
	}
	return errors.Join(errs...)
}

// ClientConfig returns the search client settings.
func (c *Config) ClientConfig() search.ClientConfig {
	return search.ClientConfig{
		BaseURL:           c.APIURL,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RateLimit,
		Burst:             c.RateBurst,
	}
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SetupLogging configures the global logrus logger.
func SetupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	switch strings.ToLower(level) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
