// Package config loads client settings from an optional TOML file and
// VIDSPLIT_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const envPrefix = "VIDSPLIT_"

// Upload modes.
const (
	UploadMultipart = "multipart"
	UploadPresigned = "presigned"
)

// Token store kinds.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// ObjectStoreConfig describes an optional S3-compatible download destination.
type ObjectStoreConfig struct {
	Bucket   string `toml:"bucket"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`
	Prefix   string `toml:"prefix"`
}

// Enabled reports whether a bucket is configured.
func (o ObjectStoreConfig) Enabled() bool {
	return strings.TrimSpace(o.Bucket) != ""
}

// Config captures the runtime configuration of the vidsplit client.
type Config struct {
	APIBaseURL      string
	LogLevel        string
	RequestTimeout  time.Duration
	PollInterval    time.Duration
	UploadMode      string
	TokenStore      string
	TokenFile       string
	TokenPassphrase string
	TokenProfile    string
	DatabaseURL     string
	HistoryPath     string
	DownloadDir     string
	DownloadWorkers int
	RateLimitRPS    float64
	RateLimitBurst  int
	ObjectStore     ObjectStoreConfig

	// Source is the config file that was read, or empty when none was found.
	Source string
}

// fileConfig mirrors Config in the on-disk TOML layout. Durations are
// written as Go duration strings ("2s", "1m30s").
type fileConfig struct {
	APIBaseURL      string            `toml:"api_base_url"`
	LogLevel        string            `toml:"log_level"`
	RequestTimeout  string            `toml:"request_timeout"`
	PollInterval    string            `toml:"poll_interval"`
	UploadMode      string            `toml:"upload_mode"`
	TokenStore      string            `toml:"token_store"`
	TokenFile       string            `toml:"token_file"`
	TokenPassphrase string            `toml:"token_passphrase"`
	TokenProfile    string            `toml:"token_profile"`
	DatabaseURL     string            `toml:"database_url"`
	HistoryPath     string            `toml:"history_path"`
	DownloadDir     string            `toml:"download_dir"`
	DownloadWorkers int               `toml:"download_workers"`
	RateLimitRPS    float64           `toml:"rate_limit_rps"`
	RateLimitBurst  int               `toml:"rate_limit_burst"`
	ObjectStore     ObjectStoreConfig `toml:"object_store"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		APIBaseURL:      "http://localhost:8000",
		LogLevel:        "info",
		RequestTimeout:  30 * time.Second,
		PollInterval:    2 * time.Second,
		UploadMode:      UploadMultipart,
		TokenStore:      StoreFile,
		TokenFile:       "~/.config/vidsplit/tokens.json",
		TokenProfile:    "default",
		HistoryPath:     "~/.local/share/vidsplit/history.db",
		DownloadDir:     ".",
		DownloadWorkers: 4,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// DefaultConfigPath returns the config file consulted when no path is given.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/vidsplit/config.toml")
}

// Load builds the configuration: defaults, then the TOML file at path (or
// VIDSPLIT_CONFIG, or the default location), then environment variables.
// A missing file is only an error when it was named explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(envPrefix + "CONFIG")
		explicit = path != ""
	}
	if !explicit {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	resolved, err := ExpandPath(path)
	if err != nil {
		return Config{}, err
	}
	found, err := cfg.overlayFile(resolved)
	if err != nil {
		return Config{}, err
	}
	if !found && explicit {
		return Config{}, fmt.Errorf("config file %s not found", resolved)
	}
	if found {
		cfg.Source = resolved
	}

	cfg.overlayEnv()

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) (bool, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var fc fileConfig
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&fc); err != nil {
		return false, fmt.Errorf("parse config %s: %w", path, err)
	}

	overlayString(&c.APIBaseURL, fc.APIBaseURL)
	overlayString(&c.LogLevel, fc.LogLevel)
	overlayString(&c.UploadMode, fc.UploadMode)
	overlayString(&c.TokenStore, fc.TokenStore)
	overlayString(&c.TokenFile, fc.TokenFile)
	overlayString(&c.TokenPassphrase, fc.TokenPassphrase)
	overlayString(&c.TokenProfile, fc.TokenProfile)
	overlayString(&c.DatabaseURL, fc.DatabaseURL)
	overlayString(&c.HistoryPath, fc.HistoryPath)
	overlayString(&c.DownloadDir, fc.DownloadDir)
	overlayString(&c.ObjectStore.Bucket, fc.ObjectStore.Bucket)
	overlayString(&c.ObjectStore.Region, fc.ObjectStore.Region)
	overlayString(&c.ObjectStore.Endpoint, fc.ObjectStore.Endpoint)
	overlayString(&c.ObjectStore.Prefix, fc.ObjectStore.Prefix)
	if fc.DownloadWorkers != 0 {
		c.DownloadWorkers = fc.DownloadWorkers
	}
	if fc.RateLimitRPS != 0 {
		c.RateLimitRPS = fc.RateLimitRPS
	}
	if fc.RateLimitBurst != 0 {
		c.RateLimitBurst = fc.RateLimitBurst
	}

	for _, d := range []struct {
		key   string
		raw   string
		field *time.Duration
	}{
		{"request_timeout", fc.RequestTimeout, &c.RequestTimeout},
		{"poll_interval", fc.PollInterval, &c.PollInterval},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return false, fmt.Errorf("parse config %s: %s: %w", path, d.key, err)
		}
		*d.field = parsed
	}
	return true, nil
}

func (c *Config) overlayEnv() {
	c.APIBaseURL = getString("API_BASE_URL", c.APIBaseURL)
	c.LogLevel = getString("LOG_LEVEL", c.LogLevel)
	c.RequestTimeout = getDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.PollInterval = getDuration("POLL_INTERVAL", c.PollInterval)
	c.UploadMode = getString("UPLOAD_MODE", c.UploadMode)
	c.TokenStore = getString("TOKEN_STORE", c.TokenStore)
	c.TokenFile = getString("TOKEN_FILE", c.TokenFile)
	c.TokenPassphrase = getString("TOKEN_PASSPHRASE", c.TokenPassphrase)
	c.TokenProfile = getString("TOKEN_PROFILE", c.TokenProfile)
	c.DatabaseURL = getString("DATABASE_URL", c.DatabaseURL)
	c.HistoryPath = getString("HISTORY_PATH", c.HistoryPath)
	c.DownloadDir = getString("DOWNLOAD_DIR", c.DownloadDir)
	c.DownloadWorkers = getInt("DOWNLOAD_WORKERS", c.DownloadWorkers)
	c.RateLimitRPS = getFloat("RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = getInt("RATE_LIMIT_BURST", c.RateLimitBurst)
	c.ObjectStore.Bucket = getString("OBJECT_STORE_BUCKET", c.ObjectStore.Bucket)
	c.ObjectStore.Region = getString("OBJECT_STORE_REGION", c.ObjectStore.Region)
	c.ObjectStore.Endpoint = getString("OBJECT_STORE_ENDPOINT", c.ObjectStore.Endpoint)
	c.ObjectStore.Prefix = getString("OBJECT_STORE_PREFIX", c.ObjectStore.Prefix)
}

func (c *Config) normalize() error {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.UploadMode = strings.ToLower(strings.TrimSpace(c.UploadMode))
	c.TokenStore = strings.ToLower(strings.TrimSpace(c.TokenStore))

	for _, p := range []*string{&c.TokenFile, &c.HistoryPath, &c.DownloadDir} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	parsed, err := url.Parse(c.APIBaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("api_base_url must be an absolute http(s) URL, got %q", c.APIBaseURL)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	switch c.UploadMode {
	case UploadMultipart, UploadPresigned:
	default:
		return fmt.Errorf("upload_mode must be %q or %q, got %q", UploadMultipart, UploadPresigned, c.UploadMode)
	}
	switch c.TokenStore {
	case StoreMemory:
	case StoreFile:
		if c.TokenFile == "" {
			return errors.New("token_file is required when token_store is file")
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("database_url is required when token_store is postgres")
		}
	default:
		return fmt.Errorf("token_store must be memory, file or postgres, got %q", c.TokenStore)
	}
	if c.DownloadWorkers < 1 {
		return errors.New("download_workers must be at least 1")
	}
	if c.RateLimitRPS < 0 {
		return errors.New("rate_limit_rps must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return errors.New("rate_limit_burst must be at least 1 when rate limiting is enabled")
	}
	return nil
}

// ExpandPath resolves a leading "~" and makes the path absolute.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

func overlayString(dst *string, value string) {
	if strings.TrimSpace(value) != "" {
		*dst = value
	}
}

func getString(key, fallback string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
