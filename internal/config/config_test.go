package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VIDSPLIT_CONFIG", "")
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source != "" {
		t.Fatalf("expected no config file, got %s", cfg.Source)
	}
	if cfg.APIBaseURL != "http://localhost:8000" || cfg.PollInterval != 2*time.Second || cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.UploadMode != UploadMultipart || cfg.TokenStore != StoreFile || cfg.DownloadWorkers != 4 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if want := filepath.Join(home, ".config", "vidsplit", "tokens.json"); cfg.TokenFile != want {
		t.Fatalf("expected token file %s got %s", want, cfg.TokenFile)
	}
	if !filepath.IsAbs(cfg.DownloadDir) {
		t.Fatalf("expected download dir to be absolute, got %s", cfg.DownloadDir)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	isolate(t)

	custom := fileConfig{
		APIBaseURL:   "https://split.example.com/",
		PollInterval: "500ms",
		UploadMode:   "Presigned",
		TokenStore:   "postgres",
		DatabaseURL:  "postgres://localhost/vidsplit",
		ObjectStore:  ObjectStoreConfig{Bucket: "clips", Region: "eu-west-1", Prefix: "runs"},
	}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "vidsplit.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("VIDSPLIT_POLL_INTERVAL", "3s")
	t.Setenv("VIDSPLIT_DOWNLOAD_WORKERS", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source != path {
		t.Fatalf("expected source %s got %s", path, cfg.Source)
	}
	if cfg.APIBaseURL != "https://split.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.APIBaseURL)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Fatalf("expected env to override file, got %v", cfg.PollInterval)
	}
	if cfg.UploadMode != UploadPresigned || cfg.TokenStore != StorePostgres {
		t.Fatalf("unexpected modes: %+v", cfg)
	}
	if cfg.DownloadWorkers != 8 {
		t.Fatalf("expected 8 workers got %d", cfg.DownloadWorkers)
	}
	if !cfg.ObjectStore.Enabled() || cfg.ObjectStore.Region != "eu-west-1" {
		t.Fatalf("unexpected object store: %+v", cfg.ObjectStore)
	}
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "cfg.toml")
	if err := os.WriteFile(path, []byte("log_level = \"debug\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VIDSPLIT_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Source != path {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Fatal("expected error for explicitly named missing file")
	}

	cases := map[string]string{
		"unknown key":  "colour = \"blue\"\n",
		"bad duration": "poll_interval = \"soon\"\n",
		"bad toml":     "api_base_url = \n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".toml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative url", func(c *Config) { c.APIBaseURL = "/api" }, "api_base_url"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "request_timeout"},
		{"upload mode", func(c *Config) { c.UploadMode = "ftp" }, "upload_mode"},
		{"token store", func(c *Config) { c.TokenStore = "redis" }, "token_store"},
		{"postgres without url", func(c *Config) { c.TokenStore = StorePostgres }, "database_url"},
		{"no workers", func(c *Config) { c.DownloadWorkers = 0 }, "download_workers"},
		{"negative rps", func(c *Config) { c.RateLimitRPS = -1 }, "rate_limit_rps"},
		{"no burst", func(c *Config) { c.RateLimitBurst = 0 }, "rate_limit_burst"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}

	cfg := Default()
	cfg.RateLimitRPS = 0
	cfg.RateLimitBurst = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled rate limiting should validate: %v", err)
	}
}
