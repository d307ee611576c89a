package webauth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name: "redis backend with addr",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendRedis
				c.Storage.Redis.Addr = "localhost:6379"
			},
			wantValid: true,
		},
		{
			name: "redis backend without addr",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendRedis
			},
			wantValid: false,
		},
		{
			name: "badger in memory",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendBadger
				c.Storage.Badger.InMemory = true
			},
			wantValid: true,
		},
		{
			name: "badger without dir",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendBadger
			},
			wantValid: false,
		},
		{
			name: "badger short encryption key",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendBadger
				c.Storage.Badger.Dir = "/tmp/webauth"
				c.Storage.Badger.EncryptionKey = "short"
			},
			wantValid: false,
		},
		{
			name: "unknown backend",
			mutate: func(c *Config) {
				c.Storage.Backend = "sqlite"
			},
			wantValid: false,
		},
		{
			name: "leeway too large",
			mutate: func(c *Config) {
				c.Session.ExpiryLeeway = time.Hour
			},
			wantValid: false,
		},
		{
			name: "relative base url",
			mutate: func(c *Config) {
				c.HTTP.BaseURL = "/api"
			},
			wantValid: false,
		},
		{
			name: "ftp base url",
			mutate: func(c *Config) {
				c.HTTP.BaseURL = "ftp://example.com/api"
			},
			wantValid: false,
		},
		{
			name: "login path without slash",
			mutate: func(c *Config) {
				c.HTTP.LoginPath = "auth/login"
			},
			wantValid: false,
		},
		{
			name: "blank request id header",
			mutate: func(c *Config) {
				c.HTTP.RequestIDHeader = "  "
			},
			wantValid: false,
		},
		{
			name: "relative dashboard route",
			mutate: func(c *Config) {
				c.Routes.Admin = "admin"
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "unknown log level",
			mutate: func(c *Config) {
				c.Log.Level = "loud"
			},
			wantValid: false,
		},
		{
			name: "console encoding",
			mutate: func(c *Config) {
				c.Log.Encoding = "console"
			},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
			}
		})
	}
}

func TestLoadConfigLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webauth.yaml")
	yaml := `
storage:
  backend: badger
  badger:
    dir: /var/lib/webauth
http:
  base_url: https://file.example.com/api
  timeout: 3s
routes:
  lecturer: /lecturer/home
session:
  expiry_leeway: 1m
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("WEBAUTH_HTTP__BASE_URL", "https://env.example.com/api")
	t.Setenv("WEBAUTH_HTTP__REQUEST_ID_HEADER", "X-Correlation-ID")
	t.Setenv("WEBAUTH_LOG__LEVEL", "debug")

	cfg, err := LoadConfig(
		WithConfigFile(path),
		WithOverrides(map[string]any{"log.level": "warn", "storage.badger.sync_writes": false}),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Storage.Backend != BackendBadger || cfg.Storage.Badger.Dir != "/var/lib/webauth" {
		t.Fatalf("file layer not applied: %+v", cfg.Storage)
	}
	if cfg.HTTP.Timeout != 3*time.Second || cfg.Session.ExpiryLeeway != time.Minute {
		t.Fatalf("durations not decoded: timeout=%s leeway=%s", cfg.HTTP.Timeout, cfg.Session.ExpiryLeeway)
	}
	if cfg.HTTP.BaseURL != "https://env.example.com/api" {
		t.Fatalf("env should override file, got %q", cfg.HTTP.BaseURL)
	}
	if cfg.HTTP.RequestIDHeader != "X-Correlation-ID" {
		t.Fatalf("env key with underscores not mapped: %q", cfg.HTTP.RequestIDHeader)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("overrides should win, got %q", cfg.Log.Level)
	}
	if cfg.Storage.Badger.SyncWrites {
		t.Fatal("override for sync_writes not applied")
	}
	if cfg.Routes.Lecturer != "/lecturer/home" || cfg.Routes.Student != "/student/dashboard" {
		t.Fatalf("routes not merged with defaults: %+v", cfg.Routes)
	}
	if cfg.HTTP.LoginPath != "/auth/login" {
		t.Fatalf("defaults lost: %q", cfg.HTTP.LoginPath)
	}
}

func TestLoadConfigCustomEnvPrefix(t *testing.T) {
	t.Setenv("LMS_ROUTES__LOGIN", "/signin")
	cfg, err := LoadConfig(WithEnvPrefix("LMS_"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Routes.Login != "/signin" {
		t.Fatalf("expected /signin, got %q", cfg.Routes.Login)
	}
}

func TestLoadConfigRejectsInvalidResult(t *testing.T) {
	_, err := LoadConfig(WithOverrides(map[string]any{"storage.backend": "redis"}))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestUnflatten(t *testing.T) {
	out := unflatten(map[string]any{"a.b.c": 1, "a.d": "x", "e": true})
	a, ok := out["a"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map, got %#v", out)
	}
	if b, _ := a["b"].(map[string]any); b["c"] != 1 {
		t.Fatalf("unexpected nesting: %#v", out)
	}
	if a["d"] != "x" || out["e"] != true {
		t.Fatalf("unexpected values: %#v", out)
	}
}
