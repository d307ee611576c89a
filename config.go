package webauth

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lingoleap/webauth/router"
	"go.uber.org/zap/zapcore"
)

// Config holds every setting of the session and the HTTP client.
type Config struct {
	Storage StorageConfig `koanf:"storage"`
	Session SessionConfig `koanf:"session"`
	HTTP    HTTPConfig    `koanf:"http"`
	Routes  RoutesConfig  `koanf:"routes"`
	Audit   AuditConfig   `koanf:"audit"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// Storage backends accepted by StorageConfig.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// StorageConfig selects and configures the token store used by OpenStore.
type StorageConfig struct {
	Backend string `koanf:"backend"`
	// KeyPrefix is prepended to access_token and user_info in Redis.
	KeyPrefix string              `koanf:"key_prefix"`
	Redis     RedisStorageConfig  `koanf:"redis"`
	Badger    BadgerStorageConfig `koanf:"badger"`
}

type RedisStorageConfig struct {
	Addr     string `koanf:"addr"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type BadgerStorageConfig struct {
	Dir        string `koanf:"dir"`
	SyncWrites bool   `koanf:"sync_writes"`
	InMemory   bool   `koanf:"in_memory"`
	// EncryptionKey is 16, 24 or 32 raw bytes; empty disables encryption.
	EncryptionKey string `koanf:"encryption_key"`
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	// DiscardExpiredTokens drops a restored JWT whose exp has passed. Off by
	// default: the stored token is treated as opaque and the platform's 401
	// decides when it is no longer valid.
	DiscardExpiredTokens bool          `koanf:"discard_expired_tokens"`
	ExpiryLeeway         time.Duration `koanf:"expiry_leeway"`
	// StoreTimeout bounds each token store call; zero means the caller's context only.
	StoreTimeout time.Duration `koanf:"store_timeout"`
}

/*
====================================
HTTP CONFIG
====================================
*/

type HTTPConfig struct {
	BaseURL         string        `koanf:"base_url"`
	Timeout         time.Duration `koanf:"timeout"`
	UserAgent       string        `koanf:"user_agent"`
	LoginPath       string        `koanf:"login_path"`
	ProfilePath     string        `koanf:"profile_path"`
	RequestIDHeader string        `koanf:"request_id_header"`
	// MaxErrorBody caps how much of an error response is kept on StatusError.
	MaxErrorBody int64 `koanf:"max_error_body"`
}

/*
====================================
ROUTES CONFIG
====================================
*/

type RoutesConfig struct {
	Login    string `koanf:"login"`
	Home     string `koanf:"home"`
	Admin    string `koanf:"admin"`
	Lecturer string `koanf:"lecturer"`
	Student  string `koanf:"student"`
}

// Table returns the role router table for these routes.
func (r RoutesConfig) Table() router.Table {
	return router.Table{
		Admin:    router.Route(r.Admin),
		Lecturer: router.Route(r.Lecturer),
		Student:  router.Route(r.Student),
		Home:     router.Route(r.Home),
	}
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
	DropIfFull bool `koanf:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `koanf:"enabled"`
	EnableLatencyHistograms bool `koanf:"enable_latency_histograms"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
	// Encoding is "json" or "console".
	Encoding string `koanf:"encoding"`
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	defaults := router.DefaultTable()
	return Config{
		Storage: StorageConfig{
			Backend: BackendMemory,
			Badger: BadgerStorageConfig{
				SyncWrites: true,
			},
		},
		Session: SessionConfig{
			DiscardExpiredTokens: false,
			ExpiryLeeway:         30 * time.Second,
			StoreTimeout:         5 * time.Second,
		},
		HTTP: HTTPConfig{
			BaseURL:         "http://localhost:8080/api",
			Timeout:         15 * time.Second,
			UserAgent:       "webauth/1",
			LoginPath:       "/auth/login",
			ProfilePath:     "/users/me",
			RequestIDHeader: "X-Request-ID",
			MaxErrorBody:    64 << 10,
		},
		Routes: RoutesConfig{
			Login:    "/login",
			Home:     string(defaults.Home),
			Admin:    string(defaults.Admin),
			Lecturer: string(defaults.Lecturer),
			Student:  string(defaults.Student),
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

func cloneConfig(cfg Config) Config {
	// every field is a value type
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values the session or client cannot use.
func (c *Config) Validate() error {
	// Storage
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(c.Storage.Redis.Addr) == "" {
			return invalidConfig("Storage Redis Addr is required for the redis backend")
		}
		if c.Storage.Redis.DB < 0 {
			return invalidConfig("Storage Redis DB must be >= 0")
		}
	case BackendBadger:
		if c.Storage.Badger.Dir == "" && !c.Storage.Badger.InMemory {
			return invalidConfig("Storage Badger Dir is required unless InMemory is set")
		}
		switch len(c.Storage.Badger.EncryptionKey) {
		case 0, 16, 24, 32:
		default:
			return invalidConfig("Storage Badger EncryptionKey must be 16, 24 or 32 bytes")
		}
	default:
		return invalidConfig(fmt.Sprintf("unsupported storage backend %q", c.Storage.Backend))
	}

	// Session
	if c.Session.ExpiryLeeway < 0 || c.Session.ExpiryLeeway > 10*time.Minute {
		return invalidConfig("Session ExpiryLeeway must be within [0, 10m]")
	}
	if c.Session.StoreTimeout < 0 {
		return invalidConfig("Session StoreTimeout must be >= 0")
	}

	// HTTP
	u, err := url.Parse(c.HTTP.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalidConfig("HTTP BaseURL must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalidConfig("HTTP BaseURL scheme must be http or https")
	}
	if c.HTTP.Timeout < 0 {
		return invalidConfig("HTTP Timeout must be >= 0")
	}
	if !strings.HasPrefix(c.HTTP.LoginPath, "/") || !strings.HasPrefix(c.HTTP.ProfilePath, "/") {
		return invalidConfig("HTTP LoginPath and ProfilePath must start with /")
	}
	if strings.TrimSpace(c.HTTP.RequestIDHeader) == "" {
		return invalidConfig("HTTP RequestIDHeader must not be blank")
	}
	if c.HTTP.MaxErrorBody <= 0 {
		return invalidConfig("HTTP MaxErrorBody must be > 0")
	}

	// Routes
	if !strings.HasPrefix(c.Routes.Login, "/") {
		return invalidConfig("Routes Login must be an absolute path")
	}
	if err := c.Routes.Table().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalidConfig("Audit BufferSize must be > 0 when enabled")
	}

	// Log
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalidConfig(fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	if c.Log.Encoding != "json" && c.Log.Encoding != "console" {
		return invalidConfig("Log Encoding must be json or console")
	}

	return nil
}

func invalidConfig(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
