package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config represents ~/.showroom/config.toml.
type Config struct {
	DefaultProfile string           `toml:"default_profile" validate:"omitempty,max=64"`
	Server         ServerConfig     `toml:"server"`
	Identity       IdentityConfig   `toml:"identity"`
	Presence       PresenceConfig   `toml:"presence"`
	Stream         StreamConfig     `toml:"stream"`
	Attachments    AttachmentConfig `toml:"attachments"`
	Cache          CacheConfig      `toml:"cache"`
	Notify         NotifyConfig     `toml:"notify"`
}

// ServerConfig points at the showroom web app.
type ServerConfig struct {
	BaseURL string   `toml:"base_url" validate:"required,url"`
	Token   string   `toml:"token"`
	Timeout Duration `toml:"timeout" validate:"gt=0"`
}

// IdentityConfig is the signed-in viewer. Role "admin" unlocks moderation.
type IdentityConfig struct {
	Email string `toml:"email" validate:"required,email"`
	Name  string `toml:"name"`
	Role  string `toml:"role" validate:"omitempty,oneof=admin member"`
	Plan  string `toml:"plan"`
}

type PresenceConfig struct {
	Grace           Duration `toml:"grace" validate:"gt=0"`
	PruneMissing    bool     `toml:"prune_missing"`
	RefetchInterval Duration `toml:"refetch_interval" validate:"gt=0"`
}

type StreamConfig struct {
	ReconnectDelay  Duration `toml:"reconnect_delay" validate:"gt=0"`
	MaxBackoff      Duration `toml:"max_backoff" validate:"gt=0"`
	DisconnectAfter int      `toml:"disconnect_after" validate:"gt=0"`
}

type AttachmentConfig struct {
	MaxBytes     int64    `toml:"max_bytes" validate:"gt=0"`
	MaxDimension int      `toml:"max_dimension" validate:"gt=0"`
	TargetBytes  int64    `toml:"target_bytes" validate:"gt=0"`
	URLTTL       Duration `toml:"url_ttl" validate:"gt=0"`
	URLRefresh   Duration `toml:"url_refresh" validate:"gt=0"`
}

// CacheConfig selects the URL cache backend. Empty RedisURL keeps it in memory.
type CacheConfig struct {
	RedisURL string `toml:"redis_url" validate:"omitempty,url"`
}

type NotifyConfig struct {
	SystemChannels []string `toml:"system_channels"`
}

// Duration is a time.Duration written as "3s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a config with every tunable set.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Server: ServerConfig{
			BaseURL: "http://127.0.0.1:8787",
			Timeout: Duration{15 * time.Second},
		},
		Identity: IdentityConfig{Role: "member"},
		Presence: PresenceConfig{
			Grace:           Duration{60 * time.Second},
			RefetchInterval: Duration{30 * time.Second},
		},
		Stream: StreamConfig{
			ReconnectDelay:  Duration{3 * time.Second},
			MaxBackoff:      Duration{time.Minute},
			DisconnectAfter: 5,
		},
		Attachments: AttachmentConfig{
			MaxBytes:     10 << 20,
			MaxDimension: 1600,
			TargetBytes:  1 << 20,
			URLTTL:       Duration{9 * time.Minute},
			URLRefresh:   Duration{8 * time.Minute},
		},
		Notify: NotifyConfig{SystemChannels: []string{"announcements"}},
	}
}

// Load reads config from the given path on top of Default. Returns an error
// if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load that falls back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Environment variables that override the file.
const (
	EnvBaseURL  = "SHOWROOM_BASE_URL"
	EnvToken    = "SHOWROOM_TOKEN"
	EnvEmail    = "SHOWROOM_EMAIL"
	EnvName     = "SHOWROOM_NAME"
	EnvRole     = "SHOWROOM_ROLE"
	EnvRedisURL = "SHOWROOM_REDIS_URL"
)

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv copies SHOWROOM_* variables over cfg.
func ApplyEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{EnvBaseURL, &cfg.Server.BaseURL},
		{EnvToken, &cfg.Server.Token},
		{EnvEmail, &cfg.Identity.Email},
		{EnvName, &cfg.Identity.Name},
		{EnvRole, &cfg.Identity.Role},
		{EnvRedisURL, &cfg.Cache.RedisURL},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok && v != "" {
			*o.dst = v
		}
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(Duration); ok {
			return int64(d.Duration)
		}
		return nil
	}, Duration{})
	return v
}

// Validate checks the merged config.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Attachments.URLRefresh.Duration >= c.Attachments.URLTTL.Duration {
		return fmt.Errorf("invalid config: attachments.url_refresh (%s) must be shorter than url_ttl (%s)",
			c.Attachments.URLRefresh, c.Attachments.URLTTL)
	}
	return nil
}

// IsAdmin reports whether the configured identity may moderate.
func (c *Config) IsAdmin() bool {
	return c.Identity.Role == "admin"
}
