package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath        = "config.toml"
	DefaultAPIBaseURL        = "http://127.0.0.1:8090"
	DefaultSocketURL         = "ws://127.0.0.1:8090/socket"
	DefaultAPITimeout        = 15 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultPageLimit         = 20
	DefaultClipboardInterval = 2 * time.Second
	DefaultTimezone          = "Asia/Ho_Chi_Minh"
	DefaultMaxMediaBytes     = 10 * 1024 * 1024
	DefaultSandboxAddr       = ":8090"
	DefaultSandboxShopUserID = "shop"
	DefaultTokenTTL          = 24 * time.Hour
	DefaultSandboxMediaDir   = "data/media"

	envPrefix = "SHOPCHAT_"
)

type Config struct {
	Log     LogConfig     `toml:"log" yaml:"log" envPrefix:"LOG_"`
	API     APIConfig     `toml:"api" yaml:"api" envPrefix:"API_"`
	Socket  SocketConfig  `toml:"socket" yaml:"socket" envPrefix:"SOCKET_"`
	Session SessionConfig `toml:"session" yaml:"session" envPrefix:"SESSION_"`
	Media   MediaConfig   `toml:"media" yaml:"media" envPrefix:"MEDIA_"`
	Auth    AuthConfig    `toml:"auth" yaml:"auth" envPrefix:"AUTH_"`
	Sandbox SandboxConfig `toml:"sandbox" yaml:"sandbox" envPrefix:"SANDBOX_"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics" envPrefix:"METRICS_"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level" env:"LEVEL" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `toml:"format" yaml:"format" env:"FORMAT" validate:"omitempty,oneof=text json"`
}

type APIConfig struct {
	BaseURL string   `toml:"base_url" yaml:"base_url" env:"BASE_URL" validate:"required,url"`
	Timeout Duration `toml:"timeout" yaml:"timeout" env:"TIMEOUT"`
}

type SocketConfig struct {
	URL            string   `toml:"url" yaml:"url" env:"URL" validate:"required,url"`
	ConnectTimeout Duration `toml:"connect_timeout" yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

type SessionConfig struct {
	PageLimit         int      `toml:"page_limit" yaml:"page_limit" env:"PAGE_LIMIT" validate:"gte=1,lte=200"`
	ClipboardInterval Duration `toml:"clipboard_interval" yaml:"clipboard_interval" env:"CLIPBOARD_INTERVAL"`
	ClipboardEnabled  bool     `toml:"clipboard_enabled" yaml:"clipboard_enabled" env:"CLIPBOARD_ENABLED"`
	Timezone          string   `toml:"timezone" yaml:"timezone" env:"TIMEZONE"`
}

type MediaConfig struct {
	MaxBytes int64 `toml:"max_bytes" yaml:"max_bytes" env:"MAX_BYTES" validate:"gte=1"`
}

type AuthConfig struct {
	Token     string `toml:"token" yaml:"token" env:"TOKEN"`
	TokenFile string `toml:"token_file" yaml:"token_file" env:"TOKEN_FILE"`
	UserID    string `toml:"user_id" yaml:"user_id" env:"USER_ID"`
	JWTSecret string `toml:"jwt_secret" yaml:"jwt_secret" env:"JWT_SECRET"`
}

type SandboxConfig struct {
	Addr       string   `toml:"addr" yaml:"addr" env:"ADDR"`
	ShopUserID string   `toml:"shop_user_id" yaml:"shop_user_id" env:"SHOP_USER_ID"`
	PublicURL  string   `toml:"public_url" yaml:"public_url" env:"PUBLIC_URL" validate:"omitempty,url"`
	TokenTTL   Duration `toml:"token_ttl" yaml:"token_ttl" env:"TOKEN_TTL"`
	MediaDir   string   `toml:"media_dir" yaml:"media_dir" env:"MEDIA_DIR"`
}

type MetricsConfig struct {
	Addr string `toml:"addr" yaml:"addr" env:"ADDR"`
}

// Location resolves the configured display timezone, falling back to UTC.
func (c SessionConfig) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			BaseURL: DefaultAPIBaseURL,
			Timeout: Duration(DefaultAPITimeout),
		},
		Socket: SocketConfig{
			URL:            DefaultSocketURL,
			ConnectTimeout: Duration(DefaultConnectTimeout),
		},
		Session: SessionConfig{
			PageLimit:         DefaultPageLimit,
			ClipboardInterval: Duration(DefaultClipboardInterval),
			Timezone:          DefaultTimezone,
		},
		Media: MediaConfig{
			MaxBytes: DefaultMaxMediaBytes,
		},
		Sandbox: SandboxConfig{
			Addr:       DefaultSandboxAddr,
			ShopUserID: DefaultSandboxShopUserID,
			TokenTTL:   Duration(DefaultTokenTTL),
			MediaDir:   DefaultSandboxMediaDir,
		},
	}
}

// Load reads the config file at path (TOML, or YAML for .yaml/.yml), applies
// SHOPCHAT_* environment overrides and validates the result. A missing file
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if err := decodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return cfg, fmt.Errorf("apply env overrides: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func Validate(cfg Config) error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func decodeFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("decode toml config: %w", err)
		}
	}
	return nil
}
