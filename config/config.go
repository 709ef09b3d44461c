package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "SECRETS_"

const minSessionKeyLength = 32

// Duration reads "15m"-style strings from both JSON and the environment.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	AppName      string `json:"app_name"      env:"APP_NAME"`
	ListenIP     string `json:"listen_ip"     env:"LISTEN_IP"`
	ListenPort   int    `json:"listen_port"   env:"LISTEN_PORT"`
	BaseURL      string `json:"base_url"      env:"BASE_URL"`
	DatabasePath string `json:"database_path" env:"DATABASE_PATH"`

	// TrustProxyHeaders takes the client IP from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `json:"trust_proxy_headers" env:"TRUST_PROXY_HEADERS"`

	SessionKey             string   `json:"session_key"              env:"SESSION_KEY"`
	SecureCookies          bool     `json:"secure_cookies"           env:"SECURE_COOKIES"`
	SessionTTL             Duration `json:"session_ttl"              env:"SESSION_TTL"`
	SessionCleanupInterval Duration `json:"session_cleanup_interval" env:"SESSION_CLEANUP_INTERVAL"`

	GoogleEnabled      bool   `json:"google_enabled"       env:"GOOGLE_ENABLED"`
	GoogleClientID     string `json:"google_client_id"     env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `json:"google_client_secret" env:"GOOGLE_CLIENT_SECRET"`

	// DataKey, when set, encrypts secret text at rest.
	DataKey         string `json:"data_key"         env:"DATA_KEY"`
	RegisterCaptcha bool   `json:"register_captcha" env:"REGISTER_CAPTCHA"`

	// MinPasswordLength of zero accepts any non-empty password.
	MinPasswordLength int `json:"min_password_length" env:"MIN_PASSWORD_LENGTH"`

	LogLevel        string   `json:"log_level"        env:"LOG_LEVEL"`
	LogFormat       string   `json:"log_format"       env:"LOG_FORMAT"`
	ShutdownTimeout Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

func Default() Config {
	return Config{
		AppName:                "Secrets",
		ListenIP:               "127.0.0.1",
		ListenPort:             3000,
		BaseURL:                "http://localhost:3000",
		DatabasePath:           "./secrets.db",
		SessionTTL:             Duration{7 * 24 * time.Hour},
		SessionCleanupInterval: Duration{time.Hour},
		GoogleEnabled:          true,
		RegisterCaptcha:        true,
		LogLevel:               "info",
		LogFormat:              "console",
		ShutdownTimeout:        Duration{10 * time.Second},
	}
}

// LoadConfig layers defaults, the JSON file at path (optional; a missing file
// is skipped) and SECRETS_* environment variables, then validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fails fast on settings that would leave the app insecure or broken.
func (c Config) Validate() error {
	var errs []error

	switch {
	case c.SessionKey == "":
		errs = append(errs, errors.New("session_key is required (set SECRETS_SESSION_KEY)"))
	case len(c.SessionKey) < minSessionKeyLength:
		errs = append(errs, fmt.Errorf("session_key must be at least %d bytes", minSessionKeyLength))
	}

	if c.GoogleEnabled {
		if c.GoogleClientID == "" {
			errs = append(errs, errors.New("google_client_id is required when google login is enabled"))
		}
		if c.GoogleClientSecret == "" {
			errs = append(errs, errors.New("google_client_secret is required when google login is enabled"))
		}
	}

	if c.ListenPort < 1 || c.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("listen_port %d out of range", c.ListenPort))
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q must be an absolute URL", c.BaseURL))
	}
	if c.MinPasswordLength < 0 {
		errs = append(errs, fmt.Errorf("min_password_length %d must not be negative", c.MinPasswordLength))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.SessionTTL.Duration <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	if c.SessionCleanupInterval.Duration <= 0 {
		errs = append(errs, errors.New("session_cleanup_interval must be positive"))
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q must be console or json", c.LogFormat))
	}

	return errors.Join(errs...)
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenIP, c.ListenPort)
}

// GoogleCallbackURL is the redirect URI registered with Google.
func (c Config) GoogleCallbackURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/auth/google/secrets"
}
