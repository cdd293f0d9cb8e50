// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authd settings from defaults, an optional YAML file,
// the environment and command-line flags, in increasing precedence.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Mail providers. "sendgrid" is accepted as an alias for "http".
const (
	MailNone     = "none"
	MailSMTP     = "smtp"
	MailHTTP     = "http"
	MailSendGrid = "sendgrid"
)

// Config is the complete service configuration. It is loaded once at startup
// and treated as immutable afterwards.
type Config struct {
	LogFormat string `koanf:"log_format" env:"LOG_FORMAT"`
	LogLevel  string `koanf:"log_level"  env:"LOG_LEVEL"`
	// SecretKey signs every token. There is no default.
	SecretKey string `koanf:"secret_key" env:"SECRET_KEY"`
	// RequireVerifiedEmail rejects logins from unverified accounts.
	RequireVerifiedEmail bool   `koanf:"require_verified_email" env:"REQUIRE_VERIFIED_EMAIL"`
	FrontendURL          string `koanf:"frontend_url"           env:"FRONTEND_URL"`
	AppName              string `koanf:"app_name"               env:"APP_NAME"`

	Store   StoreConfig   `koanf:"store"`
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Mail    MailConfig    `koanf:"mail"`
}

// StoreConfig selects and tunes the account store.
type StoreConfig struct {
	Backend         string        `koanf:"backend"          env:"STORE_BACKEND"`
	DatabaseURL     string        `koanf:"database_url"     env:"DATABASE_URL"`
	MaxConns        int32         `koanf:"max_conns"        env:"DATABASE_MAX_CONNS"`
	QueryTimeout    time.Duration `koanf:"query_timeout"    env:"DATABASE_QUERY_TIMEOUT"`
	ConnectAttempts uint64        `koanf:"connect_attempts" env:"DATABASE_CONNECT_ATTEMPTS"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"  env:"DATABASE_CONNECT_BACKOFF"`
	// AutoMigrate applies pending migrations before serving.
	AutoMigrate bool `koanf:"auto_migrate" env:"DATABASE_AUTO_MIGRATE"`
}

// HTTPConfig controls the public HTTP surface.
type HTTPConfig struct {
	Addr         string   `koanf:"addr"          env:"HTTP_ADDR"`
	CORSOrigins  []string `koanf:"cors_origins"  env:"CORS_ORIGINS" envSeparator:","`
	CookieSecure bool     `koanf:"cookie_secure" env:"COOKIE_SECURE"`
	CSRFEnforce  bool     `koanf:"csrf_enforce"  env:"CSRF_ENFORCE"`
	BodyLimit    int      `koanf:"body_limit"    env:"HTTP_BODY_LIMIT"`
	// RateLimit is requests per minute per client IP; zero disables limiting.
	RateLimit int `koanf:"rate_limit" env:"HTTP_RATE_LIMIT"`
}

// MetricsConfig controls the observability listener.
type MetricsConfig struct {
	// Addr is empty to disable the listener.
	Addr string `koanf:"addr" env:"METRICS_ADDR"`
}

// MailConfig selects the notifier and the dispatcher sizing.
type MailConfig struct {
	Provider    string        `koanf:"provider"     env:"MAIL_PROVIDER"`
	From        string        `koanf:"from"         env:"MAIL_FROM"`
	FromName    string        `koanf:"from_name"    env:"MAIL_FROM_NAME"`
	Server      string        `koanf:"server"       env:"MAIL_SERVER"`
	Port        int           `koanf:"port"         env:"MAIL_PORT"`
	Username    string        `koanf:"username"     env:"MAIL_USERNAME"`
	Password    string        `koanf:"password"     env:"MAIL_PASSWORD"`
	StartTLS    bool          `koanf:"starttls"     env:"MAIL_STARTTLS"`
	ImplicitTLS bool          `koanf:"ssl_tls"      env:"MAIL_SSL_TLS"`
	APIKey      string        `koanf:"api_key"      env:"SENDGRID_API_KEY"`
	Endpoint    string        `koanf:"endpoint"     env:"MAIL_HTTP_ENDPOINT"`
	QueueSize   int           `koanf:"queue_size"   env:"MAIL_QUEUE_SIZE"`
	Workers     int           `koanf:"workers"      env:"MAIL_WORKERS"`
	SendTimeout time.Duration `koanf:"send_timeout" env:"MAIL_SEND_TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogFormat:   "json",
		LogLevel:    "info",
		FrontendURL: "http://localhost:5173",
		AppName:     "authd",
		Store: StoreConfig{
			Backend:         StorePostgres,
			QueryTimeout:    5 * time.Second,
			ConnectAttempts: 5,
			ConnectBackoff:  500 * time.Millisecond,
		},
		HTTP: HTTPConfig{
			Addr:         ":8000",
			CORSOrigins:  []string{"http://localhost:5173"},
			CookieSecure: true,
			BodyLimit:    1 << 20,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9100",
		},
		Mail: MailConfig{
			Provider:    MailNone,
			FromName:    "authd",
			Port:        587,
			StartTLS:    true,
			QueueSize:   256,
			Workers:     2,
			SendTimeout: 30 * time.Second,
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"store":        "store.backend",
	"log-format":   "log_format",
	"log-level":    "log_level",
	"database-url": "store.database_url",
}

// BindFlags registers the overridable settings on fs. Defaults shown in help
// text come from Default; they never override the file or environment.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "public HTTP listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("store", d.Store.Backend, "account store backend (postgres or memory)")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("database-url", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
}

// Load builds a Config. path may be empty to skip the file; flags may be nil.
// Only flags the user actually set override earlier layers.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
		if err := unmarshal(k, &cfg); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	if flags != nil {
		k := koanf.New(".")
		provider := posflag.ProviderWithFlag(flags, ".", nil, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
		if err := unmarshal(k, &cfg); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	cfg.Mail.Provider = strings.ToLower(strings.TrimSpace(cfg.Mail.Provider))
	return cfg, nil
}

// unmarshal overlays the keys present in k onto cfg. Lists are replaced
// rather than merged element by element.
func unmarshal(k *koanf.Koanf, cfg *Config) error {
	if k.Exists("http.cors_origins") {
		cfg.HTTP.CORSOrigins = nil
	}
	return k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"})
}

// Validate reports the first setting that would prevent the service from
// starting.
func (c Config) Validate() error {
	if c.SecretKey == "" {
		return invalid("secret_key", "SECRET_KEY is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log_format", "must be 'json' or 'text'")
	}
	switch c.Store.Backend {
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "DATABASE_URL is required for the postgres store")
		}
	case StoreMemory:
	default:
		return invalid("store.backend", "must be 'postgres' or 'memory'")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "listen address is required")
	}
	if c.HTTP.RateLimit < 0 {
		return invalid("http.rate_limit", "must not be negative")
	}
	for _, origin := range c.HTTP.CORSOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("http.cors_origins", "origins must be absolute URLs or '*'")
		}
	}
	switch c.Mail.Provider {
	case MailNone, "":
	case MailSMTP:
		if c.Mail.Server == "" || c.Mail.From == "" {
			return invalid("mail", "MAIL_SERVER and MAIL_FROM are required for smtp")
		}
	case MailHTTP, MailSendGrid:
		if c.Mail.APIKey == "" || c.Mail.From == "" {
			return invalid("mail", "SENDGRID_API_KEY and MAIL_FROM are required for http")
		}
	default:
		return invalid("mail.provider", "must be 'smtp', 'http' or 'none'")
	}
	return nil
}

func invalid(key, reason string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("invalid configuration: %s: %s", key, reason)
}
