package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "CONFESSIONS"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseURL       = "sqlite://confessions.db"
	defaultLogLevel          = "info"
	defaultLogEncoding       = "json"
	defaultCookieName        = "app_session"
	defaultIssuer            = "tauth"
	defaultCreatePerMinute   = 6
	defaultRateLimitBurst    = 3
	defaultAllowedOriginsRaw = "http://localhost:5173"
	defaultSessionLeeway     = 30 * time.Second
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabaseURL      string
	LogLevel         string
	LogEncoding      string
	TAuthSigningKey  string
	TAuthIssuer      string
	TAuthCookieName  string
	TAuthLeeway      time.Duration
	AdminUserIDs     []string
	AllowedOrigins   []string
	CreatesPerMinute int
	CreateBurst      int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.url", defaultDatabaseURL)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultIssuer)
	configViper.SetDefault("tauth.leeway", defaultSessionLeeway)
	configViper.SetDefault("admin.user_ids", "")
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOriginsRaw)
	configViper.SetDefault("ratelimit.create_per_minute", defaultCreatePerMinute)
	configViper.SetDefault("ratelimit.burst", defaultRateLimitBurst)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabaseURL:      configViper.GetString("database.url"),
		LogLevel:         configViper.GetString("log.level"),
		LogEncoding:      configViper.GetString("log.encoding"),
		TAuthSigningKey:  configViper.GetString("tauth.signing_secret"),
		TAuthIssuer:      configViper.GetString("tauth.issuer"),
		TAuthCookieName:  configViper.GetString("tauth.cookie_name"),
		TAuthLeeway:      configViper.GetDuration("tauth.leeway"),
		AdminUserIDs:     splitList(configViper.GetString("admin.user_ids")),
		AllowedOrigins:   splitList(configViper.GetString("cors.allowed_origins")),
		CreatesPerMinute: configViper.GetInt("ratelimit.create_per_minute"),
		CreateBurst:      configViper.GetInt("ratelimit.burst"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("tauth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database.url is required")
	}
	if strings.TrimSpace(c.TAuthCookieName) == "" {
		return fmt.Errorf("tauth.cookie_name is required")
	}
	if c.TAuthLeeway < 0 {
		return fmt.Errorf("tauth.leeway must not be negative")
	}
	if c.CreatesPerMinute < 0 {
		return fmt.Errorf("ratelimit.create_per_minute must not be negative")
	}
	if c.CreatesPerMinute > 0 && c.CreateBurst <= 0 {
		return fmt.Errorf("ratelimit.burst must be positive when rate limiting is enabled")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogEncoding)) {
	case "json", "console":
	default:
		return fmt.Errorf("log.encoding must be json or console")
	}
	return nil
}

// splitList reads comma separated values; env variables never arrive as slices.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
