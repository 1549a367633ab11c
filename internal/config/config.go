package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "ARVOREDO"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "arvoredo.db"
	defaultLogLevel         = "info"
	defaultTokenIssuer      = "arvoredo-api"
	defaultAccessTTLHours   = 24
	defaultRefreshTTLHours  = 168
	defaultMaxLoginAttempts = 5
	defaultBcryptCost       = 12
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	LogLevel         string
	SigningSecret    string
	TokenIssuer      string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	MaxLoginAttempts int
	BcryptCost       int
	CORSOrigins      []string
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.access_ttl_hours", defaultAccessTTLHours)
	configViper.SetDefault("auth.refresh_ttl_hours", defaultRefreshTTLHours)
	configViper.SetDefault("auth.max_login_attempts", defaultMaxLoginAttempts)
	configViper.SetDefault("auth.bcrypt_cost", defaultBcryptCost)
	configViper.SetDefault("cors.origins", []string{"*"})
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		TokenIssuer:      configViper.GetString("auth.issuer"),
		AccessTokenTTL:   time.Duration(configViper.GetInt("auth.access_ttl_hours")) * time.Hour,
		RefreshTokenTTL:  time.Duration(configViper.GetInt("auth.refresh_ttl_hours")) * time.Hour,
		MaxLoginAttempts: configViper.GetInt("auth.max_login_attempts"),
		BcryptCost:       configViper.GetInt("auth.bcrypt_cost"),
		CORSOrigins:      configViper.GetStringSlice("cors.origins"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_ttl_hours must be positive")
	}
	if c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("auth.refresh_ttl_hours must be positive")
	}
	if c.MaxLoginAttempts < 1 {
		return fmt.Errorf("auth.max_login_attempts must be at least 1")
	}
	return nil
}
