package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "INKWELL"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "inkwell.db"
	defaultLogLevel      = "info"
	defaultLogFormat     = "json"
	defaultTokenTTLMin   = 30
	defaultSweepSeconds  = 30
	defaultIdleSeconds   = 300
	defaultMailPollSecs  = 5
	defaultTokenIssuer   = "inkwell-auth"
	defaultTokenAudience = "inkwell-api"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	LogFormat          string
	SigningSecret      string
	TokenIssuer        string
	TokenAudience      string
	TokenTTL           time.Duration
	PresenceSweepEvery time.Duration
	PresenceIdleAfter  time.Duration
	MailPollEvery      time.Duration
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
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMin)
	configViper.SetDefault("auth.token_issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.token_audience", defaultTokenAudience)
	configViper.SetDefault("presence.sweep_interval_s", defaultSweepSeconds)
	configViper.SetDefault("presence.idle_timeout_s", defaultIdleSeconds)
	configViper.SetDefault("email.poll_interval_s", defaultMailPollSecs)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		LogFormat:          configViper.GetString("log.format"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenIssuer:        configViper.GetString("auth.token_issuer"),
		TokenAudience:      configViper.GetString("auth.token_audience"),
		TokenTTL:           time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		PresenceSweepEvery: time.Duration(configViper.GetInt("presence.sweep_interval_s")) * time.Second,
		PresenceIdleAfter:  time.Duration(configViper.GetInt("presence.idle_timeout_s")) * time.Second,
		MailPollEvery:      time.Duration(configViper.GetInt("email.poll_interval_s")) * time.Second,
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
	if c.PresenceSweepEvery <= 0 {
		return fmt.Errorf("presence.sweep_interval_s must be positive")
	}
	if c.PresenceIdleAfter <= 0 {
		return fmt.Errorf("presence.idle_timeout_s must be positive")
	}
	return nil
}
