package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "HANDLOG"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "handlog.db"
	defaultStorageKey       = "poker_hands_v1"
	defaultAnalysisBaseURL  = "https://poker-proxy-i0rl.onrender.com"
	defaultAnalysisTimeout  = 60 * time.Second
	defaultClockTimezone    = "Local"
	defaultLogLevel         = "info"
	minimumAnalysisDuration = time.Second
)

// AppConfig captures runtime configuration for the hand log service.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	StorageKey      string
	AnalysisBaseURL string
	AnalysisTimeout time.Duration
	Location        *time.Location
	LogLevel        string
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
	configViper.SetDefault("storage.key", defaultStorageKey)
	configViper.SetDefault("analysis.base_url", defaultAnalysisBaseURL)
	configViper.SetDefault("analysis.timeout", defaultAnalysisTimeout)
	configViper.SetDefault("clock.timezone", defaultClockTimezone)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	timezone := strings.TrimSpace(configViper.GetString("clock.timezone"))
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return AppConfig{}, fmt.Errorf("clock.timezone %q: %w", timezone, err)
	}

	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		StorageKey:      configViper.GetString("storage.key"),
		AnalysisBaseURL: strings.TrimRight(strings.TrimSpace(configViper.GetString("analysis.base_url")), "/"),
		AnalysisTimeout: configViper.GetDuration("analysis.timeout"),
		Location:        location,
		LogLevel:        configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.StorageKey) == "" {
		return fmt.Errorf("storage.key is required")
	}
	if c.AnalysisBaseURL == "" {
		return fmt.Errorf("analysis.base_url is required")
	}
	parsed, err := url.Parse(c.AnalysisBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("analysis.base_url must be an absolute url")
	}
	if c.AnalysisTimeout < minimumAnalysisDuration {
		return fmt.Errorf("analysis.timeout must be at least %s", minimumAnalysisDuration)
	}
	return nil
}
