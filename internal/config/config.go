package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "IMUNIZA"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "imuniza.db"
	defaultLogLevel     = "info"
	defaultSyncInterval = 15 * time.Minute
	defaultRemoteTree   = "individuos"
)

// AppConfig captures runtime configuration for the sync daemon.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	LogLevel         string
	AgentUID         string
	RemoteBaseURL    string
	RemoteRootPath   string
	RemoteSigningKey string
	SyncInterval     time.Duration
	DeletionFanOut   int
	NotificationsOff bool
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
	configViper.SetDefault("remote.root_path", defaultRemoteTree)
	configViper.SetDefault("sync.interval", defaultSyncInterval.String())
	configViper.SetDefault("sync.deletion_fan_out", 4)
	configViper.SetDefault("notifications.disabled", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		AgentUID:         configViper.GetString("agent.uid"),
		RemoteBaseURL:    configViper.GetString("remote.base_url"),
		RemoteRootPath:   configViper.GetString("remote.root_path"),
		RemoteSigningKey: configViper.GetString("remote.signing_secret"),
		SyncInterval:     configViper.GetDuration("sync.interval"),
		DeletionFanOut:   configViper.GetInt("sync.deletion_fan_out"),
		NotificationsOff: configViper.GetBool("notifications.disabled"),
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
	if strings.TrimSpace(c.AgentUID) == "" {
		return fmt.Errorf("agent.uid is required")
	}
	if strings.TrimSpace(c.RemoteBaseURL) == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if strings.TrimSpace(c.RemoteRootPath) == "" {
		return fmt.Errorf("remote.root_path is required")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.DeletionFanOut <= 0 {
		return fmt.Errorf("sync.deletion_fan_out must be positive")
	}
	return nil
}
