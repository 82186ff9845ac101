package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the process-level FileMQ configuration.
//
// This structure captures how a filemq process runs, independently of what
// it distributes:
//   - Logging configuration
//   - Metrics exposure
//   - Transport tuning (websocket path, timeouts, admission limits)
//   - Digest cache backend selection (store-specific)
//
// The dialog engines read their protocol settings (server/*, client/*,
// security/*, publish, bind, subscribe, ...) from the same file through the
// ordered settings tree in pkg/config/tree; viper ignores those sections.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FILEMQ_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Transport tunes the websocket transport shared by server and client
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`

	// Cache selects where client digest caches are kept
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig controls the metrics HTTP endpoint.
type MetricsConfig struct {
	// Enabled exposes /metrics when true
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port of the metrics server
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// TransportConfig tunes the websocket transport.
type TransportConfig struct {
	// Path is the HTTP path serving the websocket upgrade
	Path string `mapstructure:"path" validate:"required,startswith=/" yaml:"path"`

	// WriteTimeout bounds a single websocket write
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"required,gt=0" yaml:"write_timeout"`

	// HandshakeRate is the number of websocket upgrades accepted per second
	// (0 disables admission limiting)
	HandshakeRate float64 `mapstructure:"handshake_rate" validate:"gte=0" yaml:"handshake_rate"`

	// HandshakeBurst is the number of upgrades allowed in a burst
	HandshakeBurst int `mapstructure:"handshake_burst" validate:"gte=0" yaml:"handshake_burst"`

	// MaxMessageSize caps one inbound websocket message in bytes
	MaxMessageSize int64 `mapstructure:"max_message_size" validate:"required,gt=0" yaml:"max_message_size"`

	// ReconnectMin is the first redial delay of a client
	ReconnectMin time.Duration `mapstructure:"reconnect_min" validate:"required,gt=0" yaml:"reconnect_min"`

	// ReconnectMax caps the redial delay of a client
	ReconnectMax time.Duration `mapstructure:"reconnect_max" validate:"required,gtefield=ReconnectMin" yaml:"reconnect_max"`
}

// CacheConfig specifies the digest cache store.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type CacheConfig struct {
	// Type specifies which digest store implementation to use
	// Valid values: file, memory, badger, s3
	Type string `mapstructure:"type" validate:"required,oneof=file memory badger s3" yaml:"type"`

	// File contains file-specific configuration
	// Only used when Type = "file"
	File map[string]any `mapstructure:"file" yaml:"file,omitempty"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FILEMQ_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: FILEMQ_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("FILEMQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only affects keys viper already knows about
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"shutdown_timeout",
		"metrics.enabled", "metrics.port",
		"transport.path", "transport.write_timeout",
		"transport.handshake_rate", "transport.handshake_burst",
		"transport.max_message_size",
		"transport.reconnect_min", "transport.reconnect_max",
		"cache.type",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/filemq/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist falls back to defaults too
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "filemq")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "filemq")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}

// SettingsPath returns the file the dialog engines read their settings from:
// configPath when given, else the default config file when it exists, else "".
func SettingsPath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if ConfigExists() {
		return GetDefaultConfigPath()
	}
	return ""
}
