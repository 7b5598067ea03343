// Package config loads the gateway configuration from file, environment
// and defaults, and watches the file for live re-tuning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hydronet-io/hydrogate/pkg/store"
)

// Config is the static configuration of the gateway process.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (HYDROGATE_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Links and devices are dynamic configuration managed through the API
// and stored in the database.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures the persistence layer (SQLite or PostgreSQL).
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Gateway tunes the protocol pipeline and link handling.
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`

	// API configures the HTTP status/admin server.
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics controls Prometheus metrics collection. When disabled no
	// collectors are registered and the /metrics route is absent.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ImageStore configures the optional S3 archive for JPEG telemetry.
	ImageStore ImageStoreConfig `mapstructure:"imagestore" yaml:"imagestore"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format selects the output encoding: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// GatewayConfig tunes the protocol pipeline.
type GatewayConfig struct {
	// CenterCode is this station's address on downlink frames, two hex
	// characters.
	CenterCode string `mapstructure:"center_code" validate:"required,len=2,hexadecimal" yaml:"center_code"`

	// Workers sizes the link worker pool. Zero derives from CPU count.
	Workers int `mapstructure:"workers" validate:"omitempty,min=1,max=256" yaml:"workers"`

	// ReconnectBaseDelay is the first client reconnect delay.
	ReconnectBaseDelay time.Duration `mapstructure:"reconnect_base_delay" yaml:"reconnect_base_delay"`

	// ReconnectMaxDelay caps the exponential reconnect backoff.
	ReconnectMaxDelay time.Duration `mapstructure:"reconnect_max_delay" yaml:"reconnect_max_delay"`

	// ReconnectJitter is the +/- fraction applied to each delay.
	ReconnectJitter float64 `mapstructure:"reconnect_jitter" validate:"gte=0,lt=1" yaml:"reconnect_jitter"`

	// SessionTimeout expires incomplete multi-packet transactions.
	SessionTimeout time.Duration `mapstructure:"session_timeout" yaml:"session_timeout"`

	// MaxSessions caps the multi-packet reassembly table.
	MaxSessions int `mapstructure:"max_sessions" validate:"omitempty,min=1" yaml:"max_sessions"`

	// MaxBufferSize caps each per-connection framer buffer in bytes.
	MaxBufferSize int `mapstructure:"max_buffer_size" validate:"omitempty,min=1024" yaml:"max_buffer_size"`

	// DialTimeout bounds outbound connection attempts.
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`

	// WriteTimeout bounds individual socket writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// APIConfig configures the HTTP status/admin server.
type APIConfig struct {
	// Host is the bind address. Empty binds every interface.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP listen port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// MetricsConfig controls Prometheus metrics collection.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ImageStoreConfig configures the optional S3-compatible JPEG archive.
type ImageStoreConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint overrides the S3 endpoint for MinIO-style deployments.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	Region string `mapstructure:"region" yaml:"region,omitempty"`
	Bucket string `mapstructure:"bucket" yaml:"bucket,omitempty"`

	// Static credentials. Empty falls back to the SDK's default chain.
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`

	// UsePathStyle forces path-style addressing, required by most
	// self-hosted S3 implementations.
	UsePathStyle bool `mapstructure:"use_path_style" yaml:"use_path_style,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location; a missing file is not
// an error and yields the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  hydrogate init\n\n"+
				"Or specify a custom config file:\n"+
				"  hydrogate <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  hydrogate init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may carry database and object-store credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variable support and config file
// resolution. Environment variables use the HYDROGATE_ prefix, e.g.
// HYDROGATE_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("HYDROGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is reported as (false, nil).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook converts strings like "30s" and raw numbers to
// time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory: XDG_CONFIG_HOME if
// set, otherwise ~/.config, with the current directory as last resort.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hydrogate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "hydrogate")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for
// the init command).
func GetConfigDir() string {
	return getConfigDir()
}
