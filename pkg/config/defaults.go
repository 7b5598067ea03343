package config

import (
	"strings"
	"time"

	"github.com/hydronet-io/hydrogate/internal/protocol/sl651"
	"github.com/hydronet-io/hydrogate/pkg/store"
)

// ApplyDefaults fills in unspecified configuration fields. Zero values
// are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	cfg.Database.ApplyDefaults()
	applyGatewayDefaults(&cfg.Gateway)
	applyAPIDefaults(&cfg.API)
	applyImageStoreDefaults(&cfg.ImageStore)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyGatewayDefaults(cfg *GatewayConfig) {
	if cfg.CenterCode == "" {
		cfg.CenterCode = "01"
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = 2 * time.Second
	}
	if cfg.ReconnectMaxDelay == 0 {
		cfg.ReconnectMaxDelay = 5 * time.Minute
	}
	if cfg.ReconnectJitter == 0 {
		cfg.ReconnectJitter = 0.2
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = sl651.DefaultSessionTimeout
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = sl651.MaxSessionCount
	}
	if cfg.MaxBufferSize == 0 {
		cfg.MaxBufferSize = sl651.MaxBufferSize
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

func applyImageStoreDefaults(cfg *ImageStoreConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
}

// GetDefaultConfig returns a Config with every default applied. Used
// for sample-config rendering and tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: store.Config{
			Type: store.DatabaseTypeSQLite,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
