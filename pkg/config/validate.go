package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the configuration. Struct tags handle ranges and
// formats; cross-field rules are checked explicitly.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("field %s failed rule %q", e.Namespace(), e.Tag())
		}
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return err
	}

	if cfg.Gateway.ReconnectBaseDelay > cfg.Gateway.ReconnectMaxDelay {
		return fmt.Errorf("gateway.reconnect_base_delay %s exceeds reconnect_max_delay %s",
			cfg.Gateway.ReconnectBaseDelay, cfg.Gateway.ReconnectMaxDelay)
	}

	if cfg.ImageStore.Enabled && cfg.ImageStore.Bucket == "" {
		return fmt.Errorf("imagestore.bucket is required when the image store is enabled")
	}
	return nil
}
