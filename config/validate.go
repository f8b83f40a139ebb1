package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]struct{}{
	"trace": {}, "debug": {}, "info": {}, "warn": {}, "error": {}, "disabled": {}, "off": {},
}

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("datadir is required")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if _, ok := validLogLevels[strings.ToLower(cfg.Log.Level)]; !ok {
		return fmt.Errorf("log.level %q is not one of trace, debug, info, warn, error, off", cfg.Log.Level)
	}
	return nil
}
