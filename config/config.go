// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol parameters: written once to params.json, bound to the ledger
//   - Tool settings: runtime configuration, can vary per invocation
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// =============================================================================
// Tool Configuration (runtime settings)
// =============================================================================

// Config holds runtime configuration for the registry tools.
// These settings can change between runs without affecting ledger state.
type Config struct {
	DataDir string `conf:"datadir"`

	// Keyring
	Keyring KeyringConfig

	// Logging
	Log LogConfig
}

// KeyringConfig holds key storage settings.
type KeyringConfig struct {
	// Dir overrides the keystore location (default: <datadir>/keystore).
	Dir string `conf:"keyring.dir"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-poe
//	macOS:   ~/Library/Application Support/KlingnetPoE
//	Windows: %APPDATA%\KlingnetPoE
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-poe"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetPoE")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetPoE")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetPoE")
	default:
		return filepath.Join(home, ".klingnet-poe")
	}
}

// LedgerDir returns the ledger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.DataDir, "ledger")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	if c.Keyring.Dir != "" {
		return c.Keyring.Dir
	}
	return filepath.Join(c.DataDir, "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "poe.conf")
}

// ParamsFile returns the protocol parameters file path.
func (c *Config) ParamsFile() string {
	return filepath.Join(c.DataDir, "params.json")
}
