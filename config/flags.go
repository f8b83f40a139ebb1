package config

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is the tool version string.
const Version = "0.1.0"

// Flags holds parsed global command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	DataDir string
	Config  string

	// Keyring
	KeyringDir string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args (command and its arguments)
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetLogJSON bool
}

// ParseFlags parses global flags from args (without the program name).
// Parsing stops at the first non-flag argument, which starts the command.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("poe-cli", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Keyring
	fs.StringVar(&f.KeyringDir, "keyring-dir", "", "Keystore directory")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()
	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.KeyringDir != "" {
		cfg.Keyring.Dir = f.KeyringDir
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the global usage text to w.
func PrintUsage(w io.Writer) {
	usage := `Klingnet PoE - proof-of-existence claim registry

Usage:
  poe-cli [global options] <command> [command options]

Global Options:
  --help, -h      Show this help message
  --version, -v   Show version information
  --datadir       Data directory (default: ~/.klingnet-poe)
  --config, -c    Config file path (default: <datadir>/poe.conf)
  --keyring-dir   Keystore directory (default: <datadir>/keystore)
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stderr only)
  --log-json      Output logs as JSON

Commands:
  init                                   Create data directories, poe.conf and params.json
  key new --name <n> [--account i]      Generate a new key (prints mnemonic once)
  key import --name <n> --mnemonic "..." Import a key from a mnemonic
  key list                               List stored keys
  key address --name <n>                 Show the address of a key
  claim create --key <n> --proof <hex>   Claim a proof
  claim revoke --key <n> --proof <hex>   Revoke an owned claim
  claim transfer --key <n> --proof <hex> --to <addr>
                                         Transfer an owned claim
  claim show --proof <hex>               Show the claim for a proof

  Claim commands accept --file <path> instead of --proof to use the
  BLAKE3 hash of a file as the proof.
  block advance [--count n]              Advance the block height
  status                                 Show ledger status
  events [--from n] [--limit n]          List deposited events

Environment:
  POE_PASSWORD    Keystore password (skips the interactive prompt)

Note:
  Protocol parameters are read from <datadir>/params.json and bound to the
  ledger on first open. Changing them afterwards makes the ledger refuse
  to open.
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
// 5. Data dirs for the final datadir and keystore
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing flags: %w", err)
	}

	cfg := Default()
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Flags take precedence over the file.
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	// The file may have moved the datadir or keystore.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure, a default config
// file and default params file if they don't already exist. It is
// idempotent.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.LedgerDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	paramsPath := cfg.ParamsFile()
	if _, err := os.Stat(paramsPath); os.IsNotExist(err) {
		if err := DefaultParams().Save(paramsPath); err != nil {
			return fmt.Errorf("writing params file: %w", err)
		}
	}

	return nil
}
