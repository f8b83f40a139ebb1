package config

// Default returns the default tool configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
