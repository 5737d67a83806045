package config

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			PlanPath:         "fleet.yaml",
			DispatchInterval: "15s",
			SweepInterval:    "30s",
			SnapshotInterval: "1m",
			CancelGrace:      "5m",
		},
		HTTP: HTTPConfig{
			ListenAddr: "127.0.0.1:7177",
		},
		Storage: StorageConfig{
			DataDir: ".warden",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
