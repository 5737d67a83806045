package config

import "time"

// Config holds the main warden configuration
type Config struct {
	Daemon  DaemonConfig  `toml:"daemon"`
	HTTP    HTTPConfig    `toml:"http"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
}

type DaemonConfig struct {
	PlanPath         string `toml:"plan_path"`
	DispatchInterval string `toml:"dispatch_interval"`
	SweepInterval    string `toml:"sweep_interval"`
	SnapshotInterval string `toml:"snapshot_interval"`
	CancelGrace      string `toml:"cancel_grace"`
}

type HTTPConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// interval strings are validated lazily; a bad value falls back to the
// default rather than wedging the daemon at startup.

func parseOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// DispatchInterval returns the dispatch tick period
func (c *Config) DispatchInterval() time.Duration {
	return parseOr(c.Daemon.DispatchInterval, 15*time.Second)
}

// SweepInterval returns the health sweep period
func (c *Config) SweepInterval() time.Duration {
	return parseOr(c.Daemon.SweepInterval, 30*time.Second)
}

// SnapshotInterval returns the persistence snapshot period
func (c *Config) SnapshotInterval() time.Duration {
	return parseOr(c.Daemon.SnapshotInterval, time.Minute)
}

// CancelGrace returns how long a cancel-requested task may keep running
// before it is forced into failed
func (c *Config) CancelGrace() time.Duration {
	return parseOr(c.Daemon.CancelGrace, 5*time.Minute)
}
