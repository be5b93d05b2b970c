// Package config loads the monitor's runtime settings from a YAML
// file (gopkg.in/yaml.v3) overridable by pflag command-line switches.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/lego-riskieren/lump-driver/internal/lump"
)

// Config is the full set of settings a lump-monitor process needs.
type Config struct {
	Port   PortConfig   `yaml:"port"`
	Redis  RedisConfig  `yaml:"redis"`
	Timing TimingConfig `yaml:"timing"`
	Log    LogConfig    `yaml:"log"`
}

type PortConfig struct {
	Device string `yaml:"device"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TimingConfig mirrors lump.Timing in YAML-friendly, millisecond form,
// since the keep-alive and watchdog periods should be configurable
// rather than compiled in.
type TimingConfig struct {
	ProbeWindowMS     int64 `yaml:"probe_window_ms"`
	ByteTimeoutMS     int64 `yaml:"byte_timeout_ms"`
	KeepAlivePeriodMS int64 `yaml:"keepalive_period_ms"`
	WatchdogPeriodMS  int64 `yaml:"watchdog_period_ms"`
	HighBaud          int   `yaml:"high_baud"`
	LowBaud           int   `yaml:"low_baud"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// ToTiming converts the YAML-friendly millisecond fields into a
// lump.Timing, falling back to lump.DefaultTiming for any zero value.
func (t TimingConfig) ToTiming() lump.Timing {
	def := lump.DefaultTiming()
	timing := def
	if t.ProbeWindowMS > 0 {
		timing.ProbeWindow = time.Duration(t.ProbeWindowMS) * time.Millisecond
	}
	if t.ByteTimeoutMS > 0 {
		timing.ByteTimeout = time.Duration(t.ByteTimeoutMS) * time.Millisecond
	}
	if t.KeepAlivePeriodMS > 0 {
		timing.KeepAlivePeriod = time.Duration(t.KeepAlivePeriodMS) * time.Millisecond
	}
	if t.WatchdogPeriodMS > 0 {
		timing.WatchdogPeriod = time.Duration(t.WatchdogPeriodMS) * time.Millisecond
	}
	if t.HighBaud > 0 {
		timing.HighBaud = t.HighBaud
	}
	if t.LowBaud > 0 {
		timing.LowBaud = t.LowBaud
	}
	return timing
}

// Default returns the built-in configuration, used when no YAML file
// is supplied and no flags override it.
func Default() Config {
	return Config{
		Port:  PortConfig{Device: "/dev/ttyLUMP0"},
		Redis: RedisConfig{Addr: "localhost:6379", DB: 0},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads path (if non-empty) as YAML over the defaults, then
// applies any pflag overrides that were explicitly set on fs.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyFlagOverrides(&cfg, fs)
	return cfg, nil
}

func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) {
	if fs == nil {
		return
	}
	if fs.Changed("device") {
		cfg.Port.Device, _ = fs.GetString("device")
	}
	if fs.Changed("redis-addr") {
		cfg.Redis.Addr, _ = fs.GetString("redis-addr")
	}
	if fs.Changed("redis-pass") {
		cfg.Redis.Password, _ = fs.GetString("redis-pass")
	}
	if fs.Changed("redis-db") {
		cfg.Redis.DB, _ = fs.GetInt("redis-db")
	}
	if fs.Changed("log-level") {
		cfg.Log.Level, _ = fs.GetString("log-level")
	}
}

// RegisterFlags defines the pflag switches Load's overrides read
// back, using pflag for GNU-style long options.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("device", "", "LUMP serial device path (overrides config file)")
	fs.String("redis-addr", "", "Redis server address (overrides config file)")
	fs.String("redis-pass", "", "Redis password (overrides config file)")
	fs.Int("redis-db", -1, "Redis database number (overrides config file)")
	fs.String("log-level", "", "log level: debug|info|warn|error (overrides config file)")
}
