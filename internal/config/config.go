// Package config parses loopersim.toml simulation configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// Config is the top-level loopersim.toml configuration.
type Config struct {
	Runtime RuntimeConfig `toml:"runtime"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
}

// RuntimeConfig describes the simulated script.
type RuntimeConfig struct {
	Workers        int      `toml:"workers"`         // worker threads started by the script
	WorkerDuration Duration `toml:"worker_duration"` // how long each worker keeps its loop busy
	Timers         int      `toml:"timers"`          // timers scheduled on the main loop
	TimerDelay     Duration `toml:"timer_delay"`
	UseServant     bool     `toml:"use_servant"`
	ConfirmQuit    bool     `toml:"confirm_quit"` // register a quit confirmation once the script body ends
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Namespace    string   `toml:"namespace"`
	PollInterval Duration `toml:"poll_interval"`
}

// Duration is a time.Duration decoded from a TOML string such as "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Validate checks the configuration and returns all found issues joined
// together.
func (c *Config) Validate() error {
	var errs []error

	if c.Runtime.Workers < 0 {
		errs = append(errs, fmt.Errorf("runtime.workers must be >= 0"))
	}
	if c.Runtime.WorkerDuration.Duration < 0 {
		errs = append(errs, fmt.Errorf("runtime.worker_duration must be >= 0"))
	}
	if c.Runtime.Timers < 0 {
		errs = append(errs, fmt.Errorf("runtime.timers must be >= 0"))
	}
	if c.Runtime.TimerDelay.Duration < 0 {
		errs = append(errs, fmt.Errorf("runtime.timer_delay must be >= 0"))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"text\" or \"json\""))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs = append(errs, fmt.Errorf("metrics.addr must be host:port: %w", err))
		}
		if c.Metrics.PollInterval.Duration <= 0 {
			errs = append(errs, fmt.Errorf("metrics.poll_interval must be > 0"))
		}
	}

	return errors.Join(errs...)
}

// Defaults returns a Config with sensible defaults.
func Defaults() Config {
	return Config{
		Runtime: RuntimeConfig{
			Workers:        2,
			WorkerDuration: Duration{200 * time.Millisecond},
			Timers:         1,
			TimerDelay:     Duration{100 * time.Millisecond},
			UseServant:     true,
			ConfirmQuit:    true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:      false,
			Addr:         "127.0.0.1:9464",
			Namespace:    "loopers",
			PollInterval: Duration{time.Second},
		},
	}
}

// Load reads a config file. An empty path yields Defaults. Unknown keys are
// rejected as likely typos.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return &cfg, nil
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s (possible typos?)", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return &cfg, nil
}
