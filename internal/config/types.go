package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultAddress           = "127.0.0.1"
	DefaultPort              = 8080
	DefaultStartTimeout      = 30 * time.Second
	DefaultReadyInterval     = 500 * time.Millisecond
	DefaultJoinTimeout       = 5 * time.Second
	DefaultChildTimeout      = 5 * time.Second
	DefaultMaxRestarts       = 100
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "auto"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Config mirrors the prefork.yaml document structure.
type Config struct {
	Server     ServerSpec     `yaml:"server"`
	Supervisor SupervisorSpec `yaml:"supervisor"`
	Worker     WorkerSpec     `yaml:"worker"`
	Logging    LoggingSpec    `yaml:"logging"`
}

// ServerSpec describes the shared listening socket.
type ServerSpec struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// SupervisorSpec tunes worker sizing and the start/stop bounds.
type SupervisorSpec struct {
	// Workers overrides the CPU-derived worker count when positive.
	Workers int `yaml:"workers"`
	// StartTimeout bounds Start. An explicit zero disables the bound.
	StartTimeout     Duration `yaml:"startTimeout"`
	ReadyInterval    Duration `yaml:"readyInterval"`
	JoinTimeout      Duration `yaml:"joinTimeout"`
	ChildTimeout     Duration `yaml:"childTimeout"`
	KillAfterTimeout *bool    `yaml:"killAfterTimeout"`
	MaxRestarts      *int     `yaml:"maxRestarts"`
}

// WorkerSpec configures the HTTP server run inside each worker process.
type WorkerSpec struct {
	ReadHeaderTimeout Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   Duration `yaml:"shutdownTimeout"`
}

// LoggingSpec selects the log level and encoding.
type LoggingSpec struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() error {
	c.Server.Address = strings.TrimSpace(c.Server.Address)
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	sup := &c.Supervisor
	if !sup.StartTimeout.IsSet() {
		sup.StartTimeout = Duration{Duration: DefaultStartTimeout}
	}
	if sup.ReadyInterval.Duration == 0 {
		sup.ReadyInterval = Duration{Duration: DefaultReadyInterval}
	}
	if sup.JoinTimeout.Duration == 0 {
		sup.JoinTimeout = Duration{Duration: DefaultJoinTimeout}
	}
	if sup.ChildTimeout.Duration == 0 {
		sup.ChildTimeout = Duration{Duration: DefaultChildTimeout}
	}
	if sup.KillAfterTimeout == nil {
		kill := true
		sup.KillAfterTimeout = &kill
	}
	if sup.MaxRestarts == nil {
		restarts := DefaultMaxRestarts
		sup.MaxRestarts = &restarts
	}

	if c.Worker.ReadHeaderTimeout.Duration == 0 {
		c.Worker.ReadHeaderTimeout = Duration{Duration: DefaultReadHeaderTimeout}
	}
	if c.Worker.ShutdownTimeout.Duration == 0 {
		c.Worker.ShutdownTimeout = Duration{Duration: DefaultShutdownTimeout}
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	return nil
}

// KillEnabled reports the effective escalation policy.
func (s SupervisorSpec) KillEnabled() bool {
	return s.KillAfterTimeout == nil || *s.KillAfterTimeout
}

// RestartLimit reports the effective restart budget.
func (s SupervisorSpec) RestartLimit() int {
	if s.MaxRestarts == nil {
		return DefaultMaxRestarts
	}
	return *s.MaxRestarts
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}
