package config

import (
	"errors"
	"fmt"

	"go.uber.org/zap/zapcore"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate enforces schema invariants.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return invalid(fieldPath("server", "address"), "is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid(fieldPath("server", "port"), fmt.Sprintf("must be between 1 and 65535, got %d", c.Server.Port))
	}

	sup := c.Supervisor
	if sup.Workers < 0 {
		return invalid(fieldPath("supervisor", "workers"), "must be non-negative")
	}
	if sup.StartTimeout.Duration < 0 {
		return invalid(fieldPath("supervisor", "startTimeout"), "must be non-negative")
	}
	if sup.ReadyInterval.Duration <= 0 {
		return invalid(fieldPath("supervisor", "readyInterval"), "must be positive")
	}
	if sup.JoinTimeout.Duration <= 0 {
		return invalid(fieldPath("supervisor", "joinTimeout"), "must be positive")
	}
	if sup.ChildTimeout.Duration <= 0 {
		return invalid(fieldPath("supervisor", "childTimeout"), "must be positive")
	}
	if sup.MaxRestarts != nil && *sup.MaxRestarts < 0 {
		return invalid(fieldPath("supervisor", "maxRestarts"), "must be non-negative")
	}

	if c.Worker.ReadHeaderTimeout.Duration <= 0 {
		return invalid(fieldPath("worker", "readHeaderTimeout"), "must be positive")
	}
	if c.Worker.ShutdownTimeout.Duration <= 0 {
		return invalid(fieldPath("worker", "shutdownTimeout"), "must be positive")
	}

	var level zapcore.Level
	if err := level.Set(c.Logging.Level); err != nil {
		return invalid(fieldPath("logging", "level"), fmt.Sprintf("unknown level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "auto", "json", "console":
	default:
		return invalid(fieldPath("logging", "format"), fmt.Sprintf("must be one of auto, json, console, got %q", c.Logging.Format))
	}
	return nil
}

func invalid(field, msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, field, msg)
}
