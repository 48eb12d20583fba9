package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateDefaults(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}
}

func TestValidateFailures(t *testing.T) {
	negative := -1
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "port zero", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "port too large", mutate: func(c *Config) { c.Server.Port = 70000 }, want: "server.port"},
		{name: "empty address", mutate: func(c *Config) { c.Server.Address = "" }, want: "server.address"},
		{name: "negative workers", mutate: func(c *Config) { c.Supervisor.Workers = -2 }, want: "supervisor.workers"},
		{name: "negative start timeout", mutate: func(c *Config) { c.Supervisor.StartTimeout = Duration{Duration: -time.Second} }, want: "supervisor.startTimeout"},
		{name: "zero ready interval", mutate: func(c *Config) { c.Supervisor.ReadyInterval = Duration{} }, want: "supervisor.readyInterval"},
		{name: "zero join timeout", mutate: func(c *Config) { c.Supervisor.JoinTimeout = Duration{} }, want: "supervisor.joinTimeout"},
		{name: "zero child timeout", mutate: func(c *Config) { c.Supervisor.ChildTimeout = Duration{} }, want: "supervisor.childTimeout"},
		{name: "negative restarts", mutate: func(c *Config) { c.Supervisor.MaxRestarts = &negative }, want: "supervisor.maxRestarts"},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.Worker.ShutdownTimeout = Duration{} }, want: "worker.shutdownTimeout"},
		{name: "zero read header timeout", mutate: func(c *Config) { c.Worker.ReadHeaderTimeout = Duration{} }, want: "worker.readHeaderTimeout"},
		{name: "unknown level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "logging.level"},
		{name: "unknown format", mutate: func(c *Config) { c.Logging.Format = "xml" }, want: "logging.format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error to mention %q, got %v", tc.want, err)
			}
		})
	}
}
