package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvAddress   = "PREFORK_ADDRESS"
	EnvPort      = "PREFORK_PORT"
	EnvWorkers   = "PREFORK_WORKERS"
	EnvLogLevel  = "PREFORK_LOG_LEVEL"
	EnvLogFormat = "PREFORK_LOG_FORMAT"
)

// Load reads a prefork manifest from the provided path, checks it against the
// embedded schema, applies environment overrides and defaults, then validates
// the result.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}

	var doc Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	if raw != nil {
		if err := validateAgainstSchema(raw); err != nil {
			return nil, fmt.Errorf("%s: %w", absPath, err)
		}
	}

	doc.Server.Address = os.ExpandEnv(doc.Server.Address)
	if err := finish(&doc); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &doc, nil
}

// LoadOptional behaves like Load but falls back to defaults when the file does
// not exist.
func LoadOptional(path string) (*Config, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, false, fmt.Errorf("stat config file: %w", err)
		}
		var doc Config
		if err := finish(&doc); err != nil {
			return nil, false, err
		}
		return &doc, false, nil
	}
	doc, err := Load(path)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Encode writes the configuration as YAML.
func Encode(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func finish(doc *Config) error {
	if err := doc.ApplyEnv(); err != nil {
		return err
	}
	if err := doc.ApplyDefaults(); err != nil {
		return err
	}
	return doc.Validate()
}

// ApplyEnv overrides fields from PREFORK_* environment variables.
func (c *Config) ApplyEnv() error {
	if value := strings.TrimSpace(os.Getenv(EnvAddress)); value != "" {
		c.Server.Address = value
	}
	if value := strings.TrimSpace(os.Getenv(EnvPort)); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvPort, err)
		}
		c.Server.Port = port
	}
	if value := strings.TrimSpace(os.Getenv(EnvWorkers)); value != "" {
		workers, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, EnvWorkers, err)
		}
		c.Supervisor.Workers = workers
	}
	if value := strings.TrimSpace(os.Getenv(EnvLogLevel)); value != "" {
		c.Logging.Level = value
	}
	if value := strings.TrimSpace(os.Getenv(EnvLogFormat)); value != "" {
		c.Logging.Format = value
	}
	return nil
}
