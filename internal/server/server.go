// Package server defines the lifecycle contract shared by HTTP server
// implementations and the handler registrations they serve.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrInvalidConfig is wrapped by Config.Validate failures.
var ErrInvalidConfig = errors.New("invalid server config")

// HandlerRegistration pairs a ServeMux pattern with the handler serving it.
// Servers never inspect the handler; they only attach it to the mux of every
// process that serves requests.
type HandlerRegistration struct {
	Pattern string
	Handler http.Handler
}

// Register pairs h with pattern.
func Register(pattern string, h http.Handler) HandlerRegistration {
	return HandlerRegistration{Pattern: pattern, Handler: h}
}

// RegisterFunc pairs fn with pattern.
func RegisterFunc(pattern string, fn func(http.ResponseWriter, *http.Request)) HandlerRegistration {
	return HandlerRegistration{Pattern: pattern, Handler: http.HandlerFunc(fn)}
}

// Config is the immutable identity of a server: where it binds and what it
// serves.
type Config struct {
	Address  string
	Port     uint16
	Handlers []HandlerRegistration
}

// Validate rejects configurations that cannot be served.
func (c Config) Validate() error {
	if c.Port == 0 {
		return fmt.Errorf("%w: port must be between 1 and 65535", ErrInvalidConfig)
	}
	if !validHost(c.Address) {
		return fmt.Errorf("%w: address %q is not a valid IP or hostname", ErrInvalidConfig, c.Address)
	}
	seen := make(map[string]struct{}, len(c.Handlers))
	for i, reg := range c.Handlers {
		pattern := strings.TrimSpace(reg.Pattern)
		if pattern == "" {
			return fmt.Errorf("%w: handlers[%d]: pattern is required", ErrInvalidConfig, i)
		}
		if reg.Handler == nil {
			return fmt.Errorf("%w: handlers[%d] (%s): handler is nil", ErrInvalidConfig, i, pattern)
		}
		if _, dup := seen[pattern]; dup {
			return fmt.Errorf("%w: handlers[%d]: duplicate pattern %q", ErrInvalidConfig, i, pattern)
		}
		seen[pattern] = struct{}{}
	}
	return nil
}

// validHost accepts an empty address (all interfaces), a bare IP literal, or
// an RFC 1123 hostname.
func validHost(addr string) bool {
	if addr == "" {
		return true
	}
	if net.ParseIP(addr) != nil {
		return true
	}
	if len(addr) > 253 {
		return false
	}
	for _, label := range strings.Split(strings.TrimSuffix(addr, "."), ".") {
		if len(label) == 0 || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
				return false
			}
		}
	}
	return true
}

// Clone returns a copy whose handler slice is not shared with c.
func (c Config) Clone() Config {
	c.Handlers = append([]HandlerRegistration(nil), c.Handlers...)
	return c
}

// NewMux attaches every registration to a fresh ServeMux.
func NewMux(handlers []HandlerRegistration) *http.ServeMux {
	mux := http.NewServeMux()
	for _, reg := range handlers {
		mux.Handle(reg.Pattern, reg.Handler)
	}
	return mux
}

// Handle is the lifecycle surface every server implementation exposes.
type Handle interface {
	// Address returns the configured bind address.
	Address() string
	// Port returns the configured bind port.
	Port() uint16
	// Handlers returns a copy of the handler registrations.
	Handlers() []HandlerRegistration

	// Start begins serving and blocks until the port accepts connections, a
	// fatal error occurs or ctx ends. Calling Start while already started is a
	// no-op.
	Start(ctx context.Context) error

	// Stop shuts the server down. The ctx deadline bounds the grace period.
	// Implementations must be idempotent; stopping a stopped server is a
	// no-op.
	Stop(ctx context.Context) error

	// Serving reports whether the server currently considers itself serving.
	Serving() bool
}
