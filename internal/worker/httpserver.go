package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	defaultReadHeader      = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// httpConfig controls construction of the per-process HTTP server.
type httpConfig struct {
	Listener          net.Listener
	Handler           http.Handler
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// httpServer wraps an http.Server bound to an inherited listener.
type httpServer struct {
	srv             *http.Server
	listener        net.Listener
	shutdownTimeout time.Duration
}

func newHTTPServer(cfg httpConfig) (*httpServer, error) {
	if cfg.Listener == nil {
		return nil, errors.New("listener is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("handler is required")
	}
	srv := &http.Server{
		Handler:           cfg.Handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	if srv.ReadHeaderTimeout == 0 {
		srv.ReadHeaderTimeout = defaultReadHeader
	}
	server := &httpServer{
		srv:             srv,
		listener:        cfg.Listener,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if server.shutdownTimeout == 0 {
		server.shutdownTimeout = defaultShutdownTimeout
	}
	return server, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most the shutdown timeout. started, when non-nil, is called once the accept
// loop has been launched.
func (s *httpServer) Run(ctx context.Context, started func()) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(s.listener)
	}()
	if started != nil {
		started()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		_ = s.srv.Close()
		return fmt.Errorf("drain connections: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the listen address.
func (s *httpServer) Addr() string {
	return s.listener.Addr().String()
}
