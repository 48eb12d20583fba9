package probe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultInterval = 500 * time.Millisecond

// Prober defines the behaviour required by the readiness loop.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context) error

// Probe calls f(ctx).
func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// WaitReady executes prober every interval until it succeeds or ctx ends. The
// first attempt runs immediately. On cancellation the returned error wraps both
// the context error and the last probe failure.
func WaitReady(ctx context.Context, prober Prober, interval time.Duration) error {
	if prober == nil {
		return errors.New("probe: missing prober")
	}
	if interval <= 0 {
		interval = defaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, interval)
		err := prober.Probe(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last probe error: %v)", ctx.Err(), lastErr)
		case <-ticker.C:
		}
	}
}
