package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestTCPProbeOpenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := NewTCP(ln.Addr().String()).Probe(ctx); err != nil {
		t.Fatalf("probe open port: %v", err)
	}
}

func TestTCPProbeClosedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = NewTCP(addr).Probe(ctx)
	if err == nil {
		t.Fatalf("expected closed port to fail")
	}
	if !strings.Contains(err.Error(), "dial "+addr) {
		t.Fatalf("expected error to name %s, got %v", addr, err)
	}
}

func TestWaitReadyRetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	prober := ProberFunc(func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := WaitReady(ctx, prober, 10*time.Millisecond); err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestWaitReadyHonoursDeadline(t *testing.T) {
	failure := errors.New("connection refused")
	prober := ProberFunc(func(ctx context.Context) error { return failure })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := WaitReady(ctx, prober, 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected last probe failure in error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Fatalf("wait ready overran its deadline: %s", elapsed)
	}
}

func TestWaitReadyRequiresProber(t *testing.T) {
	if err := WaitReady(context.Background(), nil, time.Millisecond); err == nil {
		t.Fatalf("expected error for nil prober")
	}
}

func TestDialAddress(t *testing.T) {
	cases := map[string]string{
		"":          "127.0.0.1:80",
		"0.0.0.0":   "127.0.0.1:80",
		"::":        "[::1]:80",
		"10.1.2.3":  "10.1.2.3:80",
		"localhost": "localhost:80",
	}
	for host, want := range cases {
		if got := DialAddress(host, 80); got != want {
			t.Fatalf("DialAddress(%q) = %q, want %q", host, got, want)
		}
	}
}
