//go:build unix

package worker

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/prefork/internal/server"
)

// inheritedFixture mimics what a supervisor hands to a worker: a listener
// descriptor and the write end of a readiness pipe, both exported through the
// worker environment.
type inheritedFixture struct {
	addr  string
	ready *os.File
}

func setupInherited(t *testing.T) inheritedFixture {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	lnFile, err := ln.(*net.TCPListener).File()
	if err != nil {
		t.Fatalf("export listener: %v", err)
	}
	listenFD, err := unix.Dup(int(lnFile.Fd()))
	if err != nil {
		t.Fatalf("dup listener: %v", err)
	}
	lnFile.Close()
	ln.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("ready pipe: %v", err)
	}
	readyFD, err := unix.Dup(int(w.Fd()))
	if err != nil {
		t.Fatalf("dup ready pipe: %v", err)
	}
	w.Close()
	t.Cleanup(func() { r.Close() })

	for _, kv := range Env("run-123", 2) {
		key, value, _ := strings.Cut(kv, "=")
		t.Setenv(key, value)
	}
	t.Setenv(EnvListenFD, strconv.Itoa(listenFD))
	t.Setenv(EnvReadyFD, strconv.Itoa(readyFD))

	return inheritedFixture{addr: addr, ready: r}
}

func TestRunServesHandlersAndReportsReady(t *testing.T) {
	fx := setupInherited(t)

	core, logs := observer.New(zapcore.InfoLevel)
	cfg := Config{
		Handlers: []server.HandlerRegistration{
			server.RegisterFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, "hello from worker")
			}),
		},
		Middleware: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Worker", "2")
				next.ServeHTTP(w, r)
			})
		},
		ShutdownTimeout: time.Second,
		Logger:          zap.New(core),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- Run(ctx, cfg) }()

	line, err := bufio.NewReader(fx.ready).ReadString('\n')
	if err != nil {
		t.Fatalf("read ready pipe: %v", err)
	}
	if line != ReadyMessage {
		t.Fatalf("expected ready message %q, got %q", ReadyMessage, line)
	}

	resp, err := http.Get("http://" + fx.addr + "/hello")
	if err != nil {
		t.Fatalf("GET /hello: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "hello from worker" {
		t.Fatalf("unexpected body %q", body)
	}
	if got := resp.Header.Get("X-Worker"); got != "2" {
		t.Fatalf("middleware not applied, X-Worker=%q", got)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("worker returned error after cancellation: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}

	serving := logs.FilterMessage("worker serving").All()
	if len(serving) != 1 {
		t.Fatalf("expected one worker serving log, got %d", len(serving))
	}
	fields := serving[0].ContextMap()
	if fields["run_id"] != "run-123" {
		t.Fatalf("unexpected run_id field %v", fields["run_id"])
	}
	if fields["worker"] != int64(2) {
		t.Fatalf("unexpected worker field %v (%T)", fields["worker"], fields["worker"])
	}
	if got := logs.FilterMessage("worker stopped").Len(); got != 1 {
		t.Fatalf("expected one worker stopped log, got %d", got)
	}

	if conn, err := net.DialTimeout("tcp", fx.addr, 200*time.Millisecond); err == nil {
		conn.Close()
		t.Fatalf("listener still accepting after the worker stopped")
	}
}

func TestRunRequiresWorkerEnvironment(t *testing.T) {
	t.Setenv(EnvWorker, "")
	if err := Run(context.Background(), Config{}); !errors.Is(err, ErrNotWorker) {
		t.Fatalf("expected ErrNotWorker, got %v", err)
	}
}

func TestRunRequiresListener(t *testing.T) {
	t.Setenv(EnvWorker, "1")
	t.Setenv(EnvListenFD, "")
	err := Run(context.Background(), Config{})
	if err == nil || !strings.Contains(err.Error(), EnvListenFD) {
		t.Fatalf("expected error naming %s, got %v", EnvListenFD, err)
	}
}

func TestInheritFileRejectsStandardDescriptors(t *testing.T) {
	t.Setenv(EnvReadyFD, "1")
	if _, err := inheritFile(EnvReadyFD, "ready"); err == nil {
		t.Fatalf("expected stdout descriptor to be rejected")
	}
}

func TestCurrentIdentity(t *testing.T) {
	for _, kv := range Env("abc", 5) {
		key, value, _ := strings.Cut(kv, "=")
		t.Setenv(key, value)
	}
	if !Requested() {
		t.Fatalf("worker environment not detected")
	}

	id, err := CurrentIdentity()
	if err != nil {
		t.Fatalf("current identity: %v", err)
	}
	if id.RunID != "abc" || id.Index != 5 || id.Pid != os.Getpid() {
		t.Fatalf("unexpected identity %+v", id)
	}

	t.Setenv(EnvIndex, "five")
	if _, err := CurrentIdentity(); err == nil {
		t.Fatalf("expected non-numeric index to fail")
	}
}

func TestHTTPServerReportsListenerError(t *testing.T) {
	acceptErr := errors.New("accept failure")
	srv, err := newHTTPServer(httpConfig{
		Listener: &failingListener{addr: staticAddr("127.0.0.1:0"), err: acceptErr},
		Handler:  http.NotFoundHandler(),
	})
	if err != nil {
		t.Fatalf("new http server: %v", err)
	}

	if err := srv.Run(context.Background(), nil); !errors.Is(err, acceptErr) {
		t.Fatalf("expected accept error, got %v", err)
	}
}

func TestNewHTTPServerRequiresListenerAndHandler(t *testing.T) {
	if _, err := newHTTPServer(httpConfig{Handler: http.NotFoundHandler()}); err == nil {
		t.Fatalf("expected missing listener to fail")
	}
	if _, err := newHTTPServer(httpConfig{Listener: &failingListener{}}); err == nil {
		t.Fatalf("expected missing handler to fail")
	}
}

type failingListener struct {
	addr net.Addr
	err  error
}

func (l *failingListener) Accept() (net.Conn, error) {
	return nil, l.err
}

func (l *failingListener) Close() error {
	return nil
}

func (l *failingListener) Addr() net.Addr {
	return l.addr
}

type staticAddr string

func (a staticAddr) Network() string { return "tcp" }

func (a staticAddr) String() string { return string(a) }
