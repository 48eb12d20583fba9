package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/Paintersrp/prefork/internal/server"
	"github.com/Paintersrp/prefork/internal/worker"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	handlers := Default()
	if err := (server.Config{Port: 8080, Handlers: handlers}).Validate(); err != nil {
		t.Fatalf("default routes rejected: %v", err)
	}
	srv := httptest.NewServer(server.NewMux(handlers))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return resp.StatusCode, string(body)
}

func getWorkerInfo(t *testing.T, srv *httptest.Server) WorkerInfo {
	t.Helper()
	code, body := get(t, srv.URL+"/debug/worker")
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", code, body)
	}
	var info WorkerInfo
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		t.Fatalf("decode worker info %q: %v", body, err)
	}
	return info
}

func TestHelloAndHealth(t *testing.T) {
	srv := newTestServer(t)

	code, body := get(t, srv.URL+"/")
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if !strings.Contains(body, strconv.Itoa(os.Getpid())) {
		t.Fatalf("hello body should name the serving pid: %q", body)
	}

	code, body = get(t, srv.URL+"/healthz")
	if code != http.StatusOK || body != "ok\n" {
		t.Fatalf("unexpected health response %d %q", code, body)
	}

	if code, _ = get(t, srv.URL+"/missing"); code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown path, got %d", code)
	}
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t)

	code, body := get(t, srv.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if !strings.Contains(body, "prefork_serving") {
		t.Fatalf("metrics output missing prefork_serving:\n%s", body)
	}
}

func TestDebugWorkerOutsideWorker(t *testing.T) {
	srv := newTestServer(t)

	info := getWorkerInfo(t, srv)
	if info.Pid != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), info.Pid)
	}
	if info.RunID != "" {
		t.Fatalf("expected no run id outside a worker, got %q", info.RunID)
	}
}

func TestDebugWorkerReportsIdentity(t *testing.T) {
	t.Setenv(worker.EnvWorker, "1")
	t.Setenv(worker.EnvRunID, "run-7")
	t.Setenv(worker.EnvIndex, "3")
	srv := newTestServer(t)

	info := getWorkerInfo(t, srv)
	if info.RunID != "run-7" || info.Index != 3 {
		t.Fatalf("unexpected worker identity: %+v", info)
	}
}
