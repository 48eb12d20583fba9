// Package routes holds the handler set served by the prefork command.
package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/Paintersrp/prefork/internal/metrics"
	"github.com/Paintersrp/prefork/internal/server"
	"github.com/Paintersrp/prefork/internal/worker"
)

// WorkerInfo is the body returned by /debug/worker.
type WorkerInfo struct {
	Pid   int    `json:"pid"`
	RunID string `json:"runId,omitempty"`
	Index int    `json:"index"`
}

// Default returns the registrations served by every worker. The supervisor
// and its workers must be built with the same list.
func Default() []server.HandlerRegistration {
	return []server.HandlerRegistration{
		server.RegisterFunc("/{$}", hello),
		server.RegisterFunc("/healthz", healthz),
		server.Register("/metrics", metrics.Handler()),
		server.RegisterFunc("/debug/worker", debugWorker),
	}
}

func hello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "hello from worker %d\n", os.Getpid())
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func debugWorker(w http.ResponseWriter, r *http.Request) {
	info := WorkerInfo{Pid: os.Getpid()}
	if id, err := worker.CurrentIdentity(); err == nil {
		info.RunID = id.RunID
		info.Index = id.Index
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
