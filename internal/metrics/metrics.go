package metrics

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Termination results recorded by ObserveChildTermination.
const (
	ResultTerminated = "terminated"
	ResultKilled     = "killed"
	ResultTimeout    = "timeout"
	ResultGone       = "gone"
)

var (
	registry = prometheus.NewRegistry()

	serving = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "prefork",
		Name:      "serving",
		Help:      "Whether the supervisor is serving (1=serving, 0=stopped).",
	})

	workers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "prefork",
		Name:      "workers",
		Help:      "Number of worker processes currently running under the supervisor.",
	})

	workerRestarts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "prefork",
		Name:      "worker_restarts_total",
		Help:      "Total number of worker processes restarted after an unexpected exit.",
	})

	childTerminations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prefork",
		Name:      "child_terminations_total",
		Help:      "Descendant processes handled during shutdown, by result.",
	}, []string{"result"})

	startLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "prefork",
		Name:      "start_latency_seconds",
		Help:      "Time from Start until the shared port accepted connections.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	workerRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prefork",
		Name:      "worker_requests_total",
		Help:      "HTTP requests handled by this worker process, by status code and method.",
	}, []string{"code", "method"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "prefork",
		Name:      "build_info",
		Help:      "Build metadata for the running prefork binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(serving, workers, workerRestarts, childTerminations, startLatency, workerRequests, buildInfo)
}

// Registry returns the Prometheus registry containing all prefork metrics.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// InstrumentHandler counts requests served by next.
func InstrumentHandler(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(workerRequests, next)
}

// SetServing records whether the supervisor is serving.
func SetServing(ok bool) {
	value := 0.0
	if ok {
		value = 1.0
	}
	serving.Set(value)
}

// AddWorkers adjusts the running worker gauge.
func AddWorkers(n int) {
	workers.Add(float64(n))
}

// ResetWorkers zeroes the running worker gauge.
func ResetWorkers() {
	workers.Set(0)
}

// IncrementWorkerRestart counts a worker restarted after a crash.
func IncrementWorkerRestart() {
	workerRestarts.Inc()
}

// ObserveChildTermination records how a descendant process left during shutdown.
func ObserveChildTermination(result string) {
	if result == "" {
		return
	}
	childTerminations.WithLabelValues(result).Inc()
}

// ObserveStartLatency records how long Start took to confirm readiness.
func ObserveStartLatency(d time.Duration) {
	startLatency.Observe(d.Seconds())
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
