// Package metrics constructs the metrics the application will track.
package metrics

import (
	"runtime"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// This holds the single instance of the metrics value needed for
// collecting metrics. The prometheus package is already thread-safe and
// the default registry is used so the values show up on /metrics.
var m struct {
	goroutines prometheus.Gauge
	requests   prometheus.Counter
	errors     prometheus.Counter
	panics     prometheus.Counter
}

// requests mirrors the request counter so the goroutine sampling doesn't
// need to read back from prometheus.
var requests atomic.Uint64

func init() {
	m.goroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "powchain",
		Subsystem: "web",
		Name:      "goroutines",
		Help:      "Number of goroutines sampled every 100 requests.",
	})
	m.requests = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "powchain",
		Subsystem: "web",
		Name:      "requests_total",
		Help:      "Number of requests handled.",
	})
	m.errors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "powchain",
		Subsystem: "web",
		Name:      "errors_total",
		Help:      "Number of requests that returned an error.",
	})
	m.panics = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "powchain",
		Subsystem: "web",
		Name:      "panics_total",
		Help:      "Number of requests that panicked.",
	})

	prometheus.MustRegister(m.goroutines, m.requests, m.errors, m.panics)
}

// =============================================================================

// AddGoroutines refreshes the goroutine metric every 100 requests.
func AddGoroutines(requests uint64) {
	if requests%100 == 0 {
		m.goroutines.Set(float64(runtime.NumGoroutine()))
	}
}

// AddRequests increments the request metric by 1 and returns the number of
// requests seen so far.
func AddRequests() uint64 {
	m.requests.Inc()
	return requests.Add(1)
}

// AddErrors increments the errors metric by 1.
func AddErrors() {
	m.errors.Inc()
}

// AddPanics increments the panics metric by 1.
func AddPanics() {
	m.panics.Inc()
}
