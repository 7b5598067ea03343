// Package metrics owns the process-wide Prometheus registry. Metrics
// are opt-in: until InitRegistry is called nothing is registered and
// instrumentation has zero overhead.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the registry and registers the standard Go and
// process collectors. Calling it again is a no-op.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()
	if registry != nil {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether metrics collection is active.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// MustRegister registers collectors when metrics are enabled and is a
// no-op otherwise.
func MustRegister(cs ...prometheus.Collector) {
	mu.RLock()
	defer mu.RUnlock()
	if registry != nil {
		registry.MustRegister(cs...)
	}
}

// Handler returns the /metrics HTTP handler. With metrics disabled the
// handler answers 404.
func Handler() http.Handler {
	mu.RLock()
	reg := registry
	mu.RUnlock()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
