// Package metrics defines the observability hooks of the FileMQ engines and
// the HTTP server exposing them.
//
// All metrics are optional. Engines constructed without metrics use no-op
// implementations, so a filemq process runs the same with or without a
// registry.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create Prometheus-backed instances
//	serverMetrics := prometheus.NewServerMetrics()
//
//	// Or pass nil for no-op behavior
//	srv := server.New(server.Options{})
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registry is written once by InitRegistry and read by every constructor.
var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process-wide registry. Later calls are no-ops.
// Constructors called before it return no-op metrics.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the registry, or nil while metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return GetRegistry() != nil
}
