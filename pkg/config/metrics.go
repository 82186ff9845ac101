package config

import (
	"github.com/marmos91/filemq/pkg/metrics"
	promMetrics "github.com/marmos91/filemq/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// ServerMetrics observes the server engine (never nil, uses noop if disabled)
	ServerMetrics metrics.ServerMetrics

	// ClientMetrics observes the client engine (never nil, uses noop if disabled)
	ClientMetrics metrics.ClientMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for both engines
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			ServerMetrics: metrics.NewNoopServerMetrics(),
			ClientMetrics: metrics.NewNoopClientMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Metrics.Port,
		}),
		ServerMetrics: promMetrics.NewServerMetrics(),
		ClientMetrics: promMetrics.NewClientMetrics(),
	}
}
