// Package prometheus implements the engine metrics interfaces with
// collectors registered on the global metrics registry.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/filemq/pkg/metrics"
)

// serverMetrics is the Prometheus implementation of metrics.ServerMetrics.
type serverMetrics struct {
	activeConnections prometheus.Gauge
	connectionsOpened prometheus.Counter
	connectionsClosed *prometheus.CounterVec
	handshakes        *prometheus.CounterVec
	patchesQueued     *prometheus.CounterVec
	chunksSent        *prometheus.CounterVec
	bytesSent         prometheus.Counter
	rescans           *prometheus.CounterVec
	rescanDuration    *prometheus.HistogramVec
	rescanPatches     *prometheus.CounterVec
}

// NewServerMetrics creates Prometheus-backed server metrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewServerMetrics() metrics.ServerMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopServerMetrics()
	}
	return newServerMetrics(metrics.GetRegistry())
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)
	return &serverMetrics{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "filemq_server_active_connections",
			Help: "Current number of connected clients",
		}),
		connectionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "filemq_server_connections_opened_total",
			Help: "Total number of client connections",
		}),
		connectionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filemq_server_connections_closed_total",
			Help: "Total number of terminated client connections by reason",
		}, []string{"reason"}),
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filemq_server_handshakes_total",
			Help: "Negotiation outcomes by decision",
		}, []string{"decision"}),
		patchesQueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filemq_server_patches_queued_total",
			Help: "Patches queued for delivery by operation",
		}, []string{"operation"}),
		chunksSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filemq_server_chunks_sent_total",
			Help: "FILE_CHUNK messages sent by operation",
		}, []string{"operation"}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "filemq_server_bytes_sent_total",
			Help: "File payload bytes sent",
		}),
		rescans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filemq_server_rescans_total",
			Help: "Mount rescans by alias",
		}, []string{"alias"}),
		rescanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "filemq_server_rescan_duration_milliseconds",
			Help: "Duration of mount rescans in milliseconds",
			Buckets: []float64{
				1,    // 1ms
				10,   // 10ms
				100,  // 100ms
				1000, // 1s
			},
		}, []string{"alias"}),
		rescanPatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filemq_server_rescan_patches_total",
			Help: "Patches produced by mount rescans",
		}, []string{"alias"}),
	}
}

func (m *serverMetrics) ConnectionOpened() {
	m.activeConnections.Inc()
	m.connectionsOpened.Inc()
}

func (m *serverMetrics) ConnectionClosed(reason string) {
	m.activeConnections.Dec()
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

func (m *serverMetrics) RecordHandshake(decision string) {
	m.handshakes.WithLabelValues(decision).Inc()
}

func (m *serverMetrics) RecordPatchQueued(op string) {
	m.patchesQueued.WithLabelValues(op).Inc()
}

func (m *serverMetrics) RecordChunkSent(op string, bytes int) {
	m.chunksSent.WithLabelValues(op).Inc()
	m.bytesSent.Add(float64(bytes))
}

func (m *serverMetrics) RecordRescan(alias string, duration time.Duration, patches int) {
	m.rescans.WithLabelValues(alias).Inc()
	m.rescanDuration.WithLabelValues(alias).Observe(float64(duration.Microseconds()) / 1000)
	m.rescanPatches.WithLabelValues(alias).Add(float64(patches))
}
