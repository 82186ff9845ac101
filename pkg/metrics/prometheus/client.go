package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/filemq/pkg/metrics"
)

// clientMetrics is the Prometheus implementation of metrics.ClientMetrics.
type clientMetrics struct {
	connected      prometheus.Gauge
	connects       prometheus.Counter
	chunksReceived *prometheus.CounterVec
	bytesReceived  prometheus.Counter
	deliveries     prometheus.Counter
	creditGranted  prometheus.Counter
}

// NewClientMetrics creates Prometheus-backed client metrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewClientMetrics() metrics.ClientMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopClientMetrics()
	}
	return newClientMetrics(metrics.GetRegistry())
}

func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	factory := promauto.With(reg)
	return &clientMetrics{
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "filemq_client_connected",
			Help: "1 while the client holds a server connection",
		}),
		connects: factory.NewCounter(prometheus.CounterOpts{
			Name: "filemq_client_connects_total",
			Help: "Total number of established server connections",
		}),
		chunksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "filemq_client_chunks_received_total",
			Help: "FILE_CHUNK messages received by operation",
		}, []string{"operation"}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "filemq_client_bytes_received_total",
			Help: "File payload bytes received",
		}),
		deliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "filemq_client_deliveries_total",
			Help: "Files completely received",
		}),
		creditGranted: factory.NewCounter(prometheus.CounterOpts{
			Name: "filemq_client_credit_granted_bytes_total",
			Help: "Credit granted to the server",
		}),
	}
}

func (m *clientMetrics) RecordConnected() {
	m.connected.Set(1)
	m.connects.Inc()
}

func (m *clientMetrics) RecordDisconnected() {
	m.connected.Set(0)
}

func (m *clientMetrics) RecordChunkReceived(op string, bytes int) {
	m.chunksReceived.WithLabelValues(op).Inc()
	m.bytesReceived.Add(float64(bytes))
}

func (m *clientMetrics) RecordDelivery() {
	m.deliveries.Inc()
}

func (m *clientMetrics) RecordCreditGranted(bytes int64) {
	m.creditGranted.Add(float64(bytes))
}
