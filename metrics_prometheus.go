package go_nrepl

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements MetricsCollector on top of Prometheus
// counters, gauges and histograms. Register it with a registry of your
// choice; examples/metrics serves it over promhttp.
type PrometheusMetrics struct {
	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	errors           *prometheus.CounterVec
	latency          *prometheus.HistogramVec
	activeSessions   prometheus.Gauge
	pendingRequests  prometheus.Gauge
	connectionState  *prometheus.GaugeVec
	bytesSent        prometheus.Counter
	bytesReceived    prometheus.Counter
}

var connectionStates = []string{
	StateDisconnected.String(),
	StateConnecting.String(),
	StateConnected.String(),
	StateClosing.String(),
	"reconnecting",
}

// NewPrometheusMetrics creates the collectors under namespace (default
// "nrepl_client") and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheusMetrics(namespace string, reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if namespace == "" {
		namespace = "nrepl_client"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMetrics{
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Requests sent to the nREPL server by op.",
		}, []string{"op"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Responses received, labelled by the op of the request they answer.",
		}, []string{"op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Client errors by category.",
		}, []string{"type"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from sending a request to its done status.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"op"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently open on this client.",
		}),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Requests awaiting a done status.",
		}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Bytes written to the socket.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Bytes read from the socket.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.messagesSent, m.messagesReceived, m.errors, m.latency,
		m.activeSessions, m.pendingRequests, m.connectionState,
		m.bytesSent, m.bytesReceived,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	m.SetConnectionState(StateDisconnected.String())
	return m, nil
}

func (m *PrometheusMetrics) IncrementMessageSent(op string) {
	m.messagesSent.WithLabelValues(op).Inc()
}

func (m *PrometheusMetrics) IncrementMessageReceived(op string) {
	m.messagesReceived.WithLabelValues(op).Inc()
}

func (m *PrometheusMetrics) SetActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

func (m *PrometheusMetrics) SetPendingRequests(count int) {
	m.pendingRequests.Set(float64(count))
}

func (m *PrometheusMetrics) IncrementError(errorType string) {
	m.errors.WithLabelValues(errorType).Inc()
}

func (m *PrometheusMetrics) RecordRequestLatency(op string, duration time.Duration) {
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// SetConnectionState sets the gauge for state to 1 and every other known
// state to 0.
func (m *PrometheusMetrics) SetConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(s).Set(v)
	}
}

func (m *PrometheusMetrics) AddBytesSent(bytes uint64) {
	m.bytesSent.Add(float64(bytes))
}

func (m *PrometheusMetrics) AddBytesReceived(bytes uint64) {
	m.bytesReceived.Add(float64(bytes))
}
