package wsroom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "wsroom").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Metrics holds the collectors for a socket and its room registry.
// A nil *Metrics records nothing.
type Metrics struct {
	connectsTotal   prometheus.Counter
	reconnectsTotal *prometheus.CounterVec
	sentTotal       prometheus.Counter
	bufferedTotal   prometheus.Counter
	bufferSize      prometheus.Gauge
	framesReceived  *prometheus.CounterVec
	handlerPanics   *prometheus.CounterVec
	acksTotal       *prometheus.CounterVec
	decodeErrors    prometheus.Counter
}

// NewMetrics registers the collectors described by config.
func NewMetrics(config MetricsConfig) *Metrics {
	if config.Namespace == "" {
		config.Namespace = "wsroom"
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		connectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connects_total",
			Help:        "Total number of successful socket opens",
			ConstLabels: config.ConstLabels,
		}),
		reconnectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reconnects_total",
			Help:        "Total number of automatic reconnect decisions",
			ConstLabels: config.ConstLabels,
		}, []string{"mode"}),
		sentTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_sent_total",
			Help:        "Total number of messages written to the transport",
			ConstLabels: config.ConstLabels,
		}),
		bufferedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_buffered_total",
			Help:        "Total number of messages queued while the socket was not open",
			ConstLabels: config.ConstLabels,
		}),
		bufferSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "send_buffer_size",
			Help:        "Number of messages currently waiting in the send buffer",
			ConstLabels: config.ConstLabels,
		}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_received_total",
			Help:        "Total number of frames received by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),
		handlerPanics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handler_panics_total",
			Help:        "Total number of recovered event handler panics",
			ConstLabels: config.ConstLabels,
		}, []string{"event"}),
		acksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "acks_total",
			Help:        "Total number of room acknowledgements by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "decode_errors_total",
			Help:        "Total number of binary frames that failed to decode",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) connected() {
	if m == nil {
		return
	}
	m.connectsTotal.Inc()
}

func (m *Metrics) reconnect(mode string) {
	if m == nil {
		return
	}
	m.reconnectsTotal.WithLabelValues(mode).Inc()
}

func (m *Metrics) sent() {
	if m == nil {
		return
	}
	m.sentTotal.Inc()
}

func (m *Metrics) buffered(size int) {
	if m == nil {
		return
	}
	m.bufferedTotal.Inc()
	m.bufferSize.Set(float64(size))
}

func (m *Metrics) bufferLen(size int) {
	if m == nil {
		return
	}
	m.bufferSize.Set(float64(size))
}

func (m *Metrics) frame(kind string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) handlerPanic(event string) {
	if m == nil {
		return
	}
	m.handlerPanics.WithLabelValues(event).Inc()
}

func (m *Metrics) ack(kind AckKind) {
	if m == nil {
		return
	}
	m.acksTotal.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) decodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}
