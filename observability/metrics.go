// Package observability exposes relay metrics in the Prometheus format.
// Every method is safe on a nil *Metrics, which records nothing.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_relay"

// Handshake rejection reasons.
const (
	ReasonMalformed = "malformed"
	ReasonNotFound  = "not_found"
	ReasonStorage   = "storage"
	ReasonTransport = "transport"
)

type Metrics struct {
	gatherer           prometheus.Gatherer
	registerer         prometheus.Registerer
	sessions           prometheus.Gauge
	published          prometheus.Counter
	delivered          prometheus.Counter
	lagSkipped         prometheus.Counter
	handshakesRejected *prometheus.CounterVec
	persistFailures    prometheus.Counter
}

// NewMetrics registers the relay collectors on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		gatherer:   reg,
		registerer: reg,
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Connections currently handled by a session.",
		}),
		published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Messages published to a room fanout.",
		}),
		delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Messages written to a peer connection.",
		}),
		lagSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_lag_skipped_total",
			Help:      "Messages skipped by subscriptions that fell behind.",
		}),
		handshakesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_rejected_total",
			Help:      "Connections closed during the handshake.",
		}, []string{"reason"}),
		persistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Message appends the storage gateway refused.",
		}),
	}
}

// TrackRooms exposes the resident room count, read on every scrape.
func (m *Metrics) TrackRooms(count func() int) {
	if m == nil {
		return
	}
	promauto.With(m.registerer).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "resident_rooms",
		Help:      "Rooms loaded in the registry.",
	}, func() float64 { return float64(count()) })
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

func (m *Metrics) MessagePublished() {
	if m != nil {
		m.published.Inc()
	}
}

func (m *Metrics) MessageDelivered() {
	if m != nil {
		m.delivered.Inc()
	}
}

func (m *Metrics) LagSkipped(skipped uint64) {
	if m != nil {
		m.lagSkipped.Add(float64(skipped))
	}
}

func (m *Metrics) HandshakeRejected(reason string) {
	if m != nil {
		m.handshakesRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) PersistFailed() {
	if m != nil {
		m.persistFailures.Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
