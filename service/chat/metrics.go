package chat

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the relay's Prometheus instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	connections *prometheus.GaugeVec
	relayed     *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	overflow    *prometheus.CounterVec
	obsDropped  prometheus.Counter
}

// NewMetrics creates the instruments and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "connections",
			Help:      "Connections by lifecycle state.",
		}, []string{"state"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "messages_relayed_total",
			Help:      "Messages accepted and fanned out, by kind.",
		}, []string{"kind"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "messages_rejected_total",
			Help:      "Inbound events rejected, by error code.",
		}, []string{"code"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "deliveries_total",
			Help:      "Per-recipient delivery attempts, by result.",
		}, []string{"result"}),
		overflow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "queue_overflow_total",
			Help:      "Outbound queue overflows, by policy outcome.",
		}, []string{"outcome"}),
		obsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "observer_events_dropped_total",
			Help:      "Lifecycle notifications dropped because the observer queue was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.relayed, m.rejected, m.deliveries, m.overflow, m.obsDropped)
	}
	return m
}

func (m *Metrics) connCreated() {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(StateConnecting.String()).Inc()
}

// connState moves one connection between gauges; Closed has no gauge.
func (m *Metrics) connState(from, to ConnState) {
	if m == nil || from == to {
		return
	}
	if from != StateClosed {
		m.connections.WithLabelValues(from.String()).Dec()
	}
	if to != StateClosed {
		m.connections.WithLabelValues(to.String()).Inc()
	}
}

func (m *Metrics) messageRelayed(k Kind) {
	if m == nil {
		return
	}
	m.relayed.WithLabelValues(string(k)).Inc()
}

func (m *Metrics) messageRejected(code string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(code).Inc()
}

func (m *Metrics) delivery(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.deliveries.WithLabelValues("delivered").Inc()
	} else {
		m.deliveries.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) queueOverflow(outcome string) {
	if m == nil {
		return
	}
	m.overflow.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observerDropped() {
	if m == nil {
		return
	}
	m.obsDropped.Inc()
}
