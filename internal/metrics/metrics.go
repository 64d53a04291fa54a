// Package metrics holds the Prometheus collectors of the echo server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Offer outcomes.
const (
	OfferAccepted    = "accepted"
	OfferMalformed   = "malformed"
	OfferFailed      = "failed"
	OfferRateLimited = "rate_limited"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsRemoved prometheus.Counter
	Offers          *prometheus.CounterVec
	RelayPackets    *prometheus.CounterVec
	RelayErrors     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "echo",
			Name:      "sessions_active",
			Help:      "Peer sessions currently held by the registry.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echo",
			Name:      "sessions_created_total",
			Help:      "Peer sessions inserted into the registry.",
		}),
		SessionsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echo",
			Name:      "sessions_removed_total",
			Help:      "Peer sessions closed and removed from the registry.",
		}),
		Offers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echo",
			Name:      "offers_total",
			Help:      "Offers received, by result.",
		}, []string{"result"}),
		RelayPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echo",
			Name:      "relay_packets_total",
			Help:      "RTP packets echoed back, by media kind.",
		}, []string{"kind"}),
		RelayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echo",
			Name:      "relay_stops_total",
			Help:      "Relay loops stopped on error, by media kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.SessionsActive,
			m.SessionsCreated,
			m.SessionsRemoved,
			m.Offers,
			m.RelayPackets,
			m.RelayErrors,
		)
	}
	return m
}

func (m *Metrics) SessionInserted() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionRemoved() {
	if m == nil {
		return
	}
	m.SessionsRemoved.Inc()
	m.SessionsActive.Dec()
}

func (m *Metrics) Offer(result string) {
	if m == nil {
		return
	}
	m.Offers.WithLabelValues(result).Inc()
}

func (m *Metrics) RelayPacket(kind string) {
	if m == nil {
		return
	}
	m.RelayPackets.WithLabelValues(kind).Inc()
}

func (m *Metrics) RelayStopped(kind string) {
	if m == nil {
		return
	}
	m.RelayErrors.WithLabelValues(kind).Inc()
}
