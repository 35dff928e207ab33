// Package metrics holds the prometheus collectors for room sessions and the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wirechat"

// Session counts room session activity. A nil *Session is valid and records nothing.
type Session struct {
	appended     prometheus.Counter
	malformed    prometheus.Counter
	sendFailures prometheus.Counter
	reconnects   prometheus.Counter
	transitions  *prometheus.CounterVec
}

// NewSession registers session collectors with reg. A nil reg creates unregistered collectors.
func NewSession(reg prometheus.Registerer) *Session {
	factory := promauto.With(reg)
	return &Session{
		appended: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_appended_total",
			Help:      "Messages appended to session views from the live subscription.",
		}),
		malformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "malformed_messages_total",
			Help:      "Payloads dropped because they could not be parsed.",
		}),
		sendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "send_failures_total",
			Help:      "Publishes that failed or were abandoned.",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Unexpected disconnects that started a reconnect.",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "status_transitions_total",
			Help:      "Session status transitions by target status.",
		}, []string{"status"}),
	}
}

func (m *Session) MessageAppended() {
	if m != nil {
		m.appended.Inc()
	}
}

func (m *Session) MalformedDropped() {
	if m != nil {
		m.malformed.Inc()
	}
}

func (m *Session) SendFailed() {
	if m != nil {
		m.sendFailures.Inc()
	}
}

func (m *Session) Reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Session) Transition(status string) {
	if m != nil {
		m.transitions.WithLabelValues(status).Inc()
	}
}

// Relay tracks relay connections and traffic. A nil *Relay records nothing.
type Relay struct {
	connections   prometheus.Gauge
	subscriptions prometheus.Gauge
	published     prometheus.Counter
	rateLimited   prometheus.Counter
	dropped       prometheus.Counter
}

// NewRelay registers relay collectors with reg.
func NewRelay(reg prometheus.Registerer) *Relay {
	factory := promauto.With(reg)
	return &Relay{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "subscriptions",
			Help:      "Active topic subscriptions.",
		}),
		published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "messages_published_total",
			Help:      "Messages accepted and broadcast.",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "rate_limited_total",
			Help:      "Sends rejected by the per-connection rate limit.",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "dropped_deliveries_total",
			Help:      "Deliveries dropped because a subscriber was too slow.",
		}),
	}
}

func (m *Relay) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Relay) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Relay) Subscribed() {
	if m != nil {
		m.subscriptions.Inc()
	}
}

func (m *Relay) Unsubscribed(n int) {
	if m != nil {
		m.subscriptions.Sub(float64(n))
	}
}

func (m *Relay) Published() {
	if m != nil {
		m.published.Inc()
	}
}

func (m *Relay) RateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

func (m *Relay) DeliveryDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}
