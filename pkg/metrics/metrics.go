// Package metrics exposes Prometheus counters for the secure channel and
// exchange layers: handshake outcomes, MRP retransmissions, and active
// exchange/session gauges. Nothing in this package is required for
// correct operation; callers that never start an HTTP server simply
// accumulate counters nobody scrapes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "matterd"

// Registry is the registry all matterd metrics are registered against,
// kept separate from the global default registry so embedding
// applications can mount it without picking up unrelated collectors.
var Registry = prometheus.NewRegistry()

var (
	// HandshakesStarted counts PASE/CASE handshakes initiated, by type and role.
	HandshakesStarted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "started_total",
			Help:      "Secure channel handshakes started, by type and role",
		},
		[]string{"type", "role"},
	)

	// HandshakesCompleted counts handshakes that reached a final state.
	HandshakesCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handshake",
			Name:      "completed_total",
			Help:      "Secure channel handshakes completed, by type and outcome",
		},
		[]string{"type", "outcome"}, // outcome: success, error, timeout
	)

	// MessagesRetransmitted counts MRP retransmissions by the exchange layer.
	MessagesRetransmitted = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mrp",
			Name:      "retransmits_total",
			Help:      "Total number of MRP message retransmissions",
		},
	)

	// MessagesDroppedUnsolicited counts unsolicited messages dropped for
	// lacking a registered protocol handler or a valid initiator flag.
	MessagesDroppedUnsolicited = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "unsolicited_dropped_total",
			Help:      "Total number of unsolicited messages dropped",
		},
	)

	// ActiveExchanges tracks the number of currently open exchanges.
	ActiveExchanges = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "active",
			Help:      "Number of currently open exchanges",
		},
	)

	// ActiveSecureSessions tracks the number of established secure sessions.
	ActiveSecureSessions = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "secure_active",
			Help:      "Number of currently established secure sessions",
		},
	)
)

// Handler returns an http.Handler serving Registry in the Prometheus
// exposition format, for embedding in an application's own mux.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
