// Package services – Prometheus instrumentation for the warning pipeline.
//
// Labels are kept to bounded sets (warning kind, outcome class) so
// cardinality stays flat regardless of traffic. All collectors are safe for
// concurrent use.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// warningRuns counts pipeline runs by kind and outcome
	// (dispatched, no_condition, suppressed, error).
	warningRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warning_runs_total",
			Help: "Total warning pipeline runs by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// pushSends counts individual push sends by result
	// (sent, failed, unregistered).
	pushSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_sends_total",
			Help: "Total individual push sends by result.",
		},
		[]string{"result"},
	)

	// tokensInvalidated counts device tokens removed after the provider
	// reported them unregistered.
	tokensInvalidated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "device_tokens_invalidated_total",
			Help: "Total device tokens removed as unregistered.",
		},
	)

	// whatsappSends counts WhatsApp broadcast sends by result (sent, failed).
	whatsappSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_sends_total",
			Help: "Total WhatsApp broadcast sends by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(warningRuns, pushSends, tokensInvalidated, whatsappSends)
}
