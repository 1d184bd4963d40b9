package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSent    = "sent"
	resultFailed  = "failed"
	resultDropped = "dropped"

	outcomeSkipped          = "skipped"
	outcomeDispatched       = "dispatched"
	outcomeStatsUnavailable = "stats_unavailable"
)

// Metrics counts what the subsystem did with messages and ticks.
type Metrics struct {
	Messages      *prometheus.CounterVec
	IdentifyTicks *prometheus.CounterVec
}

// NewMetrics registers the analytics metrics on reg. A nil reg creates
// unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "searchd",
			Subsystem: "analytics",
			Name:      "messages_total",
			Help:      "The number of analytics messages handed to the transport, by type and result.",
		}, []string{"type", "result"}),
		IdentifyTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "searchd",
			Subsystem: "analytics",
			Name:      "identify_ticks_total",
			Help:      "The number of identify scheduler ticks, by outcome.",
		}, []string{"outcome"}),
	}
}
