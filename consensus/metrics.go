package consensus

import "github.com/prometheus/client_golang/prometheus"

// metrics groups the pool's prometheus instrumentation. One instance is
// registered per process; constructing more than one Pool in the same
// process reuses it (see newMetrics).
type metrics struct {
	certsCreated        *prometheus.CounterVec
	slashableOffences   *prometheus.CounterVec
	highestFinalized    prometheus.Gauge
	highestNotarFallback prometheus.Gauge
	eventQueueDepth     prometheus.Gauge
}

var registeredMetrics *metrics

// newMetrics builds (or returns the already-registered) pool metrics,
// following the same MustRegister-at-construction pattern the retrieved
// dBFT consensus package uses for its restart-height gauge.
func newMetrics() *metrics {
	if registeredMetrics != nil {
		return registeredMetrics
	}
	m := &metrics{
		certsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alpenglow",
			Name:      "certs_created_total",
			Help:      "certificates created, by kind",
		}, []string{"kind"}),
		slashableOffences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alpenglow",
			Name:      "slashable_offences_total",
			Help:      "slashable offences detected, by offence kind",
		}, []string{"offence"}),
		highestFinalized: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "alpenglow",
			Name:      "highest_finalized_slot",
			Help:      "highest slot finalized by this pool",
		}),
		highestNotarFallback: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "alpenglow",
			Name:      "highest_notarized_fallback_slot",
			Help:      "highest slot with at least one notar-fallback certificate",
		}),
		eventQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "alpenglow",
			Name:      "votor_event_queue_depth",
			Help:      "approximate depth of the outbound votor event channel",
		}),
	}
	prometheus.MustRegister(m.certsCreated, m.slashableOffences, m.highestFinalized, m.highestNotarFallback, m.eventQueueDepth)
	registeredMetrics = m
	return m
}
