package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts the service's externally visible operations
type Metrics struct {
	EventsIngested    *prometheus.CounterVec
	IngestFailures    prometheus.Counter
	CorrelationsRun   prometheus.Counter
	BlastRadiusCalls  prometheus.Counter
	TriageRuns        prometheus.Counter
	GraphMerges       *prometheus.CounterVec
	ObserverNotifies  prometheus.Counter
	RequestDurations  *prometheus.HistogramVec
}

// NewMetrics registers the service metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "changeintel_events_ingested_total",
			Help: "Change events persisted, by change type and source.",
		}, []string{"change_type", "source"}),
		IngestFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "changeintel_ingest_failures_total",
			Help: "Event ingest attempts rejected or failed.",
		}),
		CorrelationsRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "changeintel_correlations_total",
			Help: "Incident correlation requests served.",
		}),
		BlastRadiusCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "changeintel_blast_radius_total",
			Help: "Blast radius predictions computed.",
		}),
		TriageRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "changeintel_triage_total",
			Help: "Triage requests served.",
		}),
		GraphMerges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "changeintel_graph_merges_total",
			Help: "Graph merge operations, by provenance tag.",
		}, []string{"source"}),
		ObserverNotifies: factory.NewCounter(prometheus.CounterOpts{
			Name: "changeintel_observer_notifications_total",
			Help: "Post-commit observer notifications delivered.",
		}),
		RequestDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "changeintel_operation_duration_seconds",
			Help:    "Duration of core operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}
