package regen

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Regenerated entities partitioned by kind (placement, creative) and
	// outcome (staged, skipped, written, failed).
	entitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxonomy_regenerated_entities_total",
			Help: "Placements and creatives processed by taxonomy regeneration",
		},
		[]string{"kind", "outcome"},
	)

	// Bulk regeneration runs partitioned by parent type and outcome.
	bulkRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxonomy_bulk_runs_total",
			Help: "Post-move bulk taxonomy regeneration runs",
		},
		[]string{"parent_type", "outcome"},
	)

	// Bulk regeneration duration, tree walk plus commit.
	bulkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taxonomy_bulk_duration_seconds",
			Help:    "Duration of post-move bulk taxonomy regeneration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"parent_type"},
	)

	// Background jobs waiting in the dispatcher queue.
	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taxonomy_regen_queue_depth",
			Help: "Bulk regeneration jobs waiting for a worker",
		},
	)

	// Background jobs rejected because the queue was full or closed.
	droppedJobsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taxonomy_regen_dropped_jobs_total",
			Help: "Bulk regeneration jobs rejected by the dispatcher",
		},
	)
)
