package importer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes recorded in importRuns.
const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

var (
	importRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bulkimport",
		Subsystem: "import",
		Name:      "runs_total",
		Help:      "Import runs broken down by entity and outcome.",
	}, []string{"entity", "outcome"})

	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bulkimport",
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Rows written by committed imports, by entity and action.",
	}, []string{"entity", "action"})

	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bulkimport",
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Duration of import runs from parse to commit.",
		Buckets: []float64{
			0.01, 0.05,
			0.1, 0.25, 0.5,
			1, 2.5, 5, 10,
			30, 60, 120,
		},
	}, []string{"entity"})

	referencesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bulkimport",
		Subsystem: "import",
		Name:      "references_created_total",
		Help:      "Reference rows created while resolving imports, by table.",
	}, []string{"table"})
)
