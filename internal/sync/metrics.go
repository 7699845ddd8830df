package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "salesync",
		Name:      "ledger_rows_written_total",
		Help:      "Total ledger rows inserted or refreshed by reconciliation runs",
	})
	rowsRetracted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "salesync",
		Name:      "ledger_rows_retracted_total",
		Help:      "Total stale ledger rows removed by reconciliation runs",
	})
	rowsClassified = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "salesync",
		Name:      "ledger_rows_classified_total",
		Help:      "Total revenue rows auto-categorized by the batch classifier",
	})
	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesync",
		Name:      "runs_total",
		Help:      "Reconciliation runs by outcome",
	}, []string{"outcome"})
)
