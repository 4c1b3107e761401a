// Package metrics exposes Prometheus instrumentation for the engine.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncCyclesTotal counts completed poll cycles by result.
	SyncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_cycles_total",
			Help: "Total number of reconciliation cycles",
		},
		[]string{"result"},
	)

	// SyncRowsFetched records the row count of the last source snapshot.
	SyncRowsFetched = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_rows_fetched",
			Help: "Number of rows in the last source snapshot",
		},
	)

	// LeadsReconciledTotal counts reconciled leads by change kind.
	LeadsReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_reconciled_total",
			Help: "Total number of leads reconciled",
		},
		[]string{"change"},
	)

	// RemindersSentTotal counts delivered reminders by kind.
	RemindersSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Total number of reminders delivered",
		},
		[]string{"kind"},
	)

	// DeliveryFailuresTotal counts failed delivery attempts.
	DeliveryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_failures_total",
			Help: "Total number of failed reminder delivery attempts",
		},
	)

	// SourceErrorsTotal counts exhausted external source operations.
	SourceErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "source_errors_total",
			Help: "Total number of external source operations that exhausted retries",
		},
	)
)
