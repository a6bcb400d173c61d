package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchInvocationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "invocations_total",
			Help:      "Total number of selector/dispatcher invocations by outcome.",
		},
		[]string{"outcome", "collection"}, // outcome: nothing_to_send, dispatched, failed
	)

	dispatchDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of one selector/dispatcher invocation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	scheduledDecodeFailuresCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "scheduled_decode_failures_total",
			Help:      "Scheduled records skipped because they could not be decoded.",
		},
	)

	scheduledScanFailuresCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "scheduled_scan_failures_total",
			Help:      "Scheduled collection scans that failed and fell back to the backlog.",
		},
	)
)
