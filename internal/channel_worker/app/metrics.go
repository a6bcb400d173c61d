package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "channel_worker",
			Name:      "messages_processed_total",
			Help:      "Fan-out messages processed, by channel, outcome and failed stage.",
		},
		[]string{"channel", "outcome", "stage"}, // stage is empty on success
	)

	channelCallDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "channel_worker",
			Name:      "channel_call_duration_seconds",
			Help:      "Duration of create-post and create-reply calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"channel", "stage"},
	)

	deliveriesSettledCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "channel_worker",
			Name:      "deliveries_settled_total",
			Help:      "Bus deliveries settled, by action (ack, nak, term, dead_letter).",
		},
		[]string{"channel", "action"},
	)
)
