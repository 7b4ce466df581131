package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operational counters. Flush write failures are intentionally surfaced here
// rather than to any live connection.
var (
	metricSessionsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inkroom_sessions_connected",
		Help: "Currently registered live sessions across all rooms.",
	})

	metricMessagesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inkroom_messages_accepted_total",
		Help: "Valid message frames accepted for broadcast and buffering.",
	})

	metricFramesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkroom_frames_rejected_total",
		Help: "Inbound frames rejected before dispatch.",
	}, []string{"reason"})

	metricBroadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inkroom_broadcast_drops_total",
		Help: "Events dropped because a recipient send queue was full or closing.",
	})

	metricFlushRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inkroom_flush_runs_total",
		Help: "Write-behind flush cycles executed.",
	})

	metricFlushWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inkroom_flush_write_failures_total",
		Help: "Buffered messages whose durable write failed and were left for retry.",
	})
)
