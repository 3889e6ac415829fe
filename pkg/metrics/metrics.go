package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesAccepted counts messages that passed moderation.
	MessagesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modchat_messages_accepted_total",
		Help: "Messages accepted into threads.",
	})

	// MessagesRejected counts moderation rejections by reason code.
	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modchat_messages_rejected_total",
		Help: "Messages rejected by the moderation engine.",
	}, []string{"reason"})

	// MessagesFlagged counts accepted messages routed to the review queue.
	MessagesFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modchat_messages_flagged_total",
		Help: "Accepted messages flagged for human review.",
	})

	// ReviewDecisions counts moderator verdicts by decision.
	ReviewDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modchat_review_decisions_total",
		Help: "Review decisions applied to queue items.",
	}, []string{"decision"})

	// ScanQueueDepth tracks the in-memory scan queue backlog.
	ScanQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modchat_scan_queue_depth",
		Help: "Items waiting in the moderation scan queue.",
	})

	// ScanQueueDropped counts flags lost to a full scan queue.
	ScanQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modchat_scan_queue_dropped_total",
		Help: "Flags dropped because the scan queue was full.",
	})

	// RetentionPurged counts queue items removed by the retention runner.
	RetentionPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modchat_retention_purged_total",
		Help: "Resolved queue items purged by retention.",
	})
)
