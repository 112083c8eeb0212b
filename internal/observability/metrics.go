package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesCreated counts stored messages by derived kind.
	MessagesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_messages_created_total",
		Help: "Total number of messages created by kind",
	}, []string{"kind"})

	// MessagesDeleted counts rows removed by delete cascades, including descendants.
	MessagesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "threads_messages_deleted_total",
		Help: "Total number of messages removed, descendants included",
	})

	// LikesToggled counts like toggles by resulting action.
	LikesToggled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_likes_toggled_total",
		Help: "Total number of like toggles by action",
	}, []string{"action"})

	// MediaResolveFailures counts media references that could not be resolved.
	MediaResolveFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_media_resolve_failures_total",
		Help: "Total number of media references dropped during resolution",
	}, []string{"reason"})

	// MediaRemoveFailures counts stored objects that could not be deleted.
	MediaRemoveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "threads_media_remove_failures_total",
		Help: "Total number of orphaned media objects that failed to delete",
	})

	// PushDeliveries counts push notification attempts by result.
	PushDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_push_deliveries_total",
		Help: "Total push notification attempts by result",
	}, []string{"result"})

	// RealtimePublishFailures counts feed events that failed to fan out.
	RealtimePublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_realtime_publish_failures_total",
		Help: "Total number of realtime feed events that failed to publish",
	}, []string{"event_type"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "threads_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threads_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)
