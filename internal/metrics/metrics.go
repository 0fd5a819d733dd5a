// Package metrics defines the Prometheus metrics exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics
var (
	// ConnectedViewers tracks the number of currently connected viewers.
	ConnectedViewers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connected_viewers",
			Help: "Number of currently connected viewer clients",
		},
	)

	// SpeakerConnected is 1 while a speaker is connected, 0 otherwise.
	SpeakerConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_speaker_connected",
			Help: "Whether a speaker is currently connected (0 or 1)",
		},
	)

	// SpeakersRejected counts connections rejected by speaker exclusivity.
	SpeakersRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_speakers_rejected_total",
			Help: "Total speaker connections rejected because one was already active",
		},
	)

	// SlowViewersEvicted counts viewers dropped for not keeping up.
	SlowViewersEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_slow_viewers_evicted_total",
			Help: "Total viewer connections dropped due to full send buffers",
		},
	)
)

// Broadcast metrics
var (
	// BroadcastsTotal counts broadcast events by payload type.
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_broadcasts_total",
			Help: "Total broadcast events sent, by event type",
		},
		[]string{"type"},
	)
)

// Upstream metrics
var (
	// UpstreamSessionsTotal counts translation sessions opened.
	UpstreamSessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_upstream_sessions_total",
			Help: "Total upstream translation sessions opened",
		},
	)

	// UpstreamEventsTotal counts upstream events received, by type.
	UpstreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_upstream_events_total",
			Help: "Total upstream server events received, by event type",
		},
		[]string{"type"},
	)

	// UpstreamItemsDeleted counts conversation items deleted upstream.
	UpstreamItemsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_upstream_items_deleted_total",
			Help: "Total upstream conversation items deleted after responses",
		},
	)

	// UpstreamErrors counts upstream connection-level failures.
	UpstreamErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_upstream_errors_total",
			Help: "Total upstream connection-level errors",
		},
	)
)
