package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ridewatch"

var (
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "snapshots_total", Help: "Snapshot fetches by result"},
		[]string{"result"},
	)
	SnapshotDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "snapshot_duration_seconds",
		Help:      "Snapshot fetch latency",
		Buckets:   prometheus.DefBuckets,
	})
	PushEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "push_events_total", Help: "Push events received by topic and result"},
		[]string{"topic", "result"},
	)
	ChannelConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: "channel_connected", Help: "1 while the subscription channel is established"},
		[]string{"channel"},
	)
	ChannelReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "channel_reconnects_total", Help: "Channel establishment failures followed by a retry"},
		[]string{"channel"},
	)
	ChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "collection_changes_total", Help: "Applied collection changes by kind"},
		[]string{"kind"},
	)
	CollectionSize = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "collection_size", Help: "Rides in the live collection"})
	ActiveRides    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "active_rides", Help: "Rides in an active status"})

	ViewersConnected = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "viewers_connected", Help: "Local websocket viewers"})
	FeedDropped      = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "feed_dropped_total", Help: "Changes dropped because the journal feed was full"})

	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "backend_requests_total", Help: "Backend API calls by operation and result"},
		[]string{"op", "result"},
	)
	DeskCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "driver_commands_total", Help: "Driver desk commands by operation and result"},
		[]string{"op", "result"},
	)
	ExportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "exported_changes_total", Help: "Ride changes written to the journal or change feed"},
		[]string{"sink", "result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
