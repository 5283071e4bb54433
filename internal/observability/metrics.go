package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pitchview",
		Name:      "frames_ingested_total",
		Help:      "Total number of analyzed frames received from the backend",
	})

	ProtocolErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pitchview",
		Name:      "protocol_errors_total",
		Help:      "Total number of malformed stream messages dropped",
	})

	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitchview",
		Name:      "sessions_total",
		Help:      "Total number of analysis sessions by terminal status",
	}, []string{"status"})

	StreamsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pitchview",
		Name:      "streams_closed_total",
		Help:      "Total number of closed analysis streams by close reason",
	}, []string{"reason"})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pitchview",
		Name:      "active_streams",
		Help:      "Number of currently open analysis streams",
	})

	UploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pitchview",
		Name:      "upload_duration_seconds",
		Help:      "Duration of video uploads to the analysis backend",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pitchview",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pitchview",
		Name:      "ws_connections",
		Help:      "Number of active viewer WebSocket connections",
	})
)
