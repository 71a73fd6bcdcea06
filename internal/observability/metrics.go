package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreatedTotal          = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_events", Name: "rides_created_total", Help: "Total rides created"})
	ParticipationRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_events", Name: "participation_requests_total", Help: "Total participation requests filed"})
	AdmissionsApprovedTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_events", Name: "admissions_approved_total", Help: "Total participation requests approved"})
	AdmissionsRejectedTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_events", Name: "admissions_rejected_total", Help: "Total participation requests rejected"})
	CapacityExceededTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_events", Name: "admissions_capacity_exceeded_total", Help: "Total approvals refused for lack of capacity"})
	CancelCascadeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_events", Name: "cancel_cascade_failures_total", Help: "Participant updates that failed during a cancellation cascade"})

	WSConnections                 = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_events", Name: "ws_connections", Help: "Currently live notification connections"})
	NotificationsSentTotal        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_events", Name: "notifications_sent_total", Help: "Notification events written to connections"})
	NotificationSendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_events", Name: "notification_send_failures_total", Help: "Notification writes that failed"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_events", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_events",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
