package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FixesRelayed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "careride", Name: "fixes_relayed_total", Help: "Location fixes delivered to tracking subscribers"})
	FixesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "careride", Name: "fixes_dropped_total", Help: "Location fixes dropped before delivery"},
		[]string{"reason"},
	)
	TrackingSubscribers = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "careride", Name: "tracking_subscribers", Help: "Currently attached tracking subscribers"})

	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "careride", Name: "dispatch_attempts_total", Help: "Notification channel attempts by outcome"},
		[]string{"channel", "outcome"},
	)

	SchedulerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "careride",
			Name:      "scheduler_job_duration_seconds",
			Help:      "Automation scan job duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job"},
	)
	SchedulerJobFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "careride", Name: "scheduler_job_failures_total", Help: "Automation scan jobs that returned an error or panicked"},
		[]string{"job"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "careride", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "careride",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
