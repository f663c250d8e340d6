// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	ChatTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Chat turns handled, by the service that produced the reply",
		},
		[]string{"service_used"},
	)

	ChatTurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_turn_duration_seconds",
			Help:    "End-to-end chat turn latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
	)

	ChatStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_stage_duration_seconds",
			Help:    "Latency of each pipeline stage",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"stage"},
	)

	ChatFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fallbacks_total",
			Help: "Degraded fallback tiers taken, by component",
		},
		[]string{"component"},
	)

	SearchOutboundInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "search_outbound_inflight",
			Help: "Outbound semantic search calls currently in flight",
		},
	)

	SearchOutbound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_outbound_total",
			Help: "Outbound semantic search calls, by outcome",
		},
		[]string{"outcome"},
	)

	SearchCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_requests_total",
			Help: "Search result cache lookups, by result",
		},
		[]string{"result"},
	)

	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Messages rejected by the per-user rate limiter",
		},
	)

	SafetyBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safety_blocks_total",
			Help: "Messages blocked by the safety filter, by risk level",
		},
		[]string{"risk_level"},
	)
)
