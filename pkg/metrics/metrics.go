package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Leader election metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_raft_is_leader",
			Help: "Whether this replica holds Raft leadership (1 = leader, 0 = follower)",
		},
	)

	LeaderEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_leader_epoch",
			Help: "Current leader epoch generation observed by this process",
		},
	)

	// Membership metrics
	ActiveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foreman_active_workers",
			Help: "Number of workers with a live heartbeat",
		},
	)

	// Scheduler metrics
	JobsScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "foreman_jobs_scheduled_total",
			Help: "Total number of jobs successfully transitioned PENDING to QUEUED",
		},
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foreman_scheduling_latency_seconds",
			Help:    "Time from submission log delivery to inbox push",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foreman_reconciliation_duration_seconds",
			Help:    "Time taken for a full reconciliation cycle (both passes)",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "foreman_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	JobsRecoveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_jobs_recovered_total",
			Help: "Total number of jobs recovered by the reconciler, by pass",
		},
		[]string{"pass"},
	)

	// Worker metrics
	JobsExecutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_jobs_executed_total",
			Help: "Total number of jobs executed by a worker, by outcome",
		},
		[]string{"outcome"},
	)

	ExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foreman_execution_duration_seconds",
			Help:    "Time taken to run a job to completion inside the executor",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTP acceptor metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foreman_api_requests_total",
			Help: "Total number of HTTP requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foreman_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(LeaderEpoch)
	prometheus.MustRegister(ActiveWorkers)
	prometheus.MustRegister(JobsScheduledTotal)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(JobsRecoveredTotal)
	prometheus.MustRegister(JobsExecutedTotal)
	prometheus.MustRegister(ExecutionDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
