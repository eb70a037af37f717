package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	jobsSubmittedTotal *prometheus.CounterVec
	jobsCompletedTotal *prometheus.CounterVec
	jobsRejectedTotal  prometheus.Counter
	jobsQueued         prometheus.Gauge
	jobsRunning        prometheus.Gauge
	jobDuration        prometheus.Histogram
	jobsSwept          prometheus.Counter

	invocationTotal    *prometheus.CounterVec
	invocationDuration prometheus.Histogram

	projectsTotal prometheus.Gauge
	threadsTotal  prometheus.Gauge

	wsClients prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			jobsSubmittedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "jobs_submitted_total",
					Help: "Total job submissions by outcome (accepted, rejected).",
				},
				[]string{"outcome"},
			),
			jobsCompletedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "jobs_completed_total",
					Help: "Total terminal jobs by status (done, failed).",
				},
				[]string{"status"},
			),
			jobsRejectedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "jobs_capacity_rejections_total",
					Help: "Total submissions rejected by queue capacity limits.",
				},
			),
			jobsQueued: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "jobs_queued",
					Help: "Jobs currently waiting in thread queues.",
				},
			),
			jobsRunning: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "jobs_running",
					Help: "Jobs currently executing an external invocation.",
				},
			),
			jobDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "job_duration_seconds",
					Help:    "Wall time from job start to terminal state.",
					Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
				},
			),
			jobsSwept: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "jobs_swept_total",
					Help: "Terminal jobs removed by the retention janitor.",
				},
			),
			invocationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "invocation_total",
					Help: "Total external CLI invocations by mode and status.",
				},
				[]string{"mode", "status"},
			),
			invocationDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "invocation_duration_seconds",
					Help:    "External CLI invocation duration in seconds.",
					Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
				},
			),
			projectsTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "projects_total",
					Help: "Current project count.",
				},
			),
			threadsTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "threads_total",
					Help: "Current thread count.",
				},
			),
			wsClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "websocket_clients",
					Help: "Connected websocket event clients.",
				},
			),
		}

		prometheus.MustRegister(
			m.jobsSubmittedTotal,
			m.jobsCompletedTotal,
			m.jobsRejectedTotal,
			m.jobsQueued,
			m.jobsRunning,
			m.jobDuration,
			m.jobsSwept,
			m.invocationTotal,
			m.invocationDuration,
			m.projectsTotal,
			m.threadsTotal,
			m.wsClients,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordJobSubmitted(accepted bool) {
	m := getMetrics()
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
		m.jobsRejectedTotal.Inc()
	}
	m.jobsSubmittedTotal.WithLabelValues(outcome).Inc()
}

func RecordJobCompletion(status string, duration time.Duration) {
	m := getMetrics()
	m.jobsCompletedTotal.WithLabelValues(status).Inc()
	m.jobDuration.Observe(duration.Seconds())
}

func SetJobsQueued(count int) {
	getMetrics().jobsQueued.Set(float64(count))
}

func SetJobsRunning(count int) {
	getMetrics().jobsRunning.Set(float64(count))
}

func RecordJobsSwept(count int) {
	getMetrics().jobsSwept.Add(float64(count))
}

func RecordInvocation(mode string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.invocationTotal.WithLabelValues(mode, status).Inc()
	m.invocationDuration.Observe(duration.Seconds())
}

func SetProjects(count int) {
	getMetrics().projectsTotal.Set(float64(count))
}

func SetThreads(count int) {
	getMetrics().threadsTotal.Set(float64(count))
}

func SetWebsocketClients(count int) {
	getMetrics().wsClients.Set(float64(count))
}
