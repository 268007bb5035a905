package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the control plane.
type Metrics struct {
	JobsCreated          prometheus.Counter
	JobsStarted          prometheus.Counter
	JobsTerminated       *prometheus.CounterVec
	QuotaRejections      *prometheus.CounterVec
	WebhookEvents        *prometheus.CounterVec
	KillSwitchRejections prometheus.Counter
	EngineFailures       *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
}

// New creates the collectors and registers them on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refinery_jobs_created_total",
			Help: "Jobs accepted through the create endpoint.",
		}),
		JobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refinery_jobs_started_total",
			Help: "Jobs successfully handed to the execution engine.",
		}),
		JobsTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refinery_jobs_terminated_total",
			Help: "Jobs stopped by the user, by kind of stop.",
		}, []string{"kind"}),
		QuotaRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refinery_quota_rejections_total",
			Help: "Job creations rejected by the quota gate, by layer.",
		}, []string{"scope"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refinery_webhook_events_total",
			Help: "Payment webhook events received, by outcome.",
		}, []string{"result"}),
		KillSwitchRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refinery_kill_switch_rejections_total",
			Help: "Requests rejected while the global kill switch was active.",
		}),
		EngineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refinery_engine_failures_total",
			Help: "Failed calls to the execution engine, by operation.",
		}, []string{"op"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "refinery_http_request_duration_seconds",
			Help:    "HTTP request latency by method and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	reg.MustRegister(
		m.JobsCreated,
		m.JobsStarted,
		m.JobsTerminated,
		m.QuotaRejections,
		m.WebhookEvents,
		m.KillSwitchRejections,
		m.EngineFailures,
		m.RequestDuration,
	)
	return m
}
