package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"postflow/internal/lifecycle"
	"postflow/internal/queue"
	"postflow/internal/workflow"
)

const namespace = "postflow"

// Metrics holds the pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	JobsFinished    *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
	JobRetries      *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	Publishes       *prometheus.CounterVec
	WebhookRequests *prometheus.CounterVec
	SchedulerSweeps *prometheus.CounterVec
}

// New registers the pipeline metrics on a fresh registry. store may be nil,
// in which case item and job gauges are omitted.
func New(store *queue.Store) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	m := &Metrics{registry: registry}

	m.JobsFinished = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "finished_total",
		Help:      "Stage job results by stage, resulting job status, and error kind",
	}, []string{"stage", "status", "kind"})

	m.JobDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Time from claim to result per stage",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"stage"})

	m.JobRetries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "retries_total",
		Help:      "Transient failures rescheduled for another attempt",
	}, []string{"stage"})

	m.Transitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "content",
		Name:      "transitions_total",
		Help:      "Committed content state transitions",
	}, []string{"from", "to"})

	m.Publishes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publish",
		Name:      "results_total",
		Help:      "Per-platform publish outcomes",
	}, []string{"platform", "result"})

	m.WebhookRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "requests_total",
		Help:      "Inbound webhook requests by action and outcome",
	}, []string{"action", "outcome"})

	m.SchedulerSweeps = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "items_total",
		Help:      "Due items seen by scheduler sweeps by outcome",
	}, []string{"outcome"})

	if store != nil {
		registry.MustRegister(newStoreCollector(store))
	}
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ContentChanged counts committed transitions.
func (m *Metrics) ContentChanged(_ context.Context, change workflow.Change) {
	for _, tr := range change.Transitions {
		m.Transitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
	}
}

// JobFinished counts job results, retries, durations, and publish outcomes.
func (m *Metrics) JobFinished(_ context.Context, result workflow.JobResult) {
	stage := string(result.Job.Stage)
	m.JobsFinished.WithLabelValues(stage, string(result.Status), string(result.Kind)).Inc()
	if result.Retried {
		m.JobRetries.WithLabelValues(stage).Inc()
	}
	if result.Duration > 0 {
		m.JobDuration.WithLabelValues(stage).Observe(result.Duration.Seconds())
	}
	if result.Job.Stage != lifecycle.StagePublishing || result.Discarded {
		return
	}
	switch result.Status {
	case queue.JobSucceeded:
		m.Publishes.WithLabelValues(string(result.Job.Platform), "published").Inc()
	case queue.JobFailed:
		m.Publishes.WithLabelValues(string(result.Job.Platform), "failed").Inc()
	}
}

// WebhookRequest counts one handled webhook request.
func (m *Metrics) WebhookRequest(action, outcome string) {
	m.WebhookRequests.WithLabelValues(action, outcome).Inc()
}

// SweepCompleted counts scheduler sweep outcomes.
func (m *Metrics) SweepCompleted(started, failed int) {
	if started > 0 {
		m.SchedulerSweeps.WithLabelValues("started").Add(float64(started))
	}
	if failed > 0 {
		m.SchedulerSweeps.WithLabelValues("failed").Add(float64(failed))
	}
}
