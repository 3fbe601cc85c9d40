// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/event"
)

const namespace = "triage"

// Recorder turns domain events into metrics. It owns its registry so that
// several recorders can coexist in tests.
type Recorder struct {
	registry *prometheus.Registry

	cases         *prometheus.CounterVec
	oracleFailure *prometheus.CounterVec
	notifications *prometheus.CounterVec
	duration      prometheus.Histogram
	reimbursed    prometheus.Counter
	batchCases    *prometheus.CounterVec
}

// NewRecorder creates a Recorder with process and Go runtime collectors
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cases_total",
			Help:      "Processing passes by resulting case status.",
		}, []string{"status"}),
		oracleFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_failures_total",
			Help:      "Unusable model replies by pipeline stage.",
		}, []string{"stage"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Clarification emails by delivery result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "case_duration_seconds",
			Help:      "Wall time of one processing pass.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		reimbursed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reimbursed_total",
			Help:      "Cases confirmed as paid out.",
		}),
		batchCases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_cases_total",
			Help:      "Cases seen by batch passes, by result.",
		}, []string{"result"}),
	}

	r.registry.MustRegister(
		r.cases,
		r.oracleFailure,
		r.notifications,
		r.duration,
		r.reimbursed,
		r.batchCases,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry for scraping
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// HandleCaseDecided records one processing pass
func (r *Recorder) HandleCaseDecided(_ context.Context, evt *event.Event) error {
	d, ok := evt.Decided()
	if !ok {
		return nil
	}

	r.cases.WithLabelValues(string(d.Case.Status)).Inc()
	for _, stage := range d.OracleFailures {
		r.oracleFailure.WithLabelValues(stage).Inc()
	}
	switch {
	case d.Notified:
		r.notifications.WithLabelValues("sent").Inc()
	case d.NotifyError != "":
		r.notifications.WithLabelValues("failed").Inc()
	}
	if d.Duration > 0 {
		r.duration.Observe(d.Duration.Seconds())
	}
	return nil
}

// HandleCaseReimbursed counts payout confirmations
func (r *Recorder) HandleCaseReimbursed(_ context.Context, evt *event.Event) error {
	if _, ok := evt.Reimbursed(); ok {
		r.reimbursed.Inc()
	}
	return nil
}

// HandleBatchCompleted records the outcome counts of a batch pass
func (r *Recorder) HandleBatchCompleted(_ context.Context, evt *event.Event) error {
	b, ok := evt.Batch()
	if !ok {
		return nil
	}
	r.batchCases.WithLabelValues("skipped").Add(float64(b.Skipped))
	r.batchCases.WithLabelValues("processed").Add(float64(b.Processed))
	r.batchCases.WithLabelValues("failed").Add(float64(b.Failed))
	return nil
}
