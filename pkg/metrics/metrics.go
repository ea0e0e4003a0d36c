// Package metrics exposes Prometheus counters for the subscription
// lifecycle: billing webhook outcomes, scheduler passes, lifecycle emails and
// listing visibility flips.
//
// All methods are safe on a nil *Lifecycle so components can run without
// metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sobernest"

// Billing event outcomes.
const (
	OutcomeApplied    = "applied"
	OutcomeNoop       = "noop"
	OutcomeDuplicate  = "duplicate"
	OutcomeDropped    = "dropped"
	OutcomeFailed     = "failed"
	OutcomeIgnored    = "ignored"
	OutcomeBadRequest = "bad_request"
)

type Lifecycle struct {
	billingEvents *prometheus.CounterVec
	passRuns      *prometheus.CounterVec
	passDuration  *prometheus.HistogramVec
	emails        *prometheus.CounterVec
	visibility    *prometheus.CounterVec
}

// New registers the lifecycle collectors on reg.
func New(reg prometheus.Registerer) *Lifecycle {
	f := promauto.With(reg)
	return &Lifecycle{
		billingEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_events_total",
			Help:      "Billing webhook events by type and outcome",
		}, []string{"type", "outcome"}),
		passRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_pass_runs_total",
			Help:      "Scheduler pass executions by pass and result",
		}, []string{"pass", "result"}),
		passDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_pass_duration_seconds",
			Help:      "Scheduler pass duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pass"}),
		emails: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_emails_total",
			Help:      "Lifecycle emails by kind and result",
		}, []string{"kind", "result"}),
		visibility: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_visibility_changes_total",
			Help:      "Listings hidden or restored by the visibility gate",
		}, []string{"action"}),
	}
}

// NewRegistry returns a registry with the Go and process collectors plus
// the lifecycle collectors.
func NewRegistry() (*prometheus.Registry, *Lifecycle) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, New(reg)
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (m *Lifecycle) BillingEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.billingEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Lifecycle) SchedulerPass(pass string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.passRuns.WithLabelValues(pass, result(err)).Inc()
	m.passDuration.WithLabelValues(pass).Observe(took.Seconds())
}

func (m *Lifecycle) Email(kind string, err error) {
	if m == nil {
		return
	}
	m.emails.WithLabelValues(kind, result(err)).Inc()
}

func (m *Lifecycle) ListingsHidden(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.visibility.WithLabelValues("hide").Add(float64(n))
}

func (m *Lifecycle) ListingsRestored(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.visibility.WithLabelValues("show").Add(float64(n))
}

func result(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
