// Package metrics holds the Prometheus collectors for the quiz engine and
// its HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tutorcat"

// Metrics is a set of collectors registered on one registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	attemptsStarted  prometheus.Counter
	attemptsFinished *prometheus.CounterVec
	itemsServed      prometheus.Counter
	nonConverged     prometheus.Counter
	conflicts        prometheus.Counter
	finalSE          prometheus.Histogram
	testLength       prometheus.Histogram
	httpDuration     *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, alongside the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		attemptsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attempts", Name: "started_total",
			Help: "Attempts started.",
		}),
		// Labels: status (completed, aborted), reason (stop reason or abort reason)
		attemptsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attempts", Name: "finished_total",
			Help: "Attempts that reached a terminal state.",
		}, []string{"status", "reason"}),
		itemsServed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "items", Name: "administered_total",
			Help: "Responses recorded across all attempts.",
		}),
		nonConverged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "estimator", Name: "nonconverged_total",
			Help: "Ability estimates that did not converge.",
		}),
		conflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attempts", Name: "conflicts_total",
			Help: "Writes rejected by the optimistic version check.",
		}),
		finalSE: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "attempts", Name: "final_standard_error",
			Help:    "Standard error of completed attempts.",
			Buckets: []float64{0.2, 0.25, 0.3, 0.35, 0.4, 0.5, 0.6, 0.8, 1},
		}),
		testLength: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "attempts", Name: "items",
			Help:    "Items administered in completed attempts.",
			Buckets: prometheus.LinearBuckets(5, 5, 8),
		}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// AttemptStarted counts a newly started attempt.
func (m *Metrics) AttemptStarted() {
	if m == nil {
		return
	}
	m.attemptsStarted.Inc()
}

// ItemAnswered records one response and whether its estimate converged.
func (m *Metrics) ItemAnswered(converged bool) {
	if m == nil {
		return
	}
	m.itemsServed.Inc()
	if !converged {
		m.nonConverged.Inc()
	}
}

// AttemptCompleted records a completion with its stop reason, length and final SE.
func (m *Metrics) AttemptCompleted(reason string, items int, se float64) {
	if m == nil {
		return
	}
	m.attemptsFinished.WithLabelValues("completed", reason).Inc()
	m.testLength.Observe(float64(items))
	m.finalSE.Observe(se)
}

// AttemptAborted counts an abort by reason.
func (m *Metrics) AttemptAborted(reason string) {
	if m == nil {
		return
	}
	m.attemptsFinished.WithLabelValues("aborted", reason).Inc()
}

// Conflict counts a lost optimistic update.
func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// ObserveHTTP records one request. route is the matched pattern, not the
// raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
