// Package metrics exposes SkillSwap counters and histograms to Prometheus.
//
// Recorder satisfies the metrics ports of the application layer
// (ledger, badges, matching) and the event bus observer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skillswap-hub/skillswap-core/pkg/circuitbreaker"
)

const namespace = "skillswap"

// Recorder owns every SkillSwap collector.
type Recorder struct {
	registry *prometheus.Registry

	ledgerTransactions *prometheus.CounterVec
	ledgerCredits      *prometheus.CounterVec
	ledgerRejections   *prometheus.CounterVec
	badgesAwarded      *prometheus.CounterVec
	matchRequests      *prometheus.CounterVec
	matchDuration      *prometheus.HistogramVec
	eventsHandled      *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	breakerTrips       *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// NewRecorder registers collectors on a fresh registry, plus Go and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,

		// ─── Ledger ─────────────────────────────────────────────────────────
		ledgerTransactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Committed ledger transactions.",
		}, []string{"type", "source"}),
		ledgerCredits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "credits_total",
			Help:      "Credits moved through the ledger.",
		}, []string{"type"}),
		ledgerRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rejections_total",
			Help:      "Ledger mutations rejected before commit.",
		}, []string{"reason"}),

		// ─── Badges ─────────────────────────────────────────────────────────
		badgesAwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "badges",
			Name:      "awarded_total",
			Help:      "Badges granted to users.",
		}, []string{"badge", "rarity"}),

		// ─── Matching ───────────────────────────────────────────────────────
		matchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "requests_total",
			Help:      "Match lists served.",
		}, []string{"kind", "fallback"}),
		matchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "duration_seconds",
			Help:      "Time to load the candidate pool and rank it.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"kind"}),

		// ─── Events ─────────────────────────────────────────────────────────
		eventsHandled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handled_total",
			Help:      "Event handler executions.",
		}, []string{"event_type", "ok"}),

		// ─── Circuit Breaker ────────────────────────────────────────────────
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
		breakerTrips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "trips_total",
			Help:      "Total circuit breaker trips.",
		}, []string{"name"}),

		// ─── HTTP ───────────────────────────────────────────────────────────
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the registry for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// TransactionPosted implements command.LedgerMetrics.
func (r *Recorder) TransactionPosted(txType, source string, amount int) {
	r.ledgerTransactions.WithLabelValues(txType, source).Inc()
	r.ledgerCredits.WithLabelValues(txType).Add(float64(amount))
}

// TransactionRejected implements command.LedgerMetrics.
func (r *Recorder) TransactionRejected(reason string) {
	r.ledgerRejections.WithLabelValues(reason).Inc()
}

// BadgeAwarded implements saga.BadgeMetrics.
func (r *Recorder) BadgeAwarded(badgeID, rarity string) {
	r.badgesAwarded.WithLabelValues(badgeID, rarity).Inc()
}

// MatchServed implements query.MatchMetrics.
func (r *Recorder) MatchServed(kind string, fallback bool, took time.Duration) {
	r.matchRequests.WithLabelValues(kind, strconv.FormatBool(fallback)).Inc()
	r.matchDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// EventHandled implements messaging.HandlerObserver.
func (r *Recorder) EventHandled(eventType string, _ time.Duration, err error) {
	r.eventsHandled.WithLabelValues(eventType, strconv.FormatBool(err == nil)).Inc()
}

// BreakerStateChanged is an OnStateChange callback for pkg/circuitbreaker.
func (r *Recorder) BreakerStateChanged(name string, _, to circuitbreaker.State) {
	r.breakerState.WithLabelValues(name).Set(float64(to))
	if to == circuitbreaker.StateOpen {
		r.breakerTrips.WithLabelValues(name).Inc()
	}
}

// HTTPRequest records one served request.
func (r *Recorder) HTTPRequest(method, route string, status int, took time.Duration) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
