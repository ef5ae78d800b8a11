package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cardsPublished  *prometheus.CounterVec
	cardsRemoved    prometheus.Counter
	cardViews       *prometheus.CounterVec
	linePushes      *prometheus.CounterVec
	logins          *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flexcard_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flexcard_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cardsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flexcard_cards_published_total",
				Help: "Cards published, by whether a new card was created or the active one updated.",
			},
			[]string{"mode"},
		),
		cardsRemoved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "flexcard_cards_unpublished_total",
				Help: "Cards unpublished.",
			},
		),
		cardViews: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flexcard_card_views_total",
				Help: "Public card page views, by whether the view was counted.",
			},
			[]string{"result"},
		),
		linePushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flexcard_line_pushes_total",
				Help: "LINE push attempts by result.",
			},
			[]string{"result"},
		),
		logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flexcard_logins_total",
				Help: "Login attempts by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrPublished counts a publish; created is false when the active card was updated in place.
func (m *Metrics) IncrPublished(created bool) {
	mode := "updated"
	if created {
		mode = "created"
	}
	m.cardsPublished.WithLabelValues(mode).Inc()
}

// IncrUnpublished counts an unpublish.
func (m *Metrics) IncrUnpublished() {
	m.cardsRemoved.Inc()
}

// IncrView counts a public page view; counted is false for de-duplicated repeats.
func (m *Metrics) IncrView(counted bool) {
	result := "deduplicated"
	if counted {
		result = "counted"
	}
	m.cardViews.WithLabelValues(result).Inc()
}

// IncrPush counts a LINE push by result.
func (m *Metrics) IncrPush(ok bool) {
	m.linePushes.WithLabelValues(resultLabel(ok)).Inc()
}

// IncrLogin counts a login attempt by result.
func (m *Metrics) IncrLogin(ok bool) {
	m.logins.WithLabelValues(resultLabel(ok)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Snapshot returns the process-lifetime counters shown by GET /cards/stats.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"cards_created":        int64(getCounterValue(m.cardsPublished, "created")),
		"cards_updated":        int64(getCounterValue(m.cardsPublished, "updated")),
		"views_counted":        int64(getCounterValue(m.cardViews, "counted")),
		"views_deduplicated":   int64(getCounterValue(m.cardViews, "deduplicated")),
		"line_push_success":    int64(getCounterValue(m.linePushes, "success")),
		"line_push_failure":    int64(getCounterValue(m.linePushes, "failure")),
		"login_success":        int64(getCounterValue(m.logins, "success")),
		"login_failure":        int64(getCounterValue(m.logins, "failure")),
		"line_external_errors": int64(getCounterValue(m.externalErrors, "line")),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
