package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus metrics. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry wiring.
type Metrics struct {
	Applications      *prometheus.CounterVec
	StatusUpdates     prometheus.Counter
	ProjectsDeleted   prometheus.Counter
	SweepClosed       prometheus.Counter
	SweepDuration     prometheus.Histogram
	Inconsistencies   *prometheus.CounterVec
	WishlistToggles   *prometheus.CounterVec
	FeedSubscriptions prometheus.Gauge
	MirrorRepairs     prometheus.Counter
}

// NewMetrics registers the engine metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		// Applications by outcome: created or already_applied
		Applications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "teamup_applications_total",
			Help: "Total number of apply calls by result",
		}, []string{"result"}),

		StatusUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "teamup_status_updates_total",
			Help: "Total number of application status updates",
		}),

		ProjectsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "teamup_projects_deleted_total",
			Help: "Total number of completed cascading project deletions",
		}),

		SweepClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "teamup_sweep_closed_total",
			Help: "Total number of projects closed by the deadline sweeper",
		}),

		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "teamup_sweep_duration_seconds",
			Help:    "Deadline sweep duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),

		// Detected divergence by kind: mirror_missing, mirror_status, mirror_write, wishlist
		Inconsistencies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "teamup_inconsistencies_total",
			Help: "Total number of detected root/mirror or wishlist divergences",
		}, []string{"kind"}),

		WishlistToggles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "teamup_wishlist_toggles_total",
			Help: "Total number of wishlist mutations by action",
		}, []string{"action"}), // action: "save" or "unsave"

		FeedSubscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "teamup_feed_subscriptions_active",
			Help: "Number of active change feed subscriptions",
		}),

		MirrorRepairs: factory.NewCounter(prometheus.CounterOpts{
			Name: "teamup_mirror_repairs_total",
			Help: "Total number of application mirrors rewritten from their root",
		}),
	}
}

// RecordApply records an apply call outcome
func (m *Metrics) RecordApply(alreadyApplied bool) {
	if m == nil {
		return
	}
	result := "created"
	if alreadyApplied {
		result = "already_applied"
	}
	m.Applications.WithLabelValues(result).Inc()
}

// RecordStatusUpdate records an application status change
func (m *Metrics) RecordStatusUpdate() {
	if m == nil {
		return
	}
	m.StatusUpdates.Inc()
}

// RecordProjectDeleted records a completed cascading deletion
func (m *Metrics) RecordProjectDeleted() {
	if m == nil {
		return
	}
	m.ProjectsDeleted.Inc()
}

// RecordSweep records one deadline sweep
func (m *Metrics) RecordSweep(closed int, seconds float64) {
	if m == nil {
		return
	}
	m.SweepClosed.Add(float64(closed))
	m.SweepDuration.Observe(seconds)
}

// RecordInconsistency records a detected divergence
func (m *Metrics) RecordInconsistency(kind string) {
	if m == nil {
		return
	}
	m.Inconsistencies.WithLabelValues(kind).Inc()
}

// RecordMirrorRepair records a mirror rewritten from its root
func (m *Metrics) RecordMirrorRepair() {
	if m == nil {
		return
	}
	m.MirrorRepairs.Inc()
}

// RecordWishlistToggle records a save or unsave
func (m *Metrics) RecordWishlistToggle(saved bool) {
	if m == nil {
		return
	}
	action := "unsave"
	if saved {
		action = "save"
	}
	m.WishlistToggles.WithLabelValues(action).Inc()
}

// RecordSubscribe records a new feed subscription
func (m *Metrics) RecordSubscribe() {
	if m == nil {
		return
	}
	m.FeedSubscriptions.Inc()
}

// RecordUnsubscribe records a closed feed subscription
func (m *Metrics) RecordUnsubscribe() {
	if m == nil {
		return
	}
	m.FeedSubscriptions.Dec()
}
