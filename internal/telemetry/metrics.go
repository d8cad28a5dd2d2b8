// Package telemetry exposes Prometheus metrics for reconciliation passes.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK      = "ok"
	ResultAborted = "aborted"
	ResultPartial = "partial"

	ActionPosted  = "posted"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	Passes        *prometheus.CounterVec
	Announcements *prometheus.CounterVec
	PassDuration  prometheus.Histogram
	Tracked       prometheus.Gauge
	SoftBans      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livestreams_reconcile_passes_total",
			Help: "Reconciliation passes by result",
		}, []string{"result"}),
		Announcements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "livestreams_announcements_total",
			Help: "Announcement messages posted, updated or deleted",
		}, []string{"action"}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "livestreams_reconcile_duration_seconds",
			Help:    "Reconciliation pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		Tracked: f.NewGauge(prometheus.GaugeOpts{
			Name: "livestreams_tracked_announcements",
			Help: "Announcements currently tracked in the store",
		}),
		SoftBans: f.NewGauge(prometheus.GaugeOpts{
			Name: "livestreams_soft_bans",
			Help: "Broadcasts currently soft-banned",
		}),
	}
}

func (m *Metrics) ObservePass(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Passes.WithLabelValues(result).Inc()
	m.PassDuration.Observe(d.Seconds())
}

func (m *Metrics) AddAnnouncements(action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Announcements.WithLabelValues(action).Add(float64(n))
}

func (m *Metrics) SetState(tracked, softBans int) {
	if m == nil {
		return
	}
	m.Tracked.Set(float64(tracked))
	m.SoftBans.Set(float64(softBans))
}
