package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObservePass(ResultOK, time.Second)
	m.ObservePass(ResultOK, time.Second)
	m.ObservePass(ResultAborted, time.Second)
	m.AddAnnouncements(ActionPosted, 2)
	m.AddAnnouncements(ActionDeleted, 0)
	m.SetState(3, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Passes.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Passes.WithLabelValues(ResultAborted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Announcements.WithLabelValues(ActionPosted)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Announcements.WithLabelValues(ActionDeleted)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Tracked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SoftBans))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObservePass(ResultOK, time.Second)
		m.AddAnnouncements(ActionPosted, 1)
		m.SetState(1, 1)
	})
}
