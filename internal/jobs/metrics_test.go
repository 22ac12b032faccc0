package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	assert.NoError(t, m.Track("suppliers:performance_snapshot").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("suppliers:performance_snapshot").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("suppliers:performance_snapshot", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("suppliers:performance_snapshot", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("suppliers:performance_snapshot")))
}

func TestAlertAndExpiryCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddAlerts(2)
	m.AddAlerts(0)
	m.SetExpiringDocuments("expired", 3)
	m.SetExpiringDocuments("expired", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.alerts.WithLabelValues("opened")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.expiring.WithLabelValues("expired")))

	var nilMetrics *Metrics
	nilMetrics.AddAlerts(1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
