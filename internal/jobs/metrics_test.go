package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("sync:product").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("sync:product").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sync:product", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("sync:product", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("sync:product")))
}

func TestAddItemsIgnoresEmptyCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AddItems("order", "created", 3)
	m.AddItems("order", "failed", 0)

	require.Equal(t, 3.0, testutil.ToFloat64(m.items.WithLabelValues("order", "created")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.items.WithLabelValues("order", "failed")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddItems("order", "created", 1)
	require.NoError(t, m.Track("sync:order").End(nil))
}
