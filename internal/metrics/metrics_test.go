package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRateMetrics(reg)
	require.NotNil(t, m)

	m.RunsTotal.WithLabelValues("success").Inc()
	m.SourceFetchTotal.WithLabelValues("CoinGecko", "ok").Inc()
	m.RatesSavedTotal.WithLabelValues("crypto").Add(3)
	m.PairsInSnapshot.Set(12)
	m.ScheduledRuns.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RatesSavedTotal.WithLabelValues("crypto")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.PairsInSnapshot))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScheduledRuns))
}
