package sysmetrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultThresholds(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, 80.0, th.CPUPercent)
	assert.Equal(t, 85.0, th.MemPercent)
	assert.Equal(t, 90.0, th.DiskPercent)
}

func TestCheckThresholdsNoBreach(t *testing.T) {
	alerts := CheckThresholds(Sample{CPUPercent: 10, MemPercent: 20, DiskPercent: 30}, DefaultThresholds())
	assert.Empty(t, alerts)
}

func TestCheckThresholdsBreachesAreNamed(t *testing.T) {
	alerts := CheckThresholds(Sample{CPUPercent: 95, MemPercent: 10, DiskPercent: 92}, DefaultThresholds())
	require := assert.New(t)
	require.Len(alerts, 2)

	byMetric := map[string]Alert{}
	for _, a := range alerts {
		byMetric[a.Metric] = a
	}
	require.Contains(byMetric, "cpu")
	require.Contains(byMetric, "disk")
	require.NotContains(byMetric, "memory")
	require.Equal(95.0, byMetric["cpu"].Percent)
	require.Equal(80.0, byMetric["cpu"].Limit)
}

func TestCheckThresholdsBoundaryIsInclusive(t *testing.T) {
	alerts := CheckThresholds(Sample{CPUPercent: 80}, DefaultThresholds())
	assert.Len(t, alerts, 1)
}

func TestCollectDegradesGracefullyOnMissingDB(t *testing.T) {
	s, err := Collect("/nonexistent/path/does/not/exist.db")
	assert.NoError(t, err)
	assert.Equal(t, 0.0, s.DBSizeMB)
}
