package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/99souls/anomalyengine/engine/models"
	"github.com/stretchr/testify/require"
)

func TestThresholdDetectorFlagsUpperCritical(t *testing.T) {
	d := NewThresholdDetector()
	require.NoError(t, d.Configure(map[string]interface{}{"k": 2.0}))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 30)
	for i := range values {
		values[i] = 100
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "errors", values, base, time.Minute)))

	spike := models.Sample{Source: "svc-a", Metric: "errors", Value: 100000, Timestamp: base.Add(31 * time.Minute)}
	anomalies, err := d.Detect(context.Background(), []models.Sample{spike}, DetectContext{})
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	require.Equal(t, models.AnomalySpike, anomalies[0].Type)
}

func TestThresholdDetectorImplementsThresholdProvider(t *testing.T) {
	d := NewThresholdDetector()
	require.NoError(t, d.Configure(nil))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 30)
	for i := range values {
		values[i] = 9 + 2*float64(i%2) // mean 10, stddev 1
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "errors", values, base, time.Minute)))

	var provider ThresholdProvider = d
	set, ok := provider.Thresholds("svc-a")
	require.True(t, ok)
	require.Greater(t, set.Upper, 10.0)
}

func TestThresholdDetectorRateViolation(t *testing.T) {
	d := NewThresholdDetector()
	require.NoError(t, d.Configure(map[string]interface{}{"k": 10.0}))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 0, 30)
	for i := 0; i < 30; i++ {
		// Rising steps of 1 and 2 give a non-zero MaxIncrease rate bound.
		values = append(values, []float64{10, 11, 13}[i%3])
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "errors", values, base, time.Minute)))

	first := models.Sample{Source: "svc-a", Metric: "errors", Value: 10, Timestamp: base.Add(31 * time.Minute)}
	second := models.Sample{Source: "svc-a", Metric: "errors", Value: 100000, Timestamp: base.Add(32 * time.Minute)}
	anomalies, err := d.Detect(context.Background(), []models.Sample{first, second}, DetectContext{})
	require.NoError(t, err)
	require.NotEmpty(t, anomalies)
	require.Contains(t, anomalies[len(anomalies)-1].Description, "rate_increase")
}

func TestAdaptiveFactorClampedByDeployment(t *testing.T) {
	factor := adaptiveFactor(0.3, DetectContext{RecentDeployment: true})
	require.LessOrEqual(t, factor, 3.0)
	require.GreaterOrEqual(t, factor, 0.5)
}
