package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/99souls/anomalyengine/engine/models"
	"github.com/stretchr/testify/require"
)

func TestIsolationForestDetectorTrainsAndFlags(t *testing.T) {
	d := NewIsolationForestDetector()
	require.NoError(t, d.Configure(map[string]interface{}{"threshold": 0.55}))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 80)
	for i := range values {
		values[i] = 10 + float64(i%3)
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "qps", values, base, time.Minute)))
	require.True(t, d.IsReady())

	outlier := models.Sample{Source: "svc-a", Metric: "qps", Value: 90000, Timestamp: base.Add(81 * time.Minute)}
	anomalies, err := d.Detect(context.Background(), []models.Sample{outlier}, DetectContext{})
	require.NoError(t, err)
	require.NotEmpty(t, anomalies)
}

func TestIsolationForestDetectorFeatureImportance(t *testing.T) {
	d := NewIsolationForestDetector()
	require.NoError(t, d.Configure(nil))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 80)
	for i := range values {
		values[i] = 10 + float64(i%5)
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "qps", values, base, time.Minute)))

	var provider FeatureImportanceProvider = d
	importance, ok := provider.FeatureImportance("svc-a")
	require.True(t, ok)
	require.Len(t, importance, featureVectorSize)

	var sum float64
	for _, v := range importance {
		sum += v
	}
	require.InDelta(t, 1.0, sum, 0.01)
}

func TestAveragePathAdjustmentZeroForSingleton(t *testing.T) {
	require.Equal(t, 0.0, averagePathAdjustment(1))
	require.Greater(t, averagePathAdjustment(256), 0.0)
}
