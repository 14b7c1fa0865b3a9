package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/99souls/anomalyengine/engine/models"
	"github.com/stretchr/testify/require"
)

func TestMLEnsembleDetectorTrainsAndRetainsModels(t *testing.T) {
	d := NewMLEnsembleDetector()
	require.NoError(t, d.Configure(map[string]interface{}{"threshold": 0.5, "minValidationAcc": 0.0}))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 100)
	for i := range values {
		values[i] = 20 + float64(i%4)
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "latency", values, base, time.Minute)))
	require.True(t, d.IsReady())
	require.NotEmpty(t, d.models["svc-a"])
}

func TestMLEnsembleDetectorDropsLowAccuracyModels(t *testing.T) {
	d := NewMLEnsembleDetector()
	require.NoError(t, d.Configure(map[string]interface{}{"minValidationAcc": 1.0}))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 100)
	for i := range values {
		values[i] = 20 + float64(i%4)
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "latency", values, base, time.Minute)))
	// Validation accuracy is a fraction in [0,1] and a model is kept only if
	// it strictly exceeds the bar, so a 1.0 bar retains no model.
	require.Empty(t, d.models["svc-a"])
}

func TestMLEnsembleDetectorFeatureImportanceSumsToOne(t *testing.T) {
	d := NewMLEnsembleDetector()
	require.NoError(t, d.Configure(map[string]interface{}{"minValidationAcc": 0.0}))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 100)
	for i := range values {
		values[i] = 20 + float64(i%4)
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "latency", values, base, time.Minute)))

	var provider FeatureImportanceProvider = d
	importance, ok := provider.FeatureImportance("svc-a")
	require.True(t, ok)
	require.Len(t, importance, mlFeatureVectorSize)
}

func TestMLEnsembleDetectorNoopWhenNoModelsTrained(t *testing.T) {
	d := NewMLEnsembleDetector()
	require.NoError(t, d.Configure(map[string]interface{}{"minValidationAcc": 1.0}))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 100)
	for i := range values {
		values[i] = 20 + float64(i%4)
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "latency", values, base, time.Minute)))

	sample := models.Sample{Source: "svc-a", Metric: "latency", Value: 99999, Timestamp: base.Add(101 * time.Minute)}
	anomalies, err := d.Detect(context.Background(), []models.Sample{sample}, DetectContext{})
	require.NoError(t, err)
	require.Empty(t, anomalies)
}
