package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/99souls/anomalyengine/engine/models"
	"github.com/stretchr/testify/require"
)

func makeSamples(source, metric string, values []float64, start time.Time, step time.Duration) []models.Sample {
	out := make([]models.Sample, len(values))
	for i, v := range values {
		out[i] = models.Sample{Source: source, Metric: metric, Value: v, Timestamp: start.Add(time.Duration(i) * step)}
	}
	return out
}

func TestZScoreDetectorFlagsOutlier(t *testing.T) {
	d := NewZScoreDetector()
	require.NoError(t, d.Configure(map[string]interface{}{"threshold": 3.0}))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 0, 50)
	for i := 0; i < 50; i++ {
		values = append(values, 99+2*float64(i%2)) // mean 100, stddev 1
	}
	historical := makeSamples("svc-a", "cpu", values, base, time.Minute)
	require.NoError(t, d.Train(historical))
	require.True(t, d.IsReady())

	spike := models.Sample{Source: "svc-a", Metric: "cpu", Value: 500, Timestamp: base.Add(51 * time.Minute)}
	anomalies, err := d.Detect(context.Background(), []models.Sample{spike}, DetectContext{})
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	require.Equal(t, models.AnomalySpike, anomalies[0].Type)
}

func TestZScoreDetectorRequiresMinimumTrainingData(t *testing.T) {
	d := NewZScoreDetector()
	require.NoError(t, d.Configure(nil))
	err := d.Train(makeSamples("svc-a", "cpu", []float64{1, 2, 3}, time.Now(), time.Second))
	require.ErrorIs(t, err, models.ErrInsufficientData)
	require.False(t, d.IsReady())
}

func TestZScoreDetectorSkipsMaintenanceWindow(t *testing.T) {
	d := NewZScoreDetector()
	require.NoError(t, d.Configure(nil))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 0, 20)
	for i := 0; i < 20; i++ {
		values = append(values, 10)
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "cpu", values, base, time.Minute)))

	spike := models.Sample{Source: "svc-a", Metric: "cpu", Value: 1000, Timestamp: base.Add(21 * time.Minute)}
	dctx := DetectContext{MaintenanceWindows: []MaintenanceWindow{{Start: base, End: base.Add(time.Hour)}}}
	anomalies, err := d.Detect(context.Background(), []models.Sample{spike}, dctx)
	require.NoError(t, err)
	require.Empty(t, anomalies)
}

func TestZScoreDetectorImplementsBaselineProvider(t *testing.T) {
	d := NewZScoreDetector()
	require.NoError(t, d.Configure(nil))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 0, 20)
	for i := 0; i < 20; i++ {
		values = append(values, 10)
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "cpu", values, base, time.Minute)))

	var provider BaselineProvider = d
	baseline, ok := provider.Baseline("svc-a")
	require.True(t, ok)
	require.InDelta(t, 10, baseline.Mean, 0.001)
}

func TestZScoreDetectorReset(t *testing.T) {
	d := NewZScoreDetector()
	require.NoError(t, d.Configure(nil))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 0, 20)
	for i := 0; i < 20; i++ {
		values = append(values, 10)
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "cpu", values, base, time.Minute)))
	d.Reset()
	require.False(t, d.IsReady())
}
