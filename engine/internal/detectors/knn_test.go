package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/99souls/anomalyengine/engine/models"
	"github.com/stretchr/testify/require"
)

func TestKNNDetectorFlagsDistantSample(t *testing.T) {
	d := NewKNNDetector()
	require.NoError(t, d.Configure(map[string]interface{}{"k": 5, "threshold": 2.0}))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 50)
	for i := range values {
		values[i] = 10 + float64(i%3)
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "mem", values, base, time.Minute)))
	require.True(t, d.IsReady())

	far := models.Sample{Source: "svc-a", Metric: "mem", Value: 10000, Timestamp: base.Add(51 * time.Minute)}
	anomalies, err := d.Detect(context.Background(), []models.Sample{far}, DetectContext{})
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
}

func TestKNNDetectorDynamicKClampsToBounds(t *testing.T) {
	d := NewKNNDetector()
	require.NoError(t, d.Configure(map[string]interface{}{"k": 50, "dynamicK": true}))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 16)
	for i := range values {
		values[i] = 5 + float64(i%2)
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "mem", values, base, time.Minute)))

	sample := models.Sample{Source: "svc-a", Metric: "mem", Value: 5, Timestamp: base.Add(17 * time.Minute)}
	_, err := d.Detect(context.Background(), []models.Sample{sample}, DetectContext{})
	require.NoError(t, err)
}

func TestKNNDetectorOnlineLearningCapsTrainingBuffer(t *testing.T) {
	d := NewKNNDetector()
	require.NoError(t, d.Configure(map[string]interface{}{"maxTrainingSize": 20}))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 30)
	for i := range values {
		values[i] = 1
	}
	require.NoError(t, d.Train(makeSamples("svc-a", "mem", values, base, time.Minute)))
	require.LessOrEqual(t, len(d.training["svc-a"]), 20)

	extra := makeSamples("svc-a", "mem", []float64{2, 2, 2}, base.Add(31*time.Minute), time.Minute)
	_, err := d.Detect(context.Background(), extra, DetectContext{})
	require.NoError(t, err)
	require.LessOrEqual(t, len(d.training["svc-a"]), 20)
}

func TestKNNDetectorCosineMetricHandlesZero(t *testing.T) {
	d := NewKNNDetector()
	d.cfg = KNNConfig{Metric: DistanceCosine}
	require.Equal(t, 1.0, d.distance(0, 5))
}
