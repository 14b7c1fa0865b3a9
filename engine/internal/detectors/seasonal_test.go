package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/99souls/anomalyengine/engine/models"
	"github.com/stretchr/testify/require"
)

func hourlySeasonalSamples(source, metric string, days int, base time.Time) []models.Sample {
	var out []models.Sample
	for d := 0; d < days; d++ {
		for h := 0; h < 24; h++ {
			v := 50.0
			if h >= 9 && h <= 17 {
				v = 150.0
			}
			ts := base.Add(time.Duration(d)*24*time.Hour + time.Duration(h)*time.Hour)
			out = append(out, models.Sample{Source: source, Metric: metric, Value: v, Timestamp: ts})
		}
	}
	return out
}

func TestSeasonalDetectorLearnsHourlyPattern(t *testing.T) {
	d := NewSeasonalDetector()
	require.NoError(t, d.Configure(map[string]interface{}{"threshold": 2.0}))

	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // a Monday
	historical := hourlySeasonalSamples("svc-a", "requests", 14, base)
	require.NoError(t, d.Train(historical))
	require.True(t, d.IsReady())

	var predictor Predictor = d
	predicted, ok := predictor.Predict("svc-a", base.Add(14*24*time.Hour+12*time.Hour))
	require.True(t, ok)
	require.Greater(t, predicted, 100.0)
}

func TestSeasonalDetectorFlagsOffPatternSpike(t *testing.T) {
	d := NewSeasonalDetector()
	require.NoError(t, d.Configure(nil))
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	historical := hourlySeasonalSamples("svc-a", "requests", 14, base)
	require.NoError(t, d.Train(historical))

	nightTime := base.Add(14*24*time.Hour + 2*time.Hour) // 2am, normally ~50
	spike := models.Sample{Source: "svc-a", Metric: "requests", Value: 100000, Timestamp: nightTime}
	anomalies, err := d.Detect(context.Background(), []models.Sample{spike}, DetectContext{})
	require.NoError(t, err)
	require.NotEmpty(t, anomalies)
	require.Equal(t, models.AnomalySeasonalDeviation, anomalies[0].Type)
}

func TestDominantPeriodRequiresMinimumVarianceExplained(t *testing.T) {
	flat := make([]float64, 100)
	for i := range flat {
		flat[i] = 42
	}
	buckets := make([][]float64, 1)
	buckets[0] = flat
	_, strength := dominantPeriod(flat, buckets, buckets, buckets, buckets)
	require.Equal(t, 0.0, strength)
}
