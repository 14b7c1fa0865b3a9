package detectors

import (
	"context"
	"testing"
	"time"

	"github.com/99souls/anomalyengine/engine/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// stubDetector flags every sample with a fixed score when shouldFlag is set,
// for exercising composite combination logic without depending on a real
// detector's math.
type stubDetector struct {
	score      float64
	typ        models.AnomalyType
	shouldFlag bool
	ready      bool
}

func (s *stubDetector) Configure(map[string]interface{}) error { return nil }
func (s *stubDetector) Train([]models.Sample) error            { s.ready = true; return nil }
func (s *stubDetector) IsReady() bool                          { return s.ready }
func (s *stubDetector) Reset()                                 { s.ready = false }
func (s *stubDetector) ModelInfo() models.ModelInfo             { return models.ModelInfo{Algorithm: "stub"} }
func (s *stubDetector) Detect(ctx context.Context, samples []models.Sample, dctx DetectContext) ([]models.Anomaly, error) {
	if !s.ready || !s.shouldFlag {
		return nil, nil
	}
	var out []models.Anomaly
	for _, sm := range samples {
		a, err := models.NewAnomaly(uuid.NewString(), s.typ, s.score, 0.8, sm, sm.Value, 0,
			models.AnomalyContext{Metric: sm.Metric, Algorithm: "stub"}, "stub flagged")
		if err == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func newStub(score float64, typ models.AnomalyType) *stubDetector {
	return &stubDetector{score: score, typ: typ, shouldFlag: true}
}

func TestCompositeDetectorWeightedAverageCombination(t *testing.T) {
	c := NewCompositeDetector()
	require.NoError(t, c.Configure(map[string]interface{}{"strategy": "weighted_average", "threshold": 0.5}))
	c.AddChild("a", newStub(0.9, models.AnomalySpike), 1.0)
	c.AddChild("b", newStub(0.3, models.AnomalySpike), 1.0)

	require.NoError(t, c.Train([]models.Sample{{Source: "svc-a", Metric: "m", Value: 1, Timestamp: time.Now()}}))
	require.True(t, c.IsReady())

	sample := models.Sample{Source: "svc-a", Metric: "m", Value: 42, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	anomalies, err := c.Detect(context.Background(), []models.Sample{sample}, DetectContext{})
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	require.InDelta(t, 0.6, anomalies[0].Score, 0.01)
}

func TestCompositeDetectorMajorityVoteRequiresQuorum(t *testing.T) {
	c := NewCompositeDetector()
	require.NoError(t, c.Configure(map[string]interface{}{"strategy": "majority_vote", "threshold": 0.1}))
	c.AddChild("a", newStub(0.9, models.AnomalySpike), 1.0)
	c.AddChild("b", &stubDetector{score: 0, shouldFlag: false}, 1.0) // trains but never flags
	c.AddChild("c", &stubDetector{score: 0, shouldFlag: false}, 1.0)

	require.NoError(t, c.Train([]models.Sample{{Source: "svc-a", Metric: "m", Value: 1, Timestamp: time.Now()}}))

	sample := models.Sample{Source: "svc-a", Metric: "m", Value: 42, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	anomalies, err := c.Detect(context.Background(), []models.Sample{sample}, DetectContext{})
	require.NoError(t, err)
	require.Empty(t, anomalies) // only 1 of 3 children flagged, below quorum
}

func TestCompositeDetectorHierarchicalPrefersHighestWeight(t *testing.T) {
	c := NewCompositeDetector()
	require.NoError(t, c.Configure(map[string]interface{}{"strategy": "hierarchical", "threshold": 0.2}))
	c.AddChild("high-weight", newStub(0.95, models.AnomalyOutlier), 10.0)
	c.AddChild("low-weight", newStub(0.3, models.AnomalySpike), 1.0)

	require.NoError(t, c.Train([]models.Sample{{Source: "svc-a", Metric: "m", Value: 1, Timestamp: time.Now()}}))

	sample := models.Sample{Source: "svc-a", Metric: "m", Value: 42, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	anomalies, err := c.Detect(context.Background(), []models.Sample{sample}, DetectContext{})
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	require.InDelta(t, 0.95, anomalies[0].Score, 0.01)
}

func TestCompositeDetectorNoChildrenErrorsOnTrain(t *testing.T) {
	c := NewCompositeDetector()
	require.NoError(t, c.Configure(nil))
	err := c.Train([]models.Sample{{Source: "svc-a", Metric: "m", Value: 1, Timestamp: time.Now()}})
	require.ErrorIs(t, err, models.ErrConfiguration)
}

func TestCompositeDetectorContextAnalyzerCanExcludeChild(t *testing.T) {
	c := NewCompositeDetector()
	require.NoError(t, c.Configure(map[string]interface{}{"strategy": "weighted_average", "threshold": 0.1}))
	c.AddChild("a", newStub(0.9, models.AnomalySpike), 1.0)
	c.AddChild("b", newStub(0.9, models.AnomalySpike), 1.0)
	c.SetContextAnalyzer(excludeAnalyzer{exclude: "b"})

	require.NoError(t, c.Train([]models.Sample{{Source: "svc-a", Metric: "m", Value: 1, Timestamp: time.Now()}}))

	sample := models.Sample{Source: "svc-a", Metric: "m", Value: 42, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	anomalies, err := c.Detect(context.Background(), []models.Sample{sample}, DetectContext{})
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
}

type excludeAnalyzer struct{ exclude string }

func (e excludeAnalyzer) ActiveDetectors(all []string, dctx DetectContext) []string {
	var out []string
	for _, n := range all {
		if n != e.exclude {
			out = append(out, n)
		}
	}
	return out
}
