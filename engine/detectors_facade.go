package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/99souls/anomalyengine/engine/internal/detectors"
	"github.com/99souls/anomalyengine/engine/internal/perfmon"
	"github.com/99souls/anomalyengine/engine/models"
)

// unsupportedErr reports that a named detector doesn't implement the
// capability interface a facade method needs.
func unsupportedErr(name, capability string) error {
	return fmt.Errorf("%w: detector %q does not support %s", models.ErrConfiguration, name, capability)
}

// DetectorStats is GetStats's return shape: readiness, model metadata, and
// the latest performance-monitor record and trend, if any have been
// recorded yet.
type DetectorStats struct {
	Ready       bool             `json:"ready"`
	ModelInfo   models.ModelInfo `json:"modelInfo"`
	LastRecord  perfmon.Record   `json:"lastRecord"`
	Trend       perfmon.Trend    `json:"trend"`
	HasRecorded bool             `json:"hasRecorded"`
}

// GetStats reports a named detector's readiness, model metadata, and most
// recent performance-monitor sample.
func (e *Engine) GetStats(name string) (DetectorStats, error) {
	det, err := e.detectorByName(name)
	if err != nil {
		return DetectorStats{}, err
	}
	rec, trend, ok := e.perf.GetDetectorPerformance(name)
	return DetectorStats{
		Ready: det.IsReady(), ModelInfo: det.ModelInfo(),
		LastRecord: rec, Trend: trend, HasRecorded: ok,
	}, nil
}

// AnalyzeDataQuality scores samples on the same six axes the Data
// Collector applies to a source's buffered batch, without requiring the
// samples to belong to a registered source.
func (e *Engine) AnalyzeDataQuality(samples []models.Sample) models.QualityMetrics {
	return e.collector.AnalyzeQuality(samples)
}

// BatchScore runs every sample through the named detector independently
// (no shared ctx, no history append, no alerting) and returns one
// detection slice per input sample in submission order.
func (e *Engine) BatchScore(name string, samples []models.Sample) ([][]models.Anomaly, error) {
	det, err := e.detectorByName(name)
	if err != nil {
		return nil, err
	}
	out := make([][]models.Anomaly, len(samples))
	for i, s := range samples {
		anomalies, derr := det.Detect(context.Background(), []models.Sample{s}, detectors.DetectContext{})
		if derr != nil {
			return nil, fmt.Errorf("%w: detector %s: %v", models.ErrConfiguration, name, derr)
		}
		out[i] = anomalies
	}
	return out, nil
}

// Retrain feeds samples as historical data to the named detector's Train.
func (e *Engine) Retrain(name string, samples []models.Sample) error {
	det, err := e.detectorByName(name)
	if err != nil {
		return err
	}
	return det.Train(samples)
}

// UpdateWithFeedback forwards labeled true/false-positive feedback to a
// detector implementing FeedbackLearner (currently Z-Score).
func (e *Engine) UpdateWithFeedback(name, source string, samples []models.Sample, feedback []bool) error {
	det, err := e.detectorByName(name)
	if err != nil {
		return err
	}
	fl, ok := det.(detectors.FeedbackLearner)
	if !ok {
		return unsupportedErr(name, "feedback learning")
	}
	return fl.UpdateWithFeedback(source, samples, feedback)
}

// GetBaseline returns a detector's per-source rolling baseline.
func (e *Engine) GetBaseline(name, source string) (models.Baseline, error) {
	det, err := e.detectorByName(name)
	if err != nil {
		return models.Baseline{}, err
	}
	bp, ok := det.(detectors.BaselineProvider)
	if !ok {
		return models.Baseline{}, unsupportedErr(name, "baselines")
	}
	b, found := bp.Baseline(source)
	if !found {
		return models.Baseline{}, fmt.Errorf("%w: source %q", models.ErrUnknownSource, source)
	}
	return b, nil
}

// SetBaseline overrides a detector's per-source baseline directly.
func (e *Engine) SetBaseline(name, source string, b models.Baseline) error {
	det, err := e.detectorByName(name)
	if err != nil {
		return err
	}
	bs, ok := det.(detectors.BaselineSetter)
	if !ok {
		return unsupportedErr(name, "baseline overrides")
	}
	bs.SetBaseline(source, b)
	return nil
}

// GetThresholds returns a detector's per-source bound set.
func (e *Engine) GetThresholds(name, source string) (models.ThresholdSet, error) {
	det, err := e.detectorByName(name)
	if err != nil {
		return models.ThresholdSet{}, err
	}
	tp, ok := det.(detectors.ThresholdProvider)
	if !ok {
		return models.ThresholdSet{}, unsupportedErr(name, "thresholds")
	}
	t, found := tp.Thresholds(source)
	if !found {
		return models.ThresholdSet{}, fmt.Errorf("%w: source %q", models.ErrUnknownSource, source)
	}
	return t, nil
}

// SetThreshold overrides a detector's per-source bound set directly.
func (e *Engine) SetThreshold(name, source string, set models.ThresholdSet) error {
	det, err := e.detectorByName(name)
	if err != nil {
		return err
	}
	ts, ok := det.(detectors.ThresholdSetter)
	if !ok {
		return unsupportedErr(name, "threshold overrides")
	}
	ts.SetThreshold(source, set)
	return nil
}

// GetAdaptiveThresholds returns the learned statistics backing a
// detector's dynamic bound recomputation for source.
func (e *Engine) GetAdaptiveThresholds(name, source string) (models.AdaptiveThreshold, error) {
	det, err := e.detectorByName(name)
	if err != nil {
		return models.AdaptiveThreshold{}, err
	}
	ac, ok := det.(detectors.AdaptiveThresholdController)
	if !ok {
		return models.AdaptiveThreshold{}, unsupportedErr(name, "adaptive thresholds")
	}
	at, found := ac.GetAdaptiveThresholds(source)
	if !found {
		return models.AdaptiveThreshold{}, fmt.Errorf("%w: source %q", models.ErrUnknownSource, source)
	}
	return at, nil
}

// SetAdaptiveThresholdsEnabled toggles dynamic bound recomputation for source.
func (e *Engine) SetAdaptiveThresholdsEnabled(name, source string, enabled bool) (bool, error) {
	det, err := e.detectorByName(name)
	if err != nil {
		return false, err
	}
	ac, ok := det.(detectors.AdaptiveThresholdController)
	if !ok {
		return false, unsupportedErr(name, "adaptive thresholds")
	}
	return ac.SetAdaptiveThresholdsEnabled(source, enabled), nil
}

// SetEnsembleStrategy changes how the composite detector combines its
// children's verdicts.
func (e *Engine) SetEnsembleStrategy(name string, strategy string) error {
	det, err := e.detectorByName(name)
	if err != nil {
		return err
	}
	ec, ok := det.(detectors.EnsembleController)
	if !ok {
		return unsupportedErr(name, "ensemble control")
	}
	ec.SetEnsembleStrategy(detectors.EnsembleStrategy(strategy))
	return nil
}

// GetDetectorPerformance reports the composite's per-child weight/accuracy
// standing.
func (e *Engine) GetDetectorPerformance(name string) ([]detectors.ChildPerformance, error) {
	det, err := e.detectorByName(name)
	if err != nil {
		return nil, err
	}
	ec, ok := det.(detectors.EnsembleController)
	if !ok {
		return nil, unsupportedErr(name, "ensemble control")
	}
	return ec.GetDetectorPerformance(), nil
}

// SetChildDetectorEnabled toggles whether a composite's named child
// participates in ensemble scoring.
func (e *Engine) SetChildDetectorEnabled(name, childName string, enabled bool) (bool, error) {
	det, err := e.detectorByName(name)
	if err != nil {
		return false, err
	}
	ec, ok := det.(detectors.EnsembleController)
	if !ok {
		return false, unsupportedErr(name, "ensemble control")
	}
	return ec.SetChildDetectorEnabled(childName, enabled), nil
}

// AdjustDetectorWeight changes a composite's per-child ensemble weight.
func (e *Engine) AdjustDetectorWeight(name, childName string, weight float64) (bool, error) {
	det, err := e.detectorByName(name)
	if err != nil {
		return false, err
	}
	ec, ok := det.(detectors.EnsembleController)
	if !ok {
		return false, unsupportedErr(name, "ensemble control")
	}
	return ec.AdjustDetectorWeight(childName, weight), nil
}

// GetFeatureImportance explains a detector's score for source in terms of
// per-feature contributions (Isolation Forest, ML ensemble).
func (e *Engine) GetFeatureImportance(name, source string) (map[string]float64, error) {
	det, err := e.detectorByName(name)
	if err != nil {
		return nil, err
	}
	fp, ok := det.(detectors.FeatureImportanceProvider)
	if !ok {
		return nil, unsupportedErr(name, "feature importance")
	}
	fi, found := fp.FeatureImportance(source)
	if !found {
		return nil, fmt.Errorf("%w: source %q", models.ErrUnknownSource, source)
	}
	return fi, nil
}

// GetCompositeChildFeatureImportance explains one named child's
// contribution within a composite detector's ensemble for source.
func (e *Engine) GetCompositeChildFeatureImportance(name, childName, source string) (map[string]float64, error) {
	det, err := e.detectorByName(name)
	if err != nil {
		return nil, err
	}
	ec, ok := det.(detectors.EnsembleController)
	if !ok {
		return nil, unsupportedErr(name, "ensemble control")
	}
	fi, found := ec.GetFeatureImportance(childName, source)
	if !found {
		return nil, fmt.Errorf("%w: source %q", models.ErrUnknownSource, source)
	}
	return fi, nil
}

// Predict forecasts a detector's expected value for source at a future
// point in time (Seasonal). The spec's richer (source, steps, withCI)
// signature is simplified to the single-point forecast the underlying
// Predictor capability exposes.
func (e *Engine) Predict(name, source string, at time.Time) (float64, error) {
	det, err := e.detectorByName(name)
	if err != nil {
		return 0, err
	}
	p, ok := det.(detectors.Predictor)
	if !ok {
		return 0, unsupportedErr(name, "prediction")
	}
	val, found := p.Predict(source, at)
	if !found {
		return 0, fmt.Errorf("%w: source %q", models.ErrUnknownSource, source)
	}
	return val, nil
}
