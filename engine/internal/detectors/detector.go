// Package detectors implements the streaming anomaly detector family:
// Z-Score, Statistical ensemble, Threshold, Isolation Forest, Seasonal,
// KNN, ML ensemble, and the Composite meta-detector, plus the shared
// business-rules post-processing every detector runs its candidates
// through before emitting them.
package detectors

import (
	"context"
	"time"

	"github.com/99souls/anomalyengine/engine/models"
)

// DetectContext carries the ambient information a Detect call needs beyond
// the samples themselves: maintenance windows to skip, and hints about
// recent deployments used by several detectors' confidence/threshold math.
type DetectContext struct {
	MaintenanceWindows []MaintenanceWindow
	RecentDeployment   bool
	LowLatencyMode     bool
}

// MaintenanceWindow marks a span during which samples must not produce
// anomalies.
type MaintenanceWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the window.
func (w MaintenanceWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// InMaintenanceWindow reports whether t falls in any of the context's
// maintenance windows.
func (c DetectContext) InMaintenanceWindow(t time.Time) bool {
	for _, w := range c.MaintenanceWindows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// BusinessRule is evaluated, in order, against every candidate anomaly a
// detector produces, before it is returned to the caller.
type BusinessRule struct {
	Condition string
	Action    BusinessAction
}

// BusinessAction names what a matching BusinessRule does to a candidate.
type BusinessAction string

const (
	ActionSuppress    BusinessAction = "suppress"
	ActionEscalate    BusinessAction = "escalate"
	ActionAutoResolve BusinessAction = "auto_resolve"
)

// Detector is the capability every detector variant implements.
type Detector interface {
	Configure(config map[string]interface{}) error
	Train(historical []models.Sample) error
	Detect(ctx context.Context, samples []models.Sample, dctx DetectContext) ([]models.Anomaly, error)
	IsReady() bool
	Reset()
	ModelInfo() models.ModelInfo
}

// BaselineProvider is implemented by detectors that expose a per-source
// rolling baseline (Z-Score).
type BaselineProvider interface {
	Baseline(source string) (models.Baseline, bool)
}

// ThresholdProvider is implemented by detectors with an explicit bound set
// (Threshold).
type ThresholdProvider interface {
	Thresholds(source string) (models.ThresholdSet, bool)
}

// FeatureImportanceProvider is implemented by detectors that can explain a
// score in terms of per-feature contributions (Isolation Forest, ML
// ensemble).
type FeatureImportanceProvider interface {
	FeatureImportance(source string) (map[string]float64, bool)
}

// Predictor is implemented by detectors that can forecast an expected
// value at a future time (Seasonal).
type Predictor interface {
	Predict(source string, at time.Time) (float64, bool)
}

// BaselineSetter is implemented by detectors whose per-source baseline can
// be overridden directly by an operator (Z-Score).
type BaselineSetter interface {
	SetBaseline(source string, b models.Baseline)
}

// ThresholdSetter is implemented by detectors whose per-source bound set
// can be overridden directly (Threshold).
type ThresholdSetter interface {
	SetThreshold(source string, set models.ThresholdSet)
}

// AdaptiveThresholdController is implemented by detectors that expose both
// the learned statistics backing dynamic bounds and a way to toggle dynamic
// recomputation per source (Threshold).
type AdaptiveThresholdController interface {
	GetAdaptiveThresholds(source string) (models.AdaptiveThreshold, bool)
	SetAdaptiveThresholdsEnabled(source string, enabled bool) bool
}

// EnsembleController is implemented by the Composite meta-detector: the
// set of management operations that only make sense for a detector owning
// named children.
type EnsembleController interface {
	SetEnsembleStrategy(strategy EnsembleStrategy)
	GetDetectorPerformance() []ChildPerformance
	SetChildDetectorEnabled(name string, enabled bool) bool
	AdjustDetectorWeight(name string, weight float64) bool
	GetFeatureImportance(childName, source string) (map[string]float64, bool)
}

// FeedbackLearner is implemented by detectors that can incorporate labeled
// feedback (false positive / true positive markers) into their online
// state without a full retrain.
type FeedbackLearner interface {
	UpdateWithFeedback(source string, samples []models.Sample, feedback []bool) error
}

// minDataPoints is the common Train guard: detectors refuse to train on
// fewer historical points than this.
const minDataPoints = 10
