package engine

import (
	"fmt"

	"github.com/99souls/anomalyengine/engine/config"
	"github.com/99souls/anomalyengine/engine/internal/detectors"
	"github.com/99souls/anomalyengine/engine/models"
)

// detectorFactory builds a fresh, unconfigured detector for a registry
// entry. Kept as a function (rather than a prototype value) so every
// registered name gets its own instance.
type detectorFactory func() detectors.Detector

// detectorFactories lists every detector type name recognized by
// Config.Detector.DetectorType and SwitchDetector. "composite" is wired
// separately in newDetectorRegistry since its children are the other seven.
var detectorFactories = map[string]detectorFactory{
	"zscore":           func() detectors.Detector { return detectors.NewZScoreDetector() },
	"statistical":      func() detectors.Detector { return detectors.NewStatisticalDetector() },
	"threshold":        func() detectors.Detector { return detectors.NewThresholdDetector() },
	"isolation_forest": func() detectors.Detector { return detectors.NewIsolationForestDetector() },
	"seasonal":         func() detectors.Detector { return detectors.NewSeasonalDetector() },
	"knn":              func() detectors.Detector { return detectors.NewKNNDetector() },
	"ml_ensemble":      func() detectors.Detector { return detectors.NewMLEnsembleDetector() },
}

// newDetectorRegistry builds one instance of every recognized detector
// type, including a composite wired with the other seven as children at
// equal starting weight.
func newDetectorRegistry() map[string]detectors.Detector {
	reg := make(map[string]detectors.Detector, len(detectorFactories)+1)
	for name, factory := range detectorFactories {
		reg[name] = factory()
	}
	composite := detectors.NewCompositeDetector()
	for name, det := range reg {
		composite.AddChild(name, det, 1.0)
	}
	reg["composite"] = composite
	return reg
}

// detectorConfigMap translates a DetectorConfig into the map[string]any
// shape each detector's Configure expects, keyed per-algorithm (spec
// §4.2.2-§4.2.8: windowSize, threshold, k, seed, ...).
func detectorConfigMap(detectorType string, d config.DetectorConfig) map[string]interface{} {
	out := map[string]interface{}{
		"threshold":     d.Threshold,
		"businessRules": businessRulesFromConfig(d.BusinessRules),
	}
	switch detectorType {
	case "zscore", "statistical":
		out["windowSize"] = d.WindowSize
	case "threshold":
		out["k"] = d.Threshold
		out["dynamic"] = d.AdaptiveThresholds
		out["windowSize"] = d.WindowSize
	case "isolation_forest":
		out["seed"] = d.Seed
	case "seasonal":
		out["ewmaAlpha"] = 0.3
	case "knn":
		out["k"] = 5
		out["dynamicK"] = true
		out["maxTrainingSize"] = 5000
		out["weightedVoting"] = true
		out["metric"] = "euclidean"
		out["seed"] = d.Seed
	case "ml_ensemble":
		out["minValidationAcc"] = 0.6
	case "composite":
		out["strategy"] = "weighted_average"
	}
	return out
}

func businessRulesFromConfig(rules []config.BusinessRuleConfig) []detectors.BusinessRule {
	out := make([]detectors.BusinessRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, detectors.BusinessRule{Condition: r.Condition, Action: detectors.BusinessAction(r.Action)})
	}
	return out
}

// validDetectorType reports whether name is a recognized detector type,
// including the synthetic "composite" entry.
func validDetectorType(name string) bool {
	if name == "composite" {
		return true
	}
	_, ok := detectorFactories[name]
	return ok
}

func unknownDetectorErr(name string) error {
	return fmt.Errorf("%w: %q", models.ErrUnknownDetector, name)
}
