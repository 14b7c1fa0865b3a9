package configx

import "time"

// ConfigSpec is a partial configuration overlay; nil sections are left
// unset by a layer and don't overwrite anything a lower layer supplied.
type ConfigSpec struct {
	Global   *GlobalSection   `json:"global,omitempty"`
	Detector *DetectorSection `json:"detector,omitempty"`
	Sources  *SourcesSection  `json:"sources,omitempty"`
	Alerting *AlertingSection `json:"alerting,omitempty"`
}

// GlobalSection captures cross-cutting engine behavior.
type GlobalSection struct {
	MaxConcurrency int    `json:"max_concurrency,omitempty"`
	LogLevel       string `json:"log_level,omitempty"`
	MetricsEnabled bool   `json:"metrics_enabled,omitempty"`
}

// DetectorSection overlays detector-wide tuning knobs.
type DetectorSection struct {
	DetectorType       string        `json:"detector_type,omitempty"`
	Sensitivity        float64       `json:"sensitivity,omitempty"`
	Threshold          float64       `json:"threshold,omitempty"`
	WindowSize         int           `json:"window_size,omitempty"`
	AdaptiveThresholds bool          `json:"adaptive_thresholds,omitempty"`
	LearningPeriod     time.Duration `json:"learning_period,omitempty"`
}

// SourceOverride tunes detection for one named signal source, overriding
// the detector-wide defaults for that source only.
type SourceOverride struct {
	Sensitivity float64  `json:"sensitivity,omitempty"`
	Threshold   float64  `json:"threshold,omitempty"`
	Disabled    bool     `json:"disabled,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// SourcesSection maps source ID to its override.
type SourcesSection struct {
	Overrides map[string]*SourceOverride `json:"overrides,omitempty"`
}

// AlertingSection overlays alerting-wide tuning.
type AlertingSection struct {
	Channels      []string `json:"channels,omitempty"`
	MaxAlertsMin  int      `json:"max_alerts_min,omitempty"`
	MaxAlertsHour int      `json:"max_alerts_hour,omitempty"`
}

// VersionedConfig records one committed configuration: its version, spec,
// apply time, actor, and parent version.
type VersionedConfig struct {
	Version   int64       `json:"version"`
	Spec      *ConfigSpec `json:"spec"`
	AppliedAt time.Time   `json:"applied_at"`
	Actor     string      `json:"actor"`
	Parent    int64       `json:"parent"`
}

// ApplyOptions control how Applier.Apply processes a candidate spec.
type ApplyOptions struct {
	Actor  string
	DryRun bool
	Force  bool
}

// ApplyResult is returned from a successful (or dry-run) Apply.
type ApplyResult struct {
	Version  int64
	SimImpact *SimulationImpact
}
