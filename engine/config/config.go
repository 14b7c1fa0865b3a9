// Package config defines the engine's recognized configuration schema (spec
// §6) as a typed EngineConfig, mirroring the teacher's engine/config facade
// that normalizes nested component configs behind a single struct.
package config

import (
	"fmt"
	"time"

	"github.com/99souls/anomalyengine/engine/models"
)

// DetectorConfig configures the active detector and its training behavior.
type DetectorConfig struct {
	Enabled            bool          `yaml:"enabled" json:"enabled"`
	DetectorType       string        `yaml:"detectorType" json:"detectorType"`
	Sensitivity        float64       `yaml:"sensitivity" json:"sensitivity"`
	Threshold          float64       `yaml:"threshold" json:"threshold"`
	WindowSize         int           `yaml:"windowSize" json:"windowSize"`
	MinDataPoints      int           `yaml:"minDataPoints" json:"minDataPoints"`
	LearningPeriod     time.Duration `yaml:"learningPeriod" json:"learningPeriod"`
	AdaptiveThresholds bool          `yaml:"adaptiveThresholds" json:"adaptiveThresholds"`
	Seed               int64         `yaml:"seed" json:"seed"`
	BusinessRules      []BusinessRuleConfig `yaml:"businessRules" json:"businessRules"`
}

// BusinessRuleConfig is the config-schema form of a detector business rule.
type BusinessRuleConfig struct {
	Condition   string `yaml:"condition" json:"condition"`
	Action      string `yaml:"action" json:"action"`
	Description string `yaml:"description" json:"description"`
}

// AlertingConfig configures the alerting subsystem (spec §4.4).
type AlertingConfig struct {
	Enabled          bool                      `yaml:"enabled" json:"enabled"`
	Channels         []string                  `yaml:"channels" json:"channels"`
	EscalationPolicy models.EscalationPolicy   `yaml:"escalationPolicy" json:"escalationPolicy"`
	Rules            []models.AlertRule        `yaml:"rules" json:"rules"`
	RateLimiting     RateLimitingConfig        `yaml:"rateLimiting" json:"rateLimiting"`
	SuppressionRules []models.SuppressionRule  `yaml:"suppressionRules" json:"suppressionRules"`
}

// RateLimitingConfig sets the caps of the catch-all "default" rule that
// applyAlertingDefaults adds when no AlertRules are configured. Configured
// rules use only their own RateLimitPerMin/RateLimitPerHour (0 means
// unlimited); no cap is applied across rules.
type RateLimitingConfig struct {
	MaxAlertsPerMinute int `yaml:"maxAlertsPerMinute" json:"maxAlertsPerMinute"`
	MaxAlertsPerHour   int `yaml:"maxAlertsPerHour" json:"maxAlertsPerHour"`
}

// RetentionPolicy bounds how long and how much persisted state is kept.
type RetentionPolicy struct {
	MaxAge            time.Duration `yaml:"maxAge" json:"maxAge"`
	MaxSize           int           `yaml:"maxSize" json:"maxSize"`
	CompressionAfter  time.Duration `yaml:"compressionAfter" json:"compressionAfter"`
}

// QualityChecksConfig toggles which data-quality axes the collector scores.
type QualityChecksConfig struct {
	Completeness bool `yaml:"completeness" json:"completeness"`
	Consistency  bool `yaml:"consistency" json:"consistency"`
	Timeliness   bool `yaml:"timeliness" json:"timeliness"`
	Validity     bool `yaml:"validity" json:"validity"`
	Uniqueness   bool `yaml:"uniqueness" json:"uniqueness"`
	Accuracy     bool `yaml:"accuracy" json:"accuracy"`
}

// DataCollectionConfig configures the Data Collector (spec §4.1).
type DataCollectionConfig struct {
	BufferSize      int                  `yaml:"bufferSize" json:"bufferSize"`
	FlushInterval   time.Duration        `yaml:"flushInterval" json:"flushInterval"`
	RetentionPolicy RetentionPolicy      `yaml:"retentionPolicy" json:"retentionPolicy"`
	QualityChecks   QualityChecksConfig  `yaml:"qualityChecks" json:"qualityChecks"`
}

// TelemetryConfig selects the metrics backend the engine's internal
// subsystems (event bus, health gauge, perfmon) publish through.
type TelemetryConfig struct {
	MetricsEnabled bool   `yaml:"metricsEnabled" json:"metricsEnabled"`
	MetricsBackend string `yaml:"metricsBackend" json:"metricsBackend"`
	ServiceName    string `yaml:"serviceName" json:"serviceName"`
	TracingEnabled bool   `yaml:"tracingEnabled" json:"tracingEnabled"`
}

// EngineConfig is the full recognized configuration surface (spec §6's
// schema table), loaded and hot-reloaded by a Provider.
type EngineConfig struct {
	Enabled        bool                  `yaml:"enabled" json:"enabled"`
	Detector       DetectorConfig        `yaml:"detector" json:"detector"`
	Alerting       AlertingConfig        `yaml:"alerting" json:"alerting"`
	DataCollection DataCollectionConfig  `yaml:"dataCollection" json:"dataCollection"`
	Telemetry      TelemetryConfig       `yaml:"telemetry" json:"telemetry"`
}

// Defaults returns an EngineConfig with sensible defaults for every
// recognized key, following the teacher's ApplyDefaults convention of one
// function per nested section.
func Defaults() EngineConfig {
	cfg := EngineConfig{}
	cfg.applyTopLevelDefaults()
	cfg.applyDetectorDefaults()
	cfg.applyAlertingDefaults()
	cfg.applyDataCollectionDefaults()
	cfg.applyTelemetryDefaults()
	return cfg
}

func (c *EngineConfig) applyTopLevelDefaults() {
	c.Enabled = true
}

func (c *EngineConfig) applyDetectorDefaults() {
	d := &c.Detector
	if d.DetectorType == "" {
		d.DetectorType = "zscore"
	}
	if d.Sensitivity == 0 {
		d.Sensitivity = 0.5
	}
	if d.Threshold == 0 {
		d.Threshold = 3.0
	}
	if d.WindowSize == 0 {
		d.WindowSize = 100
	}
	if d.MinDataPoints == 0 {
		d.MinDataPoints = 30
	}
	if d.LearningPeriod == 0 {
		d.LearningPeriod = 24 * time.Hour
	}
	if !d.Enabled {
		d.Enabled = true
	}
}

func (c *EngineConfig) applyAlertingDefaults() {
	a := &c.Alerting
	if !a.Enabled {
		a.Enabled = true
	}
	if len(a.Channels) == 0 {
		a.Channels = []string{"log"}
	}
	if a.RateLimiting.MaxAlertsPerMinute == 0 {
		a.RateLimiting.MaxAlertsPerMinute = 10
	}
	if a.RateLimiting.MaxAlertsPerHour == 0 {
		a.RateLimiting.MaxAlertsPerHour = 100
	}
	if len(a.Rules) == 0 {
		a.Rules = []models.AlertRule{{
			ID:                "default",
			Enabled:           true,
			SeverityThreshold: models.SeverityLow,
			RateLimitPerMin:   a.RateLimiting.MaxAlertsPerMinute,
			RateLimitPerHour:  a.RateLimiting.MaxAlertsPerHour,
			Escalation: models.EscalationPolicy{
				Levels: []models.EscalationLevel{
					{Level: 0, Channels: []models.NotificationChannel{"log"}, Recipients: []string{"default"}, StopEscalation: true},
				},
			},
		}}
	}
}

func (c *EngineConfig) applyDataCollectionDefaults() {
	d := &c.DataCollection
	if d.BufferSize == 0 {
		d.BufferSize = 1000
	}
	if d.FlushInterval == 0 {
		d.FlushInterval = 10 * time.Second
	}
	if d.RetentionPolicy.MaxAge == 0 {
		d.RetentionPolicy.MaxAge = 7 * 24 * time.Hour
	}
	if d.RetentionPolicy.MaxSize == 0 {
		d.RetentionPolicy.MaxSize = 100_000
	}
	if d.RetentionPolicy.CompressionAfter == 0 {
		d.RetentionPolicy.CompressionAfter = 24 * time.Hour
	}
}

func (c *EngineConfig) applyTelemetryDefaults() {
	t := &c.Telemetry
	if !t.MetricsEnabled {
		t.MetricsEnabled = true
	}
	if t.MetricsBackend == "" {
		t.MetricsBackend = "prometheus"
	}
	if t.ServiceName == "" {
		t.ServiceName = "anomalyengine"
	}
}

// Validate checks the invariants an EngineConfig must hold before the
// engine is configured with it, mirroring the teacher's per-section
// validators composed into one Validate method.
func (c EngineConfig) Validate() error {
	if err := c.validateDetector(); err != nil {
		return fmt.Errorf("%w: detector: %v", models.ErrConfiguration, err)
	}
	if err := c.validateAlerting(); err != nil {
		return fmt.Errorf("%w: alerting: %v", models.ErrConfiguration, err)
	}
	if err := c.validateDataCollection(); err != nil {
		return fmt.Errorf("%w: dataCollection: %v", models.ErrConfiguration, err)
	}
	if err := c.validateTelemetry(); err != nil {
		return fmt.Errorf("%w: telemetry: %v", models.ErrConfiguration, err)
	}
	return nil
}

func (c EngineConfig) validateTelemetry() error {
	switch c.Telemetry.MetricsBackend {
	case "", "prometheus", "prom", "otel", "opentelemetry", "noop":
		return nil
	default:
		return fmt.Errorf("unrecognized metricsBackend %q", c.Telemetry.MetricsBackend)
	}
}

func (c EngineConfig) validateDetector() error {
	d := c.Detector
	if d.DetectorType == "" {
		return fmt.Errorf("detectorType must not be empty")
	}
	if d.Sensitivity < 0 || d.Sensitivity > 1 {
		return fmt.Errorf("sensitivity must be in [0,1], got %v", d.Sensitivity)
	}
	if d.WindowSize < 0 {
		return fmt.Errorf("windowSize cannot be negative")
	}
	if d.MinDataPoints < 0 {
		return fmt.Errorf("minDataPoints cannot be negative")
	}
	return nil
}

func (c EngineConfig) validateAlerting() error {
	a := c.Alerting
	if a.RateLimiting.MaxAlertsPerMinute < 0 || a.RateLimiting.MaxAlertsPerHour < 0 {
		return fmt.Errorf("rate limit caps cannot be negative")
	}
	for _, r := range a.Rules {
		if r.ID == "" {
			return fmt.Errorf("alert rule missing id")
		}
	}
	return nil
}

func (c EngineConfig) validateDataCollection() error {
	d := c.DataCollection
	if d.BufferSize <= 0 {
		return fmt.Errorf("bufferSize must be positive")
	}
	if d.FlushInterval < 0 {
		return fmt.Errorf("flushInterval cannot be negative")
	}
	return nil
}
