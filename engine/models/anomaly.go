package models

import (
	"fmt"
	"time"
)

// AnomalyType classifies the shape of a detected deviation.
type AnomalyType string

const (
	AnomalySpike             AnomalyType = "spike"
	AnomalyDrop              AnomalyType = "drop"
	AnomalyTrendChange       AnomalyType = "trend_change"
	AnomalySeasonalDeviation AnomalyType = "seasonal_deviation"
	AnomalyOutlier           AnomalyType = "outlier"
	AnomalyPatternBreak      AnomalyType = "pattern_break"
	AnomalyThresholdBreach   AnomalyType = "threshold_breach"
	AnomalyFrequencyAnomaly  AnomalyType = "frequency_anomaly"
	AnomalyCorrelationBreak  AnomalyType = "correlation_break"
)

// Valid reports whether t is one of the recognized anomaly types.
func (t AnomalyType) Valid() bool {
	switch t {
	case AnomalySpike, AnomalyDrop, AnomalyTrendChange, AnomalySeasonalDeviation,
		AnomalyOutlier, AnomalyPatternBreak, AnomalyThresholdBreach,
		AnomalyFrequencyAnomaly, AnomalyCorrelationBreak:
		return true
	}
	return false
}

// Severity ranks an anomaly's urgency. Order for threshold comparisons:
// low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow: 0, SeverityMedium: 1, SeverityHigh: 2, SeverityCritical: 3,
}

// Valid reports whether s is one of the recognized severities.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Less reports whether s ranks below other in the fixed severity order.
func (s Severity) Less(other Severity) bool {
	return severityRank[s] < severityRank[other]
}

// GreaterOrEqual reports whether s meets or exceeds a threshold severity.
func (s Severity) GreaterOrEqual(threshold Severity) bool {
	return severityRank[s] >= severityRank[threshold]
}

// SeverityFromScore derives severity deterministically from score*confidence,
// per the fixed thresholds: >=0.9 critical, >=0.7 high, >=0.4 medium, else low.
func SeverityFromScore(score, confidence float64) Severity {
	combined := score * confidence
	switch {
	case combined >= 0.9:
		return SeverityCritical
	case combined >= 0.7:
		return SeverityHigh
	case combined >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AnomalyContext captures the detector-side context that produced an anomaly.
type AnomalyContext struct {
	Metric              string
	Labels              map[string]string
	WindowSize          int
	Algorithm           string
	Threshold           float64
	HistoricalMean      *float64
	HistoricalStdDev    *float64
	SeasonalPattern     string
	TrendDirection      string
	CorrelatedMetrics   []string
	BusinessContext     string
}

// Anomaly is an immutable detection result, except for the Resolved* and
// FalsePositive fields which are set by user action after emission.
type Anomaly struct {
	ID             string
	Type           AnomalyType
	Severity       Severity
	Score          float64
	Confidence     float64
	Timestamp      time.Time
	Sample         Sample
	Description    string
	ExpectedValue  *float64
	ActualValue    float64
	Deviation      float64
	Context        AnomalyContext
	Resolved       bool
	ResolvedAt     *time.Time
	FalsePositive  *bool
}

// NewAnomaly builds an Anomaly with Severity derived from score and
// confidence, clamping both into [0,1] first.
func NewAnomaly(id string, typ AnomalyType, score, confidence float64, sample Sample, actual, deviation float64, ctx AnomalyContext, description string) (Anomaly, error) {
	if !typ.Valid() {
		return Anomaly{}, fmt.Errorf("%w: unknown anomaly type %q", ErrInvalidSample, typ)
	}
	score = clamp01(score)
	confidence = clamp01(confidence)
	return Anomaly{
		ID:          id,
		Type:        typ,
		Severity:    SeverityFromScore(score, confidence),
		Score:       score,
		Confidence:  confidence,
		Timestamp:   sample.Timestamp,
		Sample:      sample,
		Description: description,
		ActualValue: actual,
		Deviation:   deviation,
		Context:     ctx,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
