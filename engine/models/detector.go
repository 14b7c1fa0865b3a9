package models

import "time"

// ModelInfo describes the trained state of a detector for reporting and
// for persisted-state snapshots.
type ModelInfo struct {
	Algorithm        string
	Version          string
	TrainedAt        *time.Time
	TrainingDataSize int
	Parameters       map[string]interface{}
}

// DetectorState is the common envelope every detector exposes alongside its
// own subtype-specific state (rolling windows, baselines, threshold sets,
// seasonal patterns, forest nodes, ML models, KNN buffers — owned by each
// detector implementation, not represented generically here).
type DetectorState struct {
	Config    map[string]interface{}
	Ready     bool
	ModelInfo ModelInfo
}

// Baseline is the rolling mean/stddev estimate a detector maintains per
// source for z-score style comparisons.
type Baseline struct {
	Mean        float64
	StdDev      float64
	SampleSize  int
	LastUpdated time.Time
}

// RateThresholds bounds the allowed magnitude of change between consecutive
// samples.
type RateThresholds struct {
	MaxIncrease float64
	MaxDecrease float64
}

// ThresholdSet is a detector's static or dynamically-adjusted bounds.
type ThresholdSet struct {
	Upper         float64
	Lower         float64
	UpperWarning  float64
	LowerWarning  float64
	Rate          RateThresholds
	Dynamic       bool
	LastUpdated   time.Time
}

// AdaptiveThreshold is the learned statistics backing a dynamic ThresholdSet.
type AdaptiveThreshold struct {
	Mean        float64
	StdDev      float64
	Volatility  float64
	Confidence  float64
	LastUpdated time.Time
}

// SeasonalPeriod names the dominant cycle a seasonal detector has fit.
type SeasonalPeriod string

const (
	PeriodHourly  SeasonalPeriod = "hourly"
	PeriodDaily   SeasonalPeriod = "daily"
	PeriodWeekly  SeasonalPeriod = "weekly"
	PeriodMonthly SeasonalPeriod = "monthly"
)

// SeasonalPattern is the fitted decomposition a seasonal detector maintains
// per source.
type SeasonalPattern struct {
	Baseline             float64
	DominantPeriod       SeasonalPeriod
	Strength             float64
	BaselineTimestamp    time.Time
	BaselineVolatility   float64
	Trend                float64
	Accuracy             float64
	Hourly               [24]float64
	Daily                [7]float64
	Weekly               [4]float64
	Monthly              [12]float64
	VolatilityByHour     [24]float64
	VolatilityByDayOfWeek [7]float64
}
