package collector

import (
	"math"

	"github.com/99souls/anomalyengine/engine/internal/stats"
	"github.com/99souls/anomalyengine/engine/models"
)

var requiredFields = []string{"metric", "value", "timestamp"}

// scoreQuality computes the six-axis QualityMetrics for a batch of
// coerced samples, per the Data Collector's quality scoring rules.
func (c *Collector) scoreQuality(samples []models.Sample) models.QualityMetrics {
	n := len(samples)
	if n == 0 {
		return models.QualityMetrics{
			Completeness: 1, Accuracy: 1, Consistency: 1,
			Timeliness: 1, Validity: 1, Uniqueness: 1,
			Timestamp: c.clock.Now().UnixMilli(),
		}
	}

	completeness := scoreCompleteness(samples)
	validity := scoreValidity(samples)
	timeliness := c.scoreTimeliness(samples)
	consistency := scoreConsistency(samples)
	uniqueness := scoreUniqueness(samples)

	return models.QualityMetrics{
		Completeness: completeness,
		Accuracy:     validity, // documented approximation: accuracy ~= validity
		Consistency:  consistency,
		Timeliness:   timeliness,
		Validity:     validity,
		Uniqueness:   uniqueness,
		Timestamp:    c.clock.Now().UnixMilli(),
	}
}

func scoreCompleteness(samples []models.Sample) float64 {
	var total float64
	for _, s := range samples {
		present := 0
		if s.Metric != "" {
			present++
		}
		if s.Value != 0 || true { // value is always set (default 0), counts present
			present++
		}
		if !s.Timestamp.IsZero() {
			present++
		}
		total += float64(present) / float64(len(requiredFields))
	}
	return total / float64(len(samples))
}

func scoreValidity(samples []models.Sample) float64 {
	var validChecks, totalChecks int
	for _, s := range samples {
		totalChecks++
		if s.Validate() == nil {
			validChecks++
		}
	}
	if totalChecks == 0 {
		return 1
	}
	return float64(validChecks) / float64(totalChecks)
}

func (c *Collector) scoreTimeliness(samples []models.Sample) float64 {
	now := c.clock.Now()
	maxAge := c.cfg.MaxSampleAge
	var total float64
	for _, s := range samples {
		age := s.AgeAt(now)
		score := 1 - float64(age)/float64(maxAge)
		if score < 0 {
			score = 0
		}
		total += score
	}
	return total / float64(len(samples))
}

func scoreConsistency(samples []models.Sample) float64 {
	sameMetric := 1.0
	first := samples[0].Metric
	for _, s := range samples {
		if s.Metric != first {
			sameMetric = 0.5
			break
		}
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	mean := stats.Mean(values)
	sd := stats.StdDev(values)
	outliers := 0
	if sd > 0 {
		for _, v := range values {
			if math.Abs(v-mean) > 3*sd {
				outliers++
			}
		}
	}
	outlierRatio := float64(outliers) / float64(len(samples))
	return (sameMetric + (1 - outlierRatio)) / 2
}

func scoreUniqueness(samples []models.Sample) float64 {
	seen := make(map[int64]struct{}, len(samples))
	for _, s := range samples {
		seen[s.Timestamp.UnixNano()] = struct{}{}
	}
	return float64(len(seen)) / float64(len(samples))
}
