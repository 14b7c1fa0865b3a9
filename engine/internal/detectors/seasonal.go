package detectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/99souls/anomalyengine/engine/internal/stats"
	"github.com/99souls/anomalyengine/engine/models"
	"github.com/google/uuid"
)

// SeasonalConfig controls the seasonal decomposition detector.
type SeasonalConfig struct {
	Threshold     float64
	EWMAAlpha     float64
	BusinessRules []BusinessRule
}

func (c SeasonalConfig) withDefaults() SeasonalConfig {
	if c.Threshold <= 0 {
		c.Threshold = 2.5
	}
	if c.EWMAAlpha <= 0 {
		c.EWMAAlpha = 0.1
	}
	return c
}

// SeasonalDetector fits per-source hourly/daily/weekly/monthly components
// plus a linear trend, and flags samples deviating from the reconstructed
// expected value by more than Threshold time-of-day-normalized deviations.
type SeasonalDetector struct {
	mu       sync.Mutex
	cfg      SeasonalConfig
	enabled  bool
	trained  bool
	patterns map[string]*models.SeasonalPattern
}

func NewSeasonalDetector() *SeasonalDetector {
	return &SeasonalDetector{enabled: true, patterns: make(map[string]*models.SeasonalPattern)}
}

func (d *SeasonalDetector) Configure(config map[string]interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := SeasonalConfig{}
	if v, ok := config["threshold"].(float64); ok {
		cfg.Threshold = v
	}
	if v, ok := config["ewmaAlpha"].(float64); ok {
		cfg.EWMAAlpha = v
	}
	if v, ok := config["businessRules"].([]BusinessRule); ok {
		cfg.BusinessRules = v
	}
	d.cfg = cfg.withDefaults()
	return nil
}

func (d *SeasonalDetector) Train(historical []models.Sample) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(historical) < minDataPoints {
		return fmt.Errorf("%w: seasonal detector needs >= %d points", models.ErrInsufficientData, minDataPoints)
	}
	if d.cfg.Threshold == 0 {
		d.cfg = d.cfg.withDefaults()
	}

	bySource := make(map[string][]models.Sample)
	for _, s := range historical {
		bySource[s.Source] = append(bySource[s.Source], s)
	}
	for source, samples := range bySource {
		d.patterns[source] = fitSeasonalPattern(samples)
	}
	d.trained = true
	return nil
}

func fitSeasonalPattern(samples []models.Sample) *models.SeasonalPattern {
	values := make([]float64, len(samples))
	baselineTime := samples[0].Timestamp
	for i, s := range samples {
		values[i] = s.Value
	}
	mean := stats.Mean(values)

	// Linear trend via least squares against days since baseline.
	var sumX, sumY, sumXY, sumXX float64
	for _, s := range samples {
		x := s.Timestamp.Sub(baselineTime).Hours() / 24
		y := s.Value
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	n := float64(len(samples))
	var slope float64
	denom := n*sumXX - sumX*sumX
	if denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
	}

	var hourlyTotals [24]float64
	var hourlyCounts [24]int
	var hourlyValues [24][]float64
	var dowValues [7][]float64
	var weekOfMonthValues [4][]float64
	var monthValues [12][]float64

	for _, s := range samples {
		h := s.Timestamp.Hour()
		dow := int(s.Timestamp.Weekday())
		wom := (s.Timestamp.Day() - 1) / 7
		if wom > 3 {
			wom = 3
		}
		month := int(s.Timestamp.Month()) - 1

		hourlyTotals[h] += s.Value
		hourlyCounts[h]++
		hourlyValues[h] = append(hourlyValues[h], s.Value)
		dowValues[dow] = append(dowValues[dow], s.Value)
		weekOfMonthValues[wom] = append(weekOfMonthValues[wom], s.Value)
		monthValues[month] = append(monthValues[month], s.Value)
	}

	p := &models.SeasonalPattern{
		Baseline:          mean,
		BaselineTimestamp: baselineTime,
		Trend:             slope,
	}
	for h := 0; h < 24; h++ {
		if hourlyCounts[h] > 0 {
			p.Hourly[h] = hourlyTotals[h]/float64(hourlyCounts[h]) - mean
			p.VolatilityByHour[h] = stats.StdDev(hourlyValues[h])
		}
	}
	for d := 0; d < 7; d++ {
		if len(dowValues[d]) > 0 {
			p.Daily[d] = stats.Mean(dowValues[d]) - mean
			p.VolatilityByDayOfWeek[d] = stats.StdDev(dowValues[d])
		}
	}
	for w := 0; w < 4; w++ {
		if len(weekOfMonthValues[w]) > 0 {
			p.Weekly[w] = stats.Mean(weekOfMonthValues[w]) - mean
		}
	}
	for m := 0; m < 12; m++ {
		if len(monthValues[m]) > 0 {
			p.Monthly[m] = stats.Mean(monthValues[m]) - mean
		}
	}

	p.DominantPeriod, p.Strength = dominantPeriod(values, hourlyValues[:], dowValues[:], weekOfMonthValues[:], monthValues[:])
	p.BaselineVolatility = stats.StdDev(values)
	p.Accuracy = 0.7
	return p
}

// dominantPeriod picks the seasonal scale explaining the most variance,
// requiring at least a 0.1 fraction-of-variance-explained to claim
// seasonality exists at all.
func dominantPeriod(values []float64, hourly, daily, weekly, monthly [][]float64) (models.SeasonalPeriod, float64) {
	total := stats.Variance(values, stats.Mean(values))
	if total == 0 {
		return models.PeriodDaily, 0
	}
	scales := []struct {
		period  models.SeasonalPeriod
		buckets [][]float64
	}{
		{models.PeriodHourly, hourly},
		{models.PeriodDaily, daily},
		{models.PeriodWeekly, weekly},
		{models.PeriodMonthly, monthly},
	}
	var best models.SeasonalPeriod = models.PeriodDaily
	var bestFraction float64
	for _, scale := range scales {
		var betweenGroupVar float64
		for _, bucket := range scale.buckets {
			if len(bucket) == 0 {
				continue
			}
			m := stats.Mean(bucket)
			betweenGroupVar += float64(len(bucket)) * (m - stats.Mean(values)) * (m - stats.Mean(values))
		}
		fraction := betweenGroupVar / (total * float64(len(values)))
		if fraction > bestFraction {
			bestFraction = fraction
			best = scale.period
		}
	}
	if bestFraction < 0.1 {
		bestFraction = 0
	}
	return best, bestFraction
}

func (d *SeasonalDetector) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trained && d.enabled
}

func (d *SeasonalDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patterns = make(map[string]*models.SeasonalPattern)
	d.trained = false
}

func (d *SeasonalDetector) ModelInfo() models.ModelInfo {
	return models.ModelInfo{Algorithm: "seasonal", Version: "1.0", Parameters: map[string]interface{}{
		"threshold": d.cfg.Threshold, "ewmaAlpha": d.cfg.EWMAAlpha,
	}}
}

func (d *SeasonalDetector) expectedValue(p *models.SeasonalPattern, t time.Time) float64 {
	daysSince := t.Sub(p.BaselineTimestamp).Hours() / 24
	wom := (t.Day() - 1) / 7
	if wom > 3 {
		wom = 3
	}
	return p.Baseline + p.Hourly[t.Hour()] + p.Daily[int(t.Weekday())] + p.Weekly[wom] + p.Monthly[int(t.Month())-1] + p.Trend*daysSince
}

// Predict forecasts the expected value at a future time for a source,
// satisfying the Predictor capability interface.
func (d *SeasonalDetector) Predict(source string, at time.Time) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.patterns[source]
	if !ok {
		return 0, false
	}
	return d.expectedValue(p, at), true
}

func (d *SeasonalDetector) Detect(ctx context.Context, samples []models.Sample, dctx DetectContext) ([]models.Anomaly, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.trained || !d.enabled {
		return nil, nil
	}
	var out []models.Anomaly
	for _, s := range samples {
		if dctx.InMaintenanceWindow(s.Timestamp) {
			continue
		}
		p, ok := d.patterns[s.Source]
		if !ok {
			continue
		}
		expected := d.expectedValue(p, s.Timestamp)
		volatility := p.VolatilityByHour[s.Timestamp.Hour()]
		if volatility == 0 {
			volatility = p.BaselineVolatility
		}
		if volatility == 0 {
			volatility = 1
		}
		deviation := (s.Value - expected) / volatility

		if absF(deviation) >= d.cfg.Threshold {
			typ := models.AnomalySeasonalDeviation
			score := stats.Clamp(absF(deviation)/(d.cfg.Threshold*2), 0, 1)
			confidence := stats.Clamp(p.Strength+p.Accuracy/2, 0, 1)
			exp := expected
			a, err := models.NewAnomaly(uuid.NewString(), typ, score, confidence, s, s.Value, deviation,
				models.AnomalyContext{Metric: s.Metric, Labels: s.Labels, Algorithm: "seasonal", SeasonalPattern: string(p.DominantPeriod), HistoricalMean: &exp},
				fmt.Sprintf("seasonal deviation %.3f sigma for metric %s", deviation, s.Metric))
			if err == nil {
				if kept, ok := applyBusinessRules(a, d.cfg.BusinessRules); ok {
					out = append(out, kept)
				}
			}
		}

		// Online update: EWMA blend of the new observation into the baseline.
		p.Baseline = (1-d.cfg.EWMAAlpha)*p.Baseline + d.cfg.EWMAAlpha*s.Value
	}
	return out, nil
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
