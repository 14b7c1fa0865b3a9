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

// ThresholdConfig controls the threshold detector.
type ThresholdConfig struct {
	K             float64 // multiplier for adaptive bounds; also training k
	Dynamic       bool
	WindowSize    int
	BusinessRules []BusinessRule
}

func (c ThresholdConfig) withDefaults() ThresholdConfig {
	if c.K <= 0 {
		c.K = 3.0
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 200
	}
	return c
}

// ThresholdDetector maintains static or adaptive upper/lower bounds per
// source, plus a rate-of-change bound.
type ThresholdDetector struct {
	mu        sync.Mutex
	cfg       ThresholdConfig
	enabled   bool
	trained   bool
	sets      map[string]models.ThresholdSet
	adaptive  map[string]models.AdaptiveThreshold
	windows   map[string]*rollingWindow
	lastValue map[string]float64
}

func NewThresholdDetector() *ThresholdDetector {
	return &ThresholdDetector{
		enabled:   true,
		sets:      make(map[string]models.ThresholdSet),
		adaptive:  make(map[string]models.AdaptiveThreshold),
		windows:   make(map[string]*rollingWindow),
		lastValue: make(map[string]float64),
	}
}

func (d *ThresholdDetector) Configure(config map[string]interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := ThresholdConfig{}
	if v, ok := config["k"].(float64); ok {
		cfg.K = v
	}
	if v, ok := config["dynamic"].(bool); ok {
		cfg.Dynamic = v
	}
	if v, ok := config["windowSize"].(int); ok {
		cfg.WindowSize = v
	}
	if v, ok := config["businessRules"].([]BusinessRule); ok {
		cfg.BusinessRules = v
	}
	d.cfg = cfg.withDefaults()
	return nil
}

func (d *ThresholdDetector) Train(historical []models.Sample) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(historical) < minDataPoints {
		return fmt.Errorf("%w: threshold detector needs >= %d points", models.ErrInsufficientData, minDataPoints)
	}
	if d.cfg.K == 0 {
		d.cfg = d.cfg.withDefaults()
	}
	bySource := make(map[string][]models.Sample)
	for _, s := range historical {
		bySource[s.Source] = append(bySource[s.Source], s)
	}
	for source, samples := range bySource {
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.Value
		}
		summary := stats.Summarize(values)

		var posDeltas, negDeltas []float64
		for i := 1; i < len(samples); i++ {
			delta := samples[i].Value - samples[i-1].Value
			if delta > 0 {
				posDeltas = append(posDeltas, delta)
			} else if delta < 0 {
				negDeltas = append(negDeltas, -delta)
			}
		}
		rateUp := 2 * stats.StdDev(posDeltas)
		rateDown := 2 * stats.StdDev(negDeltas)

		k := d.cfg.K
		d.sets[source] = models.ThresholdSet{
			Upper: summary.Mean + k*summary.StdDev, Lower: summary.Mean - k*summary.StdDev,
			UpperWarning: summary.Mean + 0.7*k*summary.StdDev, LowerWarning: summary.Mean - 0.7*k*summary.StdDev,
			Rate:    models.RateThresholds{MaxIncrease: rateUp, MaxDecrease: rateDown},
			Dynamic: d.cfg.Dynamic,
		}

		w := newRollingWindow(d.cfg.WindowSize)
		for _, v := range values {
			w.Append(v)
		}
		d.windows[source] = w
		d.adaptive[source] = models.AdaptiveThreshold{
			Mean: summary.Mean, StdDev: summary.StdDev,
			Volatility: volatility(summary), Confidence: 0.7,
		}
	}
	d.trained = true
	return nil
}

func volatility(s stats.Summary) float64 {
	if s.Mean == 0 {
		return 0
	}
	return s.StdDev / (1 + s.Mean*s.Mean)
}

func (d *ThresholdDetector) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trained && d.enabled
}

func (d *ThresholdDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sets = make(map[string]models.ThresholdSet)
	d.adaptive = make(map[string]models.AdaptiveThreshold)
	d.windows = make(map[string]*rollingWindow)
	d.trained = false
}

func (d *ThresholdDetector) ModelInfo() models.ModelInfo {
	return models.ModelInfo{Algorithm: "threshold", Version: "1.0", Parameters: map[string]interface{}{
		"k": d.cfg.K, "dynamic": d.cfg.Dynamic,
	}}
}

func (d *ThresholdDetector) Thresholds(source string) (models.ThresholdSet, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.sets[source]
	return t, ok
}

// SetThreshold overrides the bound set for a source directly, bypassing
// Train-derived statistics. Useful for operator-supplied overrides.
func (d *ThresholdDetector) SetThreshold(source string, set models.ThresholdSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set.LastUpdated = time.Now()
	d.sets[source] = set
}

// GetAdaptiveThresholds returns the learned statistics backing a source's
// dynamic bounds, if the detector has been trained on that source.
func (d *ThresholdDetector) GetAdaptiveThresholds(source string) (models.AdaptiveThreshold, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.adaptive[source]
	return a, ok
}

// SetAdaptiveThresholdsEnabled toggles dynamic bound recomputation for a
// source's threshold set.
func (d *ThresholdDetector) SetAdaptiveThresholdsEnabled(source string, enabled bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.sets[source]
	if !ok {
		return false
	}
	set.Dynamic = enabled
	d.sets[source] = set
	return true
}

func (d *ThresholdDetector) Detect(ctx context.Context, samples []models.Sample, dctx DetectContext) ([]models.Anomaly, error) {
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
		set, ok := d.sets[s.Source]
		if !ok {
			continue
		}
		effective := set
		if set.Dynamic {
			if adp, ok := d.adaptive[s.Source]; ok {
				factor := adaptiveFactor(adp.Volatility, dctx)
				effective.Upper = adp.Mean + d.cfg.K*factor*adp.StdDev
				effective.Lower = adp.Mean - d.cfg.K*factor*adp.StdDev
				effective.UpperWarning = adp.Mean + 0.7*d.cfg.K*factor*adp.StdDev
				effective.LowerWarning = adp.Mean - 0.7*d.cfg.K*factor*adp.StdDev
			}
		}

		violation, typ, isCritical := classifyViolation(s.Value, effective)
		if rateViolation, rateTyp := d.checkRate(s); rateViolation != "" {
			violation = rateViolation
			typ = rateTyp
			isCritical = true
		}

		if violation != "" {
			score := 0.6
			if isCritical {
				score = 0.9
			}
			mean := effective.Upper
			a, err := models.NewAnomaly(uuid.NewString(), typ, score, 0.8, s, s.Value, s.Value-effective.Upper,
				models.AnomalyContext{Metric: s.Metric, Labels: s.Labels, Algorithm: "threshold", Threshold: effective.Upper, HistoricalMean: &mean},
				fmt.Sprintf("threshold violation %s for metric %s", violation, s.Metric))
			if err == nil {
				if kept, ok := applyBusinessRules(a, d.cfg.BusinessRules); ok {
					out = append(out, kept)
				}
			}
		}

		d.lastValue[s.Source] = s.Value
		if w, ok := d.windows[s.Source]; ok {
			w.Append(s.Value)
		}
	}
	return out, nil
}

func adaptiveFactor(volatility float64, dctx DetectContext) float64 {
	factor := 1.0
	switch {
	case volatility > 0.2:
		factor = 1.3
	case volatility < 0.05:
		factor = 0.8
	}
	if dctx.RecentDeployment {
		factor *= 1.5
	}
	return stats.Clamp(factor, 0.5, 3.0)
}

func classifyViolation(v float64, set models.ThresholdSet) (violation string, typ models.AnomalyType, critical bool) {
	switch {
	case v > set.Upper:
		return "upper_critical", models.AnomalySpike, true
	case v > set.UpperWarning:
		return "upper_warning", models.AnomalySpike, false
	case v < set.Lower:
		return "lower_critical", models.AnomalyDrop, true
	case v < set.LowerWarning:
		return "lower_warning", models.AnomalyDrop, false
	default:
		return "", "", false
	}
}

func (d *ThresholdDetector) checkRate(s models.Sample) (string, models.AnomalyType) {
	last, ok := d.lastValue[s.Source]
	if !ok {
		return "", ""
	}
	set, ok := d.sets[s.Source]
	if !ok {
		return "", ""
	}
	delta := s.Value - last
	if delta > 0 && set.Rate.MaxIncrease > 0 && delta > set.Rate.MaxIncrease {
		return "rate_increase", models.AnomalySpike
	}
	if delta < 0 && set.Rate.MaxDecrease > 0 && -delta > set.Rate.MaxDecrease {
		return "rate_decrease", models.AnomalyDrop
	}
	return "", ""
}
