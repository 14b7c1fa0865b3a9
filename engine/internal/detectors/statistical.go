package detectors

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/99souls/anomalyengine/engine/internal/stats"
	"github.com/99souls/anomalyengine/engine/models"
	"github.com/google/uuid"
)

// StatisticalConfig controls the statistical ensemble detector.
type StatisticalConfig struct {
	WindowSize    int
	BusinessRules []BusinessRule
}

func (c StatisticalConfig) withDefaults() StatisticalConfig {
	if c.WindowSize <= 0 {
		c.WindowSize = 200
	}
	return c
}

// methodResult is what each of the six statistical methods returns.
type methodResult struct {
	isAnomaly  bool
	score      float64
	confidence float64
	typ        models.AnomalyType
}

var methodWeights = map[string]float64{
	"zscore": 1.0, "modZ": 1.2, "iqr": 0.8, "grubbs": 1.1, "tukey": 0.9, "esd": 1.3,
}

// StatisticalDetector runs six classical outlier tests in parallel per
// sample and combines them into a single weighted ensemble verdict.
type StatisticalDetector struct {
	mu      sync.Mutex
	cfg     StatisticalConfig
	enabled bool
	trained bool
	windows map[string]*rollingWindow
}

func NewStatisticalDetector() *StatisticalDetector {
	return &StatisticalDetector{enabled: true, windows: make(map[string]*rollingWindow)}
}

func (d *StatisticalDetector) Configure(config map[string]interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := StatisticalConfig{}
	if v, ok := config["windowSize"].(int); ok {
		cfg.WindowSize = v
	}
	if v, ok := config["businessRules"].([]BusinessRule); ok {
		cfg.BusinessRules = v
	}
	d.cfg = cfg.withDefaults()
	return nil
}

func (d *StatisticalDetector) Train(historical []models.Sample) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(historical) < minDataPoints {
		return fmt.Errorf("%w: statistical ensemble needs >= %d points", models.ErrInsufficientData, minDataPoints)
	}
	if d.cfg.WindowSize == 0 {
		d.cfg = d.cfg.withDefaults()
	}
	bySource := make(map[string][]float64)
	for _, s := range historical {
		bySource[s.Source] = append(bySource[s.Source], s.Value)
	}
	for source, values := range bySource {
		w := newRollingWindow(d.cfg.WindowSize)
		for _, v := range values {
			w.Append(v)
		}
		d.windows[source] = w
	}
	d.trained = true
	return nil
}

func (d *StatisticalDetector) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trained && d.enabled
}

func (d *StatisticalDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.windows = make(map[string]*rollingWindow)
	d.trained = false
}

func (d *StatisticalDetector) ModelInfo() models.ModelInfo {
	return models.ModelInfo{Algorithm: "statistical_ensemble", Version: "1.0", Parameters: map[string]interface{}{
		"windowSize": d.cfg.WindowSize, "methodWeights": methodWeights,
	}}
}

func (d *StatisticalDetector) Detect(ctx context.Context, samples []models.Sample, dctx DetectContext) ([]models.Anomaly, error) {
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
		w, ok := d.windows[s.Source]
		if !ok {
			w = newRollingWindow(d.cfg.WindowSize)
			d.windows[s.Source] = w
		}
		summary := stats.Summarize(w.Values())

		results := map[string]methodResult{
			"zscore": zscoreMethod(s.Value, summary),
			"modZ":   modZMethod(s.Value, summary),
			"iqr":    iqrMethod(s.Value, summary),
			"grubbs": grubbsMethod(s.Value, summary),
			"tukey":  tukeyMethod(s.Value, summary),
			"esd":    esdMethod(s.Value, summary),
		}

		if anomaly, anomalous := d.ensemble(s, results, summary); anomalous {
			if kept, ok := applyBusinessRules(anomaly, d.cfg.BusinessRules); ok {
				out = append(out, kept)
			}
		}
		w.Append(s.Value)
	}
	return out, nil
}

func (d *StatisticalDetector) ensemble(s models.Sample, results map[string]methodResult, summary stats.Summary) (models.Anomaly, bool) {
	var weightedScore, weightSum float64
	typeVotes := make(map[models.AnomalyType]float64)
	anomalousCount := 0
	for name, r := range results {
		if !r.isAnomaly {
			continue
		}
		anomalousCount++
		w := methodWeights[name]
		weightedScore += r.score * w
		weightSum += w
		typeVotes[r.typ] += w
	}
	if anomalousCount == 0 {
		return models.Anomaly{}, false
	}
	score := stats.Clamp(weightedScore/weightSum, 0, 1)
	confidence := stats.Clamp(float64(anomalousCount)/6.0, 0, 1)

	var bestType models.AnomalyType
	var bestVote float64
	for t, v := range typeVotes {
		if v > bestVote {
			bestVote = v
			bestType = t
		}
	}

	mean := summary.Mean
	sd := summary.StdDev
	a, err := models.NewAnomaly(uuid.NewString(), bestType, score, confidence, s, s.Value, s.Value-summary.Mean,
		models.AnomalyContext{Metric: s.Metric, Labels: s.Labels, Algorithm: "statistical_ensemble", HistoricalMean: &mean, HistoricalStdDev: &sd},
		fmt.Sprintf("statistical ensemble flagged %s (%d/6 methods agree)", s.Metric, anomalousCount))
	if err != nil {
		return models.Anomaly{}, false
	}
	return a, true
}

func zscoreMethod(v float64, s stats.Summary) methodResult {
	z := stats.ZScore(v, s.Mean, s.StdDev)
	isAnomaly := math.Abs(z) >= 3.0
	return methodResult{isAnomaly: isAnomaly, score: stats.Clamp(math.Abs(z)/6, 0, 1), confidence: 0.6, typ: typeFromSign(v, s.Mean)}
}

func modZMethod(v float64, s stats.Summary) methodResult {
	modZ := stats.ModifiedZScore(v, s.Median, s.MAD)
	isAnomaly := modZ >= 3.5
	return methodResult{isAnomaly: isAnomaly, score: stats.Clamp(modZ/7, 0, 1), confidence: 0.65, typ: typeFromSign(v, s.Median)}
}

func iqrMethod(v float64, s stats.Summary) methodResult {
	lower := s.Q1 - 1.5*s.IQR
	upper := s.Q3 + 1.5*s.IQR
	isAnomaly := v < lower || v > upper
	var score float64
	if isAnomaly && s.IQR > 0 {
		if v > upper {
			score = stats.Clamp((v-upper)/s.IQR, 0, 1)
		} else {
			score = stats.Clamp((lower-v)/s.IQR, 0, 1)
		}
	}
	return methodResult{isAnomaly: isAnomaly, score: score, confidence: 0.6, typ: typeFromSign(v, s.Median)}
}

func grubbsMethod(v float64, s stats.Summary) methodResult {
	if s.StdDev == 0 || s.N < 3 {
		return methodResult{}
	}
	g := math.Abs(v-s.Mean) / s.StdDev
	n := float64(s.N)
	tCrit := 1.96 // approximate critical t at alpha=0.05 for large n
	critical := (n - 1) / math.Sqrt(n) * math.Sqrt(tCrit*tCrit/(n-2+tCrit*tCrit))
	isAnomaly := g > critical
	return methodResult{isAnomaly: isAnomaly, score: stats.Clamp(g/(critical*2), 0, 1), confidence: 0.7, typ: typeFromSign(v, s.Mean)}
}

func tukeyMethod(v float64, s stats.Summary) methodResult {
	const k = 2.2
	lower := s.Q1 - k*s.IQR
	upper := s.Q3 + k*s.IQR
	isAnomaly := v < lower || v > upper
	var score float64
	if isAnomaly && s.IQR > 0 {
		if v > upper {
			score = stats.Clamp((v-upper)/(k*s.IQR), 0, 1)
		} else {
			score = stats.Clamp((lower-v)/(k*s.IQR), 0, 1)
		}
	}
	return methodResult{isAnomaly: isAnomaly, score: score, confidence: 0.55, typ: typeFromSign(v, s.Median)}
}

func esdMethod(v float64, s stats.Summary) methodResult {
	if s.StdDev == 0 {
		return methodResult{}
	}
	r := math.Abs(v-s.Mean) / s.StdDev
	isAnomaly := r >= 3.0
	return methodResult{isAnomaly: isAnomaly, score: stats.Clamp(r/6, 0, 1), confidence: 0.65, typ: typeFromSign(v, s.Mean)}
}

func typeFromSign(v, center float64) models.AnomalyType {
	if v > center {
		return models.AnomalySpike
	}
	return models.AnomalyDrop
}
