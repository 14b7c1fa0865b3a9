package detectors

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/99souls/anomalyengine/engine/internal/stats"
	"github.com/99souls/anomalyengine/engine/models"
	"github.com/google/uuid"
)

// ZScoreConfig controls the Z-Score detector.
type ZScoreConfig struct {
	WindowSize    int
	Threshold     float64
	BusinessRules []BusinessRule
}

func (c ZScoreConfig) withDefaults() ZScoreConfig {
	if c.WindowSize <= 0 {
		c.WindowSize = 100
	}
	if c.Threshold <= 0 {
		c.Threshold = 3.0
	}
	return c
}

// ZScoreDetector maintains a rolling window and baseline per source,
// flagging samples whose |z-score| meets or exceeds threshold; the modified
// z-score only feeds confidence.
type ZScoreDetector struct {
	mu        sync.Mutex
	cfg       ZScoreConfig
	enabled   bool
	trained   bool
	windows   map[string]*rollingWindow
	baselines map[string]models.Baseline
}

// NewZScoreDetector builds a ready-to-configure Z-Score detector.
func NewZScoreDetector() *ZScoreDetector {
	return &ZScoreDetector{
		enabled:   true,
		windows:   make(map[string]*rollingWindow),
		baselines: make(map[string]models.Baseline),
	}
}

func (d *ZScoreDetector) Configure(config map[string]interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := ZScoreConfig{}
	if v, ok := config["windowSize"].(int); ok {
		cfg.WindowSize = v
	}
	if v, ok := config["threshold"].(float64); ok {
		cfg.Threshold = v
	}
	if v, ok := config["businessRules"].([]BusinessRule); ok {
		cfg.BusinessRules = v
	}
	d.cfg = cfg.withDefaults()
	return nil
}

func (d *ZScoreDetector) Train(historical []models.Sample) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(historical) < minDataPoints {
		return fmt.Errorf("%w: zscore needs >= %d points, got %d", models.ErrInsufficientData, minDataPoints, len(historical))
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
		d.baselines[source] = baselineFromWindow(w)
	}
	d.trained = true
	return nil
}

func baselineFromWindow(w *rollingWindow) models.Baseline {
	mean := stats.Mean(w.Values())
	sd := stats.StdDev(w.Values())
	return models.Baseline{Mean: mean, StdDev: sd, SampleSize: w.Len(), LastUpdated: time.Now()}
}

func (d *ZScoreDetector) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trained && d.enabled
}

func (d *ZScoreDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.windows = make(map[string]*rollingWindow)
	d.baselines = make(map[string]models.Baseline)
	d.trained = false
}

func (d *ZScoreDetector) ModelInfo() models.ModelInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return models.ModelInfo{Algorithm: "zscore", Version: "1.0", Parameters: map[string]interface{}{
		"windowSize": d.cfg.WindowSize, "threshold": d.cfg.Threshold,
	}}
}

func (d *ZScoreDetector) Baseline(source string) (models.Baseline, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.baselines[source]
	return b, ok
}

// SetBaseline overrides the rolling baseline for a source. The window is
// reseeded with alternating mean±stddev samples, which reproduces the exact
// requested mean and population stddev so subsequent z-scores are computed
// against the supplied statistics rather than historical data.
func (d *ZScoreDetector) SetBaseline(source string, b models.Baseline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := newRollingWindow(d.cfg.WindowSize)
	n := b.SampleSize
	if n > d.cfg.WindowSize {
		n = d.cfg.WindowSize
	}
	n -= n % 2
	if n < 2 {
		n = 2
	}
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			w.Append(b.Mean - b.StdDev)
		} else {
			w.Append(b.Mean + b.StdDev)
		}
	}
	d.windows[source] = w
	b.LastUpdated = time.Now()
	d.baselines[source] = b
}

// UpdateWithFeedback folds samples marked as false positives (feedback[i]
// == false, i.e. not actually anomalous) back into the source's rolling
// window, correcting a baseline that has drifted. Confirmed anomalies
// (feedback[i] == true) are not appended, since they would otherwise pull
// the baseline toward the anomalous value they were flagged for.
func (d *ZScoreDetector) UpdateWithFeedback(source string, samples []models.Sample, feedback []bool) error {
	if len(samples) != len(feedback) {
		return fmt.Errorf("%w: feedback length %d does not match sample length %d", models.ErrConfiguration, len(feedback), len(samples))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.windows[source]
	if !ok {
		w = newRollingWindow(d.cfg.WindowSize)
		d.windows[source] = w
	}
	for i, s := range samples {
		if !feedback[i] {
			w.Append(s.Value)
		}
	}
	d.baselines[source] = baselineFromWindow(w)
	return nil
}

func (d *ZScoreDetector) Detect(ctx context.Context, samples []models.Sample, dctx DetectContext) ([]models.Anomaly, error) {
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

		baseline := baselineFromWindow(w)
		sorted := append([]float64(nil), w.Values()...)
		sort.Float64s(sorted)
		median := stats.Median(sorted)
		mad := stats.MAD(w.Values(), median)

		z := stats.ZScore(s.Value, baseline.Mean, baseline.StdDev)
		modZ := stats.ModifiedZScore(s.Value, median, mad)

		if math.Abs(z) >= d.cfg.Threshold {
			anomaly := d.buildAnomaly(s, z, modZ, baseline, w.Full())
			if kept, ok := applyBusinessRules(anomaly, d.cfg.BusinessRules); ok {
				out = append(out, kept)
			}
		}

		w.Append(s.Value)
		d.baselines[s.Source] = baselineFromWindow(w)
	}
	return out, nil
}

func (d *ZScoreDetector) buildAnomaly(s models.Sample, z, modZ float64, baseline models.Baseline, windowFull bool) models.Anomaly {
	typ := models.AnomalyOutlier
	switch {
	case s.Value > baseline.Mean+3*baseline.StdDev:
		typ = models.AnomalySpike
	case s.Value < baseline.Mean-3*baseline.StdDev:
		typ = models.AnomalyDrop
	}

	agreement := 1.0
	if (z >= 0) != (modZ >= 0) {
		agreement = 0.5
	}
	fullness := 1.0
	if !windowFull {
		fullness = 0.7
	}
	deploymentPenalty := 1.0
	score := stats.Clamp(math.Abs(z)/(d.cfg.Threshold*2), 0, 1)
	confidence := stats.Clamp(0.5*score+0.2*agreement+0.2*fullness+0.1*deploymentPenalty, 0, 1)

	deviation := s.Value - baseline.Mean
	mean := baseline.Mean
	sd := baseline.StdDev
	a, _ := models.NewAnomaly(
		uuid.NewString(), typ, score, confidence, s, s.Value, deviation,
		models.AnomalyContext{
			Metric: s.Metric, Labels: s.Labels, WindowSize: d.cfg.WindowSize,
			Algorithm: "zscore", Threshold: d.cfg.Threshold,
			HistoricalMean: &mean, HistoricalStdDev: &sd,
		},
		fmt.Sprintf("z-score %.3f exceeds threshold %.3f for metric %s", z, d.cfg.Threshold, s.Metric),
	)
	return a
}
