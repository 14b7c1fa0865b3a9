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

// IsolationForestConfig controls the isolation forest detector.
type IsolationForestConfig struct {
	Threshold     float64
	Seed          int64
	BusinessRules []BusinessRule
}

func (c IsolationForestConfig) withDefaults() IsolationForestConfig {
	if c.Threshold <= 0 {
		c.Threshold = 0.6
	}
	return c
}

const featureVectorSize = 8

// isolationTree is a single binary tree produced by random recursive
// axis-aligned splits, per the standard isolation-forest construction.
type isolationTree struct {
	splitFeature int
	splitValue   float64
	left, right  *isolationTree
	isLeaf       bool
	size         int // size of subsample reaching this leaf
}

// IsolationForestDetector detects anomalies by how quickly a point isolates
// from the rest of the training distribution under random splits.
type IsolationForestDetector struct {
	mu       sync.Mutex
	cfg      IsolationForestConfig
	enabled  bool
	trained  bool
	rng      *stats.Rand
	trees    map[string][]*isolationTree
	maxDepth int
	history  map[string]*rollingWindow // feature history for rate-of-change etc
}

func NewIsolationForestDetector() *IsolationForestDetector {
	return &IsolationForestDetector{
		enabled: true,
		trees:   make(map[string][]*isolationTree),
		history: make(map[string]*rollingWindow),
	}
}

func (d *IsolationForestDetector) Configure(config map[string]interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := IsolationForestConfig{}
	if v, ok := config["threshold"].(float64); ok {
		cfg.Threshold = v
	}
	if v, ok := config["seed"].(int64); ok {
		cfg.Seed = v
	}
	if v, ok := config["businessRules"].([]BusinessRule); ok {
		cfg.BusinessRules = v
	}
	d.cfg = cfg.withDefaults()
	d.rng = stats.NewRand(d.cfg.Seed)
	return nil
}

func (d *IsolationForestDetector) Train(historical []models.Sample) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(historical) < minDataPoints {
		return fmt.Errorf("%w: isolation forest needs >= %d points", models.ErrInsufficientData, minDataPoints)
	}
	if d.rng == nil {
		d.cfg = d.cfg.withDefaults()
		d.rng = stats.NewRand(d.cfg.Seed)
	}

	bySource := make(map[string][]models.Sample)
	for _, s := range historical {
		bySource[s.Source] = append(bySource[s.Source], s)
	}

	d.maxDepth = 10
	for source, samples := range bySource {
		w := newRollingWindow(len(samples))
		for _, s := range samples {
			w.Append(s.Value)
		}
		d.history[source] = w

		features := make([][featureVectorSize]float64, len(samples))
		for i := range samples {
			features[i] = extractFeatures(samples, i)
		}

		n := len(features)
		numTrees := int(stats.Clamp(float64(n/10), 10, 100))
		sampleSize := int(math.Min(256, 0.8*float64(n)))
		if sampleSize < 1 {
			sampleSize = n
		}
		d.maxDepth = int(math.Ceil(math.Log2(float64(sampleSize))))
		if d.maxDepth < 1 {
			d.maxDepth = 1
		}

		trees := make([]*isolationTree, 0, numTrees)
		for i := 0; i < numTrees; i++ {
			subsample := d.subsample(features, sampleSize)
			trees = append(trees, d.buildTree(subsample, 0))
		}
		d.trees[source] = trees
	}
	d.trained = true
	return nil
}

func (d *IsolationForestDetector) subsample(features [][featureVectorSize]float64, size int) [][featureVectorSize]float64 {
	perm := d.rng.Perm(len(features))
	if size > len(perm) {
		size = len(perm)
	}
	out := make([][featureVectorSize]float64, size)
	for i := 0; i < size; i++ {
		out[i] = features[perm[i]]
	}
	return out
}

func (d *IsolationForestDetector) buildTree(data [][featureVectorSize]float64, depth int) *isolationTree {
	if depth >= d.maxDepth || len(data) <= 1 {
		return &isolationTree{isLeaf: true, size: len(data)}
	}
	feature := d.rng.Intn(featureVectorSize)
	min, max := data[0][feature], data[0][feature]
	for _, row := range data {
		if row[feature] < min {
			min = row[feature]
		}
		if row[feature] > max {
			max = row[feature]
		}
	}
	if min == max {
		return &isolationTree{isLeaf: true, size: len(data)}
	}
	splitValue := min + d.rng.Float64()*(max-min)

	var left, right [][featureVectorSize]float64
	for _, row := range data {
		if row[feature] < splitValue {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return &isolationTree{
		splitFeature: feature, splitValue: splitValue,
		left: d.buildTree(left, depth+1), right: d.buildTree(right, depth+1),
	}
}

func pathLength(t *isolationTree, features [featureVectorSize]float64, depth int) float64 {
	if t.isLeaf {
		return float64(depth) + averagePathAdjustment(t.size)
	}
	if features[t.splitFeature] < t.splitValue {
		return pathLength(t.left, features, depth+1)
	}
	return pathLength(t.right, features, depth+1)
}

// averagePathAdjustment is c(n): the expected path length of an unsuccessful
// BST search, used to normalize isolation depth for leaves covering more
// than one training point.
func averagePathAdjustment(n int) float64 {
	if n <= 1 {
		return 0
	}
	nf := float64(n)
	const eulerGamma = 0.5772156649
	return 2*(math.Log(nf-1)+eulerGamma) - 2*(nf-1)/nf
}

func (d *IsolationForestDetector) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trained && d.enabled
}

func (d *IsolationForestDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trees = make(map[string][]*isolationTree)
	d.history = make(map[string]*rollingWindow)
	d.trained = false
}

func (d *IsolationForestDetector) ModelInfo() models.ModelInfo {
	return models.ModelInfo{Algorithm: "isolation_forest", Version: "1.0", Parameters: map[string]interface{}{
		"threshold": d.cfg.Threshold,
	}}
}

// FeatureImportance reports, for a source, how often each feature was
// chosen as a split feature across the forest, normalized to sum to 1.
// Satisfies the FeatureImportanceProvider capability interface.
func (d *IsolationForestDetector) FeatureImportance(source string) (map[string]float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	trees, ok := d.trees[source]
	if !ok || len(trees) == 0 {
		return nil, false
	}
	var counts [featureVectorSize]float64
	var total float64
	for _, t := range trees {
		countSplits(t, &counts, &total)
	}
	out := make(map[string]float64, featureVectorSize)
	for f := 0; f < featureVectorSize; f++ {
		name := fmt.Sprintf("feature_%d", f)
		if total > 0 {
			out[name] = counts[f] / total
		} else {
			out[name] = 0
		}
	}
	return out, true
}

func countSplits(t *isolationTree, counts *[featureVectorSize]float64, total *float64) {
	if t == nil || t.isLeaf {
		return
	}
	counts[t.splitFeature]++
	*total++
	countSplits(t.left, counts, total)
	countSplits(t.right, counts, total)
}

func (d *IsolationForestDetector) Detect(ctx context.Context, samples []models.Sample, dctx DetectContext) ([]models.Anomaly, error) {
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
		trees, ok := d.trees[s.Source]
		if !ok || len(trees) == 0 {
			continue
		}
		hist := d.history[s.Source]
		if hist == nil {
			hist = newRollingWindow(256)
			d.history[s.Source] = hist
		}
		idx := hist.Len()
		hist.Append(s.Value)
		combined := append(hist.Values()[:idx:idx], s.Value)
		syntheticSamples := make([]models.Sample, len(combined))
		for i, v := range combined {
			syntheticSamples[i] = models.Sample{Value: v}
		}
		features := extractFeatures(syntheticSamples, len(syntheticSamples)-1)

		pathLengths := make([]float64, len(trees))
		var sumPath float64
		for i, t := range trees {
			pathLengths[i] = pathLength(t, features, 0)
			sumPath += pathLengths[i]
		}
		meanPath := sumPath / float64(len(trees))
		cN := averagePathAdjustment(256)
		if cN == 0 {
			cN = 1
		}
		isolationScore := math.Pow(2, -meanPath/cN)
		anomalyScore := 1 - isolationScore

		if anomalyScore >= d.cfg.Threshold {
			confidence := 0.5 + 0.5*(1-stats.StdDev(pathLengths)/maxFloat(meanPath, 1e-9))
			confidence = stats.Clamp(confidence, 0, 1)
			a, err := models.NewAnomaly(uuid.NewString(), models.AnomalyOutlier, anomalyScore, confidence, s, s.Value, 0,
				models.AnomalyContext{Metric: s.Metric, Labels: s.Labels, Algorithm: "isolation_forest", Threshold: d.cfg.Threshold},
				fmt.Sprintf("isolation forest score %.3f for metric %s", anomalyScore, s.Metric))
			if err == nil {
				if kept, ok := applyBusinessRules(a, d.cfg.BusinessRules); ok {
					out = append(out, kept)
				}
			}
		}
	}
	return out, nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// extractFeatures builds the fixed 8-feature vector for samples[idx]:
// value, normalized value, rate-of-change, local variance, z-score,
// moving-average ratio, percentile rank, time-since-spike.
func extractFeatures(samples []models.Sample, idx int) [featureVectorSize]float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	v := values[idx]
	summary := stats.Summarize(values)

	normalized := 0.0
	if summary.Range > 0 {
		normalized = (v - summary.Min) / summary.Range
	}
	rateOfChange := 0.0
	if idx > 0 {
		rateOfChange = v - values[idx-1]
	}
	windowStart := idx - 5
	if windowStart < 0 {
		windowStart = 0
	}
	localVariance := stats.Variance(values[windowStart:idx+1], stats.Mean(values[windowStart:idx+1]))
	z := stats.ZScore(v, summary.Mean, summary.StdDev)
	maWindow := values[windowStart : idx+1]
	ma := stats.Mean(maWindow)
	maRatio := 1.0
	if ma != 0 {
		maRatio = v / ma
	}
	percentileRank := percentileRankOf(values, v)
	timeSinceSpike := timeSinceLastSpike(values, idx, summary)

	return [featureVectorSize]float64{v, normalized, rateOfChange, localVariance, z, maRatio, percentileRank, timeSinceSpike}
}

func percentileRankOf(values []float64, v float64) float64 {
	if len(values) == 0 {
		return 0
	}
	below := 0
	for _, x := range values {
		if x <= v {
			below++
		}
	}
	return float64(below) / float64(len(values))
}

func timeSinceLastSpike(values []float64, idx int, summary stats.Summary) float64 {
	threshold := summary.Mean + 3*summary.StdDev
	for i := idx; i >= 0; i-- {
		if values[i] > threshold {
			return float64(idx - i)
		}
	}
	return float64(idx + 1)
}
