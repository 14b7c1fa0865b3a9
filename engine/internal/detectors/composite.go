package detectors

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/99souls/anomalyengine/engine/internal/stats"
	"github.com/99souls/anomalyengine/engine/models"
	"github.com/google/uuid"
)

// EnsembleStrategy names how the composite combines its children's verdicts.
type EnsembleStrategy string

const (
	StrategyMajorityVote     EnsembleStrategy = "majority_vote"
	StrategyWeightedAverage  EnsembleStrategy = "weighted_average"
	StrategyAdaptiveWeighted EnsembleStrategy = "adaptive_weighted"
	StrategyStacking         EnsembleStrategy = "stacking"
	StrategyHierarchical     EnsembleStrategy = "hierarchical"
)

// ContextAnalyzer selects the subset of child detector names that should
// run given the current detection context, e.g. skipping a seasonal
// detector outside business hours.
type ContextAnalyzer interface {
	ActiveDetectors(all []string, dctx DetectContext) []string
}

// defaultContextAnalyzer runs every registered child unconditionally.
type defaultContextAnalyzer struct{}

func (defaultContextAnalyzer) ActiveDetectors(all []string, dctx DetectContext) []string {
	return all
}

// childEntry pairs a named child detector with its ensemble weight and the
// running accuracy estimate the adaptive_weighted strategy adjusts.
type childEntry struct {
	name     string
	detector Detector
	weight   float64
	accuracy float64
	disabled bool
}

// ChildPerformance reports one child detector's current ensemble standing.
type ChildPerformance struct {
	Name     string
	Weight   float64
	Accuracy float64
	Disabled bool
}

// CompositeConfig controls the composite meta-detector.
type CompositeConfig struct {
	Strategy      EnsembleStrategy
	Threshold     float64
	BusinessRules []BusinessRule
}

func (c CompositeConfig) withDefaults() CompositeConfig {
	if c.Strategy == "" {
		c.Strategy = StrategyWeightedAverage
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.5
	}
	return c
}

// CompositeDetector fans detection out to named child detectors and
// combines their verdicts with one of five ensemble strategies. Children
// are iterated in sorted name order so combination is deterministic
// regardless of map iteration or goroutine completion order.
type CompositeDetector struct {
	mu       sync.Mutex
	cfg      CompositeConfig
	enabled  bool
	trained  bool
	children map[string]*childEntry
	analyzer ContextAnalyzer
}

func NewCompositeDetector() *CompositeDetector {
	return &CompositeDetector{
		enabled:  true,
		children: make(map[string]*childEntry),
		analyzer: defaultContextAnalyzer{},
	}
}

// AddChild registers a child detector with its combination weight.
func (d *CompositeDetector) AddChild(name string, det Detector, weight float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.children[name] = &childEntry{name: name, detector: det, weight: weight, accuracy: 0.5}
}

// SetContextAnalyzer overrides the default always-run analyzer.
func (d *CompositeDetector) SetContextAnalyzer(a ContextAnalyzer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.analyzer = a
}

// SetEnsembleStrategy switches how child verdicts are combined without
// requiring a full Configure/Train cycle.
func (d *CompositeDetector) SetEnsembleStrategy(strategy EnsembleStrategy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Strategy = strategy
	d.cfg = d.cfg.withDefaults()
}

// SetChildDetectorEnabled toggles whether a named child participates in the
// next Detect call. Disabled children are skipped entirely, as if they were
// never registered, but retain their weight and accuracy if re-enabled.
func (d *CompositeDetector) SetChildDetectorEnabled(name string, enabled bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.children[name]
	if !ok {
		return false
	}
	c.disabled = !enabled
	return true
}

// AdjustDetectorWeight sets a named child's ensemble weight, used by
// weighted_average and adaptive_weighted strategies.
func (d *CompositeDetector) AdjustDetectorWeight(name string, weight float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.children[name]
	if !ok {
		return false
	}
	c.weight = weight
	return true
}

// GetDetectorPerformance reports each child's current weight, accuracy, and
// enabled state, sorted by name for determinism.
func (d *CompositeDetector) GetDetectorPerformance() []ChildPerformance {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ChildPerformance, 0, len(d.children))
	for _, c := range d.children {
		out = append(out, ChildPerformance{Name: c.name, Weight: c.weight, Accuracy: c.accuracy, Disabled: c.disabled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetFeatureImportance delegates to a named child if it implements
// FeatureImportanceProvider.
func (d *CompositeDetector) GetFeatureImportance(name, source string) (map[string]float64, bool) {
	d.mu.Lock()
	c, ok := d.children[name]
	d.mu.Unlock()
	if !ok {
		return nil, false
	}
	fp, ok := c.detector.(FeatureImportanceProvider)
	if !ok {
		return nil, false
	}
	return fp.FeatureImportance(source)
}

func (d *CompositeDetector) Configure(config map[string]interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := CompositeConfig{}
	if v, ok := config["strategy"].(string); ok {
		cfg.Strategy = EnsembleStrategy(v)
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

// Train delegates to each child; a child failing to train (e.g. insufficient
// data for that specific source) does not fail the whole composite, since
// other children may still cover the signal.
func (d *CompositeDetector) Train(historical []models.Sample) error {
	d.mu.Lock()
	children := make([]*childEntry, 0, len(d.children))
	for _, c := range d.children {
		children = append(children, c)
	}
	if d.cfg.Strategy == "" {
		d.cfg = d.cfg.withDefaults()
	}
	d.mu.Unlock()

	if len(children) == 0 {
		return fmt.Errorf("%w: composite detector has no children registered", models.ErrConfiguration)
	}
	var anyTrained bool
	for _, c := range children {
		if err := c.detector.Train(historical); err == nil {
			anyTrained = true
		}
	}
	if !anyTrained {
		return fmt.Errorf("%w: no child detector trained successfully", models.ErrInsufficientData)
	}
	d.mu.Lock()
	d.trained = true
	d.mu.Unlock()
	return nil
}

func (d *CompositeDetector) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trained && d.enabled
}

func (d *CompositeDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.children {
		c.detector.Reset()
	}
	d.trained = false
}

func (d *CompositeDetector) ModelInfo() models.ModelInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.children))
	for name := range d.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return models.ModelInfo{Algorithm: "composite", Version: "1.0", Parameters: map[string]interface{}{
		"strategy": string(d.cfg.Strategy), "children": names,
	}}
}

// childVerdict is the per-child result for one sample, keyed for combination.
type childVerdict struct {
	name     string
	weight   float64
	accuracy float64
	anomaly  *models.Anomaly
}

func (d *CompositeDetector) Detect(ctx context.Context, samples []models.Sample, dctx DetectContext) ([]models.Anomaly, error) {
	d.mu.Lock()
	if !d.trained || !d.enabled {
		d.mu.Unlock()
		return nil, nil
	}
	names := make([]string, 0, len(d.children))
	for name := range d.children {
		names = append(names, name)
	}
	sort.Strings(names)
	active := d.analyzer.ActiveDetectors(names, dctx)
	activeSet := make(map[string]bool, len(active))
	for _, n := range active {
		activeSet[n] = true
	}
	children := make([]*childEntry, 0, len(names))
	for _, n := range names {
		if activeSet[n] && !d.children[n].disabled {
			children = append(children, d.children[n])
		}
	}
	strategy := d.cfg.Strategy
	threshold := d.cfg.Threshold
	rules := d.cfg.BusinessRules
	d.mu.Unlock()

	if len(children) == 0 {
		return nil, nil
	}

	// Fan out: each child evaluates the full sample batch independently.
	perChild := make(map[string][]models.Anomaly, len(children))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, c := range children {
		wg.Add(1)
		go func(c *childEntry) {
			defer wg.Done()
			anomalies, err := c.detector.Detect(ctx, samples, dctx)
			if err != nil {
				return
			}
			mu.Lock()
			perChild[c.name] = anomalies
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	// Index each child's anomalies by sample identity (source+timestamp) for
	// per-sample combination.
	bySample := make(map[string][]childVerdict)
	for _, name := range names {
		if !activeSet[name] {
			continue
		}
		c := d.children[name]
		for _, a := range perChild[name] {
			key := sampleKey(a.Sample)
			aCopy := a
			bySample[key] = append(bySample[key], childVerdict{name: name, weight: c.weight, accuracy: c.accuracy, anomaly: &aCopy})
		}
	}

	var out []models.Anomaly
	for _, s := range samples {
		key := sampleKey(s)
		verdicts, ok := bySample[key]
		if !ok {
			continue
		}
		// Deterministic ordering regardless of goroutine completion order.
		sort.Slice(verdicts, func(i, j int) bool { return verdicts[i].name < verdicts[j].name })

		combined, fired := combineVerdicts(strategy, verdicts, len(children), threshold)
		if !fired {
			continue
		}
		a, err := models.NewAnomaly(uuid.NewString(), combined.typ, combined.score, combined.confidence, s, s.Value, combined.deviation,
			models.AnomalyContext{Metric: s.Metric, Labels: s.Labels, Algorithm: "composite_" + string(strategy), Threshold: threshold},
			fmt.Sprintf("composite(%s) flagged %s (%d/%d children agree)", strategy, s.Metric, combined.agreeCount, len(children)))
		if err == nil {
			if kept, ok := applyBusinessRules(a, rules); ok {
				out = append(out, kept)
			}
		}
	}
	return out, nil
}

func sampleKey(s models.Sample) string {
	return s.Source + "|" + s.Timestamp.String()
}

type combinedVerdict struct {
	score      float64
	confidence float64
	deviation  float64
	typ        models.AnomalyType
	agreeCount int
}

func combineVerdicts(strategy EnsembleStrategy, verdicts []childVerdict, totalChildren int, threshold float64) (combinedVerdict, bool) {
	switch strategy {
	case StrategyMajorityVote:
		return combineMajorityVote(verdicts, totalChildren)
	case StrategyAdaptiveWeighted:
		return combineWeighted(verdicts, true, threshold)
	case StrategyStacking:
		return combineStacking(verdicts, threshold)
	case StrategyHierarchical:
		return combineHierarchical(verdicts, threshold)
	default: // weighted_average
		return combineWeighted(verdicts, false, threshold)
	}
}

func combineMajorityVote(verdicts []childVerdict, totalChildren int) (combinedVerdict, bool) {
	if len(verdicts) <= totalChildren/2 {
		return combinedVerdict{}, false
	}
	return averageVerdicts(verdicts), true
}

func combineWeighted(verdicts []childVerdict, adaptive bool, threshold float64) (combinedVerdict, bool) {
	var scoreSum, weightSum, confSum, devSum float64
	typeVotes := make(map[models.AnomalyType]float64)
	for _, v := range verdicts {
		w := v.weight
		if adaptive {
			w *= (0.5 + v.accuracy)
		}
		scoreSum += v.anomaly.Score * w
		confSum += v.anomaly.Confidence * w
		devSum += v.anomaly.Deviation * w
		weightSum += w
		typeVotes[v.anomaly.Type] += w
	}
	if weightSum == 0 {
		return combinedVerdict{}, false
	}
	score := scoreSum / weightSum
	if score < threshold {
		return combinedVerdict{}, false
	}
	return combinedVerdict{
		score: stats.Clamp(score, 0, 1), confidence: stats.Clamp(confSum/weightSum, 0, 1),
		deviation: devSum / weightSum, typ: bestVotedType(typeVotes), agreeCount: len(verdicts),
	}, true
}

// combineStacking treats each child's score as a weak-learner prediction and
// blends them with weights proportional to confidence squared, approximating
// a stacked meta-learner without training a separate model online.
func combineStacking(verdicts []childVerdict, threshold float64) (combinedVerdict, bool) {
	var scoreSum, weightSum, devSum float64
	typeVotes := make(map[models.AnomalyType]float64)
	for _, v := range verdicts {
		w := v.anomaly.Confidence * v.anomaly.Confidence
		scoreSum += v.anomaly.Score * w
		devSum += v.anomaly.Deviation * w
		weightSum += w
		typeVotes[v.anomaly.Type] += w
	}
	if weightSum == 0 {
		return combinedVerdict{}, false
	}
	score := scoreSum / weightSum
	if score < threshold {
		return combinedVerdict{}, false
	}
	return combinedVerdict{
		score: stats.Clamp(score, 0, 1), confidence: stats.Clamp(score, 0, 1),
		deviation: devSum / weightSum, typ: bestVotedType(typeVotes), agreeCount: len(verdicts),
	}, true
}

// combineHierarchical takes the verdict of the single highest-weighted child
// present, falling back to the next if that child's score misses threshold.
func combineHierarchical(verdicts []childVerdict, threshold float64) (combinedVerdict, bool) {
	sorted := append([]childVerdict{}, verdicts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].weight > sorted[j].weight })
	for _, v := range sorted {
		if v.anomaly.Score >= threshold {
			return combinedVerdict{
				score: v.anomaly.Score, confidence: v.anomaly.Confidence,
				deviation: v.anomaly.Deviation, typ: v.anomaly.Type, agreeCount: len(verdicts),
			}, true
		}
	}
	return combinedVerdict{}, false
}

func averageVerdicts(verdicts []childVerdict) combinedVerdict {
	var scoreSum, confSum, devSum float64
	typeVotes := make(map[models.AnomalyType]float64)
	for _, v := range verdicts {
		scoreSum += v.anomaly.Score
		confSum += v.anomaly.Confidence
		devSum += v.anomaly.Deviation
		typeVotes[v.anomaly.Type]++
	}
	n := float64(len(verdicts))
	return combinedVerdict{
		score: stats.Clamp(scoreSum/n, 0, 1), confidence: stats.Clamp(confSum/n, 0, 1),
		deviation: devSum / n, typ: bestVotedType(typeVotes), agreeCount: len(verdicts),
	}
}

func bestVotedType(votes map[models.AnomalyType]float64) models.AnomalyType {
	var best models.AnomalyType
	var bestWeight float64
	// Iterate sorted keys so ties resolve deterministically.
	keys := make([]string, 0, len(votes))
	byKey := make(map[string]models.AnomalyType, len(votes))
	for t := range votes {
		byKey[string(t)] = t
		keys = append(keys, string(t))
	}
	sort.Strings(keys)
	for _, k := range keys {
		t := byKey[k]
		if votes[t] > bestWeight {
			bestWeight = votes[t]
			best = t
		}
	}
	return best
}
