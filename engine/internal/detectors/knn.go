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

// DistanceMetric names the distance function the KNN detector uses.
type DistanceMetric string

const (
	DistanceEuclidean DistanceMetric = "euclidean"
	DistanceManhattan DistanceMetric = "manhattan"
	DistanceCosine    DistanceMetric = "cosine"
)

// KNNConfig controls the KNN detector.
type KNNConfig struct {
	K               int
	DynamicK        bool
	MaxTrainingSize int
	WeightedVoting  bool
	Metric          DistanceMetric
	Threshold       float64
	Seed            int64
	BusinessRules   []BusinessRule
}

func (c KNNConfig) withDefaults() KNNConfig {
	if c.K <= 0 {
		c.K = 5
	}
	if c.MaxTrainingSize <= 0 {
		c.MaxTrainingSize = 1000
	}
	if c.Metric == "" {
		c.Metric = DistanceEuclidean
	}
	if c.Threshold <= 0 {
		c.Threshold = 2.0
	}
	return c
}

// KNNDetector flags samples whose mean distance to their k nearest training
// neighbours (distance-weighted when WeightedVoting is set) meets or exceeds
// threshold. Neighbours are found via
// quickselect, never a full sort, per the spec's algorithmic requirement.
type KNNDetector struct {
	mu       sync.Mutex
	cfg      KNNConfig
	enabled  bool
	trained  bool
	rng      *stats.Rand
	training map[string][]float64
}

func NewKNNDetector() *KNNDetector {
	return &KNNDetector{enabled: true, training: make(map[string][]float64)}
}

func (d *KNNDetector) Configure(config map[string]interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := KNNConfig{}
	if v, ok := config["k"].(int); ok {
		cfg.K = v
	}
	if v, ok := config["dynamicK"].(bool); ok {
		cfg.DynamicK = v
	}
	if v, ok := config["maxTrainingSize"].(int); ok {
		cfg.MaxTrainingSize = v
	}
	if v, ok := config["weightedVoting"].(bool); ok {
		cfg.WeightedVoting = v
	}
	if v, ok := config["metric"].(string); ok {
		cfg.Metric = DistanceMetric(v)
	}
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

func (d *KNNDetector) Train(historical []models.Sample) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(historical) < minDataPoints {
		return fmt.Errorf("%w: knn detector needs >= %d points", models.ErrInsufficientData, minDataPoints)
	}
	if d.rng == nil {
		d.cfg = d.cfg.withDefaults()
		d.rng = stats.NewRand(d.cfg.Seed)
	}
	for _, s := range historical {
		d.appendTraining(s.Source, s.Value)
	}
	d.trained = true
	return nil
}

func (d *KNNDetector) appendTraining(source string, v float64) {
	buf := d.training[source]
	buf = append(buf, v)
	if len(buf) > d.cfg.MaxTrainingSize {
		buf = buf[len(buf)-d.cfg.MaxTrainingSize:]
	}
	d.training[source] = buf
}

func (d *KNNDetector) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trained && d.enabled
}

func (d *KNNDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.training = make(map[string][]float64)
	d.trained = false
}

func (d *KNNDetector) ModelInfo() models.ModelInfo {
	return models.ModelInfo{Algorithm: "knn", Version: "1.0", Parameters: map[string]interface{}{
		"k": d.cfg.K, "metric": string(d.cfg.Metric),
	}}
}

func (d *KNNDetector) distance(a, b float64) float64 {
	switch d.cfg.Metric {
	case DistanceManhattan:
		return math.Abs(a - b)
	case DistanceCosine:
		if a == 0 || b == 0 {
			return 1
		}
		sign := a * b
		mag := math.Abs(a) * math.Abs(b)
		return 1 - sign/mag
	default:
		return math.Abs(a - b)
	}
}

func (d *KNNDetector) Detect(ctx context.Context, samples []models.Sample, dctx DetectContext) ([]models.Anomaly, error) {
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
		train := d.training[s.Source]
		if len(train) == 0 {
			continue
		}

		k := d.cfg.K
		if d.cfg.DynamicK {
			k = int(stats.Clamp(math.Sqrt(float64(len(train))), 3, float64(d.cfg.K)))
		}
		if k > len(train) {
			k = len(train)
		}

		distances := make([]float64, len(train))
		for i, v := range train {
			distances[i] = d.distance(s.Value, v)
		}
		idx := make([]int, len(distances))
		for i := range idx {
			idx[i] = i
		}
		stats.IndicesQuickSelectK(idx, k, d.rng, func(a, b int) bool { return distances[a] < distances[b] })
		nearest := idx[:k]

		var score float64
		if d.cfg.WeightedVoting {
			var weightSum, distSum float64
			for _, i := range nearest {
				w := 1.0 / (1.0 + distances[i])
				weightSum += w
				distSum += w * distances[i]
			}
			if weightSum > 0 {
				score = distSum / weightSum
			}
		} else {
			var sum float64
			for _, i := range nearest {
				sum += distances[i]
			}
			score = sum / float64(k)
		}

		if score >= d.cfg.Threshold {
			normalizedScore := stats.Clamp(score/(d.cfg.Threshold*2), 0, 1)
			typ := models.AnomalyOutlier
			a, err := models.NewAnomaly(uuid.NewString(), typ, normalizedScore, 0.7, s, s.Value, score,
				models.AnomalyContext{Metric: s.Metric, Labels: s.Labels, Algorithm: "knn", Threshold: d.cfg.Threshold},
				fmt.Sprintf("knn mean distance %.3f exceeds threshold for metric %s", score, s.Metric))
			if err == nil {
				if kept, ok := applyBusinessRules(a, d.cfg.BusinessRules); ok {
					out = append(out, kept)
				}
			}
		}

		d.appendTraining(s.Source, s.Value)
	}
	return out, nil
}
