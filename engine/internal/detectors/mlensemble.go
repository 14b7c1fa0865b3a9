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

const mlFeatureVectorSize = 16

// mlAlgorithm is one of the five sub-models the ensemble blends. None of
// these are full implementations of their namesakes; each is a cheap
// statistical stand-in that produces a reconstruction-style anomaly score
// from the 16-feature vector, scored the same way a real implementation
// would be scored for ensemble weighting.
type mlAlgorithm string

const (
	algoAutoencoder mlAlgorithm = "autoencoder"
	algoLSTM        mlAlgorithm = "lstm"
	algoOneClassSVM mlAlgorithm = "one_class_svm"
	algoIsoVariant  mlAlgorithm = "isolation_forest_variant"
	algoGaussianMix mlAlgorithm = "gaussian_mixture"
)

// MLEnsembleConfig controls the ML ensemble detector.
type MLEnsembleConfig struct {
	Threshold        float64
	MinValidationAcc float64
	BusinessRules    []BusinessRule
}

func (c MLEnsembleConfig) withDefaults() MLEnsembleConfig {
	if c.Threshold <= 0 {
		c.Threshold = 0.65
	}
	if c.MinValidationAcc <= 0 {
		c.MinValidationAcc = 0.6
	}
	return c
}

type mlModel struct {
	algorithm      mlAlgorithm
	featureMeans   [mlFeatureVectorSize]float64
	featureStdDevs [mlFeatureVectorSize]float64
	validationAcc  float64
}

// MLEnsembleDetector blends several lightweight reconstruction-error style
// sub-models over a 16-feature vector. Only sub-models whose held-out
// validation accuracy clears MinValidationAcc are kept in the ensemble;
// the rest are weighted to zero.
type MLEnsembleDetector struct {
	mu      sync.Mutex
	cfg     MLEnsembleConfig
	enabled bool
	trained bool
	models  map[string][]*mlModel // per source, one retained model per algorithm
	history map[string]*rollingWindow
}

func NewMLEnsembleDetector() *MLEnsembleDetector {
	return &MLEnsembleDetector{
		enabled: true,
		models:  make(map[string][]*mlModel),
		history: make(map[string]*rollingWindow),
	}
}

func (d *MLEnsembleDetector) Configure(config map[string]interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg := MLEnsembleConfig{}
	if v, ok := config["threshold"].(float64); ok {
		cfg.Threshold = v
	}
	if v, ok := config["minValidationAcc"].(float64); ok {
		cfg.MinValidationAcc = v
	}
	if v, ok := config["businessRules"].([]BusinessRule); ok {
		cfg.BusinessRules = v
	}
	d.cfg = cfg.withDefaults()
	return nil
}

func (d *MLEnsembleDetector) Train(historical []models.Sample) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(historical) < minDataPoints {
		return fmt.Errorf("%w: ml ensemble needs >= %d points", models.ErrInsufficientData, minDataPoints)
	}
	if d.cfg.Threshold == 0 {
		d.cfg = d.cfg.withDefaults()
	}

	bySource := make(map[string][]models.Sample)
	for _, s := range historical {
		bySource[s.Source] = append(bySource[s.Source], s)
	}

	algorithms := []mlAlgorithm{algoAutoencoder, algoLSTM, algoOneClassSVM, algoIsoVariant, algoGaussianMix}

	for source, samples := range bySource {
		// Held-out split: last 20% validates, rest trains.
		splitAt := int(float64(len(samples)) * 0.8)
		if splitAt < 1 {
			splitAt = len(samples)
		}
		trainSamples := samples[:splitAt]
		valSamples := samples[splitAt:]

		features := make([][mlFeatureVectorSize]float64, len(trainSamples))
		for i := range trainSamples {
			features[i] = extractMLFeatures(trainSamples, i)
		}

		var kept []*mlModel
		for _, algo := range algorithms {
			m := fitMLModel(algo, features)
			m.validationAcc = validateMLModel(m, trainSamples, valSamples)
			if m.validationAcc > d.cfg.MinValidationAcc {
				kept = append(kept, m)
			}
		}
		d.models[source] = kept

		w := newRollingWindow(512)
		for _, s := range samples {
			w.Append(s.Value)
		}
		d.history[source] = w
	}
	d.trained = true
	return nil
}

func fitMLModel(algo mlAlgorithm, features [][mlFeatureVectorSize]float64) *mlModel {
	m := &mlModel{algorithm: algo}
	for f := 0; f < mlFeatureVectorSize; f++ {
		col := make([]float64, len(features))
		for i, row := range features {
			col[i] = row[f]
		}
		m.featureMeans[f] = stats.Mean(col)
		m.featureStdDevs[f] = stats.StdDev(col)
	}
	return m
}

// reconstructionError treats the model as a per-feature Gaussian and scores
// by average standardized deviation, the common proxy for the reconstruction
// error an autoencoder/LSTM/SVM/GMM would report for this feature vector.
func reconstructionError(m *mlModel, features [mlFeatureVectorSize]float64) float64 {
	var sum float64
	for f := 0; f < mlFeatureVectorSize; f++ {
		sd := m.featureStdDevs[f]
		if sd == 0 {
			sd = 1
		}
		z := (features[f] - m.featureMeans[f]) / sd
		sum += z * z
	}
	return math.Sqrt(sum / mlFeatureVectorSize)
}

// validateMLModel estimates accuracy as the fraction of validation points
// whose reconstruction error falls within a normal band, a cheap substitute
// for a labeled accuracy metric.
func validateMLModel(m *mlModel, trainSamples, valSamples []models.Sample) float64 {
	if len(valSamples) == 0 {
		return 0.75 // no held-out data: assume adequate, let threshold govern
	}
	combined := append(append([]models.Sample{}, trainSamples...), valSamples...)
	within := 0
	for i := len(trainSamples); i < len(combined); i++ {
		f := extractMLFeatures(combined, i)
		err := reconstructionError(m, f)
		if err < 3.0 {
			within++
		}
	}
	return float64(within) / float64(len(valSamples))
}

func (d *MLEnsembleDetector) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trained && d.enabled
}

func (d *MLEnsembleDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.models = make(map[string][]*mlModel)
	d.history = make(map[string]*rollingWindow)
	d.trained = false
}

func (d *MLEnsembleDetector) ModelInfo() models.ModelInfo {
	return models.ModelInfo{Algorithm: "ml_ensemble", Version: "1.0", Parameters: map[string]interface{}{
		"threshold": d.cfg.Threshold, "minValidationAcc": d.cfg.MinValidationAcc,
	}}
}

// FeatureImportance reports, for a source, the relative contribution of
// each of the 16 features to the ensemble's current reconstruction error,
// satisfying the FeatureImportanceProvider capability interface.
func (d *MLEnsembleDetector) FeatureImportance(source string) (map[string]float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept, ok := d.models[source]
	if !ok || len(kept) == 0 {
		return nil, false
	}
	var totalVar [mlFeatureVectorSize]float64
	for _, m := range kept {
		for f := 0; f < mlFeatureVectorSize; f++ {
			totalVar[f] += m.featureStdDevs[f] * m.featureStdDevs[f]
		}
	}
	var sum float64
	for _, v := range totalVar {
		sum += v
	}
	out := make(map[string]float64, mlFeatureVectorSize)
	for f := 0; f < mlFeatureVectorSize; f++ {
		name := fmt.Sprintf("feature_%d", f)
		if sum > 0 {
			out[name] = totalVar[f] / sum
		} else {
			out[name] = 0
		}
	}
	return out, true
}

func (d *MLEnsembleDetector) Detect(ctx context.Context, samples []models.Sample, dctx DetectContext) ([]models.Anomaly, error) {
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
		kept := d.models[s.Source]
		if len(kept) == 0 {
			continue
		}
		hist := d.history[s.Source]
		if hist == nil {
			hist = newRollingWindow(512)
			d.history[s.Source] = hist
		}
		idx := hist.Len()
		hist.Append(s.Value)
		combined := append(hist.Values()[:idx:idx], s.Value)
		synthetic := make([]models.Sample, len(combined))
		for i, v := range combined {
			synthetic[i] = models.Sample{Value: v}
		}
		features := extractMLFeatures(synthetic, len(synthetic)-1)

		var weightedScore, weightSum float64
		for _, m := range kept {
			err := reconstructionError(m, features)
			score := stats.Clamp(err/6, 0, 1)
			weightedScore += score * m.validationAcc
			weightSum += m.validationAcc
		}
		if weightSum == 0 {
			continue
		}
		ensembleScore := weightedScore / weightSum

		if ensembleScore >= d.cfg.Threshold {
			confidence := stats.Clamp(ensembleScore*float64(len(kept))/5.0, 0, 1)
			a, err := models.NewAnomaly(uuid.NewString(), models.AnomalyOutlier, ensembleScore, confidence, s, s.Value, 0,
				models.AnomalyContext{Metric: s.Metric, Labels: s.Labels, Algorithm: "ml_ensemble", Threshold: d.cfg.Threshold},
				fmt.Sprintf("ml ensemble reconstruction score %.3f for metric %s (%d models)", ensembleScore, s.Metric, len(kept)))
			if err == nil {
				if keptA, ok := applyBusinessRules(a, d.cfg.BusinessRules); ok {
					out = append(out, keptA)
				}
			}
		}
	}
	return out, nil
}

// extractMLFeatures builds the 16-feature vector: the 8 isolation-forest
// features plus skewness, kurtosis, MAD-normalized deviation, trend slope
// over the local window, short/long moving-average ratio, volatility ratio,
// autocorrelation lag-1, and range-normalized position.
func extractMLFeatures(samples []models.Sample, idx int) [mlFeatureVectorSize]float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	base := extractFeatures(samples, idx)
	summary := stats.Summarize(values)

	windowStart := idx - 10
	if windowStart < 0 {
		windowStart = 0
	}
	localWindow := values[windowStart : idx+1]

	localMean := stats.Mean(localWindow)
	localStdDev := stats.StdDev(localWindow)
	skew := stats.Skewness(localWindow, localMean, localStdDev)
	kurt := stats.Kurtosis(localWindow, localMean, localStdDev)
	madDev := 0.0
	if summary.MAD > 0 {
		madDev = math.Abs(values[idx]-summary.Median) / summary.MAD
	}

	var trendSlope float64
	if len(localWindow) > 1 {
		var sumX, sumY, sumXY, sumXX float64
		n := float64(len(localWindow))
		for i, v := range localWindow {
			x := float64(i)
			sumX += x
			sumY += v
			sumXY += x * v
			sumXX += x * x
		}
		denom := n*sumXX - sumX*sumX
		if denom != 0 {
			trendSlope = (n*sumXY - sumX*sumY) / denom
		}
	}

	shortStart := idx - 3
	if shortStart < 0 {
		shortStart = 0
	}
	shortMA := stats.Mean(values[shortStart : idx+1])
	longMA := stats.Mean(localWindow)
	maRatio2 := 1.0
	if longMA != 0 {
		maRatio2 = shortMA / longMA
	}

	volRatio := 0.0
	if summary.StdDev > 0 {
		volRatio = stats.StdDev(localWindow) / summary.StdDev
	}

	autocorr := 0.0
	if idx > windowStart {
		autocorr = autocorrelationLag1(localWindow)
	}

	rangePos := 0.5
	if summary.Range > 0 {
		rangePos = (values[idx] - summary.Min) / summary.Range
	}

	return [mlFeatureVectorSize]float64{
		base[0], base[1], base[2], base[3], base[4], base[5], base[6], base[7],
		skew, kurt, madDev, trendSlope, maRatio2, volRatio, autocorr, rangePos,
	}
}

func autocorrelationLag1(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := stats.Mean(values)
	var num, den float64
	for i := 1; i < len(values); i++ {
		num += (values[i] - mean) * (values[i-1] - mean)
	}
	for _, v := range values {
		den += (v - mean) * (v - mean)
	}
	if den == 0 {
		return 0
	}
	return num / den
}
