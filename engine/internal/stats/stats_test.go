package stats

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeBasic(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	s := Summarize(values)
	assert.InDelta(t, 5.5, s.Mean, 1e-9)
	assert.InDelta(t, 5.5, s.Median, 1e-9)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 10.0, s.Max)
	assert.Equal(t, 9.0, s.Range)
	assert.Equal(t, 10, s.N)
}

func TestQuantileMatchesSortedEdges(t *testing.T) {
	values := []float64{5, 1, 3, 2, 4}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	assert.Equal(t, 1.0, Quantile(sorted, 0))
	assert.Equal(t, 5.0, Quantile(sorted, 1))
}

func TestZScoreAndModifiedZScore(t *testing.T) {
	assert.Equal(t, 0.0, ZScore(10, 5, 0))
	assert.InDelta(t, 2.0, ZScore(15, 5, 5), 1e-9)
	assert.Equal(t, 0.0, ModifiedZScore(10, 5, 0))
}

func TestNormalityHeuristic(t *testing.T) {
	assert.True(t, NormalityHeuristic(0.1, 0.2))
	assert.False(t, NormalityHeuristic(2.5, 0.2))
	assert.False(t, NormalityHeuristic(0.1, 5.0))
}

func TestQuickSelectKSmallestPrefix(t *testing.T) {
	values := []float64{9, 3, 7, 1, 8, 2, 6, 5, 4}
	rng := NewRand(42)
	k := 3
	QuickSelectK(values, k, rng)
	smallest := append([]float64(nil), values[:k]...)
	sort.Float64s(smallest)
	assert.Equal(t, []float64{1, 2, 3}, smallest)
}

func TestRandDeterministicWithSameSeed(t *testing.T) {
	r1 := NewRand(7)
	r2 := NewRand(7)
	for i := 0; i < 10; i++ {
		assert.Equal(t, r1.Float64(), r2.Float64())
	}
}
