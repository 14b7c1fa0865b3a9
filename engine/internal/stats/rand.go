package stats

import "math/rand"

// Rand wraps math/rand.Rand behind the narrow surface the engine's
// randomized algorithms (isolation forest subsampling, Bernoulli sampling,
// quickselect pivot choice) actually need, so every caller goes through one
// seeded source per detector instance rather than the global generator.
type Rand struct {
	r *rand.Rand
}

// NewRand creates a Rand seeded deterministically from seed. The same seed
// always produces the same sequence, which is the property the engine's
// reproducibility tests rely on.
func NewRand(seed int64) *Rand {
	return &Rand{r: rand.New(rand.NewSource(seed))}
}

// Float64 returns a pseudo-random number in [0.0, 1.0).
func (r *Rand) Float64() float64 { return r.r.Float64() }

// Intn returns a pseudo-random number in [0, n).
func (r *Rand) Intn(n int) int { return r.r.Intn(n) }

// Bernoulli reports true with probability p (p is clamped to [0,1]).
func (r *Rand) Bernoulli(p float64) bool {
	if p >= 1 {
		return true
	}
	if p <= 0 {
		return false
	}
	return r.r.Float64() < p
}

// Perm returns a pseudo-random permutation of [0,n).
func (r *Rand) Perm(n int) []int { return r.r.Perm(n) }

// IndicesQuickSelectK partitions idx in place, using less to compare the
// underlying elements idx[i] refers to, so that the k smallest (by less)
// occupy idx[:k]. Used by the KNN detector to find its k nearest neighbours
// by distance without sorting the whole training set.
func IndicesQuickSelectK(idx []int, k int, rng *Rand, less func(a, b int) bool) {
	if k <= 0 || k >= len(idx) {
		return
	}
	lo, hi := 0, len(idx)-1
	for lo < hi {
		pivotIdx := lo + rng.Intn(hi-lo+1)
		pivotIdx = partitionIdx(idx, lo, hi, pivotIdx, less)
		switch {
		case pivotIdx == k:
			return
		case pivotIdx < k:
			lo = pivotIdx + 1
		default:
			hi = pivotIdx - 1
		}
	}
}

func partitionIdx(idx []int, lo, hi, pivotIdx int, less func(a, b int) bool) int {
	pivot := idx[pivotIdx]
	idx[pivotIdx], idx[hi] = idx[hi], idx[pivotIdx]
	store := lo
	for i := lo; i < hi; i++ {
		if less(idx[i], pivot) {
			idx[i], idx[store] = idx[store], idx[i]
			store++
		}
	}
	idx[store], idx[hi] = idx[hi], idx[store]
	return store
}
